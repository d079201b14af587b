package repository

import "github.com/jackc/pgx/v5/pgxpool"

type Repository struct {
	WorkerRepo WorkerRepositoryInterface
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{WorkerRepo: NewWorkerRepository(pool)}
}
