package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrWorkerOnline = errors.New("worker already online")

// WorkerRepositoryInterface tracks kitchen workers so two processes never share a name.
type WorkerRepositoryInterface interface {
	RegisterOrFail(ctx context.Context, name string, staffID uuid.UUID) error
	SetOffline(ctx context.Context, name string) error
	Heartbeat(ctx context.Context, name string) error
	ItemCooked(ctx context.Context, name string) error
}

type WorkerRepository struct {
	pool *pgxpool.Pool
}

func NewWorkerRepository(pool *pgxpool.Pool) *WorkerRepository {
	return &WorkerRepository{pool: pool}
}

func (r *WorkerRepository) RegisterOrFail(ctx context.Context, name string, staffID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM kitchen_workers WHERE name = $1 FOR UPDATE`, name).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `
			INSERT INTO kitchen_workers (name, staff_id, status, last_seen) VALUES ($1, $2, 'online', now())
		`, name, staffID); err != nil {
			return fmt.Errorf("failed to register worker %s: %w", name, err)
		}
	case err != nil:
		return err
	case status == "online":
		return fmt.Errorf("%w: %s", ErrWorkerOnline, name)
	default:
		if _, err := tx.Exec(ctx, `
			UPDATE kitchen_workers SET staff_id = $2, status = 'online', last_seen = now() WHERE name = $1
		`, name, staffID); err != nil {
			return fmt.Errorf("failed to register worker %s: %w", name, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *WorkerRepository) SetOffline(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE kitchen_workers SET status = 'offline', last_seen = now() WHERE name = $1`, name)
	return err
}

func (r *WorkerRepository) Heartbeat(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE kitchen_workers SET last_seen = now() WHERE name = $1`, name)
	return err
}

func (r *WorkerRepository) ItemCooked(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE kitchen_workers SET items_cooked = items_cooked + 1, last_seen = now() WHERE name = $1
	`, name)
	return err
}

type workerRow struct {
	staffID  uuid.UUID
	online   bool
	cooked   int
	lastSeen time.Time
}

// MemoryWorkerRepository backs the worker registry when storage.driver is memory.
type MemoryWorkerRepository struct {
	mu      sync.Mutex
	workers map[string]*workerRow
}

func NewMemoryWorkerRepository() *MemoryWorkerRepository {
	return &MemoryWorkerRepository{workers: make(map[string]*workerRow)}
}

func (r *MemoryWorkerRepository) RegisterOrFail(_ context.Context, name string, staffID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[name]; ok && w.online {
		return fmt.Errorf("%w: %s", ErrWorkerOnline, name)
	}
	r.workers[name] = &workerRow{staffID: staffID, online: true, lastSeen: time.Now().UTC()}
	return nil
}

func (r *MemoryWorkerRepository) SetOffline(_ context.Context, name string) error {
	return r.touch(name, func(w *workerRow) { w.online = false })
}

func (r *MemoryWorkerRepository) Heartbeat(_ context.Context, name string) error {
	return r.touch(name, func(*workerRow) {})
}

func (r *MemoryWorkerRepository) ItemCooked(_ context.Context, name string) error {
	return r.touch(name, func(w *workerRow) { w.cooked++ })
}

// Cooked returns how many items the worker has finished.
func (r *MemoryWorkerRepository) Cooked(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[name]; ok {
		return w.cooked
	}
	return 0
}

func (r *MemoryWorkerRepository) touch(name string, fn func(*workerRow)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[name]
	if !ok {
		return fmt.Errorf("worker %s is not registered", name)
	}
	fn(w)
	w.lastSeen = time.Now().UTC()
	return nil
}
