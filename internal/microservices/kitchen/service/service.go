package service

import (
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/microservices/kitchen/repository"
)

type Service struct {
	KitchenService KitchenServiceInterface
}

func New(items ItemUpdater, repo *repository.Repository, log *logger.Logger, cfg Config) *Service {
	return &Service{
		KitchenService: NewKitchenService(items, repo.WorkerRepo, log, cfg),
	}
}
