package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"restaurant-orders/internal/common/config"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/microservices/kitchen"
	"restaurant-orders/internal/microservices/notificator"
	"restaurant-orders/internal/microservices/order"
)

const modes = "order-service | kitchen-worker | notification-subscriber"

func main() {
	mode := flag.String("mode", "", modes)
	cfgPath := flag.String("config", "", "path to config.yaml (default: config.yaml, deploy/config.example.yaml)")
	port := flag.Int("port", 0, "order-service: http port, overrides http.port")
	workerName := flag.String("worker-name", "", "kitchen-worker: unique worker name, overrides kitchen.worker_name")
	prefetch := flag.Int("prefetch", 0, "kitchen-worker: RabbitMQ prefetch, overrides kitchen.prefetch")
	flag.Parse()

	lg := logger.New("bootstrap")

	path := *cfgPath
	if path == "" {
		p, err := config.FindConfig()
		if err != nil {
			lg.Error("config_not_found", err, nil)
			os.Exit(2)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_invalid", err, map[string]any{"path": path})
		os.Exit(2)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *workerName != "" {
		cfg.Kitchen.WorkerName = *workerName
	}
	if *prefetch > 0 {
		cfg.Kitchen.Prefetch = *prefetch
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var run func(context.Context, config.App) error
	switch *mode {
	case "order-service":
		run = order.Run
	case "kitchen-worker":
		if cfg.Kitchen.WorkerName == "" {
			fmt.Fprintln(os.Stderr, "--worker-name is required for kitchen-worker")
			os.Exit(2)
		}
		run = kitchen.Run
	case "notification-subscriber":
		run = notificator.Run
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: "+modes)
		os.Exit(2)
	}

	lg.Info("mode_selected", map[string]any{"mode": *mode, "config": path})
	if err := run(ctx, cfg); err != nil {
		lg.Error("fatal", err, map[string]any{"mode": *mode})
		cancel()
		os.Exit(1)
	}
}
