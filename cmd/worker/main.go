package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/word-typesetter/config"
	"github.com/feichai0017/word-typesetter/internal/service/feedback"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/queue"
	"github.com/feichai0017/word-typesetter/pkg/storage"
	"github.com/feichai0017/word-typesetter/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := logger.NewLogger(
		logger.FromConfig(cfg.Log),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "typeset-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Redis.Addr == "" {
		log.Error("REDIS_ADDR is required to run the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", logger.Error(err))
		os.Exit(1)
	}

	// 任务最终状态写回 Redis，供 /feedback/:id 查询
	statuses, err := queue.NewAsynqQueue(cfg.Redis, queue.DefaultConfig())
	if err != nil {
		log.Error("Failed to initialize queue", logger.Error(err))
		os.Exit(1)
	}
	defer statuses.Close()

	feedbackService := feedback.NewService(nil, blobs, log)
	handlers := worker.NewHandlers(feedbackService, blobs, statuses, cfg.Storage.Retention, log.Named("tasks"))

	// 创建 worker
	typesetWorker, err := worker.NewTypesetWorker(&worker.Config{
		Redis:           queue.RedisOpt(cfg.Redis),
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          queue.Queues,
		CleanupSchedule: cfg.Worker.CleanupSchedule,
		Retention:       cfg.Storage.Retention,
	}, handlers, log)
	if err != nil {
		log.Error("Failed to create worker", logger.Error(err))
		os.Exit(1)
	}

	// 启动 worker
	if err := typesetWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.String("storage", cfg.Storage.Type))

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	typesetWorker.Stop()
	log.Info("Worker stopped")
}
