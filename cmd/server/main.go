package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/api/handlers"
	"github.com/feichai0017/word-typesetter/api/routes"
	"github.com/feichai0017/word-typesetter/config"
	"github.com/feichai0017/word-typesetter/internal/service/download"
	"github.com/feichai0017/word-typesetter/internal/service/feedback"
	"github.com/feichai0017/word-typesetter/internal/service/session"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/pkg/formatter"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/queue"
	"github.com/feichai0017/word-typesetter/pkg/resultstore"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.FromConfig(cfg.Log),
		logger.WithInitialFields(map[string]interface{}{"service": "typeset-server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}

	// 配置了 Redis 时结果槽和反馈队列都走 Redis，否则退回进程内实现
	var (
		slots         resultstore.Slots = resultstore.NewMemorySlots()
		feedbackQueue queue.Queue
	)
	if cfg.Redis.Addr != "" {
		redisSlots, err := resultstore.NewRedisSlots(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect result store", logger.Error(err))
		}
		defer redisSlots.Close()
		slots = redisSlots

		q, err := queue.NewAsynqQueue(cfg.Redis, queue.DefaultConfig())
		if err != nil {
			log.Fatal("Failed to initialize queue", logger.Error(err))
		}
		defer q.Close()
		feedbackQueue = q
	} else {
		log.Warn("REDIS_ADDR not set, results and feedback stay in process")
	}
	results := resultstore.New(slots)

	client := formatter.NewClient(formatter.Config{
		BaseURL:        cfg.Formatter.BaseURL,
		ConvertTimeout: cfg.Formatter.ConvertTimeout,
	})
	defer client.Close()

	runner := upload.NewRunner(client, blobs, results, log, upload.RunnerConfig{
		DefaultRules: cfg.Formatter.DefaultRules,
		LinkTTL:      cfg.Storage.LinkTTL,
		IdleNotice:   cfg.Formatter.IdleNotice,
	})

	sessions := session.NewManager(func(id string) *download.Board {
		return download.NewBoard(id, results, blobs, log, download.Config{
			SettleDelay:    cfg.Download.SettleDelay,
			InterItemDelay: cfg.Download.InterItemDelay,
			LinkTTL:        cfg.Storage.LinkTTL,
		})
	}, log)

	// init handlers
	h := handlers.NewHandlers(runner, feedback.NewService(feedbackQueue, blobs, log), blobs, log, handlers.Config{
		PublicURL:     cfg.Server.PublicURL,
		RedirectDelay: cfg.Server.RedirectDelay,
	})
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, sessions, cfg.Server.SessionTTL)

	go janitor(ctx, cfg, sessions, blobs, feedbackQueue == nil, log)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting",
			logger.String("addr", cfg.Server.Addr),
			logger.String("formatter", cfg.Formatter.BaseURL),
			logger.String("storage", cfg.Storage.Type),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}

// janitor 定期移除闲置会话；没有 worker 时顺带清理过期文档
func janitor(ctx context.Context, cfg *config.Config, sessions *session.Manager, blobs storage.Storage, cleanBlobs bool, log logger.Logger) {
	interval := cfg.Server.SessionTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Cleanup(cfg.Server.SessionTTL)
			if cleanBlobs {
				if err := blobs.CleanupBefore(ctx, time.Now().Add(-cfg.Storage.Retention)); err != nil {
					log.Warn("Failed to clean up documents", logger.Error(err))
				}
			}
		}
	}
}
