package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/queue"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

// FeedbackHandler 处理反馈任务
type FeedbackHandler interface {
	HandleSubmit(ctx context.Context, task *queue.Task) error
}

// Handlers 各任务类型的处理函数，不依赖 asynq 服务端，便于单独测试
type Handlers struct {
	feedback  FeedbackHandler
	blobs     storage.Storage
	statuses  queue.Queue
	retention time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewHandlers(feedback FeedbackHandler, blobs storage.Storage, statuses queue.Queue, retention time.Duration, log logger.Logger) *Handlers {
	return &Handlers{
		feedback:  feedback,
		blobs:     blobs,
		statuses:  statuses,
		retention: retention,
		logger:    log,
		now:       time.Now,
	}
}

// Register 注册任务处理器
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypeFeedbackSubmit, h.HandleFeedback)
	mux.HandleFunc(queue.TaskTypeResultsCleanup, h.HandleCleanup)
}

func (h *Handlers) HandleFeedback(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		h.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w: %w", err, asynq.SkipRetry)
	}

	if task.ID == "" || len(task.Payload) == 0 {
		h.logger.Error("Invalid task data", logger.String("taskId", task.ID))
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	h.logger.Info("Processing feedback task", logger.String("taskId", task.ID))

	started := h.now()
	err := h.feedback.HandleSubmit(ctx, &task)
	h.saveStatus(ctx, &task, started, err)
	return err
}

func (h *Handlers) saveStatus(ctx context.Context, task *queue.Task, started time.Time, err error) {
	if h.statuses == nil {
		return
	}
	status := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     "completed",
		Progress:   1.0,
		StartedAt:  started,
		FinishedAt: h.now(),
	}
	if err != nil {
		status.Status = "failed"
		status.Progress = 0
		status.Error = err.Error()
	}
	if serr := h.statuses.SaveFinalStatus(ctx, status); serr != nil {
		h.logger.Error("Failed to write task status", logger.String("taskId", task.ID), logger.Error(serr))
	}
}

// HandleCleanup 清理超过保留期的文档和反馈
func (h *Handlers) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	threshold := h.now().Add(-h.retention)
	if err := h.blobs.CleanupBefore(ctx, threshold); err != nil {
		h.logger.Error("Cleanup failed", logger.Time("threshold", threshold), logger.Error(err))
		return fmt.Errorf("failed to clean up documents: %w", err)
	}
	h.logger.Info("Cleanup finished", logger.Time("threshold", threshold))
	return nil
}

type TypesetWorker struct {
	BaseWorker
	handlers *Handlers
	schedule string
}

func NewTypesetWorker(cfg *Config, handlers *Handlers, log logger.Logger) (*TypesetWorker, error) {
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = queue.Queues
	}
	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
	})

	w := &TypesetWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		handlers: handlers,
		schedule: cfg.CleanupSchedule,
	}
	if cfg.CleanupSchedule != "" {
		w.scheduler = asynq.NewScheduler(cfg.Redis, nil)
	}

	handlers.Register(w.mux)
	return w, nil
}

func (w *TypesetWorker) Start(ctx context.Context) error {
	if w.scheduler != nil {
		id, err := w.scheduler.Register(w.schedule,
			asynq.NewTask(queue.TaskTypeResultsCleanup, nil),
			asynq.Queue(queue.QueueLow),
		)
		if err != nil {
			return fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
		w.logger.Info("Cleanup scheduled", logger.String("entry", id), logger.String("schedule", w.schedule))

		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	return nil
}
