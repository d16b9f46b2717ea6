package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/queue"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

var (
	ErrTitleRequired       = errors.New("请填写问题标题")
	ErrDescriptionRequired = errors.New("请填写问题描述")
	ErrInvalidEmail        = errors.New("邮箱格式不正确")
	// ErrStatusUnavailable 没有配置任务队列时无法查询状态
	ErrStatusUnavailable = errors.New("feedback status is unavailable without a task queue")
)

const feedbackPriority = 3

// Report 反馈表单
type Report struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Email       string `json:"email,omitempty"`
}

// Validate 标题和描述必填，邮箱可选
func (r Report) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrDescriptionRequired
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	return nil
}

// Service 接收反馈。有队列时交给 worker 落盘，否则直接写入存储
type Service struct {
	queue  queue.Queue
	blobs  storage.Storage
	logger logger.Logger
	now    func() time.Time
}

// NewService q 可以为 nil
func NewService(q queue.Queue, blobs storage.Storage, log logger.Logger) *Service {
	return &Service{
		queue:  q,
		blobs:  blobs,
		logger: log.Named("feedback"),
		now:    time.Now,
	}
}

// Submit 验证并提交一条反馈
func (s *Service) Submit(ctx context.Context, sessionID string, r Report) (*models.Feedback, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	fb := &models.Feedback{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Email:       r.Email,
		SessionID:   sessionID,
		CreatedAt:   s.now().UTC(),
	}

	if s.queue == nil {
		if err := s.store(ctx, fb); err != nil {
			return nil, err
		}
		return fb, nil
	}

	task, err := queue.NewTask(fb.ID, queue.TaskTypeFeedbackSubmit, feedbackPriority, fb)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to submit feedback: %w", err)
	}

	s.logger.Info("Feedback queued", logger.String("id", fb.ID), logger.String("session", sessionID))
	return fb, nil
}

// Status 反馈任务的处理状态
func (s *Service) Status(ctx context.Context, id string) (*queue.TaskStatus, error) {
	if s.queue == nil {
		return nil, ErrStatusUnavailable
	}
	return s.queue.GetTaskStatus(ctx, id)
}

// HandleSubmit worker 端处理 feedback:submit 任务
func (s *Service) HandleSubmit(ctx context.Context, task *queue.Task) error {
	var fb models.Feedback
	if err := json.Unmarshal(task.Payload, &fb); err != nil {
		return fmt.Errorf("failed to decode feedback: %w", err)
	}
	if fb.ID == "" {
		fb.ID = task.ID
	}
	return s.store(ctx, &fb)
}

func (s *Service) store(ctx context.Context, fb *models.Feedback) error {
	data, err := json.MarshalIndent(fb, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}
	key := storage.FeedbackKey(fb.ID)
	if _, err := s.blobs.Store(ctx, bytes.NewReader(data), key); err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	s.logger.Info("Feedback stored", logger.String("id", fb.ID), logger.String("key", key))
	return nil
}
