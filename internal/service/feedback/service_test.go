package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/queue"
	"github.com/feichai0017/word-typesetter/pkg/storage"
	"github.com/feichai0017/word-typesetter/pkg/storage/memory"
)

type recordingQueue struct {
	tasks []*queue.Task
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	return &queue.TaskStatus{TaskID: taskID, Status: "pending"}, nil
}

func (q *recordingQueue) SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error {
	return nil
}

func TestReport_Validate(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   error
	}{
		{"ok", Report{Title: "t", Description: "d"}, nil},
		{"ok with email", Report{Title: "t", Description: "d", Email: "a@b.com"}, nil},
		{"missing title", Report{Title: "  ", Description: "d"}, ErrTitleRequired},
		{"missing description", Report{Title: "t"}, ErrDescriptionRequired},
		{"bad email", Report{Title: "t", Description: "d", Email: "nope"}, ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.report.Validate(), tt.want)
		})
	}
}

func readFeedback(t *testing.T, blobs storage.Storage, id string) models.Feedback {
	t.Helper()
	rc, err := blobs.Get(context.Background(), storage.FeedbackKey(id))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var fb models.Feedback
	require.NoError(t, json.Unmarshal(data, &fb))
	return fb
}

func TestSubmit_WithoutQueueStoresDirectly(t *testing.T) {
	blobs := memory.New("")
	svc := NewService(nil, blobs, logger.NewNop())

	fb, err := svc.Submit(context.Background(), "s1", Report{Title: " 下载失败 ", Description: "点了没反应"})
	require.NoError(t, err)
	assert.Equal(t, "下载失败", fb.Title)

	stored := readFeedback(t, blobs, fb.ID)
	assert.Equal(t, "点了没反应", stored.Description)
	assert.Equal(t, "s1", stored.SessionID)

	_, err = svc.Status(context.Background(), fb.ID)
	assert.ErrorIs(t, err, ErrStatusUnavailable)
}

func TestSubmit_QueuesAndWorkerStores(t *testing.T) {
	blobs := memory.New("")
	q := &recordingQueue{}
	svc := NewService(q, blobs, logger.NewNop())
	ctx := context.Background()

	fb, err := svc.Submit(ctx, "s1", Report{Title: "t", Description: "d", Email: "a@b.com"})
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskTypeFeedbackSubmit, q.tasks[0].Type)
	assert.Equal(t, fb.ID, q.tasks[0].ID)
	assert.Equal(t, 0, blobs.Len())

	require.NoError(t, svc.HandleSubmit(ctx, q.tasks[0]))
	stored := readFeedback(t, blobs, fb.ID)
	assert.Equal(t, "a@b.com", stored.Email)

	status, err := svc.Status(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, fb.ID, status.TaskID)
}

func TestSubmit_EnqueueFailure(t *testing.T) {
	q := &recordingQueue{err: errors.New("redis down")}
	svc := NewService(q, memory.New(""), logger.NewNop())

	_, err := svc.Submit(context.Background(), "s1", Report{Title: "t", Description: "d"})
	assert.ErrorContains(t, err, "redis down")
}

func TestSubmit_InvalidReport(t *testing.T) {
	q := &recordingQueue{}
	svc := NewService(q, memory.New(""), logger.NewNop())

	_, err := svc.Submit(context.Background(), "s1", Report{Description: "d"})
	assert.ErrorIs(t, err, ErrTitleRequired)
	assert.Empty(t, q.tasks)
}

func TestHandleSubmit_BadPayload(t *testing.T) {
	svc := NewService(nil, memory.New(""), logger.NewNop())
	err := svc.HandleSubmit(context.Background(), &queue.Task{ID: "x", Payload: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}
