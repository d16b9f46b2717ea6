package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/word-typesetter/config"
)

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueCritical, QueueFor(1))
	assert.Equal(t, QueueDefault, QueueFor(2))
	assert.Equal(t, QueueLow, QueueFor(3))
	assert.Equal(t, QueueLow, QueueFor(0))
}

func TestNewTask_EncodesPayload(t *testing.T) {
	task, err := NewTask("t-1", TaskTypeFeedbackSubmit, 3, map[string]string{"title": "bug"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", task.ID)
	assert.Equal(t, TaskTypeFeedbackSubmit, task.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Equal(t, "bug", payload["title"])
}

func TestConvertTaskInfo(t *testing.T) {
	done := time.Unix(1700000000, 0)
	tests := []struct {
		name     string
		info     asynq.TaskInfo
		status   string
		progress float64
		errMsg   string
	}{
		{"pending", asynq.TaskInfo{ID: "a", State: asynq.TaskStatePending}, "pending", 0, ""},
		{"scheduled", asynq.TaskInfo{ID: "a", State: asynq.TaskStateScheduled}, "pending", 0, ""},
		{"active", asynq.TaskInfo{ID: "a", State: asynq.TaskStateActive}, "running", 0.5, ""},
		{"completed", asynq.TaskInfo{ID: "a", State: asynq.TaskStateCompleted, CompletedAt: done}, "completed", 1, ""},
		{"retry", asynq.TaskInfo{ID: "a", State: asynq.TaskStateRetry, LastErr: "boom"}, "retrying", 0, "boom"},
		{"archived", asynq.TaskInfo{ID: "a", State: asynq.TaskStateArchived, LastErr: "boom"}, "failed", 0, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			got := ConvertTaskInfo(&info)
			assert.Equal(t, "a", got.TaskID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.progress, got.Progress)
			assert.Equal(t, tt.errMsg, got.Error)
		})
	}
}

func TestNewAsynqQueue_RequiresAddr(t *testing.T) {
	_, err := NewAsynqQueue(config.RedisConfig{}, DefaultConfig())
	assert.Error(t, err)
}
