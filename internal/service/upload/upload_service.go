package upload

import (
	"context"
	"errors"

	"github.com/feichai0017/word-typesetter/internal/models"
)

var (
	// ErrNoFiles 没有选择任何文件
	ErrNoFiles = errors.New("请先选择要处理的文件")
	// ErrNoContent 事件流结束时没有拿到排版结果
	ErrNoContent = errors.New("未能获取排版后的 HTML 内容")
)

// Update 一次进度推送：发生变化的记录和整体进度
type Update struct {
	Index   int                     `json:"index"`
	Record  models.ProcessingRecord `json:"record"`
	Overall int                     `json:"overall"`
}

// Observer 同步接收进度，按事件到达顺序调用
type Observer func(Update)

// RunReport 一次运行结束后的全部状态
type RunReport struct {
	Records   []models.ProcessingRecord `json:"records"`
	Results   []models.FormatResult     `json:"results,omitempty"`
	Persisted bool                      `json:"persisted"`
	Error     string                    `json:"error,omitempty"`
}

// Processor 处理一组已选择的文件
type Processor interface {
	Run(ctx context.Context, sessionID string, files []*models.UploadedFile, req models.FormattingRequest, observe Observer) (*RunReport, error)
}
