package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/api/middleware"
	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/internal/utils/validator"
	"github.com/feichai0017/word-typesetter/pkg/logger"
)

// SSE 事件名
const (
	EventRecord = "record"
	EventFailed = "failed"
	EventDone   = "done"
)

type UploadHandler struct {
	baseHandler
	runner upload.Processor
	cfg    Config
}

// SelectionResponse 上传页当前状态
type SelectionResponse struct {
	Files           []*models.UploadedFile `json:"files"`
	Error           string                 `json:"error,omitempty"`
	AdvisoryMaxSize int64                  `json:"advisoryMaxSize"`
}

// ProcessRequest 开始处理的参数
type ProcessRequest struct {
	Rules string `form:"rules" json:"rules"`
}

// FailedEvent 运行中止时推送
type FailedEvent struct {
	Error   string                    `json:"error"`
	Records []models.ProcessingRecord `json:"records"`
}

// DoneEvent 全部成功时推送，客户端在 RedirectAfterMs 之后跳转
type DoneEvent struct {
	Results         int    `json:"results"`
	Redirect        string `json:"redirect"`
	RedirectAfterMs int64  `json:"redirectAfterMs"`
}

func (h *UploadHandler) selection(c *gin.Context, status int) {
	s := middleware.CurrentSession(c)
	c.JSON(status, SelectionResponse{
		Files:           s.Selection.List(),
		Error:           s.Selection.Error(),
		AdvisoryMaxSize: validator.AdvisoryMaxFileSize,
	})
}

// ListFiles 当前已选择的文件
func (h *UploadHandler) ListFiles(c *gin.Context) {
	h.selection(c, http.StatusOK)
}

// AddFiles 追加一批文件，任一文件格式不支持时整批拒绝
func (h *UploadHandler) AddFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	batch := make([]upload.Incoming, 0, len(headers))
	for _, fh := range headers {
		content, err := readPart(fh)
		if err != nil {
			h.handleError(c, http.StatusBadRequest, "Failed to read file", err)
			return
		}
		batch = append(batch, upload.Incoming{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Content:  content,
		})
	}

	s := middleware.CurrentSession(c)
	if _, err := s.Selection.Add(batch); err != nil {
		var batchErr *validator.BatchError
		if errors.As(err, &batchErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    err.Error(),
				"message":  "Unsupported file type",
				"rejected": batchErr.Rejected,
			})
			return
		}
		h.handleError(c, statusFor(err), "Failed to add files", err)
		return
	}

	h.logger.Info("Files selected",
		logger.String("session", s.ID),
		logger.Int("count", len(batch)),
	)
	h.selection(c, http.StatusCreated)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// RemoveFile 从选择中移除一个文件，不存在时同样返回 204
func (h *UploadHandler) RemoveFile(c *gin.Context) {
	s := middleware.CurrentSession(c)
	s.Selection.Remove(c.Param("fileId"))
	c.Status(http.StatusNoContent)
}

// Process 顺序处理全部已选文件，以 SSE 推送每次进度变化。
// 客户端断开不会取消正在进行的请求
func (h *UploadHandler) Process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	s := middleware.CurrentSession(c)
	files := s.Selection.List()
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files selected", upload.ErrNoFiles)
		return
	}
	if err := s.TryStartRun(); err != nil {
		h.handleError(c, http.StatusConflict, "Run already in progress", err)
		return
	}
	defer s.FinishRun()

	s.Selection.SetError("")
	s.Board.Reset()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(event string, payload any) {
		c.SSEvent(event, payload)
		c.Writer.Flush()
	}

	ctx := context.WithoutCancel(c.Request.Context())
	report, err := h.runner.Run(ctx, s.ID, files, models.FormattingRequest{Rules: req.Rules}, func(u upload.Update) {
		send(EventRecord, u)
	})
	if err != nil {
		s.Selection.SetError(err.Error())
		failed := FailedEvent{Error: err.Error()}
		if report != nil {
			failed.Records = report.Records
		}
		send(EventFailed, failed)
		return
	}

	send(EventDone, DoneEvent{
		Results:         len(report.Results),
		Redirect:        DownloadPagePath,
		RedirectAfterMs: h.cfg.RedirectDelay.Milliseconds(),
	})
}
