package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/internal/service/download"
	"github.com/feichai0017/word-typesetter/internal/service/feedback"
	"github.com/feichai0017/word-typesetter/internal/service/session"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/internal/utils/validator"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

// 前端页面路径，用于跳转提示
const (
	UploadPagePath   = "/upload"
	DownloadPagePath = "/download"
)

type Config struct {
	PublicURL string
	// RedirectDelay 全部完成后等待多久再跳转下载页
	RedirectDelay time.Duration
}

type Handlers struct {
	Upload   *UploadHandler
	Results  *ResultsHandler
	Feedback *FeedbackHandler
	Blobs    *BlobHandler
}

func NewHandlers(
	runner upload.Processor,
	feedbackService *feedback.Service,
	blobs storage.Storage,
	log logger.Logger,
	cfg Config,
) *Handlers {
	base := baseHandler{logger: log}
	return &Handlers{
		Upload:   &UploadHandler{baseHandler: base, runner: runner, cfg: cfg},
		Results:  &ResultsHandler{baseHandler: base, cfg: cfg},
		Feedback: &FeedbackHandler{baseHandler: base, service: feedbackService},
		Blobs:    &BlobHandler{baseHandler: base, blobs: blobs},
	}
}

// HealthCheck 存活检查
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type baseHandler struct {
	logger logger.Logger
}

// handleError 统一错误处理
func (h baseHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message:  message,
		Redirect: redirectFor(err),
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.AbortWithStatusJSON(status, response)
}

// statusFor 业务错误到 HTTP 状态码
func statusFor(err error) int {
	var batchErr *validator.BatchError
	switch {
	case errors.As(err, &batchErr),
		errors.Is(err, upload.ErrNoFiles),
		errors.Is(err, download.ErrConfirmationRequired),
		errors.Is(err, feedback.ErrTitleRequired),
		errors.Is(err, feedback.ErrDescriptionRequired),
		errors.Is(err, feedback.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrNoResults),
		errors.Is(err, download.ErrItemNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRunInProgress),
		errors.Is(err, download.ErrDownloadInProgress):
		return http.StatusConflict
	case errors.Is(err, feedback.ErrStatusUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// redirectFor 结果页无法恢复时提示回到上传页
func redirectFor(err error) string {
	if errors.Is(err, download.ErrNoResults) || errors.Is(err, download.ErrLoadFailed) {
		return UploadPagePath
	}
	return ""
}
