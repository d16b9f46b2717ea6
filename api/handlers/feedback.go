package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/api/middleware"
	"github.com/feichai0017/word-typesetter/internal/service/feedback"
	"github.com/feichai0017/word-typesetter/pkg/queue"
)

type FeedbackHandler struct {
	baseHandler
	service *feedback.Service
}

// Submit 反馈弹窗提交
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var report feedback.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid feedback", err)
		return
	}

	s := middleware.CurrentSession(c)
	fb, err := h.service.Submit(c.Request.Context(), s.ID, report)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to submit feedback", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":      fb.ID,
		"message": "感谢您的反馈！我们会尽快处理。",
	})
}

// Status 反馈任务的处理状态
func (h *FeedbackHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrTaskNotFound) {
		h.handleError(c, http.StatusNotFound, "Feedback not found", err)
		return
	}
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
