package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/api/handlers"
	"github.com/feichai0017/word-typesetter/api/middleware"
	"github.com/feichai0017/word-typesetter/internal/service/session"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, sessions *session.Manager, sessionTTL time.Duration) {
	// 全局中间件
	r.Use(middleware.CORS())

	// API 版本组
	v1 := r.Group("/api/v1")

	// 健康检查
	v1.GET("/health", handlers.HealthCheck)

	// 内存存储的下载链接，不需要会话
	v1.GET("/blobs/*key", h.Blobs.Get)

	sess := v1.Group("", middleware.Session(sessions, sessionTTL))

	// 上传页
	uploads := sess.Group("/uploads")
	{
		uploads.GET("/files", h.Upload.ListFiles)
		uploads.POST("/files", h.Upload.AddFiles)
		uploads.DELETE("/files/:fileId", h.Upload.RemoveFile)
		uploads.POST("/process", h.Upload.Process)
	}

	// 下载页
	results := sess.Group("/results")
	{
		results.GET("", h.Results.List)
		results.GET("/archive", h.Results.Archive)
		results.GET("/share", h.Results.Share)
		results.POST("/reprocess", h.Results.Reprocess)
		results.GET("/:id/download", h.Results.Download)
		results.GET("/:id/link", h.Results.Link)
		results.GET("/:id/preview", h.Results.Preview)
		results.DELETE("/:id", h.Results.Delete)
	}

	// 问题反馈
	sess.POST("/feedback", h.Feedback.Submit)
	v1.GET("/feedback/:id", h.Feedback.Status)
}
