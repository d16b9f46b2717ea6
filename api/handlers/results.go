package handlers

import (
	"archive/zip"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/api/middleware"
	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/logger"
)

const (
	wordContentType = "application/msword"
	archiveName     = "排版结果.zip"
)

type ResultsHandler struct {
	baseHandler
	cfg Config
}

// ResultsResponse 下载页状态
type ResultsResponse struct {
	Items      []models.DownloadItem `json:"items"`
	Downloaded int                   `json:"downloaded"`
	Total      int                   `json:"total"`
}

// List 当前条目及其下载状态，看板还没加载时先读取结果槽。
// 槽为空或损坏时返回错误并提示回到上传页
func (h *ResultsHandler) List(c *gin.Context) {
	s := middleware.CurrentSession(c)
	items, err := s.Board.Items(c.Request.Context())
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to load results", err)
		return
	}
	c.JSON(http.StatusOK, newResultsResponse(items))
}

func newResultsResponse(items []models.DownloadItem) ResultsResponse {
	downloaded := 0
	for _, item := range items {
		if item.Status == models.DownloadDownloaded {
			downloaded++
		}
	}
	return ResultsResponse{Items: items, Downloaded: downloaded, Total: len(items)}
}

// Download 以附件形式返回单个文档
func (h *ResultsHandler) Download(c *gin.Context) {
	s := middleware.CurrentSession(c)
	id := c.Param("id")

	item, err := s.Board.Item(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to download file", err)
		return
	}

	c.Header("Content-Type", wordContentType)
	c.Header("Content-Disposition", attachment(item.Name))
	if _, err := s.Board.Download(c.Request.Context(), id, c.Writer); err != nil {
		if c.Writer.Written() {
			h.logger.Error("Download interrupted", logger.String("id", id), logger.Error(err))
			return
		}
		c.Writer.Header().Del("Content-Type")
		c.Writer.Header().Del("Content-Disposition")
		h.handleError(c, statusFor(err), "Failed to download file", err)
		return
	}
}

// Archive 依次打包所有未下载的文档
func (h *ResultsHandler) Archive(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if _, err := s.Board.Items(c.Request.Context()); err != nil {
		h.handleError(c, statusFor(err), "Failed to load results", err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", attachment(archiveName))
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	n, err := s.Board.DownloadAll(c.Request.Context(), zw.Create)
	if err != nil {
		h.logger.Warn("Some files were not archived", logger.Int("archived", n), logger.Error(err))
	}
	if err := zw.Close(); err != nil {
		h.logger.Error("Failed to finish archive", logger.Error(err))
	}
}

// Link 复制下载链接
func (h *ResultsHandler) Link(c *gin.Context) {
	s := middleware.CurrentSession(c)
	link, err := s.Board.CopyLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get link", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":     link,
		"message": "下载链接已复制到剪贴板",
	})
}

// Share 分享内容；页面地址优先取 url 参数
func (h *ResultsHandler) Share(c *gin.Context) {
	s := middleware.CurrentSession(c)
	pageURL := c.Query("url")
	if pageURL == "" {
		pageURL = strings.TrimRight(h.cfg.PublicURL, "/") + DownloadPagePath
	}

	info, err := s.Board.Share(c.Request.Context(), pageURL)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to share results", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Preview 返回条目的 HTML 内容
func (h *ResultsHandler) Preview(c *gin.Context) {
	s := middleware.CurrentSession(c)
	item, err := s.Board.Item(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to preview file", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":   item.ID,
		"name": item.Name,
		"html": item.HTMLContent,
	})
}

// Delete 需要 confirm=true；重复删除同样返回 204
func (h *ResultsHandler) Delete(c *gin.Context) {
	s := middleware.CurrentSession(c)
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))

	if err := s.Board.Delete(c.Request.Context(), c.Param("id"), confirmed); err != nil {
		h.handleError(c, statusFor(err), "Failed to delete file", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reprocess 清空结果，客户端回到上传页
func (h *ResultsHandler) Reprocess(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if err := s.Board.Reprocess(c.Request.Context()); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to clear results", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": UploadPagePath})
}

// attachment 同时给出 ASCII 回退名和 UTF-8 文件名
func attachment(name string) string {
	fallback := "document" + extOf(name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(name))
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
