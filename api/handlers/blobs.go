package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

// resultsPrefix 只有排版后的文档可以通过链接访问
const resultsPrefix = "results/"

var errForbiddenKey = errors.New("object is not downloadable")

// BlobHandler 为内存存储生成的链接提供下载。minio/s3 使用预签名地址，不经过这里
type BlobHandler struct {
	baseHandler
	blobs storage.Storage
}

func (h *BlobHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, resultsPrefix) || strings.Contains(key, "..") {
		h.handleError(c, http.StatusForbidden, "Invalid link", errForbiddenKey)
		return
	}

	rc, err := h.blobs.Get(c.Request.Context(), key)
	if err != nil {
		h.handleError(c, statusFor(err), "File not found", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", wordContentType)
	c.Header("Content-Disposition", attachment(path.Base(key)))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Error("Failed to send file", logger.String("key", key), logger.Error(err))
	}
}
