package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/word-typesetter/config"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/storage/memory"
	"github.com/feichai0017/word-typesetter/pkg/storage/minio"
	"github.com/feichai0017/word-typesetter/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeMemory StorageType = "memory"
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = memory.ErrNotFound

// Storage 排版后文档的存储。key 即下载页持有的资源句柄，Delete 即释放句柄
type Storage interface {
	// Store 存储文件
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除文件，不存在时不报错
	Delete(ctx context.Context, key string) error
	// URL 生成可直接下载的地址
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// CleanupBefore 清理过期文件
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, cfg *config.Config, log logger.Logger) (Storage, error) {
	switch StorageType(cfg.Storage.Type) {
	case StorageTypeMemory:
		return memory.New(cfg.Server.PublicURL + "/api/v1/blobs"), nil
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// ResultKey 排版后文档的对象键
func ResultKey(sessionID, fileID, name string) string {
	return fmt.Sprintf("results/%s/%s/%s", sessionID, fileID, name)
}

// FeedbackKey 反馈报告的对象键
func FeedbackKey(id string) string {
	return fmt.Sprintf("feedback/%s.json", id)
}

// DeleteAll 并发释放一组对象，出错时返回第一个错误
func DeleteAll(ctx context.Context, s Storage, keys []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, key := range keys {
		if key == "" {
			continue
		}
		key := key
		g.Go(func() error {
			if err := s.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to release %s: %w", key, err)
			}
			return nil
		})
	}

	return g.Wait()
}
