package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/resultstore"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

var (
	// ErrNoResults 结果槽为空
	ErrNoResults = errors.New("没有找到处理结果，请先上传文件进行处理")
	// ErrLoadFailed 结果槽内容无法解析或读取
	ErrLoadFailed = errors.New("加载结果失败，请重新处理文件")
	// ErrDownloadFailed 下载失败，条目回到 ready
	ErrDownloadFailed = errors.New("下载失败，请重试")
	// ErrItemNotFound 条目不存在
	ErrItemNotFound = errors.New("文件不存在或已被删除")
	// ErrConfirmationRequired 删除前必须确认
	ErrConfirmationRequired = errors.New("请确认是否删除该文件")
	// ErrDownloadInProgress 同一条目正在下载
	ErrDownloadInProgress = errors.New("文件正在下载中")
)

const (
	shareTitle = "Word排版助手 - 处理结果"
)

type Config struct {
	// SettleDelay 下载开始后多久标记为 downloaded
	SettleDelay time.Duration
	// InterItemDelay 全部下载时相邻两个文件之间的间隔
	InterItemDelay time.Duration
	// LinkTTL 复制链接时重新签发的有效期，为 0 时使用处理时生成的链接
	LinkTTL time.Duration
}

// ShareInfo 分享动作的内容
type ShareInfo struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Board 一个会话的下载页状态：从结果槽读出的条目列表
type Board struct {
	mu        sync.Mutex
	sessionID string
	items     []*models.DownloadItem
	loaded    bool

	results *resultstore.Store
	blobs   storage.Storage
	logger  logger.Logger
	cfg     Config

	sleep func(ctx context.Context, d time.Duration) error
	after func(d time.Duration, f func())
}

func NewBoard(sessionID string, results *resultstore.Store, blobs storage.Storage, log logger.Logger, cfg Config) *Board {
	return &Board{
		sessionID: sessionID,
		results:   results,
		blobs:     blobs,
		logger:    log.Named("download").With(logger.String("session", sessionID)),
		cfg:       cfg,
		sleep:     sleepCtx,
		after: func(d time.Duration, f func()) {
			if d <= 0 {
				f()
				return
			}
			time.AfterFunc(d, f)
		},
	}
}

// Load 重新读取结果槽并投影为条目，之前的条目状态被丢弃
func (b *Board) Load(ctx context.Context) ([]models.DownloadItem, error) {
	results, err := b.results.Load(ctx, b.sessionID)
	if err != nil {
		b.mu.Lock()
		b.items, b.loaded = nil, false
		b.mu.Unlock()

		if errors.Is(err, resultstore.ErrNotFound) {
			return nil, ErrNoResults
		}
		b.logger.Warn("Failed to load results", logger.Error(err))
		return nil, ErrLoadFailed
	}

	items := make([]*models.DownloadItem, len(results))
	for i, r := range results {
		items[i] = models.NewDownloadItem(r)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items, b.loaded = items, true
	return b.snapshot(), nil
}

// Items 当前条目的快照，还没加载时先加载
func (b *Board) Items(ctx context.Context) ([]models.DownloadItem, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(), nil
}

// Item 单个条目
func (b *Board) Item(ctx context.Context, id string) (models.DownloadItem, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return models.DownloadItem{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	item := b.find(id)
	if item == nil {
		return models.DownloadItem{}, ErrItemNotFound
	}
	return *item, nil
}

// Download 把条目对应的文档写入 w。成功后经过 SettleDelay 标记为 downloaded，
// 失败时回到 ready
func (b *Board) Download(ctx context.Context, id string, w io.Writer) (models.DownloadItem, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return models.DownloadItem{}, err
	}

	b.mu.Lock()
	item := b.find(id)
	if item == nil {
		b.mu.Unlock()
		return models.DownloadItem{}, ErrItemNotFound
	}
	if !item.Status.CanTransition(models.DownloadDownloading) {
		b.mu.Unlock()
		return *item, ErrDownloadInProgress
	}
	item.Status = models.DownloadDownloading
	snapshot := *item
	b.mu.Unlock()

	if err := b.copyDocument(ctx, snapshot, w); err != nil {
		b.logger.Error("Download failed",
			logger.String("id", id),
			logger.String("key", snapshot.ObjectKey),
			logger.Error(err),
		)
		b.setStatus(id, models.DownloadDownloading, models.DownloadReady)
		snapshot.Status = models.DownloadReady
		return snapshot, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	b.after(b.cfg.SettleDelay, func() {
		b.setStatus(id, models.DownloadDownloading, models.DownloadDownloaded)
	})
	return snapshot, nil
}

func (b *Board) copyDocument(ctx context.Context, item models.DownloadItem, w io.Writer) error {
	if item.ObjectKey == "" {
		return errors.New("item has no stored document")
	}
	rc, err := b.blobs.Get(ctx, item.ObjectKey)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// DownloadAll 依次下载所有未下载的条目，相邻两个之间等待 InterItemDelay。
// create 为每个条目提供写入目标（例如 zip 中的一个文件）。单个失败不影响其余条目
func (b *Board) DownloadAll(ctx context.Context, create func(name string) (io.Writer, error)) (int, error) {
	items, err := b.Items(ctx)
	if err != nil {
		return 0, err
	}

	var (
		done  int
		errs  []error
		first = true
	)
	for _, item := range items {
		if item.Status == models.DownloadDownloaded {
			continue
		}
		if !first {
			if err := b.sleep(ctx, b.cfg.InterItemDelay); err != nil {
				return done, err
			}
		}
		first = false

		w, err := create(item.Name)
		if err != nil {
			return done, fmt.Errorf("failed to create entry %s: %w", item.Name, err)
		}
		if _, err := b.Download(ctx, item.ID, w); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// CopyLink 条目的下载地址
func (b *Board) CopyLink(ctx context.Context, id string) (string, error) {
	item, err := b.Item(ctx, id)
	if err != nil {
		return "", err
	}
	if item.ObjectKey != "" && b.cfg.LinkTTL > 0 {
		// 每次复制都重新签发链接
		link, err := b.blobs.URL(ctx, item.ObjectKey, b.cfg.LinkTTL)
		if err != nil {
			return "", fmt.Errorf("failed to create download link: %w", err)
		}
		return link, nil
	}
	if item.DownloadURL == "" {
		return "", ErrItemNotFound
	}
	return item.DownloadURL, nil
}

// Share 分享当前结果页
func (b *Board) Share(ctx context.Context, pageURL string) (ShareInfo, error) {
	items, err := b.Items(ctx)
	if err != nil {
		return ShareInfo{}, err
	}
	return ShareInfo{
		Title: shareTitle,
		Text:  fmt.Sprintf("我的 %d 个文档已排版完成，点击查看", len(items)),
		URL:   pageURL,
	}, nil
}

// Preview 条目的 HTML 内容，只读
func (b *Board) Preview(ctx context.Context, id string) (string, error) {
	item, err := b.Item(ctx, id)
	if err != nil {
		return "", err
	}
	return item.HTMLContent, nil
}

// Delete 删除条目：先从结果槽移除，再从列表移除并释放文档。
// 条目不存在时什么都不做
func (b *Board) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := b.ensureLoaded(ctx); err != nil {
		if errors.Is(err, ErrNoResults) {
			return nil
		}
		return err
	}

	b.mu.Lock()
	item := b.find(id)
	if item == nil || item.Deleting {
		b.mu.Unlock()
		return nil
	}
	item.Deleting = true
	key := item.ObjectKey
	b.mu.Unlock()

	// 先改结果槽，失败时条目和文档都保持原样
	if _, err := b.results.Remove(ctx, b.sessionID, id); err != nil {
		b.mu.Lock()
		if item := b.find(id); item != nil {
			item.Deleting = false
		}
		b.mu.Unlock()
		return fmt.Errorf("failed to update results: %w", err)
	}

	b.mu.Lock()
	b.remove(id)
	b.mu.Unlock()

	if key != "" {
		if err := b.blobs.Delete(ctx, key); err != nil {
			b.logger.Warn("Failed to release document", logger.String("key", key), logger.Error(err))
		}
	}

	b.logger.Info("Item deleted", logger.String("id", id))
	return nil
}

// Reprocess 清空结果槽和全部条目，用户回到上传页
func (b *Board) Reprocess(ctx context.Context) error {
	b.mu.Lock()
	keys := make([]string, 0, len(b.items))
	for _, item := range b.items {
		keys = append(keys, item.ObjectKey)
	}
	b.items, b.loaded = nil, false
	b.mu.Unlock()

	if len(keys) == 0 {
		// 没加载过的看板也要释放槽里记录的文档
		if results, err := b.results.Load(ctx, b.sessionID); err == nil {
			for _, r := range results {
				keys = append(keys, r.ObjectKey)
			}
		}
	}

	if err := storage.DeleteAll(ctx, b.blobs, keys); err != nil {
		b.logger.Warn("Failed to release documents", logger.Error(err))
	}
	return b.results.Clear(ctx, b.sessionID)
}

// Reset 丢弃内存中的条目，下次访问重新读取结果槽
func (b *Board) Reset() {
	b.mu.Lock()
	b.items, b.loaded = nil, false
	b.mu.Unlock()
}

func (b *Board) ensureLoaded(ctx context.Context) error {
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := b.Load(ctx)
	return err
}

func (b *Board) setStatus(id string, from, to models.DownloadStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item := b.find(id)
	if item == nil || item.Status != from || !from.CanTransition(to) {
		return
	}
	item.Status = to
}

func (b *Board) find(id string) *models.DownloadItem {
	for _, item := range b.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (b *Board) remove(id string) {
	for i, item := range b.items {
		if item.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return
		}
	}
}

func (b *Board) snapshot() []models.DownloadItem {
	out := make([]models.DownloadItem, len(b.items))
	for i, item := range b.items {
		out[i] = *item
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
