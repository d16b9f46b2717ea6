package resultstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/converters"
)

// SlotName 上传页和下载页之间交接结果的槽名
const SlotName = "formatResults"

var (
	// ErrNotFound 槽为空
	ErrNotFound = errors.New("results not found")
	// ErrMalformed 槽中文本无法解析
	ErrMalformed = converters.ErrMalformedResults
)

// Slots 保存原始文本的键值后端
type Slots interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// Store 每个会话一个 formatResults 槽，值为 JSON 文本
type Store struct {
	slots     Slots
	converter converters.ResultsConverter
}

func New(slots Slots) *Store {
	return &Store{
		slots:     slots,
		converter: converters.NewJSONConverter(),
	}
}

// Key 会话对应的槽键
func Key(sessionID string) string {
	return SlotName + ":" + sessionID
}

// Save 覆盖会话的结果列表
func (s *Store) Save(ctx context.Context, sessionID string, results []models.FormatResult) error {
	text, err := s.converter.Encode(results)
	if err != nil {
		return err
	}
	if err := s.slots.Set(ctx, Key(sessionID), text); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}

// Load 读取结果列表；槽为空返回 ErrNotFound，解析失败返回 ErrMalformed
func (s *Store) Load(ctx context.Context, sessionID string) ([]models.FormatResult, error) {
	text, err := s.slots.Get(ctx, Key(sessionID))
	if err != nil {
		return nil, err
	}
	return s.converter.Decode(text)
}

// Remove 从槽中过滤掉 id，列表清空时槽一并清除。返回剩余结果
func (s *Store) Remove(ctx context.Context, sessionID, id string) ([]models.FormatResult, error) {
	results, err := s.Load(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r.ID != id {
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		return nil, s.Clear(ctx, sessionID)
	}
	if err := s.Save(ctx, sessionID, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// Clear 清空会话的槽
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.slots.Del(ctx, Key(sessionID)); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}
