package converters

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/feichai0017/word-typesetter/internal/models"
)

// ErrMalformedResults 结果槽中的文本无法解析为结果列表
var ErrMalformedResults = errors.New("malformed results")

// ResultsConverter 结果列表与结果槽文本之间的转换
type ResultsConverter interface {
	Encode(results []models.FormatResult) (string, error)
	Decode(text string) ([]models.FormatResult, error)
}

// JSONConverter 以 JSON 数组形式保存结果列表
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Encode(results []models.FormatResult) (string, error) {
	if results == nil {
		results = []models.FormatResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	return string(data), nil
}

func (c *JSONConverter) Decode(text string) ([]models.FormatResult, error) {
	var results []models.FormatResult
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResults, err)
	}

	// 没有 id 的条目无法定位，按损坏处理
	for i, r := range results {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrMalformedResults, i)
		}
	}
	return results, nil
}
