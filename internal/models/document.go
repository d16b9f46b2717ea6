package models

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Word 文档 MIME 类型
const (
	MIMETypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMETypeDoc  = "application/msword"
)

// FormattedSuffix 排版后文件名的后缀，处理后的文件统一为 .doc
const FormattedSuffix = "_排版后.doc"

var wordExt = regexp.MustCompile(`(?i)\.docx?$`)

// FormattedName 把 Word 扩展名替换为排版后的后缀；没有 Word 扩展名时原样返回
func FormattedName(name string) string {
	return wordExt.ReplaceAllString(name, FormattedSuffix)
}

// UploadedFile 用户选中的一个待处理文件
type UploadedFile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	MIMEType string    `json:"type"`
	AddedAt  time.Time `json:"addedAt"`
	Content  []byte    `json:"-"`
}

// NewUploadedFile 以提交时间和文件名生成标识
func NewUploadedFile(name, mimeType string, content []byte, at time.Time) *UploadedFile {
	return &UploadedFile{
		ID:       fmt.Sprintf("%d-%s", at.UnixMilli(), name),
		Name:     name,
		Size:     int64(len(content)),
		MIMEType: mimeType,
		AddedAt:  at,
		Content:  content,
	}
}

// Open returns a fresh reader over the file content.
func (f *UploadedFile) Open() io.Reader {
	return bytes.NewReader(f.Content)
}

// FormattingRequest 一次处理运行使用的排版要求
type FormattingRequest struct {
	Rules string `json:"rules"`
}

// RulesOr returns the rules text or fallback when it is blank.
func (r FormattingRequest) RulesOr(fallback string) string {
	if r.Rules == "" {
		return fallback
	}
	return r.Rules
}

// FormatResult 单个文件的处理结果，序列化后写入 formatResults 槽
type FormatResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	HTMLContent string `json:"htmlContent"`
	Success     bool   `json:"success"`
	ObjectKey   string `json:"objectKey,omitempty"`
}
