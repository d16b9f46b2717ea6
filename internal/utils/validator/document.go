package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/feichai0017/word-typesetter/internal/models"
)

// AdvisoryMaxFileSize 页面上展示的单文件大小上限，仅作提示，不做拦截
const AdvisoryMaxFileSize int64 = 50 * 1024 * 1024

// ValidationError 验证错误
type ValidationError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
}

// BatchError 一批文件中有不支持的格式时整批拒绝
type BatchError struct {
	Rejected []ValidationError
}

func (e *BatchError) Error() string {
	names := make([]string, len(e.Rejected))
	for i, r := range e.Rejected {
		names[i] = r.Filename
	}
	return fmt.Sprintf("以下文件格式不支持：%s。请上传 .docx 或 .doc 格式的 Word 文档", strings.Join(names, "、"))
}

// FileInfo 待验证文件的声明信息
type FileInfo struct {
	Filename string
	Size     int64
	MimeType string
}

// DocumentValidator Word 文档验证器
type DocumentValidator struct {
	// 允许的文件类型 {扩展名: MIME类型}
	allowedTypes map[string]string
}

// NewDocumentValidator 创建只接受 .docx/.doc 的验证器
func NewDocumentValidator() *DocumentValidator {
	return &DocumentValidator{
		allowedTypes: map[string]string{
			".docx": models.MIMETypeDocx,
			".doc":  models.MIMETypeDoc,
		},
	}
}

// ValidateFile checks the declared MIME type or, failing that, the filename suffix.
func (v *DocumentValidator) ValidateFile(file FileInfo) *ValidationError {
	for _, mime := range v.allowedTypes {
		if file.MimeType == mime {
			return nil
		}
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := v.allowedTypes[ext]; ok {
		return nil
	}

	return &ValidationError{
		Code:     "INVALID_FILE_TYPE",
		Message:  fmt.Sprintf("File type %q is not allowed", file.MimeType),
		Filename: file.Filename,
	}
}

// ValidateBatch 批量验证，任一文件不合法则返回汇总错误
func (v *DocumentValidator) ValidateBatch(files []FileInfo) error {
	var rejected []ValidationError
	for _, f := range files {
		if verr := v.ValidateFile(f); verr != nil {
			rejected = append(rejected, *verr)
		}
	}
	if len(rejected) > 0 {
		return &BatchError{Rejected: rejected}
	}
	return nil
}
