package upload

import (
	"sync"
	"time"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/utils/validator"
)

// Incoming 一次选择或拖放提交的单个文件
type Incoming struct {
	Name     string
	MIMEType string
	Content  []byte
}

// Selection 上传页当前已选中的文件列表
type Selection struct {
	mu        sync.Mutex
	files     []*models.UploadedFile
	pageErr   string
	validator *validator.DocumentValidator
	now       func() time.Time
}

func NewSelection() *Selection {
	return &Selection{
		validator: validator.NewDocumentValidator(),
		now:       time.Now,
	}
}

// Add 先清除上一次的页面错误，再整批验证。任一文件不合法时整批拒绝，已选列表不变；
// 否则追加到列表末尾
func (s *Selection) Add(batch []Incoming) ([]*models.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageErr = ""

	infos := make([]validator.FileInfo, len(batch))
	for i, in := range batch {
		infos[i] = validator.FileInfo{
			Filename: in.Name,
			Size:     int64(len(in.Content)),
			MimeType: in.MIMEType,
		}
	}
	if err := s.validator.ValidateBatch(infos); err != nil {
		s.pageErr = err.Error()
		return nil, err
	}

	at := s.now()
	added := make([]*models.UploadedFile, 0, len(batch))
	for _, in := range batch {
		f := models.NewUploadedFile(in.Name, in.MIMEType, in.Content, at)
		// 同一毫秒内同名文件会撞 id，往后顺延
		for s.indexOf(f.ID) >= 0 {
			at = at.Add(time.Millisecond)
			f = models.NewUploadedFile(in.Name, in.MIMEType, in.Content, at)
		}
		s.files = append(s.files, f)
		added = append(added, f)
	}
	return added, nil
}

// Remove 移除一个文件，返回是否存在
func (s *Selection) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	return true
}

// List 当前选择的快照，顺序即处理顺序
func (s *Selection) List() []*models.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.UploadedFile, len(s.files))
	copy(out, s.files)
	return out
}

// Error 页面级错误，没有时为空
func (s *Selection) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageErr
}

// SetError 记录一次运行失败后的页面错误
func (s *Selection) SetError(msg string) {
	s.mu.Lock()
	s.pageErr = msg
	s.mu.Unlock()
}

func (s *Selection) indexOf(id string) int {
	for i, f := range s.files {
		if f.ID == id {
			return i
		}
	}
	return -1
}
