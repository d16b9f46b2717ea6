package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/utils/validator"
)

func docx(name string) Incoming {
	return Incoming{Name: name, MIMEType: models.MIMETypeDocx, Content: []byte(name)}
}

func TestSelection_AddAppends(t *testing.T) {
	s := NewSelection()

	_, err := s.Add([]Incoming{docx("a.docx")})
	require.NoError(t, err)
	_, err = s.Add([]Incoming{docx("b.docx"), {Name: "c.doc", MIMEType: "application/octet-stream"}})
	require.NoError(t, err)

	files := s.List()
	require.Len(t, files, 3)
	assert.Equal(t, "a.docx", files[0].Name)
	assert.Equal(t, "b.docx", files[1].Name)
	assert.Equal(t, "c.doc", files[2].Name)
}

func TestSelection_RejectsWholeBatch(t *testing.T) {
	s := NewSelection()
	_, err := s.Add([]Incoming{docx("keep.docx")})
	require.NoError(t, err)
	before := s.List()

	_, err = s.Add([]Incoming{
		docx("ok.docx"),
		{Name: "a.pdf", MIMEType: "application/pdf"},
		{Name: "b.txt", MIMEType: "text/plain"},
	})
	var batchErr *validator.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Len(t, batchErr.Rejected, 2)

	assert.Equal(t, before, s.List())
	assert.Equal(t, "以下文件格式不支持：a.pdf、b.txt。请上传 .docx 或 .doc 格式的 Word 文档", s.Error())
}

func TestSelection_NewBatchClearsError(t *testing.T) {
	s := NewSelection()
	_, err := s.Add([]Incoming{{Name: "a.pdf", MIMEType: "application/pdf"}})
	require.Error(t, err)
	require.NotEmpty(t, s.Error())

	_, err = s.Add([]Incoming{docx("a.docx")})
	require.NoError(t, err)
	assert.Empty(t, s.Error())
}

func TestSelection_IDsAreUnique(t *testing.T) {
	s := NewSelection()
	fixed := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return fixed }

	added, err := s.Add([]Incoming{docx("same.docx"), docx("same.docx")})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "1700000000000-same.docx", added[0].ID)
	assert.NotEqual(t, added[0].ID, added[1].ID)
}

func TestSelection_Remove(t *testing.T) {
	s := NewSelection()
	added, err := s.Add([]Incoming{docx("a.docx"), docx("b.docx")})
	require.NoError(t, err)

	assert.True(t, s.Remove(added[0].ID))
	assert.False(t, s.Remove(added[0].ID))

	// 移除后同名文件可以再次选择
	_, err = s.Add([]Incoming{docx("a.docx")})
	require.NoError(t, err)
	assert.Len(t, s.List(), 2)
}
