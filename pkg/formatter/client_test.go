package formatter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFormat_SendsMultipartAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/format/stream", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report.docx", header.Filename)
		assert.Equal(t, "docx-bytes", string(data))
		assert.Equal(t, "标题居中", r.FormValue("rules"))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"start\"}\n\n")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	body, err := c.StreamFormat(context.Background(), "report.docx", strings.NewReader("docx-bytes"), "标题居中")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"type\":\"start\"}\n\n", string(data))
}

func TestStreamFormat_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.StreamFormat(context.Background(), "a.docx", strings.NewReader("x"), "r")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "请求失败: Bad Gateway", err.Error())
}

func TestStreamFormat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url})
	_, err := c.StreamFormat(context.Background(), "a.docx", strings.NewReader("x"), "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request")
}

func TestConvertToWord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/word", r.URL.Path)
		assert.Equal(t, "<p>Hello</p>", r.FormValue("html"))
		assert.Equal(t, "report_排版后.doc", r.FormValue("filename"))
		w.Header().Set("Content-Type", "application/msword")
		w.Write([]byte("DOC"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ConvertTimeout: time.Second})
	doc, err := c.ConvertToWord(context.Background(), "<p>Hello</p>", "report_排版后.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("DOC"), doc)
}

func TestConvertToWord_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.ConvertToWord(context.Background(), "<p/>", "a.doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversion)
	assert.Equal(t, "生成 Word 文档失败", err.Error())

	var convErr *ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, http.StatusInternalServerError, convErr.Code)
}
