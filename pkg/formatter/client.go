package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	streamPath   = "/format/stream"
	downloadPath = "/download/word"
)

// ErrConversion 文档生成接口返回非 2xx
var ErrConversion = errors.New("生成 Word 文档失败")

// StatusError 流式接口返回非 2xx
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("请求失败: %s", e.Status)
}

// ConversionError carries the status code; its message stays the user-facing one.
type ConversionError struct {
	Code int
}

func (e *ConversionError) Error() string { return ErrConversion.Error() }
func (e *ConversionError) Unwrap() error { return ErrConversion }

// Service 远程排版服务的两个接口
type Service interface {
	// StreamFormat 上传文件和排版要求，返回事件流响应体，调用方负责关闭
	StreamFormat(ctx context.Context, filename string, content io.Reader, rules string) (io.ReadCloser, error)
	// ConvertToWord 把排版后的 HTML 转成 Word 文档
	ConvertToWord(ctx context.Context, html, filename string) ([]byte, error)
}

type Config struct {
	BaseURL string
	// ConvertTimeout 只作用于文档生成，流式分析不设超时
	ConvertTimeout time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	baseURL        string
	convertTimeout time.Duration
	httpClient     *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		convertTimeout: cfg.ConvertTimeout,
		httpClient:     httpClient,
	}
}

func (c *Client) StreamFormat(ctx context.Context, filename string, content io.Reader, rules string) (io.ReadCloser, error) {
	body, contentType, err := encodeForm(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, content); err != nil {
			return err
		}
		return w.WriteField("rules", rules)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: statusText(resp)}
	}
	return resp.Body, nil
}

func (c *Client) ConvertToWord(ctx context.Context, html, filename string) ([]byte, error) {
	if c.convertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.convertTimeout)
		defer cancel()
	}

	body, contentType, err := encodeForm(func(w *multipart.Writer) error {
		if err := w.WriteField("html", html); err != nil {
			return err
		}
		return w.WriteField("filename", filename)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build conversion form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+downloadPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &ConversionError{Code: resp.StatusCode}
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return doc, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func encodeForm(fill func(w *multipart.Writer) error) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := fill(w); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// statusText 去掉 "404 " 前缀，只保留原因短语
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}
