package routes

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/word-typesetter/api/handlers"
	"github.com/feichai0017/word-typesetter/api/middleware"
	"github.com/feichai0017/word-typesetter/config"
	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/service/download"
	"github.com/feichai0017/word-typesetter/internal/service/feedback"
	"github.com/feichai0017/word-typesetter/internal/service/session"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/pkg/formatter"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/resultstore"
	"github.com/feichai0017/word-typesetter/pkg/storage/memory"
)

const publicURL = "http://example.test"

// fakeRemote 模拟远程排版服务，按上传的文件名回放事件
type fakeRemote struct {
	streams map[string][]string
	rules   []string
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/format/stream":
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		f.rules = append(f.rules, r.FormValue("rules"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range f.streams[header.Filename] {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			w.(http.Flusher).Flush()
		}
	case "/download/word":
		w.Header().Set("Content-Type", "application/msword")
		io.WriteString(w, "DOC:"+r.FormValue("html"))
	default:
		http.NotFound(w, r)
	}
}

func happyEvents(html string) []string {
	payload, _ := json.Marshal(map[string]string{"type": "complete", "html": html})
	return []string{
		`{"type":"start"}`,
		`{"type":"llm_receiving","chunks":5}`,
		`{"type":"llm_receiving","chunks":15}`,
		`{"type":"llm_receiving","chunks":45}`,
		`{"type":"llm_done"}`,
		`{"type":"parsing"}`,
		string(payload),
	}
}

type testServer struct {
	router  *gin.Engine
	remote  *fakeRemote
	blobs   *memory.Storage
	results *resultstore.Store
	session string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := &fakeRemote{streams: map[string][]string{}}
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	log := logger.NewTestLogger()
	blobs := memory.New(publicURL + "/api/v1/blobs")
	results := resultstore.New(resultstore.NewMemorySlots())

	client := formatter.NewClient(formatter.Config{BaseURL: srv.URL})
	runner := upload.NewRunner(client, blobs, results, log, upload.RunnerConfig{DefaultRules: config.DefaultRules})
	sessions := session.NewManager(func(id string) *download.Board {
		return download.NewBoard(id, results, blobs, log, download.Config{})
	}, log)

	h := handlers.NewHandlers(runner, feedback.NewService(nil, blobs, log), blobs, log, handlers.Config{
		PublicURL:     publicURL,
		RedirectDelay: 1500 * time.Millisecond,
	})

	r := gin.New()
	SetupRoutes(r, h, sessions, time.Hour)
	return &testServer{router: r, remote: remote, blobs: blobs, results: results}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.session != "" {
		req.Header.Set(middleware.SessionHeader, s.session)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if id := w.Header().Get(middleware.SessionHeader); id != "" {
		s.session = id
	}
	return w
}

type part struct {
	name, mime, content string
}

func (s *testServer) upload(t *testing.T, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name))
		h.Set("Content-Type", p.mime)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		io.WriteString(w, p.content)
	}
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/v1/uploads/files", &buf, mw.FormDataContentType())
}

func (s *testServer) process(t *testing.T, rules string) []sse.Event {
	t.Helper()
	body, _ := json.Marshal(handlers.ProcessRequest{Rules: rules})
	w := s.do(t, http.MethodPost, "/api/v1/uploads/process", bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	events, err := sse.Decode(w.Body)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	return events
}

func decodeData(t *testing.T, ev sse.Event, v any) {
	t.Helper()
	data, ok := ev.Data.(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(data), v))
}

func itemPath(id, suffix string) string {
	return "/api/v1/results/" + url.PathEscape(id) + suffix
}

func TestUploadProcessDownloadFlow(t *testing.T) {
	s := newTestServer(t)
	s.remote.streams["report.docx"] = happyEvents("<p>Hello</p>")

	w := s.upload(t, part{"report.docx", models.MIMETypeDocx, "docx bytes"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotEmpty(t, s.session)

	// 不支持的格式整批拒绝，已选文件保留
	w = s.upload(t, part{"ok.docx", models.MIMETypeDocx, "x"}, part{"a.pdf", "application/pdf", "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/uploads/files", nil, "")
	var sel handlers.SelectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	require.Len(t, sel.Files, 1)
	assert.Equal(t, "report.docx", sel.Files[0].Name)
	assert.Contains(t, sel.Error, "a.pdf")
	fileID := sel.Files[0].ID

	events := s.process(t, "标题居中")
	assert.Equal(t, []string{"标题居中"}, s.remote.rules)

	last := events[len(events)-1]
	require.Equal(t, handlers.EventDone, last.Event)
	var done handlers.DoneEvent
	decodeData(t, last, &done)
	assert.Equal(t, 1, done.Results)
	assert.Equal(t, "/download", done.Redirect)
	assert.Equal(t, int64(1500), done.RedirectAfterMs)

	var final upload.Update
	decodeData(t, events[len(events)-2], &final)
	assert.Equal(t, models.StatusCompleted, final.Record.Status)
	assert.Equal(t, 100, final.Record.Progress)

	// 页面错误在新运行开始时被清除
	w = s.do(t, http.MethodGet, "/api/v1/uploads/files", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Empty(t, sel.Error)

	w = s.do(t, http.MethodGet, "/api/v1/results", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list handlers.ResultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, fileID, list.Items[0].ID)
	assert.Equal(t, "report_排版后.doc", list.Items[0].Name)
	assert.Equal(t, models.DownloadReady, list.Items[0].Status)

	w = s.do(t, http.MethodGet, itemPath(fileID, "/preview"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, "<p>Hello</p>", preview["html"])

	w = s.do(t, http.MethodGet, itemPath(fileID, "/download"), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DOC:<p>Hello</p>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), url.PathEscape("report_排版后.doc"))

	w = s.do(t, http.MethodGet, "/api/v1/results", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, models.DownloadDownloaded, list.Items[0].Status)
	assert.Equal(t, 1, list.Downloaded)

	w = s.do(t, http.MethodGet, itemPath(fileID, "/link"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var link map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	u, err := url.Parse(link["url"])
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, u.EscapedPath(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DOC:<p>Hello</p>", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/results/share", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var share download.ShareInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &share))
	assert.Equal(t, "我的 1 个文档已排版完成，点击查看", share.Text)
	assert.Equal(t, publicURL+"/download", share.URL)

	w = s.do(t, http.MethodDelete, itemPath(fileID, ""), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodDelete, itemPath(fileID, "?confirm=true"), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, itemPath(fileID, "?confirm=true"), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.blobs.Len())

	// 删空后结果槽被清除，重新进入下载页提示回到上传页
	w = s.do(t, http.MethodGet, "/api/v1/results", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	var errResp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, download.ErrNoResults.Error(), errResp.Error)
	assert.Equal(t, "/upload", errResp.Redirect)
}

func TestProcess_ErrorEventAbortsRun(t *testing.T) {
	s := newTestServer(t)
	s.remote.streams["a.docx"] = []string{`{"type":"start"}`, `{"type":"error","message":"AI 服务不可用"}`}
	s.remote.streams["b.docx"] = happyEvents("<p>b</p>")

	w := s.upload(t, part{"a.docx", models.MIMETypeDocx, "a"}, part{"b.docx", models.MIMETypeDocx, "b"})
	require.Equal(t, http.StatusCreated, w.Code)

	events := s.process(t, "")
	assert.Equal(t, []string{config.DefaultRules}, s.remote.rules, "second file is never sent")

	last := events[len(events)-1]
	require.Equal(t, handlers.EventFailed, last.Event)
	var failed handlers.FailedEvent
	decodeData(t, last, &failed)
	assert.Equal(t, "AI 服务不可用", failed.Error)
	require.Len(t, failed.Records, 2)
	assert.Equal(t, models.StatusError, failed.Records[0].Status)
	assert.Equal(t, models.StatusPending, failed.Records[1].Status)

	w = s.do(t, http.MethodGet, "/api/v1/uploads/files", nil, "")
	var sel handlers.SelectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Equal(t, "AI 服务不可用", sel.Error)

	w = s.do(t, http.MethodGet, "/api/v1/results", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcess_NoFiles(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/uploads/process", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveAndReprocess(t *testing.T) {
	s := newTestServer(t)
	s.remote.streams["a.docx"] = happyEvents("<p>a</p>")
	s.remote.streams["b.doc"] = happyEvents("<p>b</p>")

	w := s.upload(t, part{"a.docx", models.MIMETypeDocx, "a"}, part{"b.doc", models.MIMETypeDoc, "b"})
	require.Equal(t, http.StatusCreated, w.Code)
	events := s.process(t, "r")
	require.Equal(t, handlers.EventDone, events[len(events)-1].Event)

	w = s.do(t, http.MethodGet, "/api/v1/results/archive", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a_排版后.doc", "b_排版后.doc"}, names)

	w = s.do(t, http.MethodPost, "/api/v1/results/reprocess", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/upload")
	assert.Equal(t, 0, s.blobs.Len())

	w = s.do(t, http.MethodGet, "/api/v1/results", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	w := s.upload(t, part{"a.docx", models.MIMETypeDocx, "a"})
	require.Equal(t, http.StatusCreated, w.Code)

	other := &testServer{router: s.router}
	w = other.do(t, http.MethodGet, "/api/v1/uploads/files", nil, "")
	var sel handlers.SelectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))
	assert.Empty(t, sel.Files)
	assert.NotEqual(t, s.session, other.session)
}

func TestBlobs_RejectsNonResultKeys(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/blobs/feedback/x.json", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/blobs/results/none/x.doc", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedback(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/feedback", strings.NewReader(`{"title":"下载失败","description":"点击没反应"}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, 1, s.blobs.Len())

	w = s.do(t, http.MethodPost, "/api/v1/feedback", strings.NewReader(`{"title":"","description":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/feedback/abc", nil, "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
