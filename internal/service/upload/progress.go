package upload

import (
	"fmt"
	"time"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/pkg/eventstream"
)

// 事件类型
const (
	EventStart        = "start"
	EventLLMReceiving = "llm_receiving"
	EventLLMDone      = "llm_done"
	EventParsing      = "parsing"
	EventComplete     = "complete"
	EventError        = "error"
)

const (
	progressUpload     = 3
	progressStart      = 5
	progressReceiving  = 10
	maxReceivingChunks = 50
	maxReceiving       = 60
	progressLLMDone    = 70
	progressParsing    = 80
	progressComplete   = 85
	progressDefault    = 50
	maxDisplayed       = 82
	progressConverting = 90
	progressDone       = 100

	idleNote = "（AI正在思考，请稍候...）"
)

// RemoteError 排版服务通过 error 事件主动报错
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// tracker 把单个文件的事件映射到它的 ProcessingRecord 上
type tracker struct {
	record      *models.ProcessingRecord
	now         func() time.Time
	idleAfter   time.Duration
	started     time.Time
	lastReceive time.Time
	chunks      int
	html        string
}

func newTracker(rec *models.ProcessingRecord, now func() time.Time, idleAfter time.Duration) *tracker {
	return &tracker{
		record:    rec,
		now:       now,
		idleAfter: idleAfter,
		started:   now(),
	}
}

func (t *tracker) set(progress int, stage models.Stage, msg, sub string) {
	t.record.Progress = progress
	t.record.Stage = stage
	t.record.Message = msg
	t.record.SubMessage = sub
	t.record.ElapsedSeconds = t.elapsed()
}

func (t *tracker) elapsed() int {
	return int(t.now().Sub(t.started) / time.Second)
}

func (t *tracker) begin() {
	t.record.Status = models.StatusProcessing
	t.set(progressUpload, models.StageUpload, "正在准备文件...", "读取文档内容并上传")
}

// streamOpened 空闲提示从流打开时开始计时
func (t *tracker) streamOpened() {
	t.lastReceive = t.now()
}

// apply 处理一条事件；error 事件返回 *RemoteError
func (t *tracker) apply(ev eventstream.Event) error {
	var (
		progress int
		stage    models.Stage
		msg, sub string
	)

	switch ev.Type {
	case EventStart:
		progress, stage = progressStart, models.StageLLMStart
		msg, sub = "AI 正在分析文档...", "初始化排版引擎"

	case EventLLMReceiving:
		if ev.Chunks != 0 {
			t.chunks = ev.Chunks
		}
		progress = min(progressReceiving+min(t.chunks, maxReceivingChunks), maxReceiving)
		stage = models.StageLLMAnalyzing
		msg, sub = "AI 正在排版中...", receivingNote(t.chunks)

		now := t.now()
		if now.Sub(t.lastReceive) > t.idleAfter {
			sub += idleNote
		}
		t.lastReceive = now

	case EventLLMDone:
		progress, stage = progressLLMDone, models.StageLLMComplete
		msg, sub = "AI 分析完成", "正在生成排版后的文档"

	case EventParsing:
		progress, stage = progressParsing, models.StageParsing
		msg, sub = "正在解析排版结果...", "验证文档格式完整性"

	case EventComplete:
		if ev.HTML != "" {
			t.html = ev.HTML
		}
		t.set(progressComplete, models.StageHTMLComplete, "排版结果已生成", "正在准备 Word 文档...")
		return nil

	case EventError:
		message := ev.Message
		if message == "" {
			message = "处理失败"
		}
		return &RemoteError{Message: message}

	default:
		progress, stage = progressDefault, models.StageProcessing
		msg, sub = ev.Message, "请稍候"
		if msg == "" {
			msg = "正在处理..."
		}
	}

	t.set(min(progress, maxDisplayed), stage, msg, sub)
	return nil
}

func receivingNote(chunks int) string {
	switch {
	case chunks < 10:
		return "正在分析文档结构..."
	case chunks < 30:
		return fmt.Sprintf("已处理 %d 段内容，正在识别标题和段落...", chunks)
	case chunks < 50:
		return fmt.Sprintf("已处理 %d 段内容，正在应用排版规则...", chunks)
	default:
		return fmt.Sprintf("已处理 %d+ 段内容，即将完成分析...", chunks)
	}
}

func (t *tracker) converting() {
	t.set(progressConverting, models.StageConverting, "正在生成 Word 文档...", "将 HTML 转换为可下载的 Word 格式")
}

func (t *tracker) complete(downloadURL string) {
	t.record.Status = models.StatusCompleted
	elapsed := t.elapsed()
	t.set(progressDone, models.StageCompleted, "处理完成", fmt.Sprintf("用时 %d 秒", elapsed))
	t.record.DownloadURL = downloadURL
	t.record.HTMLContent = t.html
}

func (t *tracker) fail(err error) {
	t.record.Status = models.StatusError
	t.record.Message = "处理失败"
	t.record.Error = err.Error()
}
