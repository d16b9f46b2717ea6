package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/utils/validator"
	"github.com/feichai0017/word-typesetter/pkg/eventstream"
	"github.com/feichai0017/word-typesetter/pkg/formatter"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/resultstore"
	"github.com/feichai0017/word-typesetter/pkg/storage"
)

// Phase 单个文件流水线的阶段
type Phase int

const (
	PhaseValidate Phase = iota
	PhaseAnalyze
	PhaseConvert
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "validate"
	case PhaseAnalyze:
		return "analyze"
	case PhaseConvert:
		return "convert"
	case PhaseFinalize:
		return "finalize"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Outcome 单个文件的处理结果。Err 非空时 Phase 是失败所在阶段
type Outcome struct {
	Phase  Phase
	Result *models.FormatResult
	Err    error
}

type RunnerConfig struct {
	DefaultRules string
	LinkTTL      time.Duration
	// IdleNotice 超过这个时间没有 llm_receiving 事件就追加等待提示
	IdleNotice time.Duration
}

// Runner 逐个文件顺序处理，第一个失败即终止整次运行
type Runner struct {
	formatter formatter.Service
	blobs     storage.Storage
	results   *resultstore.Store
	validator *validator.DocumentValidator
	logger    logger.Logger
	cfg       RunnerConfig
	now       func() time.Time
}

func NewRunner(
	fs formatter.Service,
	blobs storage.Storage,
	results *resultstore.Store,
	log logger.Logger,
	cfg RunnerConfig,
) *Runner {
	if cfg.IdleNotice <= 0 {
		cfg.IdleNotice = 10 * time.Second
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	return &Runner{
		formatter: fs,
		blobs:     blobs,
		results:   results,
		validator: validator.NewDocumentValidator(),
		logger:    log.Named("runner"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run 处理 files 并在全部成功后覆盖会话的结果槽。失败时返回的 error 即页面错误，
// 已完成的记录保持 completed，本次写入的文档一并释放，结果槽不动
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	files []*models.UploadedFile,
	req models.FormattingRequest,
	observe Observer,
) (*RunReport, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	rules := req.RulesOr(r.cfg.DefaultRules)
	log := r.logger.With(logger.String("session", sessionID), logger.Int("files", len(files)))

	report := &RunReport{Records: make([]models.ProcessingRecord, len(files))}
	for i, f := range files {
		report.Records[i] = *models.NewPendingRecord(f)
	}
	emit := func(i int) {
		if observe == nil {
			return
		}
		observe(Update{
			Index:   i,
			Record:  report.Records[i],
			Overall: models.AggregateProgress(report.Records),
		})
	}
	for i := range files {
		emit(i)
	}

	log.Info("Run started")
	for i, f := range files {
		out := r.process(ctx, sessionID, f, rules, &report.Records[i], func() { emit(i) })
		if out.Err != nil {
			log.Error("File failed, aborting run",
				logger.String("file", f.Name),
				logger.String("phase", out.Phase.String()),
				logger.Error(out.Err),
			)
			emit(i)
			r.release(ctx, log, report.Results)
			report.Results = nil
			report.Error = out.Err.Error()
			return report, out.Err
		}
		report.Results = append(report.Results, *out.Result)
	}

	if err := r.results.Save(ctx, sessionID, report.Results); err != nil {
		r.release(ctx, log, report.Results)
		report.Results = nil
		err = fmt.Errorf("failed to persist results: %w", err)
		report.Error = err.Error()
		return report, err
	}
	report.Persisted = true

	log.Info("Run completed")
	return report, nil
}

// process 按 Validate -> Analyze -> Convert -> Finalize 推进
func (r *Runner) process(
	ctx context.Context,
	sessionID string,
	f *models.UploadedFile,
	rules string,
	rec *models.ProcessingRecord,
	emit func(),
) Outcome {
	t := newTracker(rec, r.now, r.cfg.IdleNotice)

	var (
		html   string
		result *models.FormatResult
		err    error
	)
	for phase := PhaseValidate; phase <= PhaseFinalize; phase++ {
		switch phase {
		case PhaseValidate:
			err = r.validate(f)
		case PhaseAnalyze:
			html, err = r.analyze(ctx, f, rules, t, emit)
		case PhaseConvert:
			result, err = r.convert(ctx, sessionID, f, html, t, emit)
		case PhaseFinalize:
			t.complete(result.DownloadURL)
			emit()
		}
		if err != nil {
			t.fail(err)
			return Outcome{Phase: phase, Err: err}
		}
	}
	return Outcome{Phase: PhaseFinalize, Result: result}
}

func (r *Runner) validate(f *models.UploadedFile) error {
	verr := r.validator.ValidateFile(validator.FileInfo{
		Filename: f.Name,
		Size:     f.Size,
		MimeType: f.MIMEType,
	})
	if verr != nil {
		return &validator.BatchError{Rejected: []validator.ValidationError{*verr}}
	}
	return nil
}

func (r *Runner) analyze(ctx context.Context, f *models.UploadedFile, rules string, t *tracker, emit func()) (string, error) {
	t.begin()
	emit()

	body, err := r.formatter.StreamFormat(ctx, f.Name, f.Open(), rules)
	if err != nil {
		return "", err
	}
	defer body.Close()
	t.streamOpened()

	reader := eventstream.NewReader(body)
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		ev, err := eventstream.ParseEvent(record)
		if errors.Is(err, eventstream.ErrNotData) {
			continue
		}
		if err != nil {
			r.logger.Warn("Skipping malformed event",
				logger.String("file", f.Name),
				logger.String("record", record),
				logger.Error(err),
			)
			continue
		}

		if err := t.apply(ev); err != nil {
			return "", err
		}
		emit()
	}

	if t.html == "" {
		return "", ErrNoContent
	}
	return t.html, nil
}

func (r *Runner) convert(
	ctx context.Context,
	sessionID string,
	f *models.UploadedFile,
	html string,
	t *tracker,
	emit func(),
) (*models.FormatResult, error) {
	t.converting()
	emit()

	name := models.FormattedName(f.Name)
	doc, err := r.formatter.ConvertToWord(ctx, html, name)
	if err != nil {
		return nil, err
	}

	key := storage.ResultKey(sessionID, f.ID, name)
	if _, err := r.blobs.Store(ctx, bytes.NewReader(doc), key); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	link, err := r.blobs.URL(ctx, key, r.cfg.LinkTTL)
	if err != nil {
		if derr := r.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			r.logger.Warn("Failed to release document", logger.String("key", key), logger.Error(derr))
		}
		return nil, fmt.Errorf("failed to create download link: %w", err)
	}

	return &models.FormatResult{
		ID:          f.ID,
		Name:        f.Name,
		DownloadURL: link,
		HTMLContent: html,
		Success:     true,
		ObjectKey:   key,
	}, nil
}

// release 释放一次未落槽运行中已写入的文档
func (r *Runner) release(ctx context.Context, log logger.Logger, results []models.FormatResult) {
	if len(results) == 0 {
		return
	}
	keys := make([]string, len(results))
	for i, res := range results {
		keys[i] = res.ObjectKey
	}
	if err := storage.DeleteAll(context.WithoutCancel(ctx), r.blobs, keys); err != nil {
		log.Warn("Failed to release documents", logger.Error(err))
	}
}
