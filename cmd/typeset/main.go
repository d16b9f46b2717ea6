package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/feichai0017/word-typesetter/config"
	"github.com/feichai0017/word-typesetter/internal/models"
	"github.com/feichai0017/word-typesetter/internal/service/download"
	"github.com/feichai0017/word-typesetter/internal/service/upload"
	"github.com/feichai0017/word-typesetter/pkg/formatter"
	"github.com/feichai0017/word-typesetter/pkg/logger"
	"github.com/feichai0017/word-typesetter/pkg/resultstore"
	"github.com/feichai0017/word-typesetter/pkg/storage/memory"
)

func main() {
	var (
		rules  = flag.String("rules", "", "排版要求，留空使用默认规则")
		outDir = flag.String("out", ".", "排版后文档的输出目录")
		apiURL = flag.String("api", "", "远程排版服务地址，覆盖 API_BASE_URL")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: typeset [-rules text] [-out dir] [-api url] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *apiURL != "" {
		cfg.Formatter.BaseURL = *apiURL
	}

	log, err := logger.NewLogger(
		logger.FromConfig(cfg.Log),
		logger.WithLevel("warn"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *rules, *outDir, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, rules, outDir string, paths []string) error {
	batch := make([]upload.Incoming, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		batch = append(batch, upload.Incoming{Name: filepath.Base(p), Content: content})
	}

	selection := upload.NewSelection()
	files, err := selection.Add(batch)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	blobs := memory.New("")
	results := resultstore.New(resultstore.NewMemorySlots())
	client := formatter.NewClient(formatter.Config{
		BaseURL:        cfg.Formatter.BaseURL,
		ConvertTimeout: cfg.Formatter.ConvertTimeout,
	})
	defer client.Close()

	runner := upload.NewRunner(client, blobs, results, log, upload.RunnerConfig{
		DefaultRules: cfg.Formatter.DefaultRules,
		LinkTTL:      cfg.Storage.LinkTTL,
		IdleNotice:   cfg.Formatter.IdleNotice,
	})

	report, err := runner.Run(ctx, sessionID, files, models.FormattingRequest{Rules: rules}, printUpdate)
	if err != nil {
		return err
	}
	fmt.Printf("处理完成: %d 个文档\n", len(report.Results))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 命令行没有下载动画，不需要等待
	board := download.NewBoard(sessionID, results, blobs, log, download.Config{})
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	n, err := board.DownloadAll(ctx, func(name string) (io.Writer, error) {
		f, err := os.Create(filepath.Join(outDir, filepath.Base(name)))
		if err != nil {
			return nil, err
		}
		opened = append(opened, f)
		fmt.Printf("  -> %s\n", f.Name())
		return f, nil
	})
	fmt.Printf("已保存 %d 个文档到 %s\n", n, outDir)
	if err != nil {
		return fmt.Errorf("failed to save documents: %w", err)
	}
	return nil
}

func printUpdate(u upload.Update) {
	r := u.Record
	switch r.Status {
	case models.StatusPending:
		return
	case models.StatusError:
		fmt.Printf("[%3d%%] %s: %s\n", u.Overall, r.Name, r.Error)
	default:
		line := fmt.Sprintf("[%3d%%] %s: %d%% %s", u.Overall, r.Name, r.Progress, r.Message)
		if r.SubMessage != "" {
			line += " - " + r.SubMessage
		}
		fmt.Println(line)
	}
}
