package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/config"
	"github.com/satindergrewal/examcast/internal/ledger"
	"github.com/satindergrewal/examcast/internal/pipeline"
	"github.com/satindergrewal/examcast/internal/speech"
	"github.com/satindergrewal/examcast/internal/timeline"
)

var chromeNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}

type prereq struct {
	name string
	fn   func(ctx context.Context) error
}

// checks lists everything a full run needs, in the order it needs it.
func checks(cfg config.Config, log *zap.Logger) []prereq {
	return []prereq{
		{"ffmpeg", func(context.Context) error { return lookBinary("ffmpeg") }},
		{"ffprobe", func(context.Context) error { return lookBinary("ffprobe") }},
		{"chrome", func(context.Context) error { return lookChrome(cfg.ChromePath) }},
		{"layout", func(context.Context) error { return checkLayout(cfg.LayoutFile) }},
		{"work dir", func(context.Context) error { return checkWritable(cfg.WorkDir) }},
		{"speech", func(ctx context.Context) error { return checkSpeech(ctx, cfg, log) }},
		{"ledger", func(ctx context.Context) error { return checkLedger(ctx, cfg) }},
	}
}

func check(ctx context.Context, cfg config.Config, out io.Writer, log *zap.Logger) int {
	failed := runChecks(ctx, checks(cfg, log), out)
	if failed > 0 {
		fmt.Fprintf(out, "%d check(s) failed\n", failed)
		return pipeline.ExitUsage
	}
	return pipeline.ExitOK
}

func runChecks(ctx context.Context, prereqs []prereq, out io.Writer) int {
	failed := 0
	for _, p := range prereqs {
		pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := p.fn(pctx)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %-9s %v\n", p.name, err)
			continue
		}
		fmt.Fprintf(out, "ok    %s\n", p.name)
	}
	return failed
}

func lookBinary(name string) error {
	_, err := exec.LookPath(name)
	return err
}

func lookChrome(path string) error {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("CHROME_PATH: %w", err)
		}
		return nil
	}
	for _, name := range chromeNames {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return errors.New("no chrome or chromium in PATH; set CHROME_PATH")
}

// checkLayout parses the layout and confirms its fixed assets exist.
func checkLayout(path string) error {
	l, err := timeline.LoadLayout(path)
	if err != nil {
		return err
	}
	for _, asset := range []string{l.IntroAsset, l.OutroAsset} {
		if asset == "" {
			continue
		}
		if _, err := os.Stat(asset); err != nil {
			return fmt.Errorf("fixed asset: %w", err)
		}
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".check-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}

func checkSpeech(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	synth, engine, err := newSynthesizer(ctx, cfg, log)
	if err != nil {
		return err
	}
	if p, ok := synth.(*speech.Polly); ok {
		return p.Check(ctx, engine)
	}
	return nil
}

func checkLedger(ctx context.Context, cfg config.Config) error {
	if cfg.LedgerMongoURI == "" {
		return nil
	}
	l, err := ledger.DialMongo(ctx, cfg.LedgerMongoURI, cfg.LedgerDatabase)
	if err != nil {
		return err
	}
	return l.Close(ctx)
}

// history prints the latest stage runs of an item, newest first.
func history(ctx context.Context, cfg config.Config, item string, n int, out io.Writer) error {
	item = pipeline.ItemName(item)
	var entries []ledger.Entry
	if cfg.LedgerMongoURI != "" {
		m, err := ledger.DialMongo(ctx, cfg.LedgerMongoURI, cfg.LedgerDatabase)
		if err != nil {
			return err
		}
		defer m.Close(context.Background())
		if entries, err = m.Last(ctx, item, int64(n)); err != nil {
			return err
		}
	} else {
		all, err := ledger.ReadFile(filepath.Join(cfg.WorkDir, "ledger.jsonl"))
		if err != nil {
			return err
		}
		for i := len(all) - 1; i >= 0 && len(entries) < n; i-- {
			if all[i].Item == item {
				entries = append(entries, all[i])
			}
		}
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-8s %-7s %6dms  %s\n",
			e.Started.Format(time.RFC3339), e.Stage, e.Status, e.ElapsedMS, e.Error)
	}
	return nil
}
