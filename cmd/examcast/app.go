package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satindergrewal/examcast/internal/audio"
	"github.com/satindergrewal/examcast/internal/config"
	"github.com/satindergrewal/examcast/internal/driver"
	"github.com/satindergrewal/examcast/internal/ledger"
	"github.com/satindergrewal/examcast/internal/pipeline"
	"github.com/satindergrewal/examcast/internal/record"
	"github.com/satindergrewal/examcast/internal/speech"
	"github.com/satindergrewal/examcast/internal/stream"
	"github.com/satindergrewal/examcast/internal/surface"
	"github.com/satindergrewal/examcast/internal/syncer"
	"github.com/satindergrewal/examcast/internal/timeline"
)

type runFlags struct {
	force       bool
	forceRecord bool
}

// newSynthesizer picks the speech backend and the engine name that goes
// into every asset key.
func newSynthesizer(ctx context.Context, cfg config.Config, log *zap.Logger) (speech.Synthesizer, string, error) {
	measure := audio.Durations{}
	switch cfg.TTSProvider {
	case "polly":
		p, err := speech.NewPolly(ctx, cfg.AWSRegion, cfg.PollySampleRate, measure, log)
		if err != nil {
			return nil, "", err
		}
		return p, cfg.PollyEngine, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, "", errors.New("OPENAI_API_KEY is not set")
		}
		return speech.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, measure, log), cfg.OpenAIModel, nil
	}
	return nil, "", fmt.Errorf("unknown TTS_PROVIDER %q", cfg.TTSProvider)
}

// openLedger records stage runs in MongoDB when configured, otherwise in a
// JSON lines file inside the work dir.
func openLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, error) {
	if cfg.LedgerMongoURI != "" {
		return ledger.DialMongo(ctx, cfg.LedgerMongoURI, cfg.LedgerDatabase)
	}
	return ledger.OpenFile(filepath.Join(cfg.WorkDir, "ledger.jsonl"))
}

func newRunner(ctx context.Context, cfg config.Config, rf runFlags, log *zap.Logger) (*pipeline.Runner, func(), error) {
	layout, err := timeline.LoadLayout(cfg.LayoutFile)
	if err != nil {
		return nil, nil, err
	}
	synth, engine, err := newSynthesizer(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("speech: %w", err)
	}
	led, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}

	recOpts := record.Options{
		Width:      cfg.VideoWidth,
		Height:     cfg.VideoHeight,
		FPS:        cfg.VideoFPS,
		Grace:      cfg.RecordGrace,
		ChromePath: cfg.ChromePath,
	}
	deps := pipeline.Deps{
		Synth:        synth,
		Assembler:    audio.NewAssembler(cfg.Fade, log),
		Driver:       driver.New(cfg.Tick, cfg.TransitionTimeout, log),
		Synchronizer: syncer.New(audio.Durations{}, syncer.NewFFmpegMuxer(log), cfg.SyncTolerance, log),
		NewSurface: func(p surface.Payload) pipeline.Surface {
			return surface.New(p, log)
		},
		NewRecorder: func(pageURL string) pipeline.Recorder {
			return record.NewBrowser(pageURL, recOpts, log)
		},
		Ledger: led,
	}
	opts := pipeline.Options{
		WorkDir:          cfg.WorkDir,
		Layout:           layout,
		Engine:           engine,
		Force:            rf.force,
		ForceRecord:      rf.forceRecord,
		Width:            cfg.VideoWidth,
		Height:           cfg.VideoHeight,
		ClientTimeout:    cfg.ClientTimeout,
		SynthLimit:       semaphore.NewWeighted(int64(max(cfg.SynthConcurrency, 1))),
		BrowserLimit:     semaphore.NewWeighted(int64(max(cfg.BrowserConcurrency, 1))),
		BatchConcurrency: cfg.BatchConcurrency,
	}
	runner, err := pipeline.New(deps, opts, log)
	if err != nil {
		led.Close(ctx)
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := led.Close(closeCtx); err != nil {
			log.Warn("closing ledger", zap.Error(err))
		}
	}
	return runner, closeFn, nil
}

// audition streams an item's narration track and serves the page state at
// the current playback position.
func audition(ctx context.Context, cfg config.Config, docPath string, loop bool, log *zap.Logger) error {
	paths := pipeline.ItemPaths(cfg.WorkDir, docPath)
	seq, err := timeline.Load(paths.Sequence)
	if err != nil {
		return fmt.Errorf("run build first: %w", err)
	}
	samples, err := audio.DecodeFile(ctx, paths.Audio)
	if err != nil {
		return fmt.Errorf("run assemble first: %w", err)
	}

	player := audio.NewPlayer(log)
	go player.Run(ctx, samples, loop)

	broadcaster := stream.NewBroadcaster(log)
	go broadcaster.Run(ctx, player.Frames())

	srv := stream.NewServer(seq, player, broadcaster, log)
	log.Info("audition ready",
		zap.String("item", pipeline.ItemName(docPath)),
		zap.Int("segments", len(seq.Segments)),
		zap.Duration("total", seq.Total),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.AuditionPort)))
	return srv.Serve(ctx, fmt.Sprintf(":%d", cfg.AuditionPort))
}
