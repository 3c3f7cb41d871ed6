package record

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DriveFunc plays the visual states while the recorder films. It calls
// start once the page is ready to show the first state; the video clock
// begins there. It returns when the last state has been shown.
type DriveFunc func(ctx context.Context, start func()) error

// TimeoutError means the recording ran past expected duration plus grace.
type TimeoutError struct {
	Expected time.Duration
	Grace    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("recording exceeded deadline %v (expected %v + grace %v)", e.Expected+e.Grace, e.Expected, e.Grace)
}

// SurfaceError means the browser, the page, or the encoder failed.
type SurfaceError struct {
	Err error
}

func (e *SurfaceError) Error() string { return fmt.Sprintf("recording surface: %v", e.Err) }
func (e *SurfaceError) Unwrap() error { return e.Err }

// Options configure the browser recorder.
type Options struct {
	Width      int
	Height     int
	FPS        int
	Grace      time.Duration
	ChromePath string
	Quality    int // jpeg quality of screencast frames
}

// Browser films a page in headless Chrome. Screencast frames are pushed by
// Chrome only when the page repaints, so a ticker-paced pump repeats the
// latest frame to keep the video's frame count tied to wall-clock time.
type Browser struct {
	url  string
	opts Options
	log  *zap.Logger
}

// NewBrowser creates a recorder for the page at url.
func NewBrowser(url string, opts Options, log *zap.Logger) *Browser {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	return &Browser{url: url, opts: opts, log: log}
}

// Record launches Chrome, opens the page, and films it while drive runs.
// The video is written to a temp file and moved to out only on success.
func (b *Browser) Record(ctx context.Context, drive DriveFunc, expected time.Duration, out string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(out), ".tmp-"+filepath.Base(out))
	defer os.Remove(tmp)

	rctx, cancel := context.WithTimeout(ctx, expected+b.opts.Grace)
	defer cancel()
	fail := func(err error) (string, error) {
		return "", classify(ctx, rctx, err, expected, b.opts.Grace)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	)
	if b.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(rctx, allocOpts...)
	defer allocCancel()
	bctx, bcancel := chromedp.NewContext(allocCtx)
	defer bcancel()

	latest := &latch{}
	chromedp.ListenTarget(bctx, func(ev any) {
		e, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		if data, err := base64.StdEncoding.DecodeString(e.Data); err == nil {
			latest.set(data)
		}
		go func(id int64) {
			_ = chromedp.Run(bctx, page.ScreencastFrameAck(id))
		}(e.SessionID)
	})

	err := chromedp.Run(bctx,
		emulation.SetDeviceMetricsOverride(int64(b.opts.Width), int64(b.opts.Height), 1, false),
		chromedp.Navigate(b.url),
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(int64(b.opts.Quality)).
			WithMaxWidth(int64(b.opts.Width)).
			WithMaxHeight(int64(b.opts.Height)),
	)
	if err != nil {
		return fail(fmt.Errorf("open page: %w", err))
	}

	enc, err := startEncoder(rctx, tmp, b.opts)
	if err != nil {
		return fail(err)
	}

	b.log.Info("recording", zap.String("url", b.url), zap.Duration("expected", expected), zap.String("out", out))
	frames, driveErr, pumpErr := film(rctx, latest, enc.stdin, b.opts.FPS, drive)
	encErr := enc.close()
	_ = chromedp.Run(bctx, page.StopScreencast())

	switch {
	case driveErr != nil:
		return fail(driveErr)
	case pumpErr != nil:
		return fail(fmt.Errorf("write frames: %w", pumpErr))
	case encErr != nil:
		return fail(encErr)
	}

	if err := os.Rename(tmp, out); err != nil {
		return "", fmt.Errorf("rename video: %w", err)
	}
	b.log.Info("recording finished",
		zap.String("path", out),
		zap.Int("frames", frames),
		zap.Duration("video", time.Duration(frames)*time.Second/time.Duration(b.opts.FPS)),
	)
	return out, nil
}

// classify maps a failure to the recording error taxonomy. The caller's own
// cancellation is passed through untouched.
func classify(parent, rctx context.Context, err error, expected, grace time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Expected: expected, Grace: grace}
	}
	var se *SurfaceError
	if errors.As(err, &se) {
		return se
	}
	return &SurfaceError{Err: err}
}
