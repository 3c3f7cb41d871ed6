package record

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// latch holds the most recent screencast frame.
type latch struct {
	mu    sync.Mutex
	frame []byte
}

func (l *latch) set(b []byte) {
	l.mu.Lock()
	l.frame = b
	l.mu.Unlock()
}

func (l *latch) get() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame
}

// framesOwed is how many frames must be written to reach elapsed at fps.
func framesOwed(elapsed time.Duration, fps, written int) int {
	n := int(int64(elapsed)*int64(fps)/int64(time.Second)) - written
	if n < 0 {
		return 0
	}
	return n
}

// pump writes the latest frame to w at a constant rate. Frames owed before
// the first screencast frame arrives are filled with that first frame.
type pump struct {
	latest  *latch
	w       io.Writer
	fps     int
	start   time.Time
	written int
	err     error
	stopCh  chan struct{}
	done    chan struct{}
}

func newPump(latest *latch, w io.Writer, fps int) *pump {
	return &pump{
		latest: latest,
		w:      w,
		fps:    fps,
		start:  time.Now(),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *pump) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.err = p.fill()
			return
		case <-ticker.C:
			if err := p.fill(); err != nil {
				p.err = err
				return
			}
		}
	}
}

func (p *pump) fill() error {
	frame := p.latest.get()
	if frame == nil {
		return nil
	}
	for owed := framesOwed(time.Since(p.start), p.fps, p.written); owed > 0; owed-- {
		if _, err := p.w.Write(frame); err != nil {
			return err
		}
		p.written++
	}
	return nil
}

// stop writes the remaining owed frames and returns the total written.
func (p *pump) stop() (int, error) {
	close(p.stopCh)
	<-p.done
	return p.written, p.err
}

// film runs drive and pumps frames to w from the first call of drive's
// start callback until drive returns. Nothing is written if start is never
// called.
func film(ctx context.Context, latest *latch, w io.Writer, fps int, drive DriveFunc) (frames int, driveErr, pumpErr error) {
	var (
		once sync.Once
		p    *pump
	)
	start := func() {
		once.Do(func() {
			p = newPump(latest, w, fps)
			go p.run(ctx)
		})
	}
	driveErr = drive(ctx, start)
	// a start after drive returned is a no-op
	once.Do(func() {})
	if p == nil {
		return 0, driveErr, nil
	}
	frames, pumpErr = p.stop()
	return frames, driveErr, pumpErr
}

type encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

func encoderArgs(out string, o Options) []string {
	fps := strconv.Itoa(o.FPS)
	return []string{
		"-y",
		"-f", "image2pipe",
		"-framerate", fps,
		"-c:v", "mjpeg",
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("scale=%d:%d,format=yuv420p", o.Width, o.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-r", fps,
		"-an",
		"-loglevel", "error",
		out,
	}
}

func startEncoder(ctx context.Context, out string, o Options) (*encoder, error) {
	e := &encoder{}
	e.cmd = exec.CommandContext(ctx, "ffmpeg", encoderArgs(out, o)...)
	e.cmd.Stderr = &e.stderr
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	e.stdin = stdin
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	return e, nil
}

func (e *encoder) close() error {
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder: %w: %s", err, strings.TrimSpace(e.stderr.String()))
	}
	return nil
}
