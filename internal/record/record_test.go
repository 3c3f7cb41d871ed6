package record

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// --- framesOwed ---

func TestFramesOwed(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		fps     int
		written int
		want    int
	}{
		{0, 30, 0, 0},
		{time.Second, 30, 0, 30},
		{time.Second, 30, 29, 1},
		{time.Second, 30, 40, 0},
		{1500 * time.Millisecond, 30, 30, 15},
		{33 * time.Millisecond, 30, 0, 0},
		{34 * time.Millisecond, 30, 0, 1},
	}
	for _, tt := range tests {
		if got := framesOwed(tt.elapsed, tt.fps, tt.written); got != tt.want {
			t.Errorf("framesOwed(%v, %d, %d) = %d, want %d", tt.elapsed, tt.fps, tt.written, got, tt.want)
		}
	}
}

// --- pump ---

func TestPumpTracksWallClock(t *testing.T) {
	l := &latch{}
	var buf bytes.Buffer
	p := newPump(l, &buf, 100)
	go p.run(context.Background())

	time.Sleep(30 * time.Millisecond)
	l.set([]byte("F"))
	time.Sleep(70 * time.Millisecond)
	n, err := p.stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	// ~100ms at 100fps; owed frames before the first frame are back-filled
	if n < 9 || n > 20 {
		t.Errorf("frames = %d, want about 10", n)
	}
	if buf.Len() != n {
		t.Errorf("bytes written = %d, want %d one-byte frames", buf.Len(), n)
	}
}

func TestPumpNoFrameNoOutput(t *testing.T) {
	var buf bytes.Buffer
	p := newPump(&latch{}, &buf, 50)
	go p.run(context.Background())
	time.Sleep(20 * time.Millisecond)
	if n, _ := p.stop(); n != 0 || buf.Len() != 0 {
		t.Errorf("wrote %d frames without any screencast frame", n)
	}
}

func TestFilmClockStartsAtStart(t *testing.T) {
	l := &latch{}
	l.set([]byte("F"))
	var buf bytes.Buffer
	frames, driveErr, pumpErr := film(context.Background(), l, &buf, 100, func(ctx context.Context, start func()) error {
		// page load time is not part of the video
		time.Sleep(150 * time.Millisecond)
		start()
		start()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if driveErr != nil || pumpErr != nil {
		t.Fatalf("film: %v, %v", driveErr, pumpErr)
	}
	// ~50ms at 100fps; counting from before start would give ~20
	if frames < 4 || frames > 12 {
		t.Errorf("frames = %d, want about 5", frames)
	}
	if buf.Len() != frames {
		t.Errorf("bytes written = %d, want %d", buf.Len(), frames)
	}
}

func TestFilmWithoutStart(t *testing.T) {
	l := &latch{}
	l.set([]byte("F"))
	var buf bytes.Buffer
	boom := errors.New("page never connected")
	frames, driveErr, _ := film(context.Background(), l, &buf, 100, func(context.Context, func()) error {
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	if !errors.Is(driveErr, boom) {
		t.Errorf("driveErr = %v, want %v", driveErr, boom)
	}
	if frames != 0 || buf.Len() != 0 {
		t.Errorf("wrote %d frames before start", frames)
	}
}

// --- encoderArgs ---

func TestEncoderArgs(t *testing.T) {
	args := strings.Join(encoderArgs("/tmp/v.mp4", Options{Width: 1280, Height: 720, FPS: 30}), " ")
	for _, want := range []string{"-f image2pipe", "-framerate 30", "-i pipe:0", "scale=1280:720", "-c:v libx264", "-an", "/tmp/v.mp4"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

// --- classify ---

func TestClassify(t *testing.T) {
	parent := context.Background()

	expired, cancel := context.WithTimeout(parent, time.Nanosecond)
	defer cancel()
	<-expired.Done()
	err := classify(parent, expired, context.DeadlineExceeded, 10*time.Second, 5*time.Second)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if te.Expected != 10*time.Second || te.Grace != 5*time.Second {
		t.Errorf("TimeoutError = %+v", te)
	}

	live, cancel2 := context.WithCancel(parent)
	defer cancel2()
	err = classify(parent, live, errors.New("page crashed"), time.Second, time.Second)
	var se *SurfaceError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want SurfaceError", err)
	}

	cancelled, cancel3 := context.WithCancel(parent)
	cancel3()
	if err := classify(cancelled, cancelled, context.Canceled, time.Second, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want caller's Canceled", err)
	}
}

func TestNewBrowserDefaults(t *testing.T) {
	b := NewBrowser("http://127.0.0.1:1/", Options{Width: 1280, Height: 720}, nil)
	if b.opts.FPS != 30 || b.opts.Quality != 90 {
		t.Errorf("defaults = fps %d quality %d, want 30/90", b.opts.FPS, b.opts.Quality)
	}
}
