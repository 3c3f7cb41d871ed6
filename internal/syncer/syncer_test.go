package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/timeline"
)

type fakeMeasurer map[string]time.Duration

func (p fakeMeasurer) Duration(ctx context.Context, path string) (time.Duration, error) {
	d, ok := p[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return d, nil
}

type fakeMuxer struct {
	jobs []MuxJob
	err  error
}

func (m *fakeMuxer) Mux(ctx context.Context, job MuxJob) (string, error) {
	m.jobs = append(m.jobs, job)
	if m.err != nil {
		return "", m.err
	}
	return job.Output, nil
}

// --- Synchronize ---

func TestSynchronizeTolerance(t *testing.T) {
	seq := &timeline.Sequence{Total: 100 * time.Second}
	tests := []struct {
		name     string
		video    time.Duration
		mismatch bool
	}{
		{"exact", 100 * time.Second, false},
		{"within", 100*time.Second + 250*time.Millisecond, false},
		{"at edge", 100*time.Second - 300*time.Millisecond, false},
		{"beyond", 100*time.Second + 301*time.Millisecond, true},
		{"short video", 90 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMuxer{}
			s := New(fakeMeasurer{"a.wav": 100 * time.Second, "v.mp4": tt.video}, m, 0, zap.NewNop())
			out, err := s.Synchronize(context.Background(), "a.wav", "v.mp4", seq, "final.mp4")

			var mm *DurationMismatchError
			if tt.mismatch {
				if !errors.As(err, &mm) {
					t.Fatalf("err = %v, want DurationMismatchError", err)
				}
				if mm.Audio != 100*time.Second || mm.Video != tt.video {
					t.Errorf("measured = %v/%v, want %v/%v", mm.Audio, mm.Video, 100*time.Second, tt.video)
				}
				if !strings.Contains(err.Error(), tt.video.String()) {
					t.Errorf("message %q lacks video duration", err)
				}
				if len(m.jobs) != 0 {
					t.Error("muxer called despite mismatch")
				}
				return
			}
			if err != nil {
				t.Fatalf("Synchronize: %v", err)
			}
			if out != "final.mp4" || len(m.jobs) != 1 {
				t.Fatalf("out = %q, jobs = %d", out, len(m.jobs))
			}
			if m.jobs[0].Duration != seq.Total {
				t.Errorf("job duration = %v, want %v", m.jobs[0].Duration, seq.Total)
			}
		})
	}
}

func TestSynchronizeMeasureFailure(t *testing.T) {
	s := New(fakeMeasurer{"a.wav": time.Second}, &fakeMuxer{}, time.Second, zap.NewNop())
	_, err := s.Synchronize(context.Background(), "a.wav", "missing.mp4", &timeline.Sequence{}, "out.mp4")
	if err == nil || !strings.Contains(err.Error(), "measure video") {
		t.Errorf("err = %v, want measure video failure", err)
	}
}

func TestSynchronizeMuxError(t *testing.T) {
	muxErr := &MuxError{Output: "out.mp4", Stderr: "codec not found", Err: errors.New("exit status 1")}
	s := New(fakeMeasurer{"a": time.Second, "v": time.Second}, &fakeMuxer{err: muxErr}, 0, zap.NewNop())
	_, err := s.Synchronize(context.Background(), "a", "v", &timeline.Sequence{Total: time.Second}, "out.mp4")
	var me *MuxError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MuxError", err)
	}
	if !strings.Contains(err.Error(), "codec not found") {
		t.Errorf("message %q lacks stderr", err)
	}
}

// --- FFmpegMuxer ---

func TestMuxArgs(t *testing.T) {
	m := NewFFmpegMuxer(nil)
	args := strings.Join(m.args(MuxJob{Audio: "a.wav", Video: "v.mp4", Duration: 100500 * time.Millisecond}, "tmp.mp4"), " ")
	for _, want := range []string{
		"-i v.mp4 -i a.wav",
		"-map 0:v:0 -map 1:a:0",
		"-c:v copy",
		"-c:a aac",
		"-t 100.500",
		"-map_metadata -1",
		"+bitexact",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if !strings.HasSuffix(args, "tmp.mp4") {
		t.Errorf("args %q do not end with temp output", args)
	}
}

func TestMuxFailureLeavesNoArtifact(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "final.mp4")
	m := &FFmpegMuxer{Bin: filepath.Join(dir, "no-such-ffmpeg")}
	_, err := m.Mux(context.Background(), MuxJob{Audio: "a", Video: "v", Output: out})
	var me *MuxError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MuxError", err)
	}
	if me.Output != out {
		t.Errorf("Output = %q, want %q", me.Output, out)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}
