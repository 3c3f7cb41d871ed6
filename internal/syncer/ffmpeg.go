package syncer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MuxError is a failed mux invocation with the tool's diagnostics.
type MuxError struct {
	Output string
	Stderr string
	Err    error
}

func (e *MuxError) Error() string {
	msg := fmt.Sprintf("mux %s: %v", e.Output, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *MuxError) Unwrap() error { return e.Err }

// FFmpegMuxer muxes with the ffmpeg binary.
type FFmpegMuxer struct {
	Bin        string // defaults to "ffmpeg"
	VideoCodec string // defaults to "copy"
	AudioCodec string // defaults to "aac"
	log        *zap.Logger
}

// NewFFmpegMuxer creates a muxer that copies the video stream.
func NewFFmpegMuxer(log *zap.Logger) *FFmpegMuxer {
	return &FFmpegMuxer{Bin: "ffmpeg", VideoCodec: "copy", AudioCodec: "aac", log: log}
}

func (m *FFmpegMuxer) args(job MuxJob, tmp string) []string {
	vcodec, acodec := m.VideoCodec, m.AudioCodec
	if vcodec == "" {
		vcodec = "copy"
	}
	if acodec == "" {
		acodec = "aac"
	}
	args := []string{
		"-y",
		"-i", job.Video,
		"-i", job.Audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", vcodec,
		"-c:a", acodec,
		"-b:a", "192k",
	}
	if job.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(job.Duration.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		"-flags:a", "+bitexact",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-loglevel", "error",
		tmp,
	)
	return args
}

// Mux writes the container to a temp file next to job.Output and renames it
// into place, so a failed mux never leaves a partial artifact.
func (m *FFmpegMuxer) Mux(ctx context.Context, job MuxJob) (string, error) {
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return "", &MuxError{Output: job.Output, Err: err}
	}
	tmp := filepath.Join(filepath.Dir(job.Output), ".tmp-"+filepath.Base(job.Output))
	defer os.Remove(tmp)

	bin := m.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, m.args(job, tmp)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &MuxError{Output: job.Output, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	if err := os.Rename(tmp, job.Output); err != nil {
		return "", &MuxError{Output: job.Output, Err: err}
	}
	if m.log != nil {
		m.log.Info("muxed", zap.String("path", job.Output), zap.Duration("duration", job.Duration))
	}
	return job.Output, nil
}
