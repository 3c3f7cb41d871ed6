package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/timeline"
)

// Assembler renders the master narration track from a sequence.
type Assembler struct {
	// Fade is the ramp applied to both edges of every clip.
	Fade time.Duration

	decode func(ctx context.Context, path string) ([]int16, error)
	log    *zap.Logger
}

// NewAssembler creates an assembler that decodes clips with ffmpeg.
func NewAssembler(fade time.Duration, log *zap.Logger) *Assembler {
	return &Assembler{Fade: fade, decode: DecodeFile, log: log}
}

// Assemble writes the master track for seq to out. The file is encoded by
// ffmpeg into a temp file and renamed on success, so out is either the
// previous complete track or the new one.
func (a *Assembler) Assemble(ctx context.Context, seq *timeline.Sequence, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(out), ".tmp-"+filepath.Base(out))
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
		"-loglevel", "error",
		tmp,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	mixErr := a.Mixdown(ctx, seq, stdin)
	stdin.Close()
	waitErr := cmd.Wait()
	if mixErr != nil {
		return mixErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg encode %s: %w: %s", out, waitErr, strings.TrimSpace(stderr.String()))
	}

	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("rename master track: %w", err)
	}
	a.log.Info("master track assembled",
		zap.String("path", out),
		zap.Int("segments", len(seq.Segments)),
		zap.Duration("total", seq.Total),
	)
	return nil
}

// Mixdown streams the track as raw PCM to w. Every segment occupies exactly
// the samples between its rounded start and end offsets; clips are trimmed
// or padded to that span and gaps are silence.
func (a *Assembler) Mixdown(ctx context.Context, seq *timeline.Sequence, w io.Writer) error {
	cache := make(map[string][]int16)
	fade := SampleAt(a.Fade)

	for _, s := range seq.Segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := (SampleAt(s.End()) - SampleAt(s.Start)) * Channels
		if n == 0 {
			continue
		}

		var chunk []int16
		if s.Asset == "" {
			chunk = make([]int16, n)
		} else {
			clip, ok := cache[s.Asset]
			if !ok {
				var err error
				clip, err = a.decode(ctx, s.Asset)
				if err != nil {
					return fmt.Errorf("segment %s: %w", s.ID, err)
				}
				cache[s.Asset] = clip
			}
			if diff := len(clip) - n; diff > FrameSamples || diff < -FrameSamples {
				a.log.Debug("clip length differs from segment",
					zap.String("segment", s.ID),
					zap.Int("clip_samples", len(clip)),
					zap.Int("segment_samples", n),
				)
			}
			chunk = Fit(clip, n)
			FadeEdges(chunk, fade)
		}

		if _, err := w.Write(SamplesToBytes(chunk)); err != nil {
			return fmt.Errorf("write segment %s: %w", s.ID, err)
		}
	}
	return nil
}
