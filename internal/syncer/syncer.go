package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/timeline"
)

// DefaultTolerance is the largest audio/video duration difference accepted
// before muxing.
const DefaultTolerance = 300 * time.Millisecond

// Measurer measures a media file's duration.
type Measurer interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// MuxJob describes one container mux.
type MuxJob struct {
	Audio    string
	Video    string
	Output   string
	Duration time.Duration // output is cut to this length
}

// Muxer combines a silent video and an audio track into one container.
type Muxer interface {
	Mux(ctx context.Context, job MuxJob) (string, error)
}

// DurationMismatchError means the audio and video timelines diverged.
type DurationMismatchError struct {
	Audio     time.Duration
	Video     time.Duration
	Tolerance time.Duration
}

func (e *DurationMismatchError) Error() string {
	return fmt.Sprintf("audio %v and video %v differ by %v (tolerance %v)",
		e.Audio, e.Video, e.Diff(), e.Tolerance)
}

// Diff is the absolute difference between both durations.
func (e *DurationMismatchError) Diff() time.Duration {
	d := e.Audio - e.Video
	if d < 0 {
		return -d
	}
	return d
}

// Synchronizer validates both tracks against each other and muxes them.
type Synchronizer struct {
	Measurer  Measurer
	Muxer     Muxer
	Tolerance time.Duration
	log       *zap.Logger
}

// New creates a synchronizer. A non-positive tolerance uses DefaultTolerance.
func New(measurer Measurer, muxer Muxer, tolerance time.Duration, log *zap.Logger) *Synchronizer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Synchronizer{Measurer: measurer, Muxer: muxer, Tolerance: tolerance, log: log}
}

// Synchronize checks that audio and video durations agree within the
// tolerance and muxes them into out, overwriting any previous file.
func (s *Synchronizer) Synchronize(ctx context.Context, audioPath, videoPath string, seq *timeline.Sequence, out string) (string, error) {
	a, err := s.Measurer.Duration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("measure audio: %w", err)
	}
	v, err := s.Measurer.Duration(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("measure video: %w", err)
	}

	mismatch := &DurationMismatchError{Audio: a, Video: v, Tolerance: s.Tolerance}
	if mismatch.Diff() > s.Tolerance {
		s.log.Error("duration mismatch",
			zap.Duration("audio", a),
			zap.Duration("video", v),
			zap.Duration("tolerance", s.Tolerance),
		)
		return "", mismatch
	}
	s.log.Info("durations agree",
		zap.Duration("audio", a),
		zap.Duration("video", v),
		zap.Duration("sequence", seq.Total),
	)

	return s.Muxer.Mux(ctx, MuxJob{
		Audio:    audioPath,
		Video:    videoPath,
		Output:   out,
		Duration: seq.Total,
	})
}
