package speech

import (
	"context"
	"fmt"
	"time"
)

// Voice selects how a text is spoken. Engine is part of the asset key, so
// switching engines never reuses a clip made with another one.
type Voice struct {
	Name   string
	Engine string
}

// Clip is a synthesized audio file and its measured length.
type Clip struct {
	Path     string
	Duration time.Duration
}

// Synthesizer turns text into an audio clip written to outPath. The
// returned duration is measured from the written file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice, outPath string) (Clip, error)
}

// Measurer measures the duration of a media file.
type Measurer interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Failure reasons reported by synthesizers.
const (
	ReasonQuota            = "quota"
	ReasonNetwork          = "network"
	ReasonUnsupportedVoice = "unsupported_voice"
	ReasonFailed           = "failed"
)

// SynthesisError is returned by synthesizers when the service refuses or
// cannot be reached.
type SynthesisError struct {
	Voice  string
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize with voice %s (%s): %v", e.Voice, e.Reason, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ResolutionError fails the build for one content item. There is no
// fallback duration.
type ResolutionError struct {
	ItemID string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.ItemID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
