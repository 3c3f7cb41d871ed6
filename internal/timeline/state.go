package timeline

import (
	"sort"
	"time"

	"github.com/satindergrewal/examcast/internal/content"
)

// Mode is what the exam page is currently showing.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeIntro        Mode = "intro"
	ModeInstructions Mode = "instructions"
	ModeReading      Mode = "reading"
	ModeQuestion     Mode = "question"
	ModeBuffer       Mode = "buffer"
	ModeAnswer       Mode = "answer"
	ModeOutro        Mode = "outro"
)

// VisualState is the on-screen configuration for one segment. It is derived
// from a sequence and never stored on its own.
type VisualState struct {
	Mode      Mode          `json:"mode"`
	Number    int           `json:"number,omitempty"`
	SegmentID string        `json:"segment_id,omitempty"`
	Index     int           `json:"index"`
	Hold      time.Duration `json:"-"`
}

// Idle is the state before the first and after the last segment.
var Idle = VisualState{Mode: ModeIdle, Index: -1}

// IndexAt returns the index of the segment playing at offset: -1 before
// the start, len(Segments) at or after the end. Zero-length segments are
// never returned.
func IndexAt(seq *Sequence, offset time.Duration) int {
	if offset < 0 {
		return -1
	}
	if offset >= seq.Total {
		return len(seq.Segments)
	}
	return sort.Search(len(seq.Segments), func(i int) bool {
		return seq.Segments[i].End() > offset
	})
}

// StateAt is the visual state at offset.
func StateAt(seq *Sequence, offset time.Duration) VisualState {
	i := IndexAt(seq, offset)
	if i < 0 || i >= len(seq.Segments) {
		return Idle
	}
	return StateOf(seq, i)
}

// StateOf is the visual state of segment i.
func StateOf(seq *Sequence, i int) VisualState {
	s := seq.Segments[i]
	return VisualState{
		Mode:      modeFor(s.Kind),
		Number:    s.Number,
		SegmentID: s.ID,
		Index:     i,
		Hold:      s.Duration,
	}
}

func modeFor(k content.Kind) Mode {
	switch k {
	case content.KindIntro:
		return ModeIntro
	case content.KindInstructions:
		return ModeInstructions
	case content.KindText:
		return ModeReading
	case content.KindQuestion:
		return ModeQuestion
	case content.KindAnswer:
		return ModeAnswer
	case content.KindOutro:
		return ModeOutro
	case content.KindPause, content.KindThinking:
		return ModeBuffer
	}
	return ModeIdle
}
