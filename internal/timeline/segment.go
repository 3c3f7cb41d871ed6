package timeline

import (
	"encoding/json"
	"math"
	"time"

	"github.com/satindergrewal/examcast/internal/content"
)

// Resolution is the smallest unit of time the timeline stores. Every duration
// is rounded to it on the way in, so offsets add up exactly.
const Resolution = time.Millisecond

// Segment is one atomic, non-overlapping interval of the timeline.
type Segment struct {
	ID       string
	Kind     content.Kind
	Start    time.Duration
	Duration time.Duration
	Source   *string // content item id; nil for gaps
	Number   int     // item number shown on screen; gaps inherit the previous segment's
	Asset    string  // audio clip; empty for silence
}

// End is the offset where the next segment starts.
func (s Segment) End() time.Duration { return s.Start + s.Duration }

type segmentJSON struct {
	ID       string       `json:"id"`
	Kind     content.Kind `json:"kind"`
	Start    float64      `json:"start_time"`
	Duration float64      `json:"duration"`
	Source   *string      `json:"source_content_item_id"`
	Number   int          `json:"number,omitempty"`
	Asset    string       `json:"asset,omitempty"`
}

func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(segmentJSON{
		ID:       s.ID,
		Kind:     s.Kind,
		Start:    Seconds(s.Start),
		Duration: Seconds(s.Duration),
		Source:   s.Source,
		Number:   s.Number,
		Asset:    s.Asset,
	})
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var w segmentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Segment{
		ID:       w.ID,
		Kind:     w.Kind,
		Start:    FromSeconds(w.Start),
		Duration: FromSeconds(w.Duration),
		Source:   w.Source,
		Number:   w.Number,
		Asset:    w.Asset,
	}
	return nil
}

// Sequence is the persisted Audio Sequence.
type Sequence struct {
	Total       time.Duration
	Fingerprint string
	Segments    []Segment
}

type sequenceJSON struct {
	Total       float64   `json:"total_duration"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Segments    []Segment `json:"sequence"`
}

func (q Sequence) MarshalJSON() ([]byte, error) {
	segs := q.Segments
	if segs == nil {
		segs = []Segment{}
	}
	return json.Marshal(sequenceJSON{Total: Seconds(q.Total), Fingerprint: q.Fingerprint, Segments: segs})
}

func (q *Sequence) UnmarshalJSON(data []byte) error {
	var w sequenceJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*q = Sequence{Total: FromSeconds(w.Total), Fingerprint: w.Fingerprint, Segments: w.Segments}
	return nil
}

// Seconds converts d to float seconds at millisecond precision.
func Seconds(d time.Duration) float64 {
	return float64(d.Round(Resolution)/Resolution) / 1000
}

// FromSeconds converts float seconds to a Duration rounded to Resolution.
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * Resolution
}

func sourceOf(id string) *string { return &id }
