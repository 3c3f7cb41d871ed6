package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/examcast/internal/content"
)

// ErrUnresolved means Build was handed an item without a resolved duration.
var ErrUnresolved = errors.New("item not resolved")

// Resolved is the measured (or configured) length of one item and its clip.
type Resolved struct {
	Duration time.Duration
	Asset    string
}

// Items lists the document's content items in canonical order: intro,
// instructions, then text and question for every number, then outro.
// A number with a missing text or question still yields an (empty) item so
// ids and offsets stay stable across reruns.
func Items(doc *content.Document, l Layout) []content.Item {
	items := []content.Item{content.Intro{}, doc.Instructions}
	for _, n := range doc.Numbers() {
		q := doc.Question(n)
		q.ReadOptions = l.SpeakOptions
		items = append(items, doc.Passage(n), q)
		if l.RevealAnswers {
			items = append(items, answerFor(q, l.AnswerTemplate))
		}
	}
	return append(items, content.Outro{})
}

func answerFor(q content.Question, template string) content.Answer {
	a := content.Answer{N: q.N, Key: q.Correct}
	if opt, ok := q.Option(q.Correct); ok && template != "" {
		a.Line = fmt.Sprintf(template, strings.ToUpper(opt.Key), opt.Text)
	}
	return a
}

// Build lays items end to end, inserting gap segments between consecutive
// items as the layout's rules say. It never blocks and never repairs: the
// returned sequence is validated before it is handed back.
func Build(items []content.Item, l Layout, resolved map[string]Resolved) (*Sequence, error) {
	seq := &Sequence{Fingerprint: Fingerprint(items, l)}
	var offset time.Duration
	number := 0

	add := func(id string, kind content.Kind, dur time.Duration, source *string, asset string) {
		seq.Segments = append(seq.Segments, Segment{
			ID:       id,
			Kind:     kind,
			Start:    offset,
			Duration: dur,
			Source:   source,
			Number:   number,
			Asset:    asset,
		})
		offset += dur
	}

	for i, it := range items {
		if i > 0 {
			prev := items[i-1]
			if g, ok := l.gapBetween(prev.Kind(), it.Kind()); ok && g.Seconds > 0 {
				add(fmt.Sprintf("%s_after_%s", g.Kind, prev.ID()), g.Kind, FromSeconds(g.Seconds), nil, "")
			}
		}

		r, ok := resolved[it.ID()]
		if !ok {
			return nil, fmt.Errorf("build %s: %w", it.ID(), ErrUnresolved)
		}
		dur := r.Duration.Round(Resolution)
		number = it.Number()
		add(it.ID(), it.Kind(), dur, sourceOf(it.ID()), r.Asset)

		if it.Kind() == content.KindText && dur > 0 {
			for play := 2; play <= l.TextPlays; play++ {
				if l.RepeatPause > 0 {
					add(fmt.Sprintf("pause_before_%s_play_%d", it.ID(), play), content.KindPause, FromSeconds(l.RepeatPause), nil, "")
				}
				add(fmt.Sprintf("%s_play_%d", it.ID(), play), it.Kind(), dur, sourceOf(it.ID()), r.Asset)
			}
		}
	}

	seq.Total = offset
	if err := Validate(seq); err != nil {
		return nil, err
	}
	return seq, nil
}

// Fingerprint identifies the inputs a sequence was built from: every item's
// identity and speech, plus the layout. Two builds with the same fingerprint
// and the same asset store produce identical sequences.
func Fingerprint(items []content.Item, l Layout) string {
	h := sha256.New()
	for _, it := range items {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\n", it.ID(), it.Kind(), it.Number(), it.Speech())
	}
	layout, _ := yaml.Marshal(l)
	h.Write(layout)
	return hex.EncodeToString(h.Sum(nil))
}

// IntegrityError reports a sequence that breaks the timeline invariants.
type IntegrityError struct {
	Index  int
	ID     string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("sequence integrity: %s", e.Reason)
	}
	return fmt.Sprintf("sequence integrity: segment %d (%s): %s", e.Index, e.ID, e.Reason)
}

// Validate checks contiguity, non-negative durations, unique ids, null
// sources on gaps, and the total.
func Validate(seq *Sequence) error {
	var sum time.Duration
	ids := make(map[string]bool, len(seq.Segments))
	for i, s := range seq.Segments {
		fail := func(format string, args ...any) error {
			return &IntegrityError{Index: i, ID: s.ID, Reason: fmt.Sprintf(format, args...)}
		}
		switch {
		case s.ID == "":
			return fail("empty id")
		case ids[s.ID]:
			return fail("duplicate id")
		case !s.Kind.Valid():
			return fail("unknown kind %q", s.Kind)
		case s.Duration < 0:
			return fail("negative duration %v", s.Duration)
		case s.Start != sum:
			return fail("starts at %v, previous segment ends at %v", s.Start, sum)
		case s.Kind.Gap() && s.Source != nil:
			return fail("gap has a source item")
		case !s.Kind.Gap() && s.Source == nil:
			return fail("content segment has no source item")
		}
		ids[s.ID] = true
		sum += s.Duration
	}
	if diff := seq.Total - sum; diff > Resolution || diff < -Resolution {
		return &IntegrityError{Index: -1, Reason: fmt.Sprintf("total %v does not match sum of durations %v", seq.Total, sum)}
	}
	return nil
}
