package timeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/examcast/internal/content"
)

// GapRule inserts a silent segment between two consecutive items. After must
// match the kind of the earlier item; Before, when set, the later one.
type GapRule struct {
	After   content.Kind `yaml:"after"`
	Before  content.Kind `yaml:"before,omitempty"`
	Seconds float64      `yaml:"seconds"`
	Kind    content.Kind `yaml:"kind"`
}

func (g GapRule) matches(prev, next content.Kind) bool {
	return g.After == prev && (g.Before == "" || g.Before == next)
}

// Layout is the single declared timing policy for a sequence.
type Layout struct {
	IntroSeconds float64 `yaml:"intro_seconds"`
	IntroAsset   string  `yaml:"intro_asset,omitempty"`
	OutroSeconds float64 `yaml:"outro_seconds"`
	OutroAsset   string  `yaml:"outro_asset,omitempty"`

	// TextPlays is how often each listening text is played, separated by
	// RepeatPause seconds of silence.
	TextPlays   int     `yaml:"text_plays"`
	RepeatPause float64 `yaml:"repeat_pause"`

	SpeakOptions   bool   `yaml:"speak_options"`
	RevealAnswers  bool   `yaml:"reveal_answers"`
	AnswerTemplate string `yaml:"answer_template"`

	Gaps   []GapRule          `yaml:"gaps"`
	Voices content.VoicePools `yaml:"voices"`

	// Teile overrides the rules for one exam part, keyed by exam_info.teil.
	Teile map[int]TeilLayout `yaml:"teile,omitempty"`
}

// TeilLayout overrides parts of the layout for one exam part. Unset fields
// keep the base value; Gaps, when present, replace the base rules.
type TeilLayout struct {
	IntroSeconds  *float64  `yaml:"intro_seconds,omitempty"`
	OutroSeconds  *float64  `yaml:"outro_seconds,omitempty"`
	TextPlays     *int      `yaml:"text_plays,omitempty"`
	RepeatPause   *float64  `yaml:"repeat_pause,omitempty"`
	SpeakOptions  *bool     `yaml:"speak_options,omitempty"`
	RevealAnswers *bool     `yaml:"reveal_answers,omitempty"`
	Gaps          []GapRule `yaml:"gaps,omitempty"`
}

// ForTeil returns the rules that apply to a document of the given exam
// part. The result carries no overlays, so its fingerprint covers only the
// overlay that was applied.
func (l Layout) ForTeil(teil int) Layout {
	out := l
	out.Teile = nil
	o, ok := l.Teile[teil]
	if !ok {
		return out
	}
	if o.IntroSeconds != nil {
		out.IntroSeconds = *o.IntroSeconds
	}
	if o.OutroSeconds != nil {
		out.OutroSeconds = *o.OutroSeconds
	}
	if o.TextPlays != nil {
		out.TextPlays = *o.TextPlays
	}
	if o.RepeatPause != nil {
		out.RepeatPause = *o.RepeatPause
	}
	if o.SpeakOptions != nil {
		out.SpeakOptions = *o.SpeakOptions
	}
	if o.RevealAnswers != nil {
		out.RevealAnswers = *o.RevealAnswers
	}
	if o.Gaps != nil {
		out.Gaps = o.Gaps
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func teilGaps(thinking, answerPause float64) []GapRule {
	return []GapRule{
		{After: content.KindInstructions, Seconds: 1, Kind: content.KindPause},
		{After: content.KindText, Before: content.KindQuestion, Seconds: 2, Kind: content.KindPause},
		{After: content.KindQuestion, Seconds: thinking, Kind: content.KindThinking},
		{After: content.KindAnswer, Seconds: answerPause, Kind: content.KindPause},
	}
}

// DefaultLayout matches the listening exam format: a short pause before each
// question and thinking time after it.
func DefaultLayout() Layout {
	return Layout{
		IntroSeconds:   3,
		OutroSeconds:   4,
		TextPlays:      1,
		RepeatPause:    3,
		AnswerTemplate: "Die richtige Antwort ist %s: %s",
		Gaps: []GapRule{
			{After: content.KindText, Before: content.KindQuestion, Seconds: 2, Kind: content.KindPause},
			{After: content.KindQuestion, Seconds: 5, Kind: content.KindThinking},
			{After: content.KindAnswer, Seconds: 2, Kind: content.KindPause},
		},
		Voices: content.VoicePools{
			Narrator: "Vicki",
			Female:   []string{"Vicki", "Marlene"},
			Male:     []string{"Daniel", "Hans"},
		},
		// Teil 1 and 3 play every text twice; 2 and 4 once with longer
		// thinking time.
		Teile: map[int]TeilLayout{
			1: {TextPlays: ptr(2), RepeatPause: ptr(3.0), Gaps: teilGaps(5, 2)},
			2: {TextPlays: ptr(1), Gaps: teilGaps(20, 3)},
			3: {TextPlays: ptr(2), RepeatPause: ptr(3.0), Gaps: teilGaps(15, 2)},
			4: {TextPlays: ptr(1), Gaps: teilGaps(30, 3)},
		},
	}
}

// LoadLayout reads YAML layout rules over the defaults. An empty path
// returns the defaults.
func LoadLayout(path string) (Layout, error) {
	l := DefaultLayout()
	if path == "" {
		return l, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("layout %s: %w", path, err)
	}
	return l, nil
}

// Validate rejects rules that could produce a malformed sequence, for the
// base layout and for every exam part.
func (l Layout) Validate() error {
	for teil := range l.Teile {
		if teil < 1 {
			return fmt.Errorf("teil %d: must be at least 1", teil)
		}
		if err := l.ForTeil(teil).validate(); err != nil {
			return fmt.Errorf("teil %d: %w", teil, err)
		}
	}
	return l.validate()
}

func (l Layout) validate() error {
	if l.IntroSeconds < 0 || l.OutroSeconds < 0 || l.RepeatPause < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if l.TextPlays < 1 {
		return fmt.Errorf("text_plays must be at least 1, got %d", l.TextPlays)
	}
	for i, g := range l.Gaps {
		if !g.Kind.Gap() {
			return fmt.Errorf("gap %d: kind must be pause or thinking, got %q", i, g.Kind)
		}
		if !g.After.Valid() || g.After.Gap() {
			return fmt.Errorf("gap %d: invalid after kind %q", i, g.After)
		}
		if g.Before != "" && (!g.Before.Valid() || g.Before.Gap()) {
			return fmt.Errorf("gap %d: invalid before kind %q", i, g.Before)
		}
		if g.Seconds < 0 {
			return fmt.Errorf("gap %d: negative seconds", i)
		}
	}
	return nil
}

// gapBetween returns the first rule that applies between prev and next.
func (l Layout) gapBetween(prev, next content.Kind) (GapRule, bool) {
	for _, g := range l.Gaps {
		if g.matches(prev, next) {
			return g, true
		}
	}
	return GapRule{}, false
}

// FixedDuration is the configured length of a structural item.
func (l Layout) FixedDuration(kind content.Kind) (time.Duration, string, bool) {
	switch kind {
	case content.KindIntro:
		return FromSeconds(l.IntroSeconds), l.IntroAsset, true
	case content.KindOutro:
		return FromSeconds(l.OutroSeconds), l.OutroAsset, true
	}
	return 0, "", false
}
