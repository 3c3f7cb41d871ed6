package content

import (
	"fmt"
	"strings"
)

// Kind tags a content item or timeline segment.
type Kind string

const (
	KindIntro        Kind = "intro"
	KindInstructions Kind = "instructions"
	KindText         Kind = "text"
	KindQuestion     Kind = "question"
	KindAnswer       Kind = "answer"
	KindOutro        Kind = "outro"

	// Gap kinds never come from a document; the timeline inserts them.
	KindPause    Kind = "pause"
	KindThinking Kind = "thinking"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIntro, KindInstructions, KindText, KindQuestion, KindAnswer, KindOutro, KindPause, KindThinking:
		return true
	}
	return false
}

// Gap reports whether k is a structural gap kind.
func (k Kind) Gap() bool {
	return k == KindPause || k == KindThinking
}

// Item is one unit of spoken or displayed material.
type Item interface {
	ID() string
	Kind() Kind
	Number() int    // 0 for items that are not numbered
	Speech() string // text to synthesize; empty for fixed assets and missing content
}

// Intro is the fixed opening clip.
type Intro struct{}

func (Intro) ID() string     { return "intro" }
func (Intro) Kind() Kind     { return KindIntro }
func (Intro) Number() int    { return 0 }
func (Intro) Speech() string { return "" }

// Outro is the fixed closing clip.
type Outro struct{}

func (Outro) ID() string     { return "outro" }
func (Outro) Kind() Kind     { return KindOutro }
func (Outro) Number() int    { return 0 }
func (Outro) Speech() string { return "" }

// Instructions are read once, before the first text.
type Instructions struct {
	Main       string `json:"main"`
	Task       string `json:"task"`
	Repetition string `json:"repetition"`
}

func (Instructions) ID() string  { return "instructions" }
func (Instructions) Kind() Kind  { return KindInstructions }
func (Instructions) Number() int { return 0 }

func (in Instructions) Speech() string {
	return joinSentences(in.Main, in.Task, in.Repetition)
}

// Passage is a listening text.
type Passage struct {
	N       int    `json:"number"`
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
	Context string `json:"context,omitempty"`
}

func (p Passage) ID() string     { return fmt.Sprintf("text_%d", p.N) }
func (Passage) Kind() Kind       { return KindText }
func (p Passage) Number() int    { return p.N }
func (p Passage) Speech() string { return strings.TrimSpace(p.Text) }

// Option is one answer choice.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is a multiple choice question.
type Question struct {
	N       int      `json:"number"`
	Prompt  string   `json:"question"`
	Options []Option `json:"options"`
	Correct string   `json:"correct_answer"`

	// ReadOptions makes Speech include the choices after the prompt.
	ReadOptions bool `json:"-"`
}

func (q Question) ID() string  { return fmt.Sprintf("question_%d", q.N) }
func (Question) Kind() Kind    { return KindQuestion }
func (q Question) Number() int { return q.N }

func (q Question) Speech() string {
	if !q.ReadOptions || strings.TrimSpace(q.Prompt) == "" {
		return strings.TrimSpace(q.Prompt)
	}
	parts := []string{q.Prompt}
	for _, o := range q.Options {
		parts = append(parts, strings.ToUpper(o.Key)+": "+o.Text)
	}
	return joinSentences(parts...)
}

// Option returns the choice with the given key.
func (q Question) Option(key string) (Option, bool) {
	for _, o := range q.Options {
		if strings.EqualFold(o.Key, key) {
			return o, true
		}
	}
	return Option{}, false
}

// Answer reveals the correct choice after a question.
type Answer struct {
	N    int    `json:"number"`
	Key  string `json:"key"`
	Line string `json:"line"`
}

func (a Answer) ID() string     { return fmt.Sprintf("answer_%d", a.N) }
func (Answer) Kind() Kind       { return KindAnswer }
func (a Answer) Number() int    { return a.N }
func (a Answer) Speech() string { return strings.TrimSpace(a.Line) }

// joinSentences joins non-empty parts, terminating each with a period.
func joinSentences(parts ...string) string {
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") && !strings.HasSuffix(p, "?") && !strings.HasSuffix(p, "!") && !strings.HasSuffix(p, ":") {
			p += "."
		}
		out = append(out, p)
	}
	return strings.Join(out, " ")
}
