package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrInvalidDocument is wrapped by every validation failure in Decode.
var ErrInvalidDocument = errors.New("invalid document")

// ExamInfo identifies the exam a document belongs to.
type ExamInfo struct {
	Title string `json:"title"`
	Level string `json:"level,omitempty"`
	Skill string `json:"skill,omitempty"`
	Teil  int    `json:"teil,omitempty"`
	Ubung int    `json:"ubung,omitempty"`
}

// Speaker describes one voice in the listening texts.
type Speaker struct {
	Name      string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Document is a decoded, validated production document.
type Document struct {
	Info         ExamInfo     `json:"exam_info"`
	Instructions Instructions `json:"instructions"`
	Passages     []Passage    `json:"passages"`
	Questions    []Question   `json:"questions"`
	Speakers     []Speaker    `json:"speakers"`
}

type rawDocument struct {
	ExamInfo     ExamInfo     `json:"exam_info"`
	Instructions Instructions `json:"instructions"`
	Content      []struct {
		Number   int                `json:"number"`
		Context  string             `json:"context"`
		Text     string             `json:"text"`
		Speaker  string             `json:"speaker"`
		Speakers map[string]Speaker `json:"speakers"`
	} `json:"content"`
	Questions []struct {
		Number        int               `json:"number"`
		Question      string            `json:"question"`
		Options       map[string]string `json:"options"`
		CorrectAnswer string            `json:"correct_answer"`
	} `json:"questions"`
}

// LoadFile reads and decodes a production document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a production document and validates it. Numbers default to
// the entry's position when absent. A text without a question (or the other
// way round) is allowed.
func Decode(r io.Reader) (*Document, error) {
	var raw rawDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	doc := &Document{Info: raw.ExamInfo, Instructions: raw.Instructions}
	speakers := make(map[string]Speaker)

	seen := make(map[int]bool)
	for i, c := range raw.Content {
		n := c.Number
		if n == 0 {
			n = i + 1
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: content[%d] has negative number %d", ErrInvalidDocument, i, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate text number %d", ErrInvalidDocument, n)
		}
		seen[n] = true
		for name, sp := range c.Speakers {
			sp.Name = name
			sp.Gender = strings.ToLower(strings.TrimSpace(sp.Gender))
			if sp.Gender != "" && sp.Gender != "female" && sp.Gender != "male" {
				return nil, fmt.Errorf("%w: speaker %q has unknown gender %q", ErrInvalidDocument, name, sp.Gender)
			}
			if prev, ok := speakers[name]; ok && prev != sp {
				return nil, fmt.Errorf("%w: speaker %q declared twice with different settings", ErrInvalidDocument, name)
			}
			speakers[name] = sp
		}
		if c.Speaker != "" && len(c.Speakers) > 0 {
			if _, ok := c.Speakers[c.Speaker]; !ok {
				return nil, fmt.Errorf("%w: text %d names undeclared speaker %q", ErrInvalidDocument, n, c.Speaker)
			}
		}
		doc.Passages = append(doc.Passages, Passage{N: n, Text: c.Text, Speaker: c.Speaker, Context: c.Context})
	}

	seen = make(map[int]bool)
	for i, q := range raw.Questions {
		n := q.Number
		if n == 0 {
			n = i + 1
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: questions[%d] has negative number %d", ErrInvalidDocument, i, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate question number %d", ErrInvalidDocument, n)
		}
		seen[n] = true

		keys := make([]string, 0, len(q.Options))
		for k := range q.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		question := Question{N: n, Prompt: q.Question, Correct: strings.ToLower(strings.TrimSpace(q.CorrectAnswer))}
		for _, k := range keys {
			question.Options = append(question.Options, Option{Key: strings.ToLower(k), Text: q.Options[k]})
		}
		if question.Correct != "" {
			if _, ok := question.Option(question.Correct); !ok {
				return nil, fmt.Errorf("%w: question %d answer %q is not one of its options", ErrInvalidDocument, n, q.CorrectAnswer)
			}
		}
		doc.Questions = append(doc.Questions, question)
	}

	sort.Slice(doc.Passages, func(i, j int) bool { return doc.Passages[i].N < doc.Passages[j].N })
	sort.Slice(doc.Questions, func(i, j int) bool { return doc.Questions[i].N < doc.Questions[j].N })

	// Speakers in order of first appearance keeps voice assignment stable.
	added := make(map[string]bool)
	for _, c := range raw.Content {
		names := make([]string, 0, len(c.Speakers))
		for name := range c.Speakers {
			names = append(names, name)
		}
		sort.Strings(names)
		if c.Speaker != "" {
			names = append([]string{c.Speaker}, names...)
		}
		for _, name := range names {
			sp, ok := speakers[name]
			if !ok || added[name] {
				continue
			}
			added[name] = true
			doc.Speakers = append(doc.Speakers, sp)
		}
	}

	return doc, nil
}

// Numbers returns every item number that has a text or a question, ascending.
func (d *Document) Numbers() []int {
	set := make(map[int]bool)
	for _, p := range d.Passages {
		set[p.N] = true
	}
	for _, q := range d.Questions {
		set[q.N] = true
	}
	nums := make([]int, 0, len(set))
	for n := range set {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Passage returns the text with number n, or an empty one.
func (d *Document) Passage(n int) Passage {
	for _, p := range d.Passages {
		if p.N == n {
			return p
		}
	}
	return Passage{N: n}
}

// Question returns the question with number n, or an empty one.
func (d *Document) Question(n int) Question {
	for _, q := range d.Questions {
		if q.N == n {
			return q
		}
	}
	return Question{N: n}
}

// Speaker looks up a declared speaker by name.
func (d *Document) Speaker(name string) (Speaker, bool) {
	for _, s := range d.Speakers {
		if s.Name == name {
			return s, true
		}
	}
	return Speaker{}, false
}
