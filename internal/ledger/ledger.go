package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status of a stage run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Entry records one stage of one pipeline run.
type Entry struct {
	RunID     string            `json:"run_id" bson:"run_id"`
	Item      string            `json:"item" bson:"item"`
	Stage     string            `json:"stage" bson:"stage"`
	Status    Status            `json:"status" bson:"status"`
	Error     string            `json:"error,omitempty" bson:"error,omitempty"`
	Started   time.Time         `json:"started" bson:"started"`
	ElapsedMS int64             `json:"elapsed_ms" bson:"elapsed_ms"`
	Details   map[string]string `json:"details,omitempty" bson:"details,omitempty"`
}

// Ledger stores stage outcomes.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Close(ctx context.Context) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Close(context.Context) error         { return nil }

// File appends entries as JSON lines.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenFile opens (or creates) a JSON-lines ledger at path.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &File{f: f, path: path}, nil
}

func (l *File) Record(ctx context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func (l *File) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadFile returns every entry of a JSON-lines ledger in order.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse ledger line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
