package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store keeps synthesized clips on disk. Entries are only ever added or
// replaced, never removed, so a failed run leaves earlier clips for the retry.
type Store struct {
	dir string
	ext string
}

// Entry is one committed clip.
type Entry struct {
	Key      string
	Path     string
	Duration time.Duration
}

type sidecar struct {
	DurationMS int64     `json:"duration_ms"`
	Created    time.Time `json:"created"`
}

// Open creates the store directory if needed.
func Open(dir, ext string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	if ext == "" {
		ext = "mp3"
	}
	return &Store{dir: dir, ext: strings.TrimPrefix(ext, ".")}, nil
}

// Dir is the store's directory.
func (s *Store) Dir() string { return s.dir }

// Key derives the asset key for a segment. The same segment with the same
// text and voice always maps to the same key.
func Key(segmentID string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return segmentID + "." + hex.EncodeToString(h.Sum(nil))[:12]
}

func (s *Store) clipPath(key string) string { return filepath.Join(s.dir, key+"."+s.ext) }
func (s *Store) metaPath(key string) string { return filepath.Join(s.dir, key+".json") }

// Lookup returns the committed entry for key. An entry counts as present
// only once both the clip and its duration sidecar exist.
func (s *Store) Lookup(key string) (Entry, bool, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read sidecar %s: %w", key, err)
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return Entry{}, false, fmt.Errorf("decode sidecar %s: %w", key, err)
	}
	path := s.clipPath(key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return Entry{Key: key, Path: path, Duration: time.Duration(meta.DurationMS) * time.Millisecond}, true, nil
}

// TempPath reserves a scratch file inside the store for a clip being
// synthesized. It shares the store's filesystem so Commit is a rename.
func (s *Store) TempPath(key string) (string, error) {
	f, err := os.CreateTemp(s.dir, "."+key+".*."+s.ext)
	if err != nil {
		return "", fmt.Errorf("reserve temp clip: %w", err)
	}
	name := f.Name()
	f.Close()
	return name, nil
}

// Commit moves a finished clip into place and records its measured duration.
// The sidecar is written last so Lookup never sees a half-committed entry.
func (s *Store) Commit(key, clip string, d time.Duration) (Entry, error) {
	path := s.clipPath(key)
	if err := os.Rename(clip, path); err != nil {
		return Entry{}, fmt.Errorf("commit clip %s: %w", key, err)
	}
	d = d.Round(time.Millisecond)
	data, err := json.Marshal(sidecar{DurationMS: d.Milliseconds(), Created: time.Now().UTC()})
	if err != nil {
		return Entry{}, err
	}
	tmp := s.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write sidecar %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.metaPath(key)); err != nil {
		return Entry{}, fmt.Errorf("commit sidecar %s: %w", key, err)
	}
	return Entry{Key: key, Path: path, Duration: d}, nil
}
