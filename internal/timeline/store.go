package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Marshal renders the sequence document. Output is byte-identical for equal
// sequences.
func Marshal(seq *Sequence) ([]byte, error) {
	data, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes the sequence atomically: readers see either the previous file
// or the complete new one.
func Save(path string, seq *Sequence) error {
	if err := Validate(seq); err != nil {
		return err
	}
	data, err := Marshal(seq)
	if err != nil {
		return fmt.Errorf("marshal sequence: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// Load reads and validates a persisted sequence.
func Load(path string) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("decode sequence %s: %w", path, err)
	}
	if err := Validate(&seq); err != nil {
		return nil, err
	}
	return &seq, nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
