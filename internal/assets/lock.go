package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLocked means another run holds the item.
var ErrLocked = errors.New("item is locked by another run")

// Lock is a single-writer marker for one content item's work directory.
type Lock struct {
	path string
}

// Acquire creates dir/.lock exclusively. It fails with ErrLocked when the
// marker already exists; a crashed run's marker has to be removed by hand.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create item dir: %w", err)
	}
	path := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		owner, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%w (%s, pid %s)", ErrLocked, dir, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}
	f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()
	return &Lock{path: path}, nil
}

// Release removes the marker.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
