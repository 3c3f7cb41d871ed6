package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Durations measures media durations with the ffprobe binary.
type Durations struct {
	Bin string // defaults to "ffprobe"
}

// Duration returns the container duration of path, rounded to the
// millisecond.
func (p Durations) Duration(ctx context.Context, path string) (time.Duration, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return ParseDuration(out)
}

// ParseDuration parses ffprobe's bare seconds output.
func ParseDuration(out []byte) (time.Duration, error) {
	s := strings.TrimSpace(string(out))
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if sec < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)).Round(time.Millisecond), nil
}
