package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		verbose bool
		debug   bool
	}{
		{false, false},
		{true, true},
	}
	for _, tt := range tests {
		log, err := New(tt.verbose)
		if err != nil {
			t.Fatalf("New(%v): %v", tt.verbose, err)
		}
		if got := log.Core().Enabled(zap.DebugLevel); got != tt.debug {
			t.Errorf("New(%v) debug enabled = %v, want %v", tt.verbose, got, tt.debug)
		}
		if !log.Core().Enabled(zap.InfoLevel) {
			t.Errorf("New(%v) info disabled", tt.verbose)
		}
	}
}
