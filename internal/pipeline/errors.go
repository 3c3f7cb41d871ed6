package pipeline

import (
	"errors"
	"fmt"

	"github.com/satindergrewal/examcast/internal/assets"
	"github.com/satindergrewal/examcast/internal/record"
	"github.com/satindergrewal/examcast/internal/speech"
	"github.com/satindergrewal/examcast/internal/syncer"
	"github.com/satindergrewal/examcast/internal/timeline"
)

// Stage names one step of an item's pipeline.
type Stage string

const (
	StageLoad     Stage = "load"
	StageResolve  Stage = "resolve"
	StageBuild    Stage = "build"
	StageAssemble Stage = "assemble"
	StageRecord   Stage = "record"
	StageSync     Stage = "sync"
)

// Stages in execution order.
var Stages = []Stage{StageLoad, StageResolve, StageBuild, StageAssemble, StageRecord, StageSync}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage accepts a stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if s.index() < 0 {
		return "", fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// StageError tells which stage of which item failed.
type StageError struct {
	Stage Stage
	Item  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Item, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Retryable reports whether rerunning can succeed without changing inputs.
// Recording and muxing failures are transient; a duration mismatch or a
// broken sequence needs a human.
func (e *StageError) Retryable() bool {
	var mismatch *syncer.DurationMismatchError
	var integrity *timeline.IntegrityError
	var synth *speech.SynthesisError
	switch {
	case errors.As(e.Err, &mismatch), errors.As(e.Err, &integrity):
		return false
	case errors.As(e.Err, &synth):
		return synth.Reason == speech.ReasonQuota || synth.Reason == speech.ReasonNetwork
	}
	switch e.Stage {
	case StageRecord, StageAssemble:
		return true
	case StageSync:
		var mux *syncer.MuxError
		return errors.As(e.Err, &mux)
	}
	return false
}

// Resume lists the completed stages a retry will skip, because their
// artifacts are already on disk.
func (e *StageError) Resume() []Stage {
	i := e.Stage.index()
	if i <= StageResolve.index() {
		return nil
	}
	return append([]Stage(nil), Stages[StageResolve.index():i]...)
}

// Exit codes of the command line.
const (
	ExitOK         = 0
	ExitUsage      = 1
	ExitResolution = 2
	ExitIntegrity  = 3
	ExitRecording  = 4
	ExitSync       = 5
	ExitLocked     = 6
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var integrity *timeline.IntegrityError
	var resolution *speech.ResolutionError
	var timeout *record.TimeoutError
	var surface *record.SurfaceError
	var mismatch *syncer.DurationMismatchError
	var mux *syncer.MuxError
	switch {
	case errors.Is(err, assets.ErrLocked):
		return ExitLocked
	case errors.As(err, &integrity):
		return ExitIntegrity
	case errors.As(err, &resolution):
		return ExitResolution
	case errors.As(err, &timeout), errors.As(err, &surface):
		return ExitRecording
	case errors.As(err, &mismatch), errors.As(err, &mux):
		return ExitSync
	}

	var se *StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case StageResolve:
			return ExitResolution
		case StageBuild:
			return ExitIntegrity
		case StageRecord:
			return ExitRecording
		case StageAssemble, StageSync:
			return ExitSync
		}
	}
	return ExitUsage
}
