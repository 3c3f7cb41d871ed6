package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/pipeline"
	"github.com/satindergrewal/examcast/internal/record"
	"github.com/satindergrewal/examcast/internal/speech"
	"github.com/satindergrewal/examcast/internal/syncer"
)

// flatten splits a batch error into the errors of the individual items.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, flatten(e)...)
	}
	return out
}

// failureFields describes one item's failure: the stage, whether a rerun
// can succeed, which stages it will skip, and the quantities involved.
func failureFields(err error) []zap.Field {
	fields := []zap.Field{zap.Int("exit_code", pipeline.ExitCode(err))}

	var stage *pipeline.StageError
	if errors.As(err, &stage) {
		resume := make([]string, 0, len(stage.Resume()))
		for _, s := range stage.Resume() {
			resume = append(resume, string(s))
		}
		fields = append(fields,
			zap.String("item", stage.Item),
			zap.String("stage", string(stage.Stage)),
			zap.Bool("retryable", stage.Retryable()),
			zap.Strings("resume_skips", resume),
		)
	}

	var mismatch *syncer.DurationMismatchError
	var timeout *record.TimeoutError
	var synth *speech.SynthesisError
	var resolve *speech.ResolutionError
	switch {
	case errors.As(err, &mismatch):
		fields = append(fields,
			zap.Duration("audio", mismatch.Audio),
			zap.Duration("video", mismatch.Video),
			zap.Duration("diff", mismatch.Diff()),
			zap.Duration("tolerance", mismatch.Tolerance),
		)
	case errors.As(err, &timeout):
		fields = append(fields,
			zap.Duration("expected", timeout.Expected),
			zap.Duration("grace", timeout.Grace),
		)
	case errors.As(err, &synth):
		fields = append(fields, zap.String("voice", synth.Voice), zap.String("reason", synth.Reason))
	}
	if errors.As(err, &resolve) {
		fields = append(fields, zap.String("segment", resolve.ItemID))
	}
	return append(fields, zap.Error(err))
}

func reportFailures(log *zap.Logger, err error) {
	for _, e := range flatten(err) {
		log.Error("item failed", failureFields(e)...)
	}
}
