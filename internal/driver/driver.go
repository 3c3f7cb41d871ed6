package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/examcast/internal/timeline"
)

// Surface renders visual states. Show must return once the state is on
// screen, and must honour ctx.
type Surface interface {
	Show(ctx context.Context, st timeline.VisualState) error
}

// SurfaceError aborts a drive when the surface fails or does not confirm a
// transition in time.
type SurfaceError struct {
	Index     int
	SegmentID string
	Err       error
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("surface transition %d (%s): %v", e.Index, e.SegmentID, e.Err)
}

func (e *SurfaceError) Unwrap() error { return e.Err }

// Transition is one state change and when it actually happened.
type Transition struct {
	Index     int
	SegmentID string
	Expected  time.Duration
	Actual    time.Duration
}

// Slip is how late the transition was shown.
func (t Transition) Slip() time.Duration { return t.Actual - t.Expected }

// Report summarizes the timing of a drive.
type Report struct {
	Transitions []Transition
	MaxSlip     time.Duration
	Elapsed     time.Duration
}

// Driver replays a sequence against the wall clock.
type Driver struct {
	Tick              time.Duration
	TransitionTimeout time.Duration
	log               *zap.Logger
}

// New creates a driver.
func New(tick, transitionTimeout time.Duration, log *zap.Logger) *Driver {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	return &Driver{Tick: tick, TransitionTimeout: transitionTimeout, log: log}
}

// Drive shows every segment of seq on surface at its start offset. It polls
// the clock each tick and acts only when the elapsed time crosses into a new
// segment. A lagging surface never causes a segment to be skipped: the
// missed segments are shown in order, each held for less than its duration.
// The surface is returned to idle at the end.
func (d *Driver) Drive(ctx context.Context, seq *timeline.Sequence, surface Surface) (*Report, error) {
	report := &Report{}
	ticker := time.NewTicker(d.Tick)
	defer ticker.Stop()

	start := time.Now()
	next := 0
	for {
		target := timeline.IndexAt(seq, time.Since(start))
		for next < len(seq.Segments) && next <= target {
			st := timeline.StateOf(seq, next)
			if err := d.show(ctx, surface, st); err != nil {
				return report, err
			}
			tr := Transition{
				Index:     next,
				SegmentID: st.SegmentID,
				Expected:  seq.Segments[next].Start,
				Actual:    time.Since(start),
			}
			report.Transitions = append(report.Transitions, tr)
			if tr.Slip() > report.MaxSlip {
				report.MaxSlip = tr.Slip()
			}
			d.log.Debug("transition",
				zap.Int("index", next),
				zap.String("segment", st.SegmentID),
				zap.String("mode", string(st.Mode)),
				zap.Duration("slip", tr.Slip()),
			)
			next++
		}

		if next >= len(seq.Segments) && time.Since(start) >= seq.Total {
			break
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-ticker.C:
		}
	}

	if err := d.show(ctx, surface, timeline.Idle); err != nil {
		return report, err
	}
	report.Elapsed = time.Since(start)
	d.log.Info("drive finished",
		zap.Int("transitions", len(report.Transitions)),
		zap.Duration("max_slip", report.MaxSlip),
		zap.Duration("elapsed", report.Elapsed),
		zap.Duration("expected", seq.Total),
	)
	return report, nil
}

func (d *Driver) show(ctx context.Context, surface Surface, st timeline.VisualState) error {
	showCtx := ctx
	if d.TransitionTimeout > 0 {
		var cancel context.CancelFunc
		showCtx, cancel = context.WithTimeout(ctx, d.TransitionTimeout)
		defer cancel()
	}
	err := surface.Show(showCtx, st)
	if err == nil {
		return nil
	}
	// The caller's deadline belongs to the caller.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &SurfaceError{Index: st.Index, SegmentID: st.SegmentID, Err: err}
}
