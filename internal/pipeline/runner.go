package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satindergrewal/examcast/internal/assets"
	"github.com/satindergrewal/examcast/internal/content"
	"github.com/satindergrewal/examcast/internal/driver"
	"github.com/satindergrewal/examcast/internal/ledger"
	"github.com/satindergrewal/examcast/internal/record"
	"github.com/satindergrewal/examcast/internal/speech"
	"github.com/satindergrewal/examcast/internal/surface"
	"github.com/satindergrewal/examcast/internal/syncer"
	"github.com/satindergrewal/examcast/internal/timeline"
)

// Assembler renders the master narration track.
type Assembler interface {
	Assemble(ctx context.Context, seq *timeline.Sequence, out string) error
}

// Surface is a render surface the recorder's browser can open.
type Surface interface {
	driver.Surface
	Listen(addr string) (string, error)
	WaitForClient(ctx context.Context) error
	Close() error
}

// Recorder films a page while a drive function plays the states.
type Recorder interface {
	Record(ctx context.Context, drive record.DriveFunc, expected time.Duration, out string) (string, error)
}

// Deps are the collaborators of a run. Each is constructed by the caller
// and shared by every item of a batch.
type Deps struct {
	Synth        speech.Synthesizer
	Assembler    Assembler
	Driver       *driver.Driver
	Synchronizer *syncer.Synchronizer
	NewSurface   func(surface.Payload) Surface
	NewRecorder  func(pageURL string) Recorder
	Ledger       ledger.Ledger
}

// Options control a run.
type Options struct {
	WorkDir  string
	Layout   timeline.Layout
	Engine   string // synthesis engine, part of every asset key
	AssetExt string

	// Force resynthesizes every clip and rebuilds the sequence.
	Force bool
	// ForceRecord records the video again even when it is up to date.
	ForceRecord bool

	Width  int
	Height int

	// ClientTimeout bounds the wait for the page to connect.
	ClientTimeout time.Duration

	SynthLimit       *semaphore.Weighted
	BrowserLimit     *semaphore.Weighted
	BatchConcurrency int
}

// Paths are the artifacts of one item inside the work dir.
type Paths struct {
	Dir      string
	Assets   string
	Sequence string
	Audio    string
	Video    string
	Final    string
}

// Result summarizes one item's run.
type Result struct {
	Item        string
	RunID       string
	Final       string
	Sequence    *timeline.Sequence
	Synthesized int64
	Skipped     []Stage
	Report      *driver.Report
}

// Runner executes items through the stages. Every stage checks whether its
// artifact is already current and skips itself when it is.
type Runner struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

// New creates a runner.
func New(deps Deps, opts Options, log *zap.Logger) (*Runner, error) {
	dir, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	opts.WorkDir = dir
	if opts.AssetExt == "" {
		opts.AssetExt = "mp3"
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = 30 * time.Second
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 1
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Nop{}
	}
	return &Runner{deps: deps, opts: opts, log: log}, nil
}

// ItemName is the item's name derived from its document file.
func ItemName(docPath string) string {
	return strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
}

// PathsFor lays out the artifacts of the item read from docPath.
func (r *Runner) PathsFor(docPath string) Paths {
	return ItemPaths(r.opts.WorkDir, docPath)
}

// ItemPaths lays out the artifacts of an item under workDir.
func ItemPaths(workDir, docPath string) Paths {
	name := ItemName(docPath)
	dir := filepath.Join(workDir, name)
	return Paths{
		Dir:      dir,
		Assets:   filepath.Join(dir, "assets"),
		Sequence: filepath.Join(dir, "sequence.json"),
		Audio:    filepath.Join(dir, "narration.wav"),
		Video:    filepath.Join(dir, "video.mp4"),
		Final:    filepath.Join(dir, name+".mp4"),
	}
}

// run is the state of one item's run.
type run struct {
	id      string
	item    string
	paths   Paths
	doc     *content.Document
	seq     *timeline.Sequence
	rebuilt bool
	through Stage
	result  *Result
}

// Run takes the item at docPath through the stages up to and including
// through. The item's directory is locked for the duration.
func (r *Runner) Run(ctx context.Context, docPath string, through Stage) (*Result, error) {
	if through.index() < 0 {
		return nil, fmt.Errorf("unknown stage %q", through)
	}
	paths := r.PathsFor(docPath)
	lock, err := assets.Acquire(paths.Dir)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Item: ItemName(docPath), Err: err}
	}
	defer lock.Release()

	rn := &run{
		id:      uuid.NewString(),
		item:    ItemName(docPath),
		paths:   paths,
		through: through,
	}
	rn.result = &Result{Item: rn.item, RunID: rn.id}
	log := r.log.With(zap.String("item", rn.item), zap.String("run", rn.id))
	log.Info("run started", zap.String("document", docPath), zap.String("through", string(through)))

	steps := []struct {
		stage Stage
		fn    func(context.Context, *run, *zap.Logger) (bool, error)
	}{
		{StageLoad, func(ctx context.Context, rn *run, _ *zap.Logger) (bool, error) {
			doc, err := content.LoadFile(docPath)
			if err != nil {
				return false, &StageError{Stage: StageLoad, Item: rn.item, Err: err}
			}
			rn.doc = doc
			return false, nil
		}},
		{StageBuild, r.sequence},
		{StageAssemble, r.assemble},
		{StageRecord, r.record},
		{StageSync, r.sync},
	}
	last := through
	if last == StageResolve {
		last = StageBuild
	}
	for _, step := range steps {
		if step.stage.index() > last.index() {
			break
		}
		// resolve and build share the sequence checkpoint
		if step.stage == StageBuild && through == StageResolve {
			step.stage = StageResolve
		}
		start := time.Now()
		skipped, err := step.fn(ctx, rn, log)
		r.note(ctx, rn, step.stage, start, skipped, err)
		if err != nil {
			log.Error("stage failed", zap.String("stage", string(step.stage)), zap.Error(err))
			return rn.result, err
		}
	}
	rn.result.Sequence = rn.seq
	log.Info("run finished",
		zap.String("final", rn.result.Final),
		zap.Int64("synthesized", rn.result.Synthesized),
		zap.Int("skipped", len(rn.result.Skipped)),
	)
	return rn.result, nil
}

func (r *Runner) note(ctx context.Context, rn *run, stage Stage, start time.Time, skipped bool, err error) {
	e := ledger.Entry{
		RunID:     rn.id,
		Item:      rn.item,
		Stage:     string(stage),
		Status:    ledger.StatusOK,
		Started:   start.UTC(),
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		e.Status = ledger.StatusFailed
		e.Error = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			e.Details = map[string]string{"retryable": fmt.Sprint(se.Retryable())}
		}
	case skipped:
		e.Status = ledger.StatusSkipped
		rn.result.Skipped = append(rn.result.Skipped, stage)
	}
	if lerr := r.deps.Ledger.Record(ctx, e); lerr != nil {
		r.log.Warn("ledger write failed", zap.Error(lerr))
	}
}

// sequence resolves every item and builds the Audio Sequence, unless the
// sequence on disk was built from the same inputs and all its clips exist.
func (r *Runner) sequence(ctx context.Context, rn *run, log *zap.Logger) (bool, error) {
	layout := r.opts.Layout.ForTeil(rn.doc.Info.Teil)
	items := timeline.Items(rn.doc, layout)
	fp := timeline.Fingerprint(items, layout)

	old, oldErr := timeline.Load(rn.paths.Sequence)
	if oldErr == nil && !r.opts.Force && old.Fingerprint == fp && assetsPresent(old) {
		log.Info("sequence up to date", zap.Duration("total", old.Total), zap.Int("segments", len(old.Segments)))
		rn.seq = old
		return true, nil
	}
	if oldErr != nil && !errors.Is(oldErr, os.ErrNotExist) {
		log.Warn("discarding unreadable sequence", zap.Error(oldErr))
	}

	voices, err := content.AssignVoices(rn.doc, items, layout.Voices)
	if err != nil {
		return false, &StageError{Stage: StageResolve, Item: rn.item, Err: err}
	}
	store, err := assets.Open(rn.paths.Assets, r.opts.AssetExt)
	if err != nil {
		return false, &StageError{Stage: StageResolve, Item: rn.item, Err: err}
	}
	resolver := speech.NewResolver(r.deps.Synth, store, layout, r.opts.Engine, r.opts.SynthLimit, log)
	resolver.Force = r.opts.Force
	resolved, err := resolver.ResolveAll(ctx, items, voices)
	rn.result.Synthesized = resolver.Calls()
	if err != nil {
		return false, &StageError{Stage: StageResolve, Item: rn.item, Err: err}
	}
	if rn.through == StageResolve {
		log.Info("resolved", zap.Int("items", len(resolved)), zap.Int64("synthesized", resolver.Calls()))
		return false, nil
	}

	seq, err := timeline.Build(items, layout, resolved)
	if err != nil {
		return false, &StageError{Stage: StageBuild, Item: rn.item, Err: err}
	}
	data, err := timeline.Marshal(seq)
	if err != nil {
		return false, &StageError{Stage: StageBuild, Item: rn.item, Err: err}
	}

	// A byte-identical rebuild keeps the downstream artifacts valid.
	if prev, err := os.ReadFile(rn.paths.Sequence); err == nil && bytes.Equal(prev, data) {
		log.Info("sequence rebuilt unchanged", zap.Int64("synthesized", resolver.Calls()))
		rn.seq = seq
		return false, nil
	}

	// Start times shift on any change, so audio and video built from the
	// previous sequence are stale.
	for _, p := range []string{rn.paths.Audio, rn.paths.Video, rn.paths.Final} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, &StageError{Stage: StageBuild, Item: rn.item, Err: err}
		}
	}
	if err := timeline.Save(rn.paths.Sequence, seq); err != nil {
		return false, &StageError{Stage: StageBuild, Item: rn.item, Err: err}
	}
	rn.seq = seq
	rn.rebuilt = true
	log.Info("sequence built",
		zap.Duration("total", seq.Total),
		zap.Int("segments", len(seq.Segments)),
		zap.Int64("synthesized", resolver.Calls()),
	)
	return false, nil
}

func assetsPresent(seq *timeline.Sequence) bool {
	for _, s := range seq.Segments {
		if s.Asset == "" {
			continue
		}
		if _, err := os.Stat(s.Asset); err != nil {
			return false
		}
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (r *Runner) assemble(ctx context.Context, rn *run, log *zap.Logger) (bool, error) {
	if !rn.rebuilt && !r.opts.Force && exists(rn.paths.Audio) {
		log.Info("master track up to date", zap.String("path", rn.paths.Audio))
		return true, nil
	}
	if err := r.deps.Assembler.Assemble(ctx, rn.seq, rn.paths.Audio); err != nil {
		return false, &StageError{Stage: StageAssemble, Item: rn.item, Err: err}
	}
	return false, nil
}

func (r *Runner) record(ctx context.Context, rn *run, log *zap.Logger) (bool, error) {
	if !rn.rebuilt && !r.opts.Force && !r.opts.ForceRecord && exists(rn.paths.Video) {
		log.Info("video up to date", zap.String("path", rn.paths.Video))
		return true, nil
	}
	fail := func(err error) (bool, error) {
		return false, &StageError{Stage: StageRecord, Item: rn.item, Err: err}
	}

	if r.opts.BrowserLimit != nil {
		if err := r.opts.BrowserLimit.Acquire(ctx, 1); err != nil {
			return fail(err)
		}
		defer r.opts.BrowserLimit.Release(1)
	}

	srv := r.deps.NewSurface(surface.Payload{
		Document: rn.doc,
		Sequence: rn.seq,
		Width:    r.opts.Width,
		Height:   r.opts.Height,
	})
	url, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		return fail(&record.SurfaceError{Err: err})
	}
	defer srv.Close()

	drive := func(ctx context.Context, start func()) error {
		wctx, cancel := context.WithTimeout(ctx, r.opts.ClientTimeout)
		defer cancel()
		if err := srv.WaitForClient(wctx); err != nil {
			return fmt.Errorf("wait for page: %w", err)
		}
		start()
		report, err := r.deps.Driver.Drive(ctx, rn.seq, srv)
		rn.result.Report = report
		return err
	}
	if _, err := r.deps.NewRecorder(url).Record(ctx, drive, rn.seq.Total, rn.paths.Video); err != nil {
		return fail(err)
	}
	return false, nil
}

func (r *Runner) sync(ctx context.Context, rn *run, log *zap.Logger) (bool, error) {
	out, err := r.deps.Synchronizer.Synchronize(ctx, rn.paths.Audio, rn.paths.Video, rn.seq, rn.paths.Final)
	if err != nil {
		return false, &StageError{Stage: StageSync, Item: rn.item, Err: err}
	}
	rn.result.Final = out
	return false, nil
}
