package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/satindergrewal/examcast/internal/assets"
	"github.com/satindergrewal/examcast/internal/content"
	"github.com/satindergrewal/examcast/internal/timeline"
)

// Resolver determines how long each content item plays.
type Resolver struct {
	synth  Synthesizer
	store  *assets.Store
	layout timeline.Layout
	engine string
	limit  *semaphore.Weighted
	log    *zap.Logger

	// Force resynthesizes clips that already exist in the store.
	Force bool

	calls atomic.Int64
}

// NewResolver creates a resolver. limit gates concurrent synthesis calls and
// may be shared between resolvers of different items; nil means unlimited.
func NewResolver(synth Synthesizer, store *assets.Store, layout timeline.Layout, engine string, limit *semaphore.Weighted, log *zap.Logger) *Resolver {
	return &Resolver{
		synth:  synth,
		store:  store,
		layout: layout,
		engine: engine,
		limit:  limit,
		log:    log,
	}
}

// Calls is the number of synthesis requests made so far.
func (r *Resolver) Calls() int64 { return r.calls.Load() }

// Resolve returns the duration of one item. Spoken items are measured from
// their synthesized clip; intro and outro come from the layout; items with
// no text are zero-length.
func (r *Resolver) Resolve(ctx context.Context, item content.Item, voice string) (timeline.Resolved, error) {
	if d, asset, ok := r.layout.FixedDuration(item.Kind()); ok {
		if asset != "" {
			if _, err := os.Stat(asset); err != nil {
				return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: fmt.Errorf("fixed asset: %w", err)}
			}
		}
		return timeline.Resolved{Duration: d, Asset: asset}, nil
	}

	text := item.Speech()
	if text == "" {
		r.log.Debug("item has no text, zero duration", zap.String("item", item.ID()))
		return timeline.Resolved{}, nil
	}

	v := Voice{Name: voice, Engine: r.engine}
	key := assets.Key(item.ID(), text, v.Name, v.Engine)

	if !r.Force {
		e, ok, err := r.store.Lookup(key)
		if err != nil {
			return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: err}
		}
		if ok {
			r.log.Debug("reusing clip", zap.String("item", item.ID()), zap.String("key", key), zap.Duration("duration", e.Duration))
			return timeline.Resolved{Duration: e.Duration, Asset: e.Path}, nil
		}
	}

	if r.limit != nil {
		if err := r.limit.Acquire(ctx, 1); err != nil {
			return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: err}
		}
		defer r.limit.Release(1)
	}

	tmp, err := r.store.TempPath(key)
	if err != nil {
		return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: err}
	}
	defer os.Remove(tmp)

	start := time.Now()
	r.calls.Add(1)
	clip, err := r.synth.Synthesize(ctx, text, v, tmp)
	if err != nil {
		return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: err}
	}
	if clip.Duration <= 0 {
		return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: errors.New("synthesizer returned no measured duration")}
	}

	e, err := r.store.Commit(key, clip.Path, clip.Duration)
	if err != nil {
		return timeline.Resolved{}, &ResolutionError{ItemID: item.ID(), Err: err}
	}
	r.log.Info("synthesized",
		zap.String("item", item.ID()),
		zap.String("voice", v.Name),
		zap.Duration("duration", e.Duration),
		zap.Duration("took", time.Since(start)),
	)
	return timeline.Resolved{Duration: e.Duration, Asset: e.Path}, nil
}

// ResolveAll resolves every item concurrently. The first failure cancels the
// rest; clips committed before that stay in the store.
func (r *Resolver) ResolveAll(ctx context.Context, items []content.Item, voices map[string]string) (map[string]timeline.Resolved, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	out := make(map[string]timeline.Resolved, len(items))

	for _, it := range items {
		g.Go(func() error {
			res, err := r.Resolve(ctx, it, voices[it.ID()])
			if err != nil {
				return err
			}
			mu.Lock()
			out[it.ID()] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
