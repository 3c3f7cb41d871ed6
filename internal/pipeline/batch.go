package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Discover returns the documents named by path: the file itself, or every
// .json file directly inside a directory, sorted by name.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no documents in %s", path)
	}
	return matches, nil
}

// RunBatch runs every document through the stages, several at a time.
// Items share no state, so one item's failure does not stop the others;
// all failures are returned joined.
func (r *Runner) RunBatch(ctx context.Context, docs []string, through Stage) ([]*Result, error) {
	results := make([]*Result, len(docs))
	errs := make([]error, len(docs))

	var g errgroup.Group
	g.SetLimit(r.opts.BatchConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i], errs[i] = r.Run(ctx, doc, through)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	r.log.Info("batch finished", zap.Int("items", len(docs)), zap.Int("failed", failed))
	return results, errors.Join(errs...)
}
