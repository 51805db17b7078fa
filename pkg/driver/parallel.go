package driver

import (
	"bytes"
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"lynx/pkg/config"
)

// Result is the outcome of one unit run by RunAll.
type Result struct {
	Path string
	// Value is the inspected completion value, empty when it is undefined.
	Value  string
	Stdout []byte
	Stderr []byte
	Err    error
}

// RunAll executes each unit in paths on its own session, at most jobs at a
// time (GOMAXPROCS when jobs <= 0). Units share nothing, so their output is
// buffered per unit and returned in input order. Script failures are
// reported in Result.Err; the returned error is only set when ctx ends the
// run early.
func RunAll(ctx context.Context, cfg *config.Config, paths []string, jobs int, argv []string) ([]Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = runOne(cfg, path, argv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runOne executes path on a fresh session attached to the calling goroutine.
func runOne(cfg *config.Config, path string, argv []string) (res Result) {
	var stdout, stderr bytes.Buffer
	res.Path = path
	defer func() {
		res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
	}()

	l, err := NewLynxWithConfig(cfg, &stdout, &stderr, argv)
	if err != nil {
		res.Err = err
		return res
	}
	if err := l.Attach(); err != nil {
		res.Err = err
		return res
	}
	defer l.Close()

	v, err := l.RunFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	if !v.IsUndefined() {
		res.Value = l.Runtime().Inspect(v)
	}
	log.Debugf("%s finished", path)
	return res
}
