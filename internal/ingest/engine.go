package ingest

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/transform"
)

// Completion is the outcome of parsing one file.
type Completion struct {
	Index   int
	Path    string
	Result  *domain.GameResults
	Stats   json.RawMessage
	Decoded *replay.Decoded
	Err     error
}

type Options struct {
	Parallel bool
	Workers  int
}

type Engine struct {
	parser  replay.Parser
	emitter domain.Emitter
	logger  zerolog.Logger
}

func NewEngine(parser replay.Parser, emitter domain.Emitter, logger zerolog.Logger) *Engine {
	return &Engine{
		parser:  parser,
		emitter: emitter,
		logger:  logger,
	}
}

// Run parses files and hands every completion to apply from a single
// goroutine. Cancelling ctx stops dispatching; files already handed to a
// worker still complete and are applied. It returns the number of
// completions applied and ctx's error when the run was cut short.
func (e *Engine) Run(ctx context.Context, files []string, opts Options, apply func(Completion)) (int, error) {
	if !opts.Parallel || opts.Workers < 2 {
		return e.runSequential(ctx, files, apply)
	}
	return e.runParallel(ctx, files, opts.Workers, apply)
}

func (e *Engine) runSequential(ctx context.Context, files []string, apply func(Completion)) (int, error) {
	parseCtx := context.WithoutCancel(ctx)
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		apply(e.parse(parseCtx, i, path))
	}
	return len(files), nil
}

type job struct {
	index int
	path  string
}

func (e *Engine) runParallel(ctx context.Context, files []string, workers int, apply func(Completion)) (int, error) {
	jobs := make(chan job, workers)
	done := make(chan Completion, workers)
	parseCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for i, path := range files {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- job{index: i, path: path}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	var pool errgroup.Group
	for w := 0; w < workers; w++ {
		worker := w
		pool.Go(func() error {
			for j := range jobs {
				done <- e.parse(parseCtx, j.index, j.path)
				e.emitter.Emit(domain.EventFreedWorker, worker)
			}
			return nil
		})
	}
	go func() {
		pool.Wait()
		close(done)
	}()

	applied := 0
	for c := range done {
		apply(c)
		applied++
	}
	g.Wait()

	e.logger.Debug().Int("workers", workers).Int("applied", applied).Int("files", len(files)).Msg("parallel parse finished")
	if applied < len(files) {
		return applied, ctx.Err()
	}
	return applied, nil
}

func (e *Engine) parse(ctx context.Context, index int, path string) Completion {
	c := Completion{Index: index, Path: path}
	start := time.Now()
	decoded, err := e.parser.Parse(ctx, path, replay.Full)
	if err != nil {
		c.Err = err
		return c
	}
	c.Decoded = decoded

	fallback := start
	if info, err := os.Stat(path); err == nil {
		fallback = info.ModTime()
	}
	game, err := transform.FromReplay(&decoded.Replay, path, fallback)
	if err != nil {
		c.Err = err
		return c
	}
	c.Result = &game
	c.Stats = decoded.Stats
	e.logger.Debug().Str("path", path).Dur("took", time.Since(start)).Msg("replay parsed")
	return c
}
