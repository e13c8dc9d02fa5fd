// Package tracker coordinates folder ingestion and the live game. One
// goroutine owns all tracker state; commands, watcher events, parse
// completions and the game clock are serialized through it.
package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/service"
	"slippi-tracker/internal/watch"
)

var (
	ErrMissingReplayPath = errors.New("need path to replays")
	ErrMissingCodes      = errors.New("need codes or auto detect flag")
	ErrMissingDBPath     = errors.New("need path to db")
	ErrNotInitialized    = repository.ErrNotInitialized
	ErrParsing           = errors.New("cannot refresh codes while parsing")
	ErrStopped           = errors.New("tracker stopped")
)

type Params struct {
	fx.In

	Config  *config.Config
	Handle  *repository.Handle
	Results *service.ResultService
	Ranks   *service.RankService
	Stats   *service.StatsService
	Meta    *service.MetaService
	Notes   *service.NoteService
	Runs    *repository.IngestRunRepository
	Parser  replay.Parser
	Emitter domain.Emitter
	Logger  zerolog.Logger
}

type Tracker struct {
	cfg     *config.Config
	handle  *repository.Handle
	results *service.ResultService
	ranks   *service.RankService
	stats   *service.StatsService
	meta    *service.MetaService
	notes   *service.NoteService
	runs    *repository.IngestRunRepository
	parser  replay.Parser
	engine  *ingest.Engine
	emitter domain.Emitter
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmds        chan func()
	watchEvents chan watch.Event
	completions chan completionMsg
	parseDone   chan parseDoneMsg
	stop        chan struct{}
	done        chan struct{}
	started     atomic.Bool
	stopped     atomic.Bool

	published atomic.Pointer[domain.TrackerOptions]

	// Owned by the loop goroutine.
	opts          domain.TrackerOptions
	initialized   bool
	dbPath        string
	game          gameState
	lastFinalized string
	skipPercent   bool
	ticks         int
	ticker        *time.Ticker
	dirWatcher    *watch.Poller
	fileWatcher   *watch.Poller
	parse         *parseRun
	parseSeq      int
	holdParsing   bool
	detected      map[string]string
	seq           *ingest.Sequencer[domain.GameResults]
	rivals        *ingest.RivalDetector
}

func New(p Params) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		cfg:         p.Config,
		handle:      p.Handle,
		results:     p.Results,
		ranks:       p.Ranks,
		stats:       p.Stats,
		meta:        p.Meta,
		notes:       p.Notes,
		runs:        p.Runs,
		parser:      p.Parser,
		engine:      ingest.NewEngine(p.Parser, p.Emitter, p.Logger),
		emitter:     p.Emitter,
		logger:      p.Logger,
		ctx:         ctx,
		cancel:      cancel,
		cmds:        make(chan func()),
		watchEvents: make(chan watch.Event, 64),
		completions: make(chan completionMsg),
		parseDone:   make(chan parseDoneMsg),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		opts:        domain.DefaultTrackerOptions(),
		detected:    map[string]string{},
		rivals:      ingest.NewRivalDetector(),
	}
	t.seq = ingest.NewSequencer(t.onPair)
	t.publish()
	return t
}

// Start runs the coordinating goroutine.
func (t *Tracker) Start() {
	if t.started.Swap(true) {
		return
	}
	go t.loop()
}

// Stop ends the loop, stops watching and closes the database.
func (t *Tracker) Stop(ctx context.Context) error {
	if !t.started.Load() || t.stopped.Swap(true) {
		return nil
	}
	close(t.stop)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			t.shutdown()
			return
		case fn := <-t.cmds:
			fn()
		case ev := <-t.watchEvents:
			t.onWatchEvent(ev)
		case msg := <-t.completions:
			t.onCompletion(msg)
		case msg := <-t.parseDone:
			t.onParseDone(msg)
		case <-t.tickC():
			t.tick()
		}
	}
}

func (t *Tracker) shutdown() {
	t.cancel()
	if t.parse != nil {
		t.detachParse()
	}
	t.stopTicker()
	t.unwatch()
	if err := t.stats.Flush(); err != nil {
		t.logger.Warn().Err(err).Msg("failed to persist stats cache")
	}
	if store := t.handle.Detach(); store != nil {
		if err := store.DB().Close(); err != nil {
			t.logger.Warn().Err(err).Msg("error closing database connection")
		}
	}
	t.logger.Info().Msg("tracker stopped")
}

// do runs fn on the loop goroutine and waits for its result.
func (t *Tracker) do(ctx context.Context, fn func() error) error {
	if !t.started.Load() {
		return ErrStopped
	}
	errc := make(chan error, 1)
	select {
	case t.cmds <- func() { errc <- fn() }:
	case <-t.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options returns the options currently in effect.
func (t *Tracker) Options() domain.TrackerOptions {
	opts := *t.published.Load()
	opts.CurrentCodes = append([]string{}, opts.CurrentCodes...)
	return opts
}

// Codes returns the viewer's codes.
func (t *Tracker) Codes() []string {
	return t.Options().CurrentCodes
}

func (t *Tracker) publish() {
	opts := t.opts
	opts.CurrentCodes = append([]string{}, t.opts.CurrentCodes...)
	t.published.Store(&opts)
}

func (t *Tracker) tickC() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}

func (t *Tracker) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.ticks = 0
}

func (t *Tracker) parsing() bool {
	return t.parse != nil || t.holdParsing
}
