// Package watch reports files added to or changed under a path by polling
// their size and modification time.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Op int

const (
	Added Op = iota
	Changed
)

func (o Op) String() string {
	if o == Added {
		return "added"
	}
	return "changed"
}

type Event struct {
	Op   Op
	Path string
	// Source names the poller that saw the event.
	Source string
}

type stamp struct {
	size    int64
	modTime time.Time
}

// Poller watches a single file or every file below a directory. Files
// present when it starts are not reported.
type Poller struct {
	name     string
	path     string
	interval time.Duration
	out      chan<- Event
	logger   zerolog.Logger

	files   map[string]stamp
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewPoller(name, path string, interval time.Duration, out chan<- Event, logger zerolog.Logger) *Poller {
	return &Poller{
		name:     name,
		path:     path,
		interval: interval,
		out:      out,
		logger:   logger.With().Str("watcher", name).Logger(),
		files:    map[string]stamp{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Poller) Path() string { return p.path }

// Start records the current files and begins polling.
func (p *Poller) Start() {
	p.files = p.snapshot()
	p.started = true
	p.logger.Info().Str("path", p.path).Dur("interval", p.interval).Msg("watching")
	go p.loop()
}

// Stop ends polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.once.Do(func() {
		close(p.stop)
		if p.started {
			<-p.done
		}
		p.logger.Debug().Str("path", p.path).Msg("stopped watching")
	})
}

func (p *Poller) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for _, ev := range p.Poll() {
				select {
				case p.out <- ev:
				case <-p.stop:
					return
				}
			}
		}
	}
}

// Poll compares the files on disk with the previous poll.
func (p *Poller) Poll() []Event {
	current := p.snapshot()
	var events []Event
	for path, st := range current {
		prev, ok := p.files[path]
		switch {
		case !ok:
			events = append(events, Event{Op: Added, Path: path, Source: p.name})
		case prev != st:
			events = append(events, Event{Op: Changed, Path: path, Source: p.name})
		}
	}
	p.files = current
	return events
}

func (p *Poller) snapshot() map[string]stamp {
	out := map[string]stamp{}
	info, err := os.Stat(p.path)
	if err != nil {
		return out
	}
	if !info.IsDir() {
		out[p.path] = stamp{size: info.Size(), modTime: info.ModTime()}
		return out
	}
	filepath.WalkDir(p.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = stamp{size: fi.Size(), modTime: fi.ModTime()}
		return nil
	})
	return out
}
