package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/repository"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanDuplicates(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "Game_1.slp"))
	touch(t, filepath.Join(root, "b", "Game_1.slp"))
	touch(t, filepath.Join(root, "b", "Game_2.slp"))
	touch(t, filepath.Join(root, "b", "notes.txt"))

	res, err := Scan(root, true, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{filepath.Join(root, "a", "Game_1.slp"), filepath.Join(root, "b", "Game_2.slp")}
	if diff := cmp.Diff(want, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "b", "Game_1.slp")}, res.Duplicates); diff != "" {
		t.Errorf("duplicates mismatch (-want +got):\n%s", diff)
	}
	if len(res.Folders) != 3 {
		t.Errorf("folders = %d, want 3", len(res.Folders))
	}
}

func TestScanWatermarks(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "old", "Game_1.slp"))
	touch(t, filepath.Join(root, "new", "Game_2.slp"))
	future := time.Now().Add(time.Hour).UnixMilli()

	res, err := Scan(root, true, map[string]int64{
		root:                       future,
		filepath.Join(root, "old"): future,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "new", "Game_2.slp")}, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	flat, err := Scan(root, false, map[string]int64{root: future})
	if err != nil {
		t.Fatalf("flat scan: %v", err)
	}
	if len(flat.Folders) != 0 || len(flat.Files) != 0 {
		t.Errorf("flat scan = %+v, want nothing", flat)
	}

	if _, err := Scan(filepath.Join(root, "missing"), true, nil); !errors.Is(err, ErrFolderNotFound) {
		t.Errorf("missing folder err = %v, want ErrFolderNotFound", err)
	}
}

func TestSequencerOrder(t *testing.T) {
	var pairs [][2]int
	seq := NewSequencer(func(prev, cur *int) {
		pairs = append(pairs, [2]int{*prev, *cur})
	})
	for _, i := range []int{3, 1, 2, 0} {
		v := i
		seq.Deliver(i, &v)
	}
	if diff := cmp.Diff([][2]int{{0, 1}, {1, 2}, {2, 3}}, pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
	if seq.Pending() != 0 {
		t.Errorf("pending = %d, want 0", seq.Pending())
	}
}

func TestSequencerSkipsMissing(t *testing.T) {
	var pairs [][2]int
	seq := NewSequencer(func(prev, cur *int) {
		pairs = append(pairs, [2]int{*prev, *cur})
	})
	zero, two, three := 0, 2, 3
	seq.Deliver(2, &two)
	seq.Deliver(1, nil)
	seq.Deliver(0, &zero)
	seq.Append(&three)
	if diff := cmp.Diff([][2]int{{2, 3}}, pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}

	seq.Reset()
	pairs = nil
	seq.Deliver(0, &zero)
	seq.Deliver(1, &two)
	if diff := cmp.Diff([][2]int{{0, 2}}, pairs); diff != "" {
		t.Errorf("after reset (-want +got):\n%s", diff)
	}
}

func TestRivalDetector(t *testing.T) {
	d := NewRivalDetector()
	games := []repository.CodePair{
		{Player1Code: "A#1", Player2Code: "B#2", Player2UserID: "uB"},
		{Player1Code: "b#2", Player2Code: "C#3"},
		{Player1Code: "B#2", Player2Code: "D#4"},
		{Player1Code: "E#5", Player2Code: "F#6"},
	}
	for i := 1; i < len(games); i++ {
		d.Observe(games[i-1], games[i])
	}
	want := []Detected{{Code: "B#2", UserID: "uB"}}
	if diff := cmp.Diff(want, d.Found()); diff != "" {
		t.Errorf("detected mismatch (-want +got):\n%s", diff)
	}

	d.Reset()
	if len(d.Found()) != 0 {
		t.Errorf("found after reset = %v", d.Found())
	}
}

type fakeParser struct {
	mu    sync.Mutex
	calls int
}

func (p *fakeParser) Parse(_ context.Context, path string, _ replay.Mode) (*replay.Decoded, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if filepath.Base(path) == "broken.slp" {
		return nil, errors.New("corrupt replay")
	}
	return &replay.Decoded{Replay: replay.Replay{
		Settings: &replay.Settings{Players: []replay.PlayerSettings{
			{PlayerIndex: 0, ConnectCode: "A#1"},
			{PlayerIndex: 1, ConnectCode: "B#2"},
		}},
		Metadata: &replay.Metadata{StartAt: "2024-01-01T00:00:00Z"},
	}}, nil
}

func TestEngineRun(t *testing.T) {
	files := []string{"/r/1.slp", "/r/2.slp", "/r/broken.slp", "/r/4.slp", "/r/5.slp"}
	for _, opts := range []Options{{Parallel: false}, {Parallel: true, Workers: 3}} {
		var freed int
		var mu sync.Mutex
		emitter := domain.EmitterFunc(func(name domain.EventName, _ any) {
			if name == domain.EventFreedWorker {
				mu.Lock()
				freed++
				mu.Unlock()
			}
		})
		engine := NewEngine(&fakeParser{}, emitter, zerolog.Nop())

		var indexes []int
		var failed []string
		n, err := engine.Run(context.Background(), files, opts, func(c Completion) {
			indexes = append(indexes, c.Index)
			if c.Err != nil {
				failed = append(failed, c.Path)
				return
			}
			if c.Result == nil || c.Result.SlpFile != filepath.Base(c.Path) {
				t.Errorf("completion %d: result = %+v", c.Index, c.Result)
			}
		})
		if err != nil || n != len(files) {
			t.Fatalf("parallel=%v: n = %d, err = %v", opts.Parallel, n, err)
		}
		slices.Sort(indexes)
		if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, indexes); diff != "" {
			t.Errorf("parallel=%v indexes (-want +got):\n%s", opts.Parallel, diff)
		}
		if diff := cmp.Diff([]string{"/r/broken.slp"}, failed); diff != "" {
			t.Errorf("parallel=%v failed (-want +got):\n%s", opts.Parallel, diff)
		}
		wantFreed := 0
		if opts.Parallel {
			wantFreed = len(files)
		}
		if freed != wantFreed {
			t.Errorf("parallel=%v freed-worker = %d, want %d", opts.Parallel, freed, wantFreed)
		}
	}
}

func TestEngineCancelled(t *testing.T) {
	parser := &fakeParser{}
	engine := NewEngine(parser, domain.EmitterFunc(func(domain.EventName, any) {}), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	files := []string{"/r/1.slp", "/r/2.slp", "/r/3.slp"}
	n, err := engine.Run(ctx, files, Options{}, func(c Completion) {
		if c.Index == 0 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Errorf("n = %d, err = %v; want 1, context.Canceled", n, err)
	}
	if parser.calls != 1 {
		t.Errorf("parser calls = %d, want 1", parser.calls)
	}
}

// gatedParser blocks every parse until release is closed.
type gatedParser struct {
	fakeParser
	started chan string
	release chan struct{}
}

func (p *gatedParser) Parse(ctx context.Context, path string, mode replay.Mode) (*replay.Decoded, error) {
	p.started <- path
	<-p.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fakeParser.Parse(ctx, path, mode)
}

func TestEngineCancelledParallel(t *testing.T) {
	const workers = 2
	parser := &gatedParser{started: make(chan string, 16), release: make(chan struct{})}
	engine := NewEngine(parser, domain.EmitterFunc(func(domain.EventName, any) {}), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files := []string{"/r/1.slp", "/r/2.slp", "/r/3.slp", "/r/4.slp", "/r/5.slp", "/r/6.slp", "/r/7.slp", "/r/8.slp"}
	type outcome struct {
		n       int
		err     error
		applied []Completion
	}
	result := make(chan outcome, 1)
	go func() {
		var applied []Completion
		n, err := engine.Run(ctx, files, Options{Parallel: true, Workers: workers}, func(c Completion) {
			applied = append(applied, c)
		})
		result <- outcome{n, err, applied}
	}()

	inFlight := map[string]bool{}
	for len(inFlight) < workers {
		select {
		case path := <-parser.started:
			inFlight[path] = true
		case <-time.After(5 * time.Second):
			t.Fatal("workers never started")
		}
	}
	cancel()
	close(parser.release)

	var got outcome
	select {
	case got = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if !errors.Is(got.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", got.err)
	}
	if got.n != len(got.applied) || got.n >= len(files) {
		t.Errorf("applied %d (n = %d) of %d files", len(got.applied), got.n, len(files))
	}
	parser.mu.Lock()
	calls := parser.calls
	parser.mu.Unlock()
	if calls != got.n {
		t.Errorf("parser finished %d files, applied %d", calls, got.n)
	}
	for _, c := range got.applied {
		if c.Err != nil || c.Result == nil {
			t.Errorf("completion %s: err = %v, want a parsed result", c.Path, c.Err)
		}
		delete(inFlight, c.Path)
	}
	if len(inFlight) != 0 {
		t.Errorf("files in flight at cancel were not applied: %v", inFlight)
	}
}
