package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/service"
	"slippi-tracker/internal/watch"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(name domain.EventName, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, domain.Event{Name: name, Data: data})
}

func (r *recorder) count(name domain.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name domain.EventName) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i].Data
		}
	}
	return nil
}

type fakeParser struct {
	mu    sync.Mutex
	live  map[string]*replay.Decoded
	full  map[string]*replay.Decoded
	calls int
}

func newFakeParser() *fakeParser {
	return &fakeParser{live: map[string]*replay.Decoded{}, full: map[string]*replay.Decoded{}}
}

func (p *fakeParser) set(path string, d *replay.Decoded) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[path] = d
	p.full[path] = d
}

func (p *fakeParser) Parse(_ context.Context, path string, mode replay.Mode) (*replay.Decoded, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	src := p.full
	if mode == replay.Live {
		src = p.live
	}
	d, ok := src[path]
	if !ok {
		return nil, fmt.Errorf("cannot decode %s", filepath.Base(path))
	}
	cp := *d
	return &cp, nil
}

type fakeFetcher struct{}

func (fakeFetcher) FetchPlayerRanks(context.Context, string) []domain.PlayerRank {
	return []domain.PlayerRank{}
}

var gameStart = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func startMillis() string {
	return strconv.FormatInt(gameStart.UnixMilli(), 10)
}

// decoded builds a replay between code1 on port 0 and code2 on port 3.
func decoded(code1, code2 string, ended bool) *replay.Decoded {
	stocks1, stocks2 := 2, 0
	pct1, pct2 := 12.5, 40.0
	d := &replay.Decoded{Replay: replay.Replay{
		Settings: &replay.Settings{StageID: 31, Players: []replay.PlayerSettings{
			{PlayerIndex: 0, CharacterID: 2, ConnectCode: code1, UserID: "u-" + code1, DisplayName: "one"},
			{PlayerIndex: 3, CharacterID: 20, ConnectCode: code2, UserID: "u-" + code2, DisplayName: "two"},
		}},
		Metadata: &replay.Metadata{StartAt: gameStart.Format(time.RFC3339)},
		LastFrame: &replay.Frame{Frame: 3600, Players: map[string]*replay.FramePlayer{
			"0": {Post: &replay.PostFrame{PlayerIndex: 0, StocksRemaining: &stocks1, Percent: &pct1}},
			"3": {Post: &replay.PostFrame{PlayerIndex: 3, StocksRemaining: &stocks2, Percent: &pct2}},
		}},
	}}
	if ended {
		d.GameEnd = &replay.GameEnd{GameEndMethod: replay.EndGame}
		d.Winners = []replay.Placement{{PlayerIndex: 0, Position: 0}}
	}
	return d
}

func newTracker(t *testing.T, parser replay.Parser) (*Tracker, *recorder) {
	t.Helper()
	cfg := &config.Config{DataDir: t.TempDir()}
	h := repository.NewHandle()
	ev := &recorder{}
	log := zerolog.Nop()

	resultsRepo := repository.NewResultRepository(h, log)
	meta := service.NewMetaService(cfg, ev, log)
	stats := service.NewStatsService(resultsRepo, cfg, log)
	tr := New(Params{
		Config:  cfg,
		Handle:  h,
		Results: service.NewResultService(resultsRepo, stats, meta, ev, cfg, log),
		Ranks:   service.NewRankService(fakeFetcher{}, repository.NewRankRepository(h, log), meta, ev, log),
		Stats:   stats,
		Meta:    meta,
		Notes:   service.NewNoteService(repository.NewNoteRepository(h, log), ev, log),
		Runs:    repository.NewIngestRunRepository(h, log),
		Parser:  parser,
		Emitter: ev,
		Logger:  log,
	})
	t.Cleanup(func() {
		tr.unwatch()
		tr.stopTicker()
		stats.Reset()
		if store := h.Detach(); store != nil {
			store.DB().Close()
		}
	})
	return tr, ev
}

// openDirect prepares a tracker driven without its loop.
func openDirect(t *testing.T, tr *Tracker, replays string, codes ...string) {
	t.Helper()
	tr.dbPath = filepath.Join(t.TempDir(), "tracker.db")
	if err := tr.openStore(tr.dbPath); err != nil {
		t.Fatalf("open store: %v", err)
	}
	tr.initialized = true
	tr.opts.PathToReplays = replays
	tr.opts.CurrentCodes = codes
}

func writeReplay(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("slp"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFinalizeOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "Game_20240301T200000.slp")
	parser := newFakeParser()
	parser.set(path, decoded("A#1", "B#2", true))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir, "A#1")

	tr.onWatchEvent(watch.Event{Op: watch.Added, Path: path, Source: dirWatcherName})
	if _, ok := tr.game.(*detectedGame); !ok {
		t.Fatalf("game = %T, want detected", tr.game)
	}
	// Both watchers report the last write of the file.
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: dirWatcherName})
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})

	if n := ev.count(domain.EventGameStart); n != 1 {
		t.Errorf("game-start events = %d, want 1", n)
	}
	if n := ev.count(domain.EventGameEnd); n != 1 {
		t.Fatalf("game-end events = %d, want 1", n)
	}
	player, _ := ev.last(domain.EventGameEnd).(*domain.PlayerGameResults)
	if player == nil || !player.YouWon || player.OpponentCode != "B#2" {
		t.Errorf("game-end result = %+v, want a win against B#2", player)
	}
	if tr.game != nil {
		t.Errorf("game = %T after end, want idle", tr.game)
	}
	total, err := tr.results.TotalMatches(context.Background(), []string{"A#1"})
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1 {
		t.Errorf("stored games = %d, want 1", total)
	}
}

func TestFinalizeOnTick(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "Game_20240301T200000.slp")
	parser := newFakeParser()
	parser.set(path, decoded("A#1", "B#2", false))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir, "A#1")

	tr.onWatchEvent(watch.Event{Op: watch.Added, Path: path, Source: dirWatcherName})
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})
	if _, ok := tr.game.(*confirmedGame); !ok {
		t.Fatalf("game = %T, want confirmed", tr.game)
	}

	parser.set(path, decoded("A#1", "B#2", true))
	for i := 0; i < constants.GameEndCheckEvery; i++ {
		tr.tick()
	}
	if n := ev.count(domain.EventGameEnd); n != 0 {
		t.Fatalf("game-end events = %d before the end check tick", n)
	}
	tr.tick()
	if n := ev.count(domain.EventGameEnd); n != 1 {
		t.Fatalf("game-end events = %d after the end check tick, want 1", n)
	}

	// Both watchers then report the terminating write.
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: dirWatcherName})
	for i := 0; i <= constants.GameEndCheckEvery; i++ {
		tr.tick()
	}

	if n := ev.count(domain.EventGameEnd); n != 1 {
		t.Errorf("game-end events = %d, want 1", n)
	}
	if n := ev.count(domain.EventGameStart); n != 1 {
		t.Errorf("game-start events = %d, want 1", n)
	}
	if tr.game != nil {
		t.Errorf("game = %T after end, want idle", tr.game)
	}
	total, err := tr.results.TotalMatches(context.Background(), []string{"A#1"})
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1 {
		t.Errorf("stored games = %d, want 1", total)
	}
}

func TestAddedFinalizesTrackedGame(t *testing.T) {
	dir := t.TempDir()
	first := writeReplay(t, dir, "first.slp")
	second := writeReplay(t, dir, "second.slp")
	parser := newFakeParser()
	parser.set(first, decoded("A#1", "B#2", false))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir, "A#1")

	tr.onWatchEvent(watch.Event{Op: watch.Added, Path: first, Source: dirWatcherName})
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: first, Source: fileWatcherName})
	if _, ok := tr.game.(*confirmedGame); !ok {
		t.Fatalf("game = %T, want confirmed", tr.game)
	}

	tr.onWatchEvent(watch.Event{Op: watch.Added, Path: second, Source: dirWatcherName})
	if n := ev.count(domain.EventGameEnd); n != 1 {
		t.Errorf("game-end events = %d, want 1", n)
	}
	// The first game never ended, so nothing was stored for it.
	if p, _ := ev.last(domain.EventGameEnd).(*domain.PlayerGameResults); p != nil {
		t.Errorf("game-end result = %+v, want nil", p)
	}
	if g, ok := tr.game.(*detectedGame); !ok || g.path != second {
		t.Errorf("game = %#v, want detected %s", tr.game, second)
	}

	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: first, Source: fileWatcherName})
	if tr.game.file() != second {
		t.Errorf("change of the previous file switched tracking to %s", tr.game.file())
	}
}

func TestPlayerPercents(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "live.slp")
	parser := newFakeParser()
	parser.set(path, decoded("A#1", "B#2", false))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir, "B#2")
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: dirWatcherName})

	tr.tick()
	got, _ := ev.last(domain.EventPlayerPercents).([]float64)
	if diff := cmp.Diff([]float64{40, 12.5}, got); diff != "" {
		t.Errorf("percents mismatch (-want +got):\n%s", diff)
	}

	tr.skipPercent = true
	tr.tick()
	if n := ev.count(domain.EventPlayerPercents); n != 1 {
		t.Errorf("percent events = %d, want 1 after disabling", n)
	}

	for i := 0; i < 20; i++ {
		tr.tick()
	}
	if n := ev.count(domain.EventGameEnd); n != 0 {
		t.Errorf("game-end events = %d for a game still running", n)
	}
}

func TestPlayerPercentsMissingPort(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "live.slp")
	parser := newFakeParser()
	d := decoded("A#1", "B#2", false)
	d.LastFrame = &replay.Frame{Frame: 10, Players: map[string]*replay.FramePlayer{
		"0": d.LastFrame.Players["0"],
		"3": {Post: &replay.PostFrame{PlayerIndex: 3}},
	}}
	parser.set(path, d)

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir, "A#1")
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: dirWatcherName})

	tr.tick()
	got, _ := ev.last(domain.EventPlayerPercents).([]float64)
	if diff := cmp.Diff([]float64{12.5, 0}, got); diff != "" {
		t.Errorf("percents mismatch (-want +got):\n%s", diff)
	}
}

func TestConfirmCode(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "unknown.slp")
	parser := newFakeParser()
	parser.set(path, decoded("X#1", "Y#2", false))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir)
	tr.opts.AutodetectCodes = true

	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})
	if n := ev.count(domain.EventUnknownCodeGameStarted); n != 1 {
		t.Fatalf("unknown-code events = %d, want 1", n)
	}
	start, _ := ev.last(domain.EventGameStart).(domain.GameStartPayload)
	if start.Result == nil || start.Result.YourCode != "X#1" {
		t.Fatalf("game-start result = %+v, want X#1 assumed", start.Result)
	}

	tr.confirmCode("Y#2", startMillis())
	confirmed, _ := ev.last(domain.EventStartedGameCodeConfirmed).(domain.GameStartPayload)
	if confirmed.Result == nil || confirmed.Result.YourCode != "Y#2" || confirmed.Result.OpponentCode != "X#1" {
		t.Fatalf("confirmed result = %+v, want Y#2 against X#1", confirmed.Result)
	}
	if diff := cmp.Diff([]string{"Y#2"}, tr.Options().CurrentCodes); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
	m := tr.meta.Get()
	if m.LastUsedCode != "Y#2" || m.DetectedUserCodes["Y#2"] != "u-Y#2" {
		t.Errorf("meta = %+v, want Y#2 recorded", m)
	}
	lg := live(tr.game)
	if lg == nil || lg.opponentIndex == nil || *lg.opponentIndex != 0 || lg.yourIndex != 1 {
		t.Errorf("live game = %+v, want opponent in slot 0", lg)
	}
}

func TestConfirmCodeStaleGame(t *testing.T) {
	dir := t.TempDir()
	path := writeReplay(t, dir, "unknown.slp")
	parser := newFakeParser()
	parser.set(path, decoded("X#1", "Y#2", false))

	tr, ev := newTracker(t, parser)
	openDirect(t, tr, dir)
	tr.onWatchEvent(watch.Event{Op: watch.Changed, Path: path, Source: fileWatcherName})

	tr.confirmCode("Y#2", "1")
	if n := ev.count(domain.EventStartedGameCodeConfirmed); n != 0 {
		t.Errorf("confirmed events = %d for another game, want 0", n)
	}
	if _, ok := tr.game.(*confirmedGame); !ok {
		t.Errorf("game = %T, want pending codes cleared", tr.game)
	}
	if len(tr.opts.CurrentCodes) != 0 {
		t.Errorf("codes = %v, want none", tr.opts.CurrentCodes)
	}
}

func TestSetOptionsValidation(t *testing.T) {
	tr, _ := newTracker(t, newFakeParser())
	if err := tr.setOptions(domain.DefaultTrackerOptions()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("uninitialized error = %v, want %v", err, ErrNotInitialized)
	}
	openDirect(t, tr, "")

	tests := []struct {
		name string
		opts domain.TrackerOptions
		want error
	}{
		{
			name: "no codes without autodetect",
			opts: domain.TrackerOptions{PathToReplays: "/replays"},
			want: ErrMissingCodes,
		},
		{
			name: "no replay path",
			opts: domain.TrackerOptions{CurrentCodes: []string{"A#1"}},
			want: ErrMissingReplayPath,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.setOptions(tt.opts); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := tr.initTracker(domain.TrackerOptions{}); err != nil {
		t.Errorf("second init = %v, want nil", err)
	}
}

func TestInitRequiresDBPath(t *testing.T) {
	tr, _ := newTracker(t, newFakeParser())
	if err := tr.initTracker(domain.TrackerOptions{}); !errors.Is(err, ErrMissingDBPath) {
		t.Errorf("error = %v, want %v", err, ErrMissingDBPath)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestParseFolder(t *testing.T) {
	dir := t.TempDir()
	parser := newFakeParser()
	parser.set(writeReplay(t, dir, "g1.slp"), decoded("A#1", "B#2", true))
	parser.set(writeReplay(t, dir, "g2.slp"), decoded("C#3", "A#1", true))
	parser.set(writeReplay(t, dir, "g3.slp"), decoded("A#1", "D#4", true))
	writeReplay(t, dir, "broken.slp")

	tr, ev := newTracker(t, parser)
	tr.Start()
	ctx := context.Background()
	t.Cleanup(func() { tr.Stop(ctx) })

	opts := domain.TrackerOptions{
		UseCPUs:             2,
		AutodetectCodes:     true,
		ProcessParallel:     true,
		PathToReplays:       dir,
		PathToDB:            filepath.Join(t.TempDir(), "tracker.db"),
		RecursivelyAllPaths: true,
		DisableLiveTracking: true,
	}
	if err := tr.InitTracker(ctx, opts); err != nil {
		t.Fatalf("init: %v", err)
	}
	waitFor(t, "parse-finish", func() bool { return ev.count(domain.EventParseFinish) == 1 })

	if n := ev.count(domain.EventParsedFile); n != 4 {
		t.Errorf("parsed-file events = %d, want 4", n)
	}
	if diff := cmp.Diff([]string{"A#1"}, tr.Codes()); diff != "" {
		t.Errorf("detected codes mismatch (-want +got):\n%s", diff)
	}
	total, err := tr.results.TotalMatches(ctx, []string{"A#1"})
	if err != nil || total != 3 {
		t.Errorf("stored games = %d (%v), want 3", total, err)
	}
	if _, ok := tr.meta.Get().FolderTimestamps[dir]; !ok {
		t.Error("replay folder has no timestamp after parsing")
	}

	runs, err := tr.runs.Recent(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v (%v), want one", runs, err)
	}
	if r := runs[0]; r.Total != 4 || r.Parsed != 4 || r.Failed != 1 || r.Cancelled || r.FinishedAt == nil {
		t.Errorf("run = %+v, want 4 parsed with 1 failure", r)
	}

	parsing, err := tr.Parsing(ctx)
	if err != nil || parsing {
		t.Errorf("parsing = %v (%v), want false", parsing, err)
	}
	codes, err := tr.GetUniqueCodes(ctx)
	if err != nil {
		t.Fatalf("unique codes: %v", err)
	}
	if diff := cmp.Diff([]ingest.Detected{{Code: "A#1", UserID: "u-A#1"}}, codes); diff != "" {
		t.Errorf("unique codes mismatch (-want +got):\n%s", diff)
	}

	summary, err := tr.ValidateSlippiFolder(dir)
	if err != nil || summary.Files != 4 {
		t.Errorf("summary = %+v (%v), want 4 files", summary, err)
	}
}

func TestHardReset(t *testing.T) {
	tr, _ := newTracker(t, newFakeParser())
	openDirect(t, tr, t.TempDir(), "A#1")
	if err := tr.meta.Update(func(m *domain.Meta) { m.LastUsedCode = "A#1" }); err != nil {
		t.Fatal(err)
	}
	dbPath := tr.dbPath

	if err := tr.hardReset(); err != nil {
		t.Fatalf("hard reset: %v", err)
	}
	for _, p := range []string{dbPath, tr.meta.Path()} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists (%v)", p, err)
		}
	}
	if tr.handle.Initialized() || tr.initialized {
		t.Error("tracker still initialized after reset")
	}
	if diff := cmp.Diff(domain.DefaultTrackerOptions(), tr.Options()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	// Writes stay suppressed until the next init.
	tr.meta.Update(func(m *domain.Meta) { m.LastUsedCode = "B#2" })
	if _, err := os.Stat(tr.meta.Path()); !os.IsNotExist(err) {
		t.Errorf("meta written after reset (%v)", err)
	}
}

func TestCommandsAfterStop(t *testing.T) {
	tr, _ := newTracker(t, newFakeParser())
	tr.Start()
	if err := tr.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := tr.CancelParsing(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("error = %v, want %v", err, ErrStopped)
	}
}
