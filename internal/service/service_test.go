package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/database"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/rowstore"
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

func newHandle(t *testing.T) *repository.Handle {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tracker.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := rowstore.New(db, repository.Schema, zerolog.Nop())
	if err := store.InitTables(context.Background()); err != nil {
		t.Fatalf("init tables: %v", err)
	}
	h := repository.NewHandle()
	h.Attach(store)
	return h
}

type fixture struct {
	cfg     *config.Config
	handle  *repository.Handle
	events  *recorder
	meta    *MetaService
	stats   *StatsService
	results *ResultService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{DataDir: t.TempDir()}
	h := newHandle(t)
	ev := &recorder{}
	repo := repository.NewResultRepository(h, zerolog.Nop())
	meta := NewMetaService(cfg, ev, zerolog.Nop())
	stats := NewStatsService(repo, cfg, zerolog.Nop())
	t.Cleanup(stats.Reset)
	return &fixture{
		cfg:     cfg,
		handle:  h,
		events:  ev,
		meta:    meta,
		stats:   stats,
		results: NewResultService(repo, stats, meta, ev, cfg, zerolog.Nop()),
	}
}

func game(file, start, code1, code2 string, char1, char2, stage int, player1Won bool) *domain.GameResults {
	return &domain.GameResults{
		Results: domain.Results{
			MatchID:     "match-" + file,
			SlpFile:     file,
			SlpFilePath: "/replays/" + file,
			StartAt:     start,
			StageID:     stage,
		},
		Player1Code:      code1,
		Player2Code:      code2,
		Player1Character: char1,
		Player2Character: char2,
		Player1Won:       player1Won,
		Player2Won:       !player1Won,
	}
}

func persistAll(t *testing.T, f *fixture, codes []string, games ...*domain.GameResults) {
	t.Helper()
	for _, g := range games {
		if _, err := f.results.Persist(context.Background(), g, nil, codes); err != nil {
			t.Fatalf("persist %s: %v", g.SlpFile, err)
		}
	}
}

func TestCharacterStats(t *testing.T) {
	f := newFixture(t)
	codes := []string{"A#1"}
	persistAll(t, f, codes,
		game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true),
		game("g2.slp", "2", "C#3", "A#1", 9, 2, 32, false),
		game("g3.slp", "3", "A#1", "B#2", 2, 20, 31, false),
		game("g4.slp", "4", "B#2", "A#1", 2, 9, 8, true),
	)

	got, err := f.stats.CharacterStats(context.Background(), codes, 2)
	if err != nil {
		t.Fatalf("character stats: %v", err)
	}
	want := &domain.CharacterStats{
		BaseCharacterStats: domain.BaseCharacterStats{
			TimesPlayedAs:      3,
			TimesWonAs:         2,
			TimesLostAs:        1,
			TimesPlayedAgainst: 1,
			TimesLostAgainst:   1,
		},
		ByStage: map[string]*domain.ByStageStats{
			"31": {TimesWonAs: 1, TimesLostAs: 1, TimesPlayedAs: 2, ByCharacter: map[string]*domain.ByCharacterStats{
				"20": {TimesWonAgainst: 1, TimesLostAgainst: 1, TimesPlayedAgainst: 2},
			}},
			"32": {TimesWonAs: 1, TimesPlayedAs: 1, ByCharacter: map[string]*domain.ByCharacterStats{
				"9": {TimesWonAgainst: 1, TimesPlayedAgainst: 1},
			}},
		},
		ByCharacter: map[string]*domain.ByCharacterStats{
			"20": {TimesWonAgainst: 1, TimesLostAgainst: 1, TimesPlayedAgainst: 2},
			"9":  {TimesWonAgainst: 1, TimesPlayedAgainst: 1},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStatsInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	codes := []string{"A#1"}
	persistAll(t, f, codes,
		game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true),
		game("g2.slp", "2", "A#1", "B#2", 9, 20, 31, true),
	)

	for _, id := range []int{2, 9} {
		if _, err := f.stats.CharacterStats(ctx, codes, id); err != nil {
			t.Fatalf("stats %d: %v", id, err)
		}
	}

	persistAll(t, f, codes, game("g3.slp", "3", "A#1", "B#2", 2, 20, 31, false))

	f.stats.mu.Lock()
	_, has2 := f.stats.cache.Data[2]
	_, has9 := f.stats.cache.Data[9]
	f.stats.mu.Unlock()
	if has2 || !has9 {
		t.Fatalf("cache after persist: has 2 = %v, has 9 = %v; want false, true", has2, has9)
	}

	got, err := f.stats.CharacterStats(ctx, codes, 2)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got.TimesPlayedAs != 2 {
		t.Errorf("timesPlayedAs = %d, want 2", got.TimesPlayedAs)
	}

	if _, err := f.stats.CharacterStats(ctx, []string{"B#2"}, 20); err != nil {
		t.Fatalf("stats as B#2: %v", err)
	}
	f.stats.mu.Lock()
	defer f.stats.mu.Unlock()
	if len(f.stats.cache.Data) != 1 {
		t.Errorf("cache entries after code change = %d, want 1", len(f.stats.cache.Data))
	}
	if diff := cmp.Diff([]string{"B#2"}, f.stats.cache.CachedAsCodes); diff != "" {
		t.Errorf("cached codes mismatch (-want +got):\n%s", diff)
	}
}

func TestStatsInvalidationOpponentCharacter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	codes := []string{"A#1"}
	persistAll(t, f, codes, game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true))

	before, err := f.stats.CharacterStats(ctx, codes, 20)
	if err != nil {
		t.Fatalf("stats 20: %v", err)
	}
	if before.TimesPlayedAgainst != 1 {
		t.Fatalf("timesPlayedAgainst = %d, want 1", before.TimesPlayedAgainst)
	}

	persistAll(t, f, codes, game("g2.slp", "2", "A#1", "B#2", 2, 20, 31, true))

	f.stats.mu.Lock()
	_, cached := f.stats.cache.Data[20]
	f.stats.mu.Unlock()
	if cached {
		t.Errorf("entry for the opponent character survived a new game against it")
	}
	after, err := f.stats.CharacterStats(ctx, codes, 20)
	if err != nil {
		t.Fatalf("stats 20: %v", err)
	}
	if after.TimesPlayedAgainst != 2 {
		t.Errorf("timesPlayedAgainst = %d, want 2", after.TimesPlayedAgainst)
	}
}

func TestStatsCachePersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	codes := []string{"A#1"}
	persistAll(t, f, codes, game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true))

	want, err := f.stats.CharacterStats(ctx, codes, 2)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if err := f.stats.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := NewStatsService(nil, f.cfg, zerolog.Nop())
	reloaded.Load()
	got, err := reloaded.CharacterStats(ctx, codes, 2)
	if err != nil {
		t.Fatalf("cached stats: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reloaded mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistFinish(t *testing.T) {
	f := newFixture(t)
	codes := []string{"A#1"}
	persistAll(t, f, codes,
		game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true),
		game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true),
	)
	if n := f.events.count(domain.EventPersistFinish); n != 2 {
		t.Errorf("persist-finish emitted %d times, want 2", n)
	}
	total, err := f.results.TotalMatches(context.Background(), codes)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestPersistElo(t *testing.T) {
	opp := 1500.0
	tests := []struct {
		name        string
		player      *domain.PlayerGameResults
		wantElo     float64
		wantMatches int
	}{
		{
			name:        "win against ranked",
			player:      &domain.PlayerGameResults{YouWon: true, OpponentActiveElo: &opp},
			wantElo:     1129,
			wantMatches: 1,
		},
		{
			name:        "loss by quitting",
			player:      &domain.PlayerGameResults{OpponentWon: true, YouQuit: true, OpponentActiveElo: &opp},
			wantElo:     domain.DefaultUnrankedElo,
			wantMatches: 0,
		},
		{
			name:        "unranked opponent",
			player:      &domain.PlayerGameResults{YouWon: true},
			wantElo:     domain.DefaultUnrankedElo,
			wantMatches: 0,
		},
		{
			name:        "loss",
			player:      &domain.PlayerGameResults{OpponentWon: true, OpponentActiveElo: &opp},
			wantElo:     1097,
			wantMatches: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.results.PersistElo(tt.player); err != nil {
				t.Fatalf("persist elo: %v", err)
			}
			m := f.meta.Get()
			if m.UnrankedElo != tt.wantElo || m.UnrankedEloMatches != tt.wantMatches {
				t.Errorf("elo = %v after %d matches, want %v after %d", m.UnrankedElo, m.UnrankedEloMatches, tt.wantElo, tt.wantMatches)
			}
		})
	}
}

func TestMetaWrites(t *testing.T) {
	f := newFixture(t)
	m := f.meta.Get()
	m.LastUsedCode = "A#1"

	for i := 0; i < 2; i++ {
		if err := f.meta.Save(m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if n := f.events.count(domain.EventMeta); n != 1 {
		t.Errorf("meta emitted %d times, want 1", n)
	}

	f.meta.Suppress()
	m.LastUsedCode = "B#2"
	if err := f.meta.Save(m); err != nil {
		t.Fatalf("suppressed save: %v", err)
	}
	if got := f.meta.Get().LastUsedCode; got != "A#1" {
		t.Errorf("lastUsedCode = %q, want A#1", got)
	}

	f.meta.Resume()
	if err := f.meta.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := f.meta.Get().LastUsedCode; got != "B#2" {
		t.Errorf("lastUsedCode = %q, want B#2", got)
	}
}

func TestMetaOverwritesCorruptFile(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.meta.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := f.meta.Update(func(m *domain.Meta) { m.LastUsedCode = "A#1" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.meta.Get().LastUsedCode; got != "A#1" {
		t.Errorf("lastUsedCode = %q, want A#1", got)
	}
	if n := f.events.count(domain.EventMeta); n != 1 {
		t.Errorf("meta emitted %d times, want 1", n)
	}
}

type fakeFetcher struct {
	ranks map[string][]domain.PlayerRank
}

func (f *fakeFetcher) FetchPlayerRanks(_ context.Context, codeOrID string) []domain.PlayerRank {
	return f.ranks[codeOrID]
}

func intPtr(v int) *int { return &v }

func TestRankSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fetcher := &fakeFetcher{ranks: map[string][]domain.PlayerRank{}}
	svc := NewRankService(fetcher, repository.NewRankRepository(f.handle, zerolog.Nop()), f.meta, f.events, zerolog.Nop())

	rank := func(elo float64, wins int, active bool) domain.PlayerRank {
		return domain.PlayerRank{
			UserID: "u1", SeasonID: "s1", SeasonName: "Season 1", Elo: elo,
			Wins: intPtr(wins), Losses: intPtr(0), WasActiveSeason: active,
		}
	}

	steps := []struct {
		name string
		rank domain.PlayerRank
		want int
	}{
		{"first snapshot", rank(1200, 1, true), 1},
		{"same elo updates in place", rank(1200, 2, true), 1},
		{"elo moved", rank(1250, 3, true), 2},
		{"inactive and unchanged", rank(1250, 4, false), 2},
	}
	for _, step := range steps {
		fetcher.ranks["A#1"] = []domain.PlayerRank{step.rank}
		if _, err := svc.Refresh(ctx, "A#1"); err != nil {
			t.Fatalf("%s: refresh: %v", step.name, err)
		}
		recs, err := svc.PlayerRanks(ctx, "u1")
		if err != nil {
			t.Fatalf("%s: ranks: %v", step.name, err)
		}
		if len(recs) != step.want {
			t.Errorf("%s: %d snapshots, want %d", step.name, len(recs), step.want)
		}
		wins := 0
		for _, rec := range recs {
			if rec.Elo == step.rank.Elo && rec.Wins != nil {
				wins = *rec.Wins
			}
		}
		if wins != *step.rank.Wins {
			t.Errorf("%s: stored wins = %d, want %d", step.name, wins, *step.rank.Wins)
		}
	}

	player, err := svc.Player(ctx, "u1")
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if player == nil || player.FetchedRanksAt == nil {
		t.Errorf("player = %+v, want fetchedRanksAt set", player)
	}

	if got := svc.Fetch(ctx, ""); len(got) != 0 {
		t.Errorf("fetch without code = %v, want none", got)
	}
}

func TestRefreshYours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.meta.Update(func(m *domain.Meta) {
		m.LastUsedCode = "A#1"
		m.LastUsedUserID = "u1"
	}); err != nil {
		t.Fatalf("meta: %v", err)
	}
	fetcher := &fakeFetcher{ranks: map[string][]domain.PlayerRank{
		"A#1": {
			{SeasonID: "s1", SeasonName: "Season 1", SeasonDateStart: "2024-01-01", Elo: 1300, Wins: intPtr(3), WasActiveSeason: true},
			{SeasonID: "s0", SeasonName: "Season 0", SeasonDateEnd: "2023-12-01", Elo: 900},
		},
	}}
	svc := NewRankService(fetcher, repository.NewRankRepository(f.handle, zerolog.Nop()), f.meta, f.events, zerolog.Nop())

	if rec, err := svc.RefreshYours(ctx, []string{"Z#9"}); err != nil || rec != nil {
		t.Fatalf("foreign codes: rec = %v, err = %v", rec, err)
	}

	rec, err := svc.RefreshYours(ctx, []string{"A#1"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rec == nil || rec.Elo != 1300 || !rec.WasActiveSeason {
		t.Fatalf("active record = %+v", rec)
	}

	seasons, err := svc.Seasons(ctx)
	if err != nil {
		t.Fatalf("seasons: %v", err)
	}
	if len(seasons) != 1 || seasons[0].Name != "Season 1" {
		t.Errorf("seasons = %+v, want only Season 1", seasons)
	}
	if n := f.events.count(domain.EventSeasons); n != 1 {
		t.Errorf("seasons emitted %d times, want 1", n)
	}
}

func TestUpdateSeason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewRankService(&fakeFetcher{}, repository.NewRankRepository(f.handle, zerolog.Nop()), f.meta, f.events, zerolog.Nop())

	start, end := "2024-01-01", "2024-06-01"
	open := domain.Season{SlippiID: "s1", Name: "Season 1", StartedAt: &start}
	closed := domain.Season{SlippiID: "s1", Name: "Season 1", StartedAt: &start, EndedAt: &end}

	for _, s := range []domain.Season{open, open, closed, closed} {
		if err := svc.UpdateSeason(ctx, s); err != nil {
			t.Fatalf("update season: %v", err)
		}
	}
	if n := f.events.count(domain.EventSeasons); n != 2 {
		t.Errorf("seasons emitted %d times, want 2", n)
	}

	svc.ResetSeasons()
	seasons, err := svc.Seasons(ctx)
	if err != nil {
		t.Fatalf("seasons: %v", err)
	}
	if len(seasons) != 1 || seasons[0].EndedAt == nil || *seasons[0].EndedAt != end {
		t.Errorf("seasons = %+v, want one ended season", seasons)
	}
}

func TestCharacterNotesImportExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notes := NewNoteService(repository.NewNoteRepository(f.handle, zerolog.Nop()), f.events, zerolog.Nop())

	if _, err := notes.CreateCharacterNote(ctx, domain.CharacterNote{CharacterID: 2, Content: "shield drop"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	path, err := notes.ExportCharacterNotes(ctx, filepath.Join(t.TempDir(), "notes"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("export path = %q, want .json", path)
	}

	other := newFixture(t)
	imported := NewNoteService(repository.NewNoteRepository(other.handle, zerolog.Nop()), other.events, zerolog.Nop())
	res, err := imported.ImportCharacterNotesFile(ctx, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(ImportResult{Succeeded: 1}, res); diff != "" {
		t.Errorf("import result mismatch (-want +got):\n%s", diff)
	}
	if n := other.events.count(domain.EventCharacterNotes); n != 1 {
		t.Errorf("character-notes emitted %d times, want 1", n)
	}
	got, err := imported.CharacterNotes(ctx)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(got["2"]) != 1 || got["2"][0].Content != "shield drop" {
		t.Errorf("imported notes = %+v", got)
	}

	res, err = imported.ImportCharacterNotes(ctx, CharacterNotes{"fox": {{Content: "x"}}})
	if err != nil {
		t.Fatalf("import bad key: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestChatThread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chats := NewChatService(repository.NewChatRepository(f.handle, zerolog.Nop()), zerolog.Nop())

	thread, err := chats.UpsertPlayerChat(ctx, "u2")
	if err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if _, err := chats.AddMessage(ctx, domain.ChatMessage{ChatID: thread.Chat.ID, Content: "gg", SentAt: "1"}); err != nil {
		t.Fatalf("add message: %v", err)
	}
	again, err := chats.UpsertPlayerChat(ctx, "u2")
	if err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	if again.Chat.ID != thread.Chat.ID || len(again.Messages) != 1 {
		t.Errorf("thread = %+v, want the same chat with one message", again)
	}
}

func TestImportDatabase(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	g := game("g1.slp", "1", "A#1", "B#2", 2, 20, 31, true)
	if _, err := src.results.Persist(ctx, g, []byte(`{"frames":1}`), []string{"A#1"}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	srcStore, _ := src.handle.Store()
	var srcPath string
	if err := srcStore.DB().QueryRow("SELECT file FROM pragma_database_list WHERE name = 'main'").Scan(&srcPath); err != nil {
		t.Fatalf("database path: %v", err)
	}

	dst := newFixture(t)
	dstRepo := repository.NewResultRepository(dst.handle, zerolog.Nop())
	if _, err := dstRepo.UpsertStats(ctx, "0", []byte(`{"frames":0}`)); err != nil {
		t.Fatalf("seed stats: %v", err)
	}

	svc := NewImportService(dst.handle, dst.stats, dst.events, zerolog.Nop())
	if err := svc.ImportDatabase(ctx, srcPath); err != nil {
		t.Fatalf("import: %v", err)
	}

	imported, err := dst.results.Query(ctx, []string{"A#1"}, &domain.QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(imported) != 1 {
		t.Fatalf("imported %d results, want 1", len(imported))
	}
	if imported[0].StatsID == nil || *imported[0].StatsID != 2 {
		t.Errorf("statsId = %v, want 2", imported[0].StatsID)
	}

	for _, name := range []domain.EventName{domain.EventDBImportStart, domain.EventDBImportFinish} {
		if n := dst.events.count(name); n != 1 {
			t.Errorf("%s emitted %d times, want 1", name, n)
		}
	}
	if n := dst.events.count(domain.EventDBImportTableStart); n != 5 {
		t.Errorf("table starts = %d, want 5", n)
	}
}
