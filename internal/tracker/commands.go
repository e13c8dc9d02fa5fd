package tracker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sethvargo/go-retry"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/database"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/rowstore"
	"slippi-tracker/internal/transform"
)

// InitTracker opens the database, loads the viewer's data and applies opts.
// Calling it again only reports that loading finished.
func (t *Tracker) InitTracker(ctx context.Context, opts domain.TrackerOptions) error {
	return t.do(ctx, func() error { return t.initTracker(opts) })
}

func (t *Tracker) initTracker(opts domain.TrackerOptions) error {
	if t.initialized {
		t.emitter.Emit(domain.EventLoadFinish, nil)
		return nil
	}
	if opts.PathToDB == "" {
		return ErrMissingDBPath
	}
	t.meta.Resume()

	if !t.handle.Initialized() {
		if err := t.openStore(opts.PathToDB); err != nil {
			t.logger.Error().Err(err).Str("path", opts.PathToDB).Msg("failed to initialize database")
			t.emitter.Emit(domain.EventCancelledInit, nil)
			return err
		}
		t.emitter.Emit(domain.EventInitializedDB, nil)
	}
	t.dbPath = opts.PathToDB
	t.initialized = true
	t.stats.Load()
	t.load(opts.CurrentCodes)

	if err := t.setOptions(opts); err != nil {
		return err
	}
	if !t.opts.DisableLiveTracking {
		t.watch("", constants.DirectoryPollInterval)
	}
	return nil
}

func (t *Tracker) openStore(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := database.Open(path, t.logger)
	if err != nil {
		return err
	}
	store := rowstore.New(db, repository.Schema, t.logger)
	if err := store.InitTables(t.ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	t.handle.Attach(store)
	return nil
}

func (t *Tracker) load(codes []string) {
	t.emitter.Emit(domain.EventLoadStart, nil)
	t.emitter.Emit(domain.EventNumCPUs, runtime.NumCPU())
	if _, err := t.ranks.RefreshYours(t.ctx, codes); err != nil {
		t.logger.Warn().Err(err).Msg("failed to refresh your rank")
	}
	if err := t.notes.EmitCharacterNotes(t.ctx); err != nil {
		t.logger.Warn().Err(err).Msg("failed to load character notes")
	}
	t.emitter.Emit(domain.EventLoadFinish, nil)
}

// SetOptions validates and applies opts. Changing the replay path starts a
// new parse of it.
func (t *Tracker) SetOptions(ctx context.Context, opts domain.TrackerOptions) error {
	return t.do(ctx, func() error { return t.setOptions(opts) })
}

func (t *Tracker) setOptions(opts domain.TrackerOptions) error {
	if !t.initialized {
		return ErrNotInitialized
	}
	if len(opts.CurrentCodes) == 0 && !opts.AutodetectCodes {
		return ErrMissingCodes
	}
	if opts.PathToReplays == "" {
		return ErrMissingReplayPath
	}
	if opts.CurrentCodes == nil {
		opts.CurrentCodes = []string{}
	}
	if opts.UseCPUs < 1 {
		opts.UseCPUs = 1
	}
	opts.PathToDB = t.dbPath

	old := t.opts
	t.opts = opts
	t.publish()

	if opts.PathToReplays != old.PathToReplays {
		if t.parse != nil {
			t.detachParse()
		}
		t.startParse(opts.PathToReplays)
	}
	switch {
	case opts.DisableLiveTracking && !old.DisableLiveTracking:
		t.unwatch()
	case !opts.DisableLiveTracking && old.DisableLiveTracking:
		t.watch("", constants.DirectoryPollInterval)
	}

	if t.cfg.OptionsFile != "" {
		if err := config.SaveOptions(t.cfg.OptionsFile, t.Options()); err != nil {
			t.logger.Warn().Err(err).Str("file", t.cfg.OptionsFile).Msg("failed to save options")
		}
	}
	t.emitter.Emit(domain.EventSetOptions, t.Options())
	return nil
}

// ConfirmCode resolves the viewer of an unconfirmed game. startAt must be
// the start time announced for that game.
func (t *Tracker) ConfirmCode(ctx context.Context, code, startAt string) error {
	return t.do(ctx, func() error {
		t.confirmCode(code, startAt)
		return nil
	})
}

func (t *Tracker) confirmCode(code, startAt string) {
	ug, ok := t.game.(*unconfirmedGame)
	if !ok {
		return
	}
	cg := &confirmedGame{liveGame: ug.liveGame}
	t.game = cg
	pending := ug.pending
	if startAt != pending.StartAt {
		return
	}
	switch code {
	case pending.Player1Code:
		t.addDetectedCode(code, pending.Player1UserID)
	case pending.Player2Code:
		t.addDetectedCode(code, pending.Player2UserID)
	}

	decoded, err := t.parser.Parse(t.ctx, cg.path, replay.Live)
	if err != nil {
		t.logger.Warn().Err(err).Str("file", cg.path).Msg("failed to read confirmed game")
		return
	}
	game := transform.ToGameResults(&decoded.Replay, cg.path, time.Now())
	player := transform.ToPlayerResults(&game, t.opts.CurrentCodes)
	if player == nil {
		return
	}
	if code != pending.Player2Code {
		t.emitter.Emit(domain.EventStartedGameCodeConfirmed, nil)
		return
	}

	// The viewer is player 2, so the opponent assumed so far was wrong.
	ranks := t.ranks.Fetch(t.ctx, player.OpponentCode)
	t.setResultRanks(player, &game, ranks)
	cg.setOpponent(player, ranks)
	history, err := t.results.PlayerResults(t.ctx, player.OpponentUserID, t.opts.CurrentCodes)
	if err != nil {
		t.logger.Warn().Err(err).Str("user", player.OpponentUserID).Msg("failed to load opponent history")
		history = []*domain.PlayerGameResults{}
	}
	t.emitter.Emit(domain.EventStartedGameCodeConfirmed, domain.GameStartPayload{Result: player, History: history})
}

// CancelParsing stops dispatching replays; files already being parsed
// still complete.
func (t *Tracker) CancelParsing(ctx context.Context) error {
	return t.do(ctx, func() error {
		if t.parse != nil {
			t.parse.cancelled = true
			t.parse.cancel()
		}
		return nil
	})
}

// DisablePercentCheck stops percent updates until the current game ends.
func (t *Tracker) DisablePercentCheck(ctx context.Context) error {
	return t.do(ctx, func() error {
		t.skipPercent = true
		return nil
	})
}

// Parsing reports whether a folder parse is running.
func (t *Tracker) Parsing(ctx context.Context) (bool, error) {
	var parsing bool
	err := t.do(ctx, func() error {
		parsing = t.parsing()
		return nil
	})
	return parsing, err
}

// GetUniqueCodes walks the stored games in start order and returns the
// codes detected as the viewer's.
func (t *Tracker) GetUniqueCodes(ctx context.Context) ([]ingest.Detected, error) {
	var found []ingest.Detected
	err := t.do(ctx, func() error {
		if t.parsing() {
			return ErrParsing
		}
		t.rivals.Reset()
		defer t.rivals.Reset()

		var prev *repository.CodePair
		err := t.results.EachCodePair(t.ctx, func(pair repository.CodePair, _ int) error {
			if prev != nil {
				if det, ok := t.rivals.Observe(*prev, pair); ok {
					t.addDetectedCode(det.Code, det.UserID)
				}
			}
			p := pair
			prev = &p
			return nil
		})
		if err != nil {
			return err
		}
		found = t.rivals.Found()
		return nil
	})
	return found, err
}

// ValidateSlippiFolder counts the replays a parse of path would consider.
func (t *Tracker) ValidateSlippiFolder(path string) (ingest.FolderSummary, error) {
	return ingest.Summarize(path, t.Options().RecursivelyAllPaths)
}

// HardReset stops all work, closes the database and deletes it together
// with the meta document and the stats cache.
func (t *Tracker) HardReset(ctx context.Context) error {
	return t.do(ctx, t.hardReset)
}

func (t *Tracker) hardReset() error {
	t.logger.Warn().Str("db", t.dbPath).Msg("hard reset")
	if t.parse != nil {
		t.detachParse()
	}
	t.stopTicker()
	t.unwatch()

	t.game = nil
	t.lastFinalized = ""
	t.skipPercent = false
	t.holdParsing = false
	t.detected = map[string]string{}
	t.seq.Reset()
	t.rivals.Reset()
	t.opts = domain.DefaultTrackerOptions()
	t.publish()

	t.meta.Suppress()
	t.stats.Reset()
	t.ranks.ResetSeasons()

	if store := t.handle.Detach(); store != nil {
		if err := store.DB().Close(); err != nil {
			t.logger.Warn().Err(err).Msg("error closing database connection")
		}
	}

	paths := []string{
		t.meta.Path(),
		t.cfg.MetaPath(constants.StatsCacheFileName),
	}
	if t.dbPath != "" {
		paths = append(paths, t.dbPath, t.dbPath+"-wal", t.dbPath+"-shm")
	}
	var errs []error
	for _, p := range paths {
		if err := t.removeFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	t.dbPath = ""
	t.initialized = false
	return errors.Join(errs...)
}

// removeFile deletes path, retrying while the file is still held open.
func (t *Tracker) removeFile(path string) error {
	backoff := retry.WithMaxRetries(constants.DeleteMaxAttempts-1, retry.NewConstant(constants.DeleteRetryDelay))
	return retry.Do(t.ctx, backoff, func(ctx context.Context) error {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		t.logger.Warn().Err(err).Str("file", path).Msg("failed to delete file, retrying")
		return retry.RetryableError(err)
	})
}
