package tracker

import (
	"os"
	"time"

	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/ingest"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/replay"
	"slippi-tracker/internal/transform"
	"slippi-tracker/internal/watch"
)

const (
	dirWatcherName  = "directory"
	fileWatcherName = "file"
)

// watch replaces the watchers: the replay folder, and the tracked file
// when there is one.
func (t *Tracker) watch(file string, dirInterval time.Duration) {
	t.unwatch()
	if t.opts.PathToReplays == "" {
		return
	}
	t.dirWatcher = watch.NewPoller(dirWatcherName, t.opts.PathToReplays, dirInterval, t.watchEvents, t.logger)
	t.dirWatcher.Start()
	if file != "" {
		t.fileWatcher = watch.NewPoller(fileWatcherName, file, constants.FilePollInterval, t.watchEvents, t.logger)
		t.fileWatcher.Start()
	}
}

func (t *Tracker) unwatch() {
	if t.dirWatcher != nil {
		t.dirWatcher.Stop()
		t.dirWatcher = nil
	}
	if t.fileWatcher != nil {
		t.fileWatcher.Stop()
		t.fileWatcher = nil
	}
}

func (t *Tracker) onWatchEvent(ev watch.Event) {
	if !ingest.IsReplay(ev.Path) {
		return
	}
	switch ev.Op {
	case watch.Added:
		t.onAdded(ev.Path)
	case watch.Changed:
		t.onChanged(ev.Path)
	}
}

// onAdded starts tracking a new replay. A game still being tracked is
// finished first since only one game is written at a time.
func (t *Tracker) onAdded(path string) {
	if t.game != nil {
		if _, ending := t.game.(*endingGame); !ending {
			t.finalize()
		}
	}
	t.createGame(path)
}

func (t *Tracker) onChanged(path string) {
	if t.game != nil && t.game.file() != path {
		return
	}
	if _, ending := t.game.(*endingGame); ending {
		return
	}
	if path == t.lastFinalized {
		return
	}
	if t.game == nil {
		t.createGame(path)
	}
	if _, ok := t.game.(*detectedGame); ok {
		t.initGame()
	}
	t.endIfNeeded()
}

func (t *Tracker) createGame(path string) {
	if t.game != nil && t.game.file() == path {
		return
	}
	t.stopTicker()
	t.game = &detectedGame{path: path}
	t.ticker = time.NewTicker(constants.GameCheckInterval)
	t.logger.Info().Str("file", path).Msg("tracking game")
}

// initGame reads the first frames of the tracked replay, resolves the
// viewer and the opponent and announces the game.
func (t *Tracker) initGame() {
	path := t.game.file()
	decoded, err := t.parser.Parse(t.ctx, path, replay.Live)
	if err != nil {
		t.logger.Debug().Err(err).Str("file", path).Msg("replay not readable yet")
		return
	}
	if !decoded.ValidPlayers() {
		return
	}

	game := transform.ToGameResults(&decoded.Replay, path, time.Now())
	codes := t.opts.CurrentCodes
	var pending *pendingCodes
	if !melee.ContainsFold(codes, game.Player1Code) && !melee.ContainsFold(codes, game.Player2Code) {
		pending = &pendingCodes{
			Player1Code:   game.Player1Code,
			Player2Code:   game.Player2Code,
			Player1UserID: game.Player1UserID,
			Player2UserID: game.Player2UserID,
			StartAt:       game.StartAt,
		}
		t.emitter.Emit(domain.EventUnknownCodeGameStarted, domain.UnknownCodePayload{
			Player1Code: game.Player1Code,
			Player2Code: game.Player2Code,
			StartAt:     game.StartAt,
		})
		codes = []string{game.Player1Code}
	}

	lg := liveGame{path: path}
	for i, p := range decoded.Settings.Players {
		lg.ports[i] = p.PlayerIndex
	}
	player := transform.ToPlayerResults(&game, codes)
	history := []*domain.PlayerGameResults{}
	if player != nil {
		ranks := t.ranks.Fetch(t.ctx, player.OpponentCode)
		t.setResultRanks(player, &game, ranks)
		lg.setOpponent(player, ranks)
		if h, err := t.results.PlayerResults(t.ctx, player.OpponentUserID, codes); err != nil {
			t.logger.Warn().Err(err).Str("user", player.OpponentUserID).Msg("failed to load opponent history")
		} else {
			history = h
		}
	}

	if pending != nil {
		t.game = &unconfirmedGame{liveGame: lg, pending: *pending}
	} else {
		t.game = &confirmedGame{liveGame: lg}
	}

	t.watch(path, constants.TrackedPollInterval)
	if !t.parsing() {
		t.seq.Append(&game)
	}
	t.logger.Info().Str("file", path).Str("player1", game.Player1Code).Str("player2", game.Player2Code).Msg("game started")
	t.emitter.Emit(domain.EventGameStart, domain.GameStartPayload{Result: player, History: history})
}

// setResultRanks puts the opponent's ranks on both projections and stores
// the valid ones.
func (t *Tracker) setResultRanks(player *domain.PlayerGameResults, game *domain.GameResults, ranks []domain.PlayerRank) {
	valid := transform.SetOpponentRanks(player, game, ranks)
	t.emitter.Emit(domain.EventOpponentRank, player.OpponentRanks)
	if err := t.ranks.Persist(t.ctx, valid); err != nil {
		t.logger.Warn().Err(err).Str("opponent", player.OpponentCode).Msg("failed to persist opponent ranks")
	}
}

func (t *Tracker) tick() {
	t.ticks++
	if t.ticks > constants.GameEndCheckEvery {
		t.ticks = 0
		t.endIfNeeded()
		return
	}
	if !t.skipPercent {
		t.checkPercents()
	}
}

func (t *Tracker) checkPercents() {
	lg := live(t.game)
	if lg == nil || lg.opponentIndex == nil {
		return
	}
	decoded, err := t.parser.Parse(t.ctx, lg.path, replay.Live)
	if err != nil {
		return
	}
	t.emitter.Emit(domain.EventPlayerPercents, []float64{
		percentOf(decoded.LastFrame.Post(lg.ports[lg.yourIndex])),
		percentOf(decoded.LastFrame.Post(lg.ports[*lg.opponentIndex])),
	})
}

// percentOf reads 0 for a port missing from the frame.
func percentOf(post *replay.PostFrame) float64 {
	if post == nil || post.Percent == nil {
		return 0
	}
	return *post.Percent
}

func (t *Tracker) endIfNeeded() {
	if t.game == nil {
		return
	}
	if _, ending := t.game.(*endingGame); ending {
		return
	}
	decoded, err := t.parser.Parse(t.ctx, t.game.file(), replay.Live)
	if err != nil || decoded.GameEnd == nil {
		return
	}
	t.logger.Info().Str("file", t.game.file()).Str("method", decoded.GameEnd.MethodName()).Msg("game end detected")
	t.finalize()
}

// finalize stores the tracked game and announces the result. It runs once
// per replay; change events for the file are ignored afterwards.
func (t *Tracker) finalize() {
	path := t.game.file()
	var ranks []domain.PlayerRank
	if lg := live(t.game); lg != nil {
		ranks = lg.ranks
	}
	t.game = &endingGame{path: path}
	t.lastFinalized = path
	t.skipPercent = false
	t.stopTicker()

	player := t.storeGame(path, ranks)
	t.emitter.Emit(domain.EventGameEnd, player)

	if !t.opts.DisableLiveTracking {
		t.watch("", constants.DirectoryPollInterval)
	} else {
		t.unwatch()
	}
	t.game = nil
	t.holdParsing = false
}

func (t *Tracker) storeGame(path string, ranks []domain.PlayerRank) *domain.PlayerGameResults {
	decoded, err := t.parser.Parse(t.ctx, path, replay.Full)
	if err != nil {
		t.logger.Error().Err(err).Str("file", path).Msg("failed to parse finished game")
		return nil
	}
	if !decoded.ValidPlayers() || decoded.GameEnd == nil {
		t.logger.Warn().Str("file", path).Msg("finished game is not a valid two player game")
		return nil
	}
	fallback := time.Now()
	if info, err := os.Stat(path); err == nil {
		fallback = info.ModTime()
	}
	game, err := transform.FromReplay(&decoded.Replay, path, fallback)
	if err != nil {
		t.logger.Warn().Err(err).Str("file", path).Msg("finished game is not a valid two player game")
		return nil
	}

	codes := t.opts.CurrentCodes
	if player := transform.ToPlayerResults(&game, codes); player != nil {
		if len(ranks) == 0 {
			ranks = t.ranks.Fetch(t.ctx, player.OpponentCode)
		}
		t.setResultRanks(player, &game, ranks)
	}

	saved, err := t.results.Persist(t.ctx, &game, decoded.Stats, codes)
	if err != nil {
		t.logger.Error().Err(err).Str("file", path).Msg("failed to persist finished game")
		return nil
	}
	player := transform.ToPlayerResults(saved, codes)
	if player == nil {
		t.logger.Warn().Str("file", path).Msg("finished game has none of your codes")
		return nil
	}
	if err := t.results.PersistElo(player); err != nil {
		t.logger.Warn().Err(err).Msg("failed to update unranked elo")
	}
	t.logger.Info().Str("file", path).Bool("won", player.YouWon).Str("opponent", player.OpponentCode).Msg("game stored")
	return player
}
