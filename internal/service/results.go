package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/transform"
)

type ResultService struct {
	repo        *repository.ResultRepository
	stats       *StatsService
	meta        *MetaService
	emitter     domain.Emitter
	invalidPath string
	logger      zerolog.Logger

	mu         sync.Mutex
	persisting int
}

func NewResultService(repo *repository.ResultRepository, stats *StatsService, meta *MetaService, emitter domain.Emitter, cfg *config.Config, logger zerolog.Logger) *ResultService {
	return &ResultService{
		repo:        repo,
		stats:       stats,
		meta:        meta,
		emitter:     emitter,
		invalidPath: cfg.MetaPath(constants.InvalidGamesFileName),
		logger:      logger,
	}
}

// Persist stores a parsed game and its frame statistics. A stats failure
// is logged and the game is stored without them.
func (s *ResultService) Persist(ctx context.Context, game *domain.GameResults, stats json.RawMessage, codes []string) (*domain.GameResults, error) {
	s.mu.Lock()
	s.persisting++
	s.mu.Unlock()
	defer s.donePersisting()

	if len(stats) > 0 && string(stats) != "null" {
		id, err := s.repo.UpsertStats(ctx, game.StartAt, stats)
		if err != nil {
			s.logger.Error().Err(err).Str("file", game.SlpFile).Msg("failed to persist stats")
		} else {
			game.StatsID = &id
		}
	}

	saved, err := s.repo.Upsert(ctx, game)
	if err != nil {
		s.logger.Error().Err(err).Str("file", game.SlpFile).Msg("failed to persist result")
		return nil, err
	}
	if player := transform.ToPlayerResults(saved, codes); player != nil {
		s.stats.Invalidate(codes, player.YourCharacter, player.OpponentCharacter)
	}
	return saved, nil
}

func (s *ResultService) donePersisting() {
	s.mu.Lock()
	s.persisting--
	done := s.persisting == 0
	s.mu.Unlock()
	if done {
		s.emitter.Emit(domain.EventPersistFinish, nil)
	}
}

// PersistInvalid records a replay that failed to parse, in the database
// and in the plain text ledger.
func (s *ResultService) PersistInvalid(ctx context.Context, path string, cause error, data any) {
	encoded, _ := json.Marshal(data)
	if err := s.repo.InsertInvalid(ctx, domain.InvalidResult{
		SlpFilePath: path,
		Error:       cause.Error(),
		Data:        string(encoded),
	}); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to persist invalid result")
	}

	f, err := os.OpenFile(s.invalidPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.invalidPath).Msg("failed to open invalid games file")
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s\t%s\n", path, cause.Error())
}

// PersistElo moves the rolling unranked elo after a finished game against
// a ranked opponent. A loss by quitting does not count.
func (s *ResultService) PersistElo(player *domain.PlayerGameResults) error {
	if player == nil || player.OpponentActiveElo == nil || *player.OpponentActiveElo == 0 {
		return nil
	}
	if !player.YouWon && !(player.OpponentWon && !player.YouQuit) {
		return nil
	}
	result := 0.0
	if player.YouWon {
		result = 1
	}
	return s.meta.Update(func(m *domain.Meta) {
		current := m.UnrankedElo
		if current == 0 {
			current = constants.DefaultUnrankedElo
		}
		m.UnrankedEloMatches++
		m.UnrankedElo = melee.CalculateElo(current, *player.OpponentActiveElo, result, constants.EloKFactor).Player1
	})
}

func (s *ResultService) Query(ctx context.Context, codes []string, params *domain.QueryParams) ([]*domain.PlayerGameResults, error) {
	games, err := s.repo.Query(ctx, codes, params)
	if err != nil {
		return nil, err
	}
	return project(games, codes), nil
}

func (s *ResultService) QueryCount(ctx context.Context, codes []string, params *domain.QueryParams) (int, error) {
	return s.repo.QueryCount(ctx, codes, params)
}

func (s *ResultService) TotalMatches(ctx context.Context, codes []string) (int, error) {
	return s.repo.Count(ctx, transform.ViewerWhere(codes, nil, nil))
}

// Results returns every stored game of a user, newest first.
func (s *ResultService) Results(ctx context.Context, userID string) ([]domain.GameResults, error) {
	return s.repo.ByUser(ctx, userID)
}

// PlayerResults returns a user's games seen from the viewer's side.
func (s *ResultService) PlayerResults(ctx context.Context, userID string, codes []string) ([]*domain.PlayerGameResults, error) {
	games, err := s.repo.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return project(games, codes), nil
}

func (s *ResultService) MatchStats(ctx context.Context, ids []int64) ([]any, error) {
	return s.repo.Stats(ctx, ids)
}

func (s *ResultService) SaveNotes(ctx context.Context, id int64, notes []domain.MatchNote) error {
	return s.repo.SaveNotes(ctx, id, notes)
}

// FilesNotExist drops the paths already stored as results (by file name)
// or as invalid results (by full path).
func (s *ResultService) FilesNotExist(ctx context.Context, paths []string) ([]string, error) {
	missing, err := s.repo.FilesNotExist(ctx, repository.TableResults, paths, false)
	if err != nil {
		return nil, err
	}
	return s.repo.FilesNotExist(ctx, repository.TableInvalidResults, missing, true)
}

func (s *ResultService) EachCodePair(ctx context.Context, fn func(pair repository.CodePair, index int) error) error {
	return s.repo.EachCodePair(ctx, fn)
}

func project(games []domain.GameResults, codes []string) []*domain.PlayerGameResults {
	out := make([]*domain.PlayerGameResults, 0, len(games))
	for i := range games {
		if p := transform.ToPlayerResults(&games[i], codes); p != nil {
			out = append(out, p)
		}
	}
	return out
}
