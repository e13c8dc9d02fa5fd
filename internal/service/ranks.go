package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/repository"
)

// RankFetcher looks up a player's season ranks by connect code or user id.
type RankFetcher interface {
	FetchPlayerRanks(ctx context.Context, codeOrID string) []domain.PlayerRank
}

type RankService struct {
	fetcher RankFetcher
	repo    *repository.RankRepository
	meta    *MetaService
	emitter domain.Emitter
	logger  zerolog.Logger

	mu      sync.Mutex
	seasons []domain.Season
}

func NewRankService(fetcher RankFetcher, repo *repository.RankRepository, meta *MetaService, emitter domain.Emitter, logger zerolog.Logger) *RankService {
	return &RankService{
		fetcher: fetcher,
		repo:    repo,
		meta:    meta,
		emitter: emitter,
		logger:  logger,
	}
}

// Fetch returns the remote ranks of a player; failures yield no ranks.
func (s *RankService) Fetch(ctx context.Context, codeOrID string) []domain.PlayerRank {
	if codeOrID == "" {
		return []domain.PlayerRank{}
	}
	return s.fetcher.FetchPlayerRanks(ctx, codeOrID)
}

// Persist stores one snapshot per season and stamps the player's fetch
// time.
func (s *RankService) Persist(ctx context.Context, ranks []domain.PlayerRank) error {
	userID := ""
	now := nowMillis()
	for _, r := range ranks {
		if userID == "" {
			userID = r.UserID
		}
		if _, err := s.storeSnapshot(ctx, r.UserID, r, now); err != nil {
			return err
		}
	}
	if userID == "" {
		return nil
	}
	return s.repo.UpsertPlayer(ctx, domain.Player{ID: userID, FetchedRanksAt: &now})
}

// Refresh fetches and persists a player's ranks.
func (s *RankService) Refresh(ctx context.Context, codeOrID string) ([]domain.PlayerRank, error) {
	ranks := s.Fetch(ctx, codeOrID)
	if err := s.Persist(ctx, ranks); err != nil {
		return nil, err
	}
	return ranks, nil
}

// RefreshYours refreshes the viewer's last used code when it is still one
// of codes and returns the active season snapshot, if any.
func (s *RankService) RefreshYours(ctx context.Context, codes []string) (*domain.RankRecord, error) {
	m := s.meta.Get()
	if m.LastUsedCode == "" || !contains(codes, m.LastUsedCode) {
		return nil, nil
	}

	var active *domain.RankRecord
	now := nowMillis()
	for _, r := range s.Fetch(ctx, m.LastUsedCode) {
		if !melee.HasValidRank(&r) {
			continue
		}
		rec, err := s.storeSnapshot(ctx, m.LastUsedUserID, r, now)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.WasActiveSeason {
			active = rec
		}
		if err := s.UpdateSeason(ctx, seasonOf(r)); err != nil {
			s.logger.Warn().Err(err).Str("season", r.SeasonName).Msg("failed to update season")
		}
	}
	return active, nil
}

// storeSnapshot adds a row when the season has none or the elo moved, so
// progress is kept. Otherwise the latest row is refreshed in place.
func (s *RankService) storeSnapshot(ctx context.Context, userID string, r domain.PlayerRank, now string) (*domain.RankRecord, error) {
	latest, err := s.repo.Latest(ctx, userID, r.SeasonID)
	if err != nil {
		return nil, err
	}
	rec := domain.RankRecord{UpdatedAt: now, PlayerRank: r}
	if latest == nil || latest.Elo != r.Elo {
		return s.repo.Insert(ctx, rec)
	}
	if err := s.repo.Update(ctx, latest.ID, rec); err != nil {
		return nil, err
	}
	rec.ID = latest.ID
	return &rec, nil
}

func (s *RankService) PlayerRanks(ctx context.Context, userID string) ([]domain.RankRecord, error) {
	return s.repo.ByUser(ctx, userID)
}

func (s *RankService) Player(ctx context.Context, userID string) (*domain.Player, error) {
	return s.repo.Player(ctx, userID)
}

func (s *RankService) UpsertPlayer(ctx context.Context, p domain.Player) error {
	return s.repo.UpsertPlayer(ctx, p)
}

// Seasons returns the known ranked seasons.
func (s *RankService) Seasons(ctx context.Context) ([]domain.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadSeasonsLocked(ctx); err != nil {
		return nil, err
	}
	return append([]domain.Season{}, s.seasons...), nil
}

// UpdateSeason records a season the first time it is seen and its end once
// it is over. Both emit the season list.
func (s *RankService) UpdateSeason(ctx context.Context, season domain.Season) error {
	if season.Name == "" && season.SlippiID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadSeasonsLocked(ctx); err != nil {
		return err
	}

	for i := range s.seasons {
		prev := &s.seasons[i]
		if prev.Name != season.Name || (prev.EndedAt != nil) == (season.EndedAt != nil) {
			continue
		}
		if prev.EndedAt != nil {
			return fmt.Errorf("season %s already ended", prev.Name)
		}
		prev.EndedAt = season.EndedAt
		if err := s.repo.EndSeason(ctx, prev.ID, season.EndedAt); err != nil {
			return err
		}
		s.emitter.Emit(domain.EventSeasons, append([]domain.Season{}, s.seasons...))
		return nil
	}

	for _, prev := range s.seasons {
		if prev.Name == season.Name || prev.SlippiID == season.SlippiID {
			return nil
		}
	}
	inserted, err := s.repo.InsertSeason(ctx, season)
	if err != nil {
		return err
	}
	s.seasons = append(s.seasons, *inserted)
	s.emitter.Emit(domain.EventSeasons, append([]domain.Season{}, s.seasons...))
	return nil
}

// ResetSeasons forgets the loaded season list.
func (s *RankService) ResetSeasons() {
	s.mu.Lock()
	s.seasons = nil
	s.mu.Unlock()
}

func (s *RankService) loadSeasonsLocked(ctx context.Context) error {
	if s.seasons != nil {
		return nil
	}
	seasons, err := s.repo.Seasons(ctx)
	if err != nil {
		return err
	}
	s.seasons = seasons
	return nil
}

func seasonOf(r domain.PlayerRank) domain.Season {
	s := domain.Season{SlippiID: r.SeasonID, Name: r.SeasonName}
	if r.SeasonDateStart != "" {
		start := r.SeasonDateStart
		s.StartedAt = &start
	}
	if r.SeasonDateEnd != "" && !r.WasActiveSeason {
		end := r.SeasonDateEnd
		s.EndedAt = &end
	}
	return s
}

func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
