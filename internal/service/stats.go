package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/melee"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/rowstore"
	"slippi-tracker/internal/transform"
)

type statsCache struct {
	CachedAsCodes []string                       `json:"cachedAsCodes"`
	Data          map[int]*domain.CharacterStats `json:"data"`
}

// StatsService computes per character aggregates and keeps them in a
// cache that survives restarts. The cache belongs to one set of viewer
// codes and is dropped whole when the codes change.
type StatsService struct {
	results *repository.ResultRepository
	path    string
	logger  zerolog.Logger

	mu    sync.Mutex
	cache statsCache
	timer *time.Timer
}

func NewStatsService(results *repository.ResultRepository, cfg *config.Config, logger zerolog.Logger) *StatsService {
	return &StatsService{
		results: results,
		path:    cfg.MetaPath(constants.StatsCacheFileName),
		logger:  logger,
		cache:   statsCache{Data: map[int]*domain.CharacterStats{}},
	}
}

// Load reads the persisted cache. A missing or unreadable file leaves the
// cache empty.
func (s *StatsService) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read stats cache")
		}
		return
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create zstd decoder")
		return
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("stats cache is corrupt, ignoring")
		return
	}
	var cache statsCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("stats cache is corrupt, ignoring")
		return
	}
	if cache.Data == nil {
		cache.Data = map[int]*domain.CharacterStats{}
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	s.logger.Debug().Int("entries", len(cache.Data)).Msg("stats cache loaded")
}

// CharacterStats returns the viewer's aggregate for characterID.
func (s *StatsService) CharacterStats(ctx context.Context, codes []string, characterID int) (*domain.CharacterStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !melee.SameSet(codes, s.cache.CachedAsCodes) {
		s.clearLocked(codes)
	} else if cached, ok := s.cache.Data[characterID]; ok {
		return cached, nil
	}

	start := time.Now()
	rows, err := s.results.CharacterStats(ctx, codes, characterID)
	if err != nil {
		return nil, err
	}
	base, err := s.againstCounts(ctx, codes, characterID)
	if err != nil {
		return nil, err
	}
	stats := reduceCharacterStats(rows, base)
	s.logger.Debug().Int("character", characterID).Dur("took", time.Since(start)).Msg("character stats computed")

	s.cache.Data[characterID] = stats
	s.scheduleLocked()
	return stats, nil
}

// OpponentCharacterStats aggregates how others fared with characterID
// against the viewer. It is not cached.
func (s *StatsService) OpponentCharacterStats(ctx context.Context, codes []string, characterID int) (*domain.CharacterStats, error) {
	rows, err := s.results.OpponentCharacterStats(ctx, codes, characterID)
	if err != nil {
		return nil, err
	}
	return reduceCharacterStats(rows, domain.BaseCharacterStats{}), nil
}

func (s *StatsService) againstCounts(ctx context.Context, codes []string, characterID int) (domain.BaseCharacterStats, error) {
	played, err := s.results.Count(ctx, transform.OpponentWhere(codes, rowstore.Fields{"character": characterID}, nil))
	if err != nil {
		return domain.BaseCharacterStats{}, err
	}
	lost, err := s.results.Count(ctx, transform.OpponentWhere(codes, rowstore.Fields{"character": characterID, "won": true}, nil))
	if err != nil {
		return domain.BaseCharacterStats{}, err
	}
	return domain.BaseCharacterStats{
		TimesPlayedAgainst: played,
		TimesLostAgainst:   lost,
		TimesWonAgainst:    played - lost,
	}, nil
}

// Invalidate drops the entries of ids. Without ids the whole cache is
// dropped and rebound to codes.
func (s *StatsService) Invalidate(codes []string, ids ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		s.clearLocked(codes)
		return
	}
	changed := false
	for _, id := range ids {
		if _, ok := s.cache.Data[id]; ok {
			delete(s.cache.Data, id)
			changed = true
		}
	}
	if changed {
		s.scheduleLocked()
	}
}

// Reset empties the cache without persisting it.
func (s *StatsService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cache = statsCache{Data: map[int]*domain.CharacterStats{}}
}

// Flush writes a pending cache update now.
func (s *StatsService) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	encoded, err := json.Marshal(s.cache)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode stats cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	if err := os.WriteFile(s.path, enc.EncodeAll(encoded, nil), 0o644); err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

func (s *StatsService) clearLocked(codes []string) {
	s.cache.Data = map[int]*domain.CharacterStats{}
	s.cache.CachedAsCodes = append([]string{}, codes...)
	s.scheduleLocked()
}

func (s *StatsService) scheduleLocked() {
	if s.timer != nil {
		s.timer.Reset(constants.StatsCacheDebounce)
		return
	}
	s.timer = time.AfterFunc(constants.StatsCacheDebounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist stats cache")
		}
	})
}

// reduceCharacterStats folds the aggregation rows into the nested stats
// shape. The per stage totals arrive twice and are only counted once.
func reduceCharacterStats(rows []repository.CharacterStatRow, base domain.BaseCharacterStats) *domain.CharacterStats {
	out := domain.NewCharacterStats()
	out.BaseCharacterStats = base

	stage := func(id string) *domain.ByStageStats {
		st, ok := out.ByStage[id]
		if !ok {
			st = &domain.ByStageStats{ByCharacter: map[string]*domain.ByCharacterStats{}}
			out.ByStage[id] = st
		}
		return st
	}

	for _, r := range rows {
		if r.Won == repository.Total {
			continue
		}
		won := r.Won == "yes"
		switch {
		case r.StageID != repository.Total && r.OpponentCharacter == repository.Total:
			st := stage(r.StageID)
			if won {
				if st.TimesWonAs != 0 {
					continue
				}
				st.TimesWonAs = r.Count
				out.TimesWonAs += r.Count
			} else {
				if st.TimesLostAs != 0 {
					continue
				}
				st.TimesLostAs = r.Count
				out.TimesLostAs += r.Count
			}
			st.TimesPlayedAs += r.Count
			out.TimesPlayedAs += r.Count

		case r.StageID == repository.Total && r.OpponentCharacter != repository.Total:
			c, ok := out.ByCharacter[r.OpponentCharacter]
			if !ok {
				c = &domain.ByCharacterStats{}
				out.ByCharacter[r.OpponentCharacter] = c
			}
			setAgainst(c, won, r.Count)

		case r.StageID != repository.Total && r.OpponentCharacter != repository.Total:
			st := stage(r.StageID)
			c, ok := st.ByCharacter[r.OpponentCharacter]
			if !ok {
				c = &domain.ByCharacterStats{}
				st.ByCharacter[r.OpponentCharacter] = c
			}
			setAgainst(c, won, r.Count)
		}
	}
	return out
}

func setAgainst(c *domain.ByCharacterStats, won bool, count int) {
	if won {
		c.TimesWonAgainst = count
	} else {
		c.TimesLostAgainst = count
	}
	c.TimesPlayedAgainst += count
}
