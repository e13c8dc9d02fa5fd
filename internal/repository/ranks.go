package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/rowstore"
)

// RankRepository persists rank snapshots, players and ranked seasons.
type RankRepository struct {
	handle *Handle
	logger zerolog.Logger
}

func NewRankRepository(handle *Handle, logger zerolog.Logger) *RankRepository {
	return &RankRepository{
		handle: handle,
		logger: logger,
	}
}

// Latest returns the newest snapshot of a user's season, or nil.
func (r *RankRepository) Latest(ctx context.Context, userID, seasonID string) (*domain.RankRecord, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	row, err := store.QueryRow(ctx, TableRanks, rowstore.QueryOptions{
		Where: rowstore.Fields{"userId": userID, "seasonId": seasonID},
		Sort:  &rowstore.Sort{By: "updatedAt", Direction: rowstore.Desc},
	})
	if err != nil || row == nil {
		return nil, err
	}
	var rec domain.RankRecord
	if err := rowstore.FromRow(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RankRepository) Insert(ctx context.Context, rec domain.RankRecord) (*domain.RankRecord, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rec.ID = 0
	row, err := rowstore.ToRow(rec)
	if err != nil {
		return nil, err
	}
	saved, err := store.InsertOne(ctx, TableRanks, row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rank for %s: %w", rec.UserID, err)
	}
	rec.ID = saved.ID()
	return &rec, nil
}

func (r *RankRepository) Update(ctx context.Context, id int64, rec domain.RankRecord) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	rec.ID = 0
	row, err := rowstore.ToRow(rec)
	if err != nil {
		return err
	}
	return store.UpdateOne(ctx, TableRanks, id, row)
}

// ByUser returns every stored snapshot of a user.
func (r *RankRepository) ByUser(ctx context.Context, userID string) ([]domain.RankRecord, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRowsWhere(ctx, TableRanks, rowstore.Fields{"userId": userID}, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.RankRecord](rows)
}

func (r *RankRepository) UpsertPlayer(ctx context.Context, p domain.Player) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	row, err := rowstore.ToRow(p)
	if err != nil {
		return err
	}
	if _, err := store.Upsert(ctx, TablePlayers, row, "id"); err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", p.ID, err)
	}
	return nil
}

func (r *RankRepository) Player(ctx context.Context, id string) (*domain.Player, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	row, err := store.QueryRow(ctx, TablePlayers, rowstore.QueryOptions{Where: rowstore.Fields{"id": id}})
	if err != nil || row == nil {
		return nil, err
	}
	var p domain.Player
	if err := rowstore.FromRow(row, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RankRepository) Seasons(ctx context.Context) ([]domain.Season, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, TableSeasons, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.Season](rows)
}

func (r *RankRepository) InsertSeason(ctx context.Context, s domain.Season) (*domain.Season, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	s.ID = 0
	row, err := rowstore.ToRow(s)
	if err != nil {
		return nil, err
	}
	saved, err := store.InsertOne(ctx, TableSeasons, row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert season %s: %w", s.Name, err)
	}
	s.ID = saved.ID()
	return &s, nil
}

func (r *RankRepository) EndSeason(ctx context.Context, id int64, endedAt *string) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	var v any
	if endedAt != nil {
		v = *endedAt
	}
	return store.UpdateOne(ctx, TableSeasons, id, rowstore.Row{"endedAt": v})
}
