package repository

import (
	"context"
	"fmt"

	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/rowstore"
)

// InsertInvalid records a replay that could not be turned into a result.
func (r *ResultRepository) InsertInvalid(ctx context.Context, rec domain.InvalidResult) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	if _, err := store.InsertOne(ctx, TableInvalidResults, rowstore.Row{
		"slpFilePath": rec.SlpFilePath,
		"error":       rec.Error,
		"data":        rec.Data,
	}); err != nil {
		return fmt.Errorf("failed to persist invalid result %s: %w", rec.SlpFilePath, err)
	}
	return nil
}

func (r *ResultRepository) Invalid(ctx context.Context) ([]domain.InvalidResult, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, TableInvalidResults, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.InvalidResult](rows)
}
