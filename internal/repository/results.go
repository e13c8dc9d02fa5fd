package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/rowstore"
)

type ResultRepository struct {
	handle *Handle
	logger zerolog.Logger
}

func NewResultRepository(handle *Handle, logger zerolog.Logger) *ResultRepository {
	return &ResultRepository{
		handle: handle,
		logger: logger,
	}
}

// Upsert stores game keyed by its file name and returns the stored record.
func (r *ResultRepository) Upsert(ctx context.Context, game *domain.GameResults) (*domain.GameResults, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	row, err := rowstore.ToRow(game)
	if err != nil {
		return nil, err
	}
	saved, err := store.Upsert(ctx, TableResults, row, "slpFile")
	if err != nil {
		return nil, fmt.Errorf("failed to upsert result %s: %w", game.SlpFile, err)
	}
	var out domain.GameResults
	if err := rowstore.FromRow(saved, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertStats stores a frame statistics blob keyed by the game start time
// and returns its id.
func (r *ResultRepository) UpsertStats(ctx context.Context, startAt string, stats json.RawMessage) (int64, error) {
	store, err := r.handle.Store()
	if err != nil {
		return 0, err
	}
	var decoded any
	if err := json.Unmarshal(stats, &decoded); err != nil {
		return 0, fmt.Errorf("invalid stats blob: %w", err)
	}
	saved, err := store.Upsert(ctx, TableStats, rowstore.Row{"startAt": startAt, "stats": decoded}, "startAt")
	if err != nil {
		return 0, fmt.Errorf("failed to upsert stats: %w", err)
	}
	return saved.ID(), nil
}

// Stats returns the statistics blobs for ids in the order given.
func (r *ResultRepository) Stats(ctx context.Context, ids []int64) ([]any, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	want := make([]any, len(ids))
	for i, id := range ids {
		want[i] = id
	}
	rows, err := store.QueryRowsWhere(ctx, TableStats, rowstore.Fields{"id": rowstore.Cond{OneOf: want}}, rowstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]any, len(rows))
	for _, row := range rows {
		byID[row.ID()] = row["stats"]
	}
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("did not find all stat records for provided ids: missing %d: %w", id, ErrNotFound)
		}
		out = append(out, s)
	}
	return out, nil
}

// ByUser returns every game the user took part in, newest first.
func (r *ResultRepository) ByUser(ctx context.Context, userID string) ([]domain.GameResults, error) {
	if userID == "" {
		return []domain.GameResults{}, nil
	}
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, TableResults, rowstore.QueryOptions{
		Where: rowstore.Any{
			rowstore.Fields{"player1UserId": userID},
			rowstore.Fields{"player2UserId": userID},
		},
		Sort:   &rowstore.Sort{By: "startAt", Direction: rowstore.Desc},
		Select: resultSelect,
	})
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.GameResults](rows)
}

// Get returns the stored game with id, or nil.
func (r *ResultRepository) Get(ctx context.Context, id int64) (*domain.GameResults, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	row, err := store.QueryRow(ctx, TableResults, rowstore.QueryOptions{Where: rowstore.ID(id), Select: resultSelect})
	if err != nil || row == nil {
		return nil, err
	}
	var out domain.GameResults
	if err := rowstore.FromRow(row, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query returns the viewer's games matching params.
func (r *ResultRepository) Query(ctx context.Context, codes []string, params *domain.QueryParams) ([]domain.GameResults, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	opts, err := BuildResultQuery(codes, params)
	if err != nil {
		return nil, err
	}
	opts.Select = resultSelect
	rows, err := store.QueryRows(ctx, TableResults, opts)
	if err != nil {
		return nil, err
	}
	return rowstore.FromRows[domain.GameResults](rows)
}

func (r *ResultRepository) QueryCount(ctx context.Context, codes []string, params *domain.QueryParams) (int, error) {
	store, err := r.handle.Store()
	if err != nil {
		return 0, err
	}
	opts, err := BuildResultQuery(codes, params)
	if err != nil {
		return 0, err
	}
	opts.Sort = nil
	opts.Pagination = nil
	opts.Select = &rowstore.Select{Columns: []string{"id"}}
	return store.CountRows(ctx, TableResults, opts)
}

// Count returns the number of games matching where.
func (r *ResultRepository) Count(ctx context.Context, where rowstore.Where) (int, error) {
	store, err := r.handle.Store()
	if err != nil {
		return 0, err
	}
	return store.CountRows(ctx, TableResults, rowstore.QueryOptions{
		Where:  where,
		Select: &rowstore.Select{Columns: []string{"id"}},
	})
}

func (r *ResultRepository) SaveNotes(ctx context.Context, id int64, notes []domain.MatchNote) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	if notes == nil {
		notes = []domain.MatchNote{}
	}
	encoded := make([]any, 0, len(notes))
	for _, n := range notes {
		encoded = append(encoded, map[string]any{"content": n.Content, "createdAt": n.CreatedAt})
	}
	return store.UpdateOne(ctx, TableResults, id, rowstore.Row{"notes": encoded})
}

// CodePair is the identity part of a stored game.
type CodePair struct {
	Player1Code   string `json:"player1Code"`
	Player2Code   string `json:"player2Code"`
	Player1UserID string `json:"player1UserId"`
	Player2UserID string `json:"player2UserId"`
	StartAt       string `json:"startAt"`
}

// EachCodePair visits the players of every stored game in start order.
func (r *ResultRepository) EachCodePair(ctx context.Context, fn func(pair CodePair, index int) error) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	opts := rowstore.QueryOptions{
		Select: &rowstore.Select{Columns: []string{"player1Code", "player2Code", "player1UserId", "player2UserId", "startAt"}},
		Sort:   &rowstore.Sort{By: "startAt", Direction: rowstore.Asc},
	}
	return store.QueryRowsBatch(ctx, TableResults, opts, constants.DBBatchSize, func(row rowstore.Row, index int) error {
		var pair CodePair
		if err := rowstore.FromRow(row, &pair); err != nil {
			return err
		}
		return fn(pair, index)
	})
}

// FilesNotExist returns the paths that have no row in table. Results are
// matched by file name and invalid results by full path.
func (r *ResultRepository) FilesNotExist(ctx context.Context, table string, paths []string, byPath bool) ([]string, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	column := "slpFile"
	if byPath {
		column = "slpFilePath"
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		if byPath {
			keys[i] = p
		} else {
			keys[i] = filepath.Base(p)
		}
	}

	existing := make(map[string]bool)
	for start := 0; start < len(keys); start += constants.ExistsBatchSize {
		end := min(start+constants.ExistsBatchSize, len(keys))
		batch := keys[start:end]
		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			column, table, column, strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", "))
		rows, err := store.All(ctx, table, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing files in %s: %w", table, err)
		}
		for _, row := range rows {
			if s, ok := row[column].(string); ok {
				existing[s] = true
			}
		}
	}

	out := make([]string, 0, len(paths))
	for i, p := range paths {
		if !existing[keys[i]] {
			out = append(out, p)
		}
	}
	return out, nil
}
