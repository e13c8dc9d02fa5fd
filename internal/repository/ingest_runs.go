package repository

import (
	"context"
	"database/sql"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
)

// IngestRunRepository keeps the audit trail of folder scans in the
// migration managed ingest_runs table.
type IngestRunRepository struct {
	handle *Handle
	logger zerolog.Logger
}

func NewIngestRunRepository(handle *Handle, logger zerolog.Logger) *IngestRunRepository {
	return &IngestRunRepository{
		handle: handle,
		logger: logger,
	}
}

func (r *IngestRunRepository) Start(ctx context.Context, root string, total int, startedAt int64) (*domain.IngestRun, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nanoid: %w", err)
	}
	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO ingest_runs (id, root, started_at, total) VALUES (?, ?, ?, ?)`,
		id, root, startedAt, total)
	if err != nil {
		return nil, fmt.Errorf("failed to start ingest run: %w", err)
	}
	return &domain.IngestRun{ID: id, Root: root, StartedAt: startedAt, Total: total}, nil
}

func (r *IngestRunRepository) Finish(ctx context.Context, run *domain.IngestRun) error {
	store, err := r.handle.Store()
	if err != nil {
		return err
	}
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE ingest_runs SET finished_at = ?, parsed = ?, failed = ?, cancelled = ? WHERE id = ?`,
		run.FinishedAt, run.Parsed, run.Failed, run.Cancelled, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish ingest run: %w", err)
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first.
func (r *IngestRunRepository) Recent(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	store, err := r.handle.Store()
	if err != nil {
		return nil, err
	}
	rows, err := store.DB().QueryContext(ctx,
		`SELECT id, root, started_at, finished_at, total, parsed, failed, cancelled
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.IngestRun
	for rows.Next() {
		var run domain.IngestRun
		var finished sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Root, &run.StartedAt, &finished, &run.Total, &run.Parsed, &run.Failed, &run.Cancelled); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Int64
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
