package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/database"
	"slippi-tracker/internal/domain"
	"slippi-tracker/internal/repository"
	"slippi-tracker/internal/rowstore"
)

// importTables is the copy order; results must follow stats.
var importTables = []string{
	repository.TableStats,
	repository.TableResults,
	repository.TablePlayers,
	repository.TableRanks,
	repository.TableCharacterNotes,
}

type ImportService struct {
	handle  *repository.Handle
	stats   *StatsService
	emitter domain.Emitter
	logger  zerolog.Logger
}

func NewImportService(handle *repository.Handle, stats *StatsService, emitter domain.Emitter, logger zerolog.Logger) *ImportService {
	return &ImportService{
		handle:  handle,
		stats:   stats,
		emitter: emitter,
		logger:  logger,
	}
}

// ImportDatabase copies the rows of another tracker database into the
// current one. Stats ids are reassigned and the results pointing at them
// are rewritten.
func (s *ImportService) ImportDatabase(ctx context.Context, path string) error {
	dst, err := s.handle.Store()
	if err != nil {
		return err
	}
	db, err := database.OpenReadOnly(path, s.logger)
	if err != nil {
		return err
	}
	defer db.Close()
	src := rowstore.New(db, repository.Schema, s.logger)

	s.emitter.Emit(domain.EventDBImportStart, nil)
	s.logger.Info().Str("path", path).Msg("importing database")

	statsIDs := map[int64]int64{}
	for _, table := range importTables {
		if err := s.importTable(ctx, src, dst, table, statsIDs); err != nil {
			return fmt.Errorf("failed to import %s: %w", table, err)
		}
	}

	s.stats.Invalidate(nil)
	s.emitter.Emit(domain.EventDBImportFinish, nil)
	s.logger.Info().Str("path", path).Msg("database import finished")
	return nil
}

func (s *ImportService) importTable(ctx context.Context, src, dst *rowstore.Store, table string, statsIDs map[int64]int64) error {
	progress := domain.ImportRowPayload{Table: table}
	opts := rowstore.ImportOptions{
		BatchSize: constants.ImportBatchSize,
		OnStart: func(count int) {
			s.emitter.Emit(domain.EventDBImportTableStart, domain.ImportTablePayload{Table: table, Rows: count})
		},
		OnSucceeded: func(oldRow, newRow rowstore.Row) {
			if table == repository.TableStats {
				statsIDs[oldRow.ID()] = newRow.ID()
			}
			progress.Success++
			s.emitter.Emit(domain.EventDBImportRow, progress)
		},
		OnFailed: func(row rowstore.Row, err error) {
			progress.Failed++
			s.emitter.Emit(domain.EventDBImportRow, progress)
		},
	}
	if table == repository.TableResults {
		opts.OnBeforeInsert = func(row rowstore.Row) rowstore.Row {
			return remapStatsID(row, statsIDs)
		}
	}
	if err := dst.ImportTable(ctx, src, table, opts); err != nil {
		return err
	}
	s.logger.Info().Str("table", table).Int("imported", progress.Success).Int("failed", progress.Failed).Msg("table imported")
	return nil
}

func remapStatsID(row rowstore.Row, statsIDs map[int64]int64) rowstore.Row {
	old, ok := row["statsId"]
	if !ok || old == nil {
		return row
	}
	id, ok := old.(int64)
	if ok {
		if newID, found := statsIDs[id]; found {
			row["statsId"] = newID
			return row
		}
	}
	delete(row, "statsId")
	return row
}

// ExportDatabase copies the database file to path after flushing the
// write-ahead log.
func (s *ImportService) ExportDatabase(ctx context.Context, dbPath, path string) error {
	store, err := s.handle.Store()
	if err != nil {
		return err
	}
	if err := database.Checkpoint(store.DB()); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}
	if err := copyFile(dbPath, path); err != nil {
		return err
	}
	s.logger.Info().Str("path", path).Msg("database exported")
	return nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer in.Close()

	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy database: %w", err)
	}
	return out.Close()
}
