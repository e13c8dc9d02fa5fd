package rowstore

import (
	"context"
)

type ImportOptions struct {
	BatchSize      int
	OnStart        func(count int)
	OnBeforeInsert func(row Row) Row
	OnSucceeded    func(oldRow, newRow Row)
	OnFailed       func(row Row, err error)
}

// ImportTable copies every row of table from another store into s. Integer
// ids are reassigned and a failing row is reported and skipped.
func (s *Store) ImportTable(ctx context.Context, from *Store, table string, opts ImportOptions) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	count, err := from.CountRows(ctx, table, QueryOptions{})
	if err != nil {
		return err
	}
	if opts.OnStart != nil {
		opts.OnStart(count)
	}

	for page := 0; page*batchSize < count; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := from.QueryRows(ctx, table, QueryOptions{Pagination: Page(page, batchSize)})
		if err != nil {
			return err
		}
		for _, old := range rows {
			record := old.Clone()
			if opts.OnBeforeInsert != nil {
				record = opts.OnBeforeInsert(record)
			}
			if pk, ok := s.schema.Column(table, "id"); !ok || pk.Type == Integer {
				delete(record, "id")
			}
			inserted, err := s.InsertOne(ctx, table, record)
			if err != nil {
				s.logger.Debug().Err(err).Str("table", table).Int64("id", old.ID()).Msg("Import row failed")
				if opts.OnFailed != nil {
					opts.OnFailed(old, err)
				}
				continue
			}
			if opts.OnSucceeded != nil {
				opts.OnSucceeded(old, inserted)
			}
		}
	}
	return nil
}
