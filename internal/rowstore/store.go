package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

type Store struct {
	db     *sql.DB
	schema Schema
	logger zerolog.Logger
}

func New(db *sql.DB, schema Schema, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		schema: schema,
		logger: logger,
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Schema() Schema { return s.schema }

// QueryRows runs a select against table and decodes every row.
func (s *Store) QueryRows(ctx context.Context, table string, opts QueryOptions) ([]Row, error) {
	query, args, err := s.schema.BuildSelect(table, opts)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, table, query, args...)
}

// QueryRow returns the first matching row or nil.
func (s *Store) QueryRow(ctx context.Context, table string, opts QueryOptions) (Row, error) {
	if opts.Pagination == nil {
		opts.Pagination = Page(0, 1)
	}
	rows, err := s.QueryRows(ctx, table, opts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *Store) QueryRowsWhere(ctx context.Context, table string, where Where, opts QueryOptions) ([]Row, error) {
	opts.Where = where
	return s.QueryRows(ctx, table, opts)
}

// QueryRowsBatch pages through every matching row, calling fn with a
// running index. No statement is held open while fn runs.
func (s *Store) QueryRowsBatch(ctx context.Context, table string, opts QueryOptions, batchSize int, fn func(row Row, index int) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	count, err := s.CountRows(ctx, table, opts)
	if err != nil {
		return err
	}
	index := 0
	for page := 0; page*batchSize < count; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		opts.Pagination = Page(page, batchSize)
		rows, err := s.QueryRows(ctx, table, opts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := fn(row, index); err != nil {
				return err
			}
			index++
		}
	}
	return nil
}

func (s *Store) CountRows(ctx context.Context, table string, opts QueryOptions) (int, error) {
	query, args, err := s.schema.BuildSelect(table, opts)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) AS count FROM ("+query+")", args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows from %s: %w", table, err)
	}
	return count, nil
}

// InsertOne inserts the registry columns present in row and returns the row
// with its new id.
func (s *Store) InsertOne(ctx context.Context, table string, row Row) (Row, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	keys := s.knownKeys(table, row, false)
	if len(keys) == 0 {
		return nil, fmt.Errorf("no insertable columns for %s", table)
	}
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		v, err := s.encodeValue(table, k, row[k], false)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), placeholders(len(keys), "?"))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	out := row.Clone()
	if _, ok := row["id"]; !ok || row["id"] == nil {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read inserted id: %w", err)
		}
		out["id"] = id
	}
	return out, nil
}

// UpdateOne writes the registry columns present in update to the row with id.
func (s *Store) UpdateOne(ctx context.Context, table string, id any, update Row) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	keys := s.knownKeys(table, update, true)
	if len(keys) == 0 {
		return nil
	}
	assignments := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		v, err := s.encodeValue(table, k, update[k], true)
		if err != nil {
			return err
		}
		assignments = append(assignments, k+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(assignments, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error().Err(err).Str("table", table).Interface("id", id).Msg("Failed to update row")
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// Upsert updates the row matching every key column or inserts row when there
// is none. Without keys, or when row lacks one of them, it always inserts.
func (s *Store) Upsert(ctx context.Context, table string, row Row, keys ...string) (Row, error) {
	if len(keys) == 0 {
		return s.InsertOne(ctx, table, row)
	}
	match := Fields{}
	for _, k := range keys {
		v, ok := row[k]
		if !ok {
			return s.InsertOne(ctx, table, row)
		}
		match[k] = v
	}

	found, err := s.QueryRow(ctx, table, QueryOptions{Where: match})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return s.InsertOne(ctx, table, row)
	}

	merged := found.Merge(row)
	merged["id"] = found["id"]
	if err := s.UpdateOne(ctx, table, found["id"], merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// DeleteRow deletes the first row matching where.
func (s *Store) DeleteRow(ctx context.Context, table string, where Where) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	cond, args, err := Compile(where)
	if err != nil {
		return err
	}
	if cond == "" {
		cond = "1 = 1"
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE %s LIMIT 1)", table, table, cond)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete row from %s: %w", table, err)
	}
	return nil
}

// DeleteRows deletes every row matching where, or every row when where is nil.
func (s *Store) DeleteRows(ctx context.Context, table string, where Where) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	cond, args, err := Compile(where)
	if err != nil {
		return err
	}
	query := "DELETE FROM " + table
	if cond != "" {
		query += " WHERE " + cond
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error().Err(err).Str("table", table).Str("where", cond).Msg("Failed to delete rows")
		return fmt.Errorf("failed to delete rows from %s: %w", table, err)
	}
	return nil
}

// All runs a raw parameterized query. Rows are decoded with the column
// types of table when it is in the schema.
func (s *Store) All(ctx context.Context, table, query string, args ...any) ([]Row, error) {
	return s.query(ctx, table, query, args...)
}

func (s *Store) query(ctx context.Context, table, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query on %s failed: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		if err := s.parseRow(table, row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) parseRow(table string, row Row) error {
	for _, c := range s.schema[table] {
		v, ok := row[c.Name]
		if !ok {
			continue
		}
		switch {
		case c.Type.IsJSON():
			str, isStr := v.(string)
			if !isStr {
				continue
			}
			if str == "" {
				row[c.Name] = nil
				continue
			}
			var decoded any
			if err := decodeJSON([]byte(str), &decoded); err != nil {
				return fmt.Errorf("column %s.%s holds invalid json: %w", table, c.Name, err)
			}
			row[c.Name] = decoded
		case c.Type == Boolean:
			row[c.Name] = truthy(v)
		}
	}
	return nil
}

func (s *Store) knownKeys(table string, row Row, skipID bool) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if skipID && k == "id" {
			continue
		}
		if _, ok := s.schema.Column(table, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) encodeValue(table, column string, v any, strict bool) (any, error) {
	col, _ := s.schema.Column(table, column)
	if v == nil {
		return nil, nil
	}
	if col.Type.IsJSON() {
		data, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", table, column, err)
		}
		return data, nil
	}
	switch t := v.(type) {
	case bool:
		return bindValue(t), nil
	case string, int, int32, int64, float32, float64:
		return t, nil
	}
	if strict {
		return nil, fmt.Errorf("expected non object value for table: %s column: %s", table, column)
	}
	data, err := marshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s.%s: %w", table, column, err)
	}
	return data, nil
}
