package rowstore

import (
	"context"
	"fmt"
	"strings"
)

// InitTables creates every table of the schema, referenced tables first.
func (s *Store) InitTables(ctx context.Context) error {
	order, err := ComputeTableOrder(s.schema)
	if err != nil {
		return err
	}
	for _, table := range order {
		if err := s.CreateTable(ctx, table); err != nil {
			return err
		}
	}
	s.logger.Info().Strs("tables", order).Msg("Tables initialized")
	return nil
}

// CreateTable creates table if needed, adds registry columns missing from an
// older table and creates the declared indexes.
func (s *Store) CreateTable(ctx context.Context, table string) error {
	ddl, err := s.schema.createTableSQL(table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		s.logger.Error().Err(err).Str("table", table).Msg("Failed to create table")
		return fmt.Errorf("failed to create %s table: %w", table, err)
	}
	if err := s.addMissingColumns(ctx, table); err != nil {
		return err
	}
	for _, stmt := range s.schema.indexSQL(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", table, err)
		}
	}
	return nil
}

func (s Schema) createTableSQL(table string) (string, error) {
	cols, ok := s[table]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err := validIdentifier(table); err != nil {
		return "", err
	}

	var defs []string
	for _, c := range cols {
		def, err := columnSQL(c)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", table, c.Name, err)
		}
		defs = append(defs, def)
	}
	for _, c := range cols {
		if c.References != nil {
			defs = append(defs, fmt.Sprintf("FOREIGN KEY(%s) REFERENCES %s(%s)",
				c.Name, c.References.Table, c.References.Column))
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", ")), nil
}

func columnSQL(c ColumnDef) (string, error) {
	if err := validIdentifier(c.Name); err != nil {
		return "", err
	}
	def := c.Name + " " + c.Type.SQLType()
	if c.Unique {
		def += " UNIQUE"
	}
	if c.Primary {
		switch c.Type {
		case Text:
			def += " PRIMARY KEY"
		case Integer:
			def += " PRIMARY KEY AUTOINCREMENT"
		default:
			return "", ErrUnsupportedPrimaryKey
		}
	}
	return def, nil
}

func (s Schema) indexSQL(table string) []string {
	var stmts []string
	for _, c := range s[table] {
		if c.Index {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
				table, c.Name, table, c.Name))
		}
	}
	return stmts
}

func (s *Store) addMissingColumns(ctx context.Context, table string) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	existing := map[string]struct{}{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, c := range s.schema[table] {
		if _, ok := existing[c.Name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.Name, c.Type.SQLType())
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", table, c.Name, err)
		}
		s.logger.Info().Str("table", table).Str("column", c.Name).Msg("Added missing column")
	}
	return nil
}
