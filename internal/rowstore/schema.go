// Package rowstore is a small schema-driven layer over database/sql for
// tables whose rows are handled as loosely typed maps.
package rowstore

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type ColumnType string

const (
	Integer ColumnType = "INTEGER"
	Text    ColumnType = "TEXT"
	Boolean ColumnType = "BOOLEAN"
	Array   ColumnType = "ARRAY"
	Object  ColumnType = "OBJECT"
)

// SQLType is the storage type the column is declared with.
func (t ColumnType) SQLType() string {
	switch t {
	case Array, Object:
		return "TEXT"
	case Boolean:
		return "INTEGER"
	}
	return string(t)
}

func (t ColumnType) IsJSON() bool { return t == Array || t == Object }

type Reference struct {
	Table  string
	Column string
}

type ColumnDef struct {
	Name       string
	Type       ColumnType
	Index      bool
	Unique     bool
	Primary    bool
	References *Reference
}

// Schema maps a table name to its ordered column definitions.
type Schema map[string][]ColumnDef

var (
	ErrCircularDependency    = errors.New("circular dependency detected in table definitions")
	ErrUnsupportedPrimaryKey = errors.New("only integers and strings can be primary keys")
	ErrUnknownTable          = errors.New("table is not defined in the schema")
	ErrInvalidIdentifier     = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func (s Schema) Has(table string) bool {
	_, ok := s[table]
	return ok
}

func (s Schema) Column(table, name string) (ColumnDef, bool) {
	for _, c := range s[table] {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// Columns returns the column names of table in declaration order.
func (s Schema) Columns(table string) []string {
	cols := make([]string, 0, len(s[table]))
	for _, c := range s[table] {
		cols = append(cols, c.Name)
	}
	return cols
}

// ColumnsExcept returns every column of table that is not in except.
func (s Schema) ColumnsExcept(table string, except ...string) ([]string, error) {
	if !s.Has(table) {
		return nil, fmt.Errorf("%w: %s (required to use except)", ErrUnknownTable, table)
	}
	skip := make(map[string]struct{}, len(except))
	for _, e := range except {
		skip[e] = struct{}{}
	}
	var cols []string
	for _, c := range s[table] {
		if _, ok := skip[c.Name]; !ok {
			cols = append(cols, c.Name)
		}
	}
	return cols, nil
}

func (s Schema) tables() []string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// ComputeTableOrder returns the tables in an order where every referenced
// table precedes the tables that reference it.
func ComputeTableOrder(schema Schema) ([]string, error) {
	tables := schema.tables()
	dependents := make(map[string][]string, len(tables))
	indegree := make(map[string]int, len(tables))
	for _, t := range tables {
		indegree[t] = 0
	}

	for _, t := range tables {
		for _, c := range schema[t] {
			if c.References == nil {
				continue
			}
			if !schema.Has(c.References.Table) {
				return nil, fmt.Errorf("%w: %s.%s references unknown table %s",
					ErrCircularDependency, t, c.Name, c.References.Table)
			}
			dependents[c.References.Table] = append(dependents[c.References.Table], t)
			indegree[t]++
		}
	}

	var queue []string
	for _, t := range tables {
		if indegree[t] == 0 {
			queue = append(queue, t)
		}
	}

	order := make([]string, 0, len(tables))
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		order = append(order, t)
		for _, d := range dependents[t] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) != len(tables) {
		var stuck []string
		for _, t := range tables {
			if indegree[t] > 0 {
				stuck = append(stuck, t)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(stuck, ", "))
	}
	return order, nil
}
