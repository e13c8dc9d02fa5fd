package rowstore

import (
	"fmt"
	"strconv"
	"strings"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders by a column, or by Expr with Args bound when Expr is set.
type Sort struct {
	By        string
	Expr      string
	Args      []any
	Direction Direction
}

// Select picks the projection. The zero value selects every column.
type Select struct {
	Columns []string
	Except  []string
	Raw     string
}

type Pagination struct {
	size   int
	offset int
}

// Limit returns at most n rows.
func Limit(n int) *Pagination { return &Pagination{size: n, offset: -1} }

// Page returns page (zero based) of the given size.
func Page(page, size int) *Pagination { return &Pagination{size: size, offset: page * size} }

func Offset(offset, size int) *Pagination { return &Pagination{size: size, offset: offset} }

func (p *Pagination) clause() string {
	if p.offset < 0 {
		return " LIMIT " + strconv.Itoa(p.size)
	}
	return " LIMIT " + strconv.Itoa(p.size) + " OFFSET " + strconv.Itoa(p.offset)
}

type QueryOptions struct {
	Where      Where
	Sort       *Sort
	Pagination *Pagination
	Select     *Select
}

func (s Schema) selectClause(table string, sel *Select) (string, error) {
	switch {
	case sel == nil:
		return "*", nil
	case sel.Raw != "":
		return sel.Raw, nil
	case len(sel.Columns) > 0:
		for _, c := range sel.Columns {
			if err := validIdentifier(c); err != nil {
				return "", err
			}
		}
		return strings.Join(sel.Columns, ", "), nil
	case sel.Except != nil:
		cols, err := s.ColumnsExcept(table, sel.Except...)
		if err != nil {
			return "", err
		}
		return strings.Join(cols, ", "), nil
	}
	return "*", nil
}

// BuildSelect renders the SELECT statement for opts against table.
func (s Schema) BuildSelect(table string, opts QueryOptions) (string, []any, error) {
	if err := validIdentifier(table); err != nil {
		return "", nil, err
	}
	cols, err := s.selectClause(table, opts.Select)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	var args []any
	b.WriteString("SELECT " + cols + " FROM " + table)

	if opts.Where != nil {
		cond, vals, err := Compile(opts.Where)
		if err != nil {
			return "", nil, err
		}
		if cond != "" {
			b.WriteString(" WHERE " + cond)
			args = append(args, vals...)
		}
	}

	if opts.Sort != nil && (opts.Sort.By != "" || opts.Sort.Expr != "") {
		dir := opts.Sort.Direction
		if dir == "" {
			dir = Asc
		}
		if dir != Asc && dir != Desc {
			return "", nil, fmt.Errorf("invalid sort direction %q", dir)
		}
		if opts.Sort.Expr != "" {
			b.WriteString(" ORDER BY " + opts.Sort.Expr + " " + string(dir))
			args = append(args, opts.Sort.Args...)
		} else {
			if err := validIdentifier(opts.Sort.By); err != nil {
				return "", nil, err
			}
			b.WriteString(" ORDER BY " + opts.Sort.By + " " + string(dir))
		}
	}

	if opts.Pagination != nil {
		b.WriteString(opts.Pagination.clause())
	}
	return b.String(), args, nil
}
