package rowstore

import (
	"fmt"
	"sort"
	"strings"
)

// Where is a composable filter. Implementations are Fields, Any, All and ID.
type Where interface {
	compile() (string, []any, error)
}

// Fields ANDs one predicate per key. A value may be a scalar, nil (IS NULL),
// a Cond, or a nested Where group whose key is ignored.
type Fields map[string]any

// Any ORs its members.
type Any []Where

// All ANDs its members.
type All []Where

// ID matches the row with the given id.
type ID int64

// Cond holds column operators; every operator that is set is ANDed.
type Cond struct {
	Equal       any
	Includes    string
	LessThan    any
	GreaterThan any
	AtLeast     any
	AtMost      any
	OneOf       []any
	OneOfNoCase []string
	NotOneOf    []any
}

// Compile renders w as a parameterized boolean expression. An empty filter
// compiles to "".
func Compile(w Where) (string, []any, error) {
	if w == nil {
		return "", nil, nil
	}
	return w.compile()
}

func (id ID) compile() (string, []any, error) {
	return "id = ?", []any{int64(id)}, nil
}

func (a Any) compile() (string, []any, error) { return group(a, " OR ") }
func (a All) compile() (string, []any, error) { return group(a, " AND ") }

func group(members []Where, sep string) (string, []any, error) {
	var parts []string
	var args []any
	for _, m := range members {
		if m == nil {
			continue
		}
		cond, vals, err := m.compile()
		if err != nil {
			return "", nil, err
		}
		if cond == "" {
			continue
		}
		parts = append(parts, "("+cond+")")
		args = append(args, vals...)
	}
	return strings.Join(parts, sep), args, nil
}

func (f Fields) compile() (string, []any, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	var args []any
	for _, key := range keys {
		switch v := f[key].(type) {
		case Any, All, Fields:
			cond, vals, err := v.(Where).compile()
			if err != nil {
				return "", nil, err
			}
			if cond != "" {
				parts = append(parts, "("+cond+")")
				args = append(args, vals...)
			}
			continue
		}

		if err := validIdentifier(key); err != nil {
			return "", nil, err
		}

		switch v := f[key].(type) {
		case nil:
			parts = append(parts, key+" IS NULL")
		case Cond:
			conds, vals := v.compile(key)
			parts = append(parts, conds...)
			args = append(args, vals...)
		case *Cond:
			if v == nil {
				parts = append(parts, key+" IS NULL")
				continue
			}
			conds, vals := v.compile(key)
			parts = append(parts, conds...)
			args = append(args, vals...)
		case map[string]any, []any:
			return "", nil, fmt.Errorf("unsupported value for where key %s: %T", key, v)
		default:
			parts = append(parts, key+" = ?")
			args = append(args, bindValue(v))
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func (c Cond) compile(key string) ([]string, []any) {
	var parts []string
	var args []any
	if c.Equal != nil {
		parts = append(parts, key+" = ?")
		args = append(args, bindValue(c.Equal))
	}
	if c.Includes != "" {
		parts = append(parts, key+` LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(c.Includes)+"%")
	}
	if c.LessThan != nil {
		parts = append(parts, key+" < ?")
		args = append(args, bindValue(c.LessThan))
	}
	if c.GreaterThan != nil {
		parts = append(parts, key+" > ?")
		args = append(args, bindValue(c.GreaterThan))
	}
	if c.AtLeast != nil {
		parts = append(parts, key+" >= ?")
		args = append(args, bindValue(c.AtLeast))
	}
	if c.AtMost != nil {
		parts = append(parts, key+" <= ?")
		args = append(args, bindValue(c.AtMost))
	}
	if c.OneOf != nil {
		parts = append(parts, key+" IN ("+placeholders(len(c.OneOf), "?")+")")
		for _, v := range c.OneOf {
			args = append(args, bindValue(v))
		}
	}
	if c.OneOfNoCase != nil {
		parts = append(parts, key+" COLLATE NOCASE IN ("+placeholders(len(c.OneOfNoCase), "?")+")")
		for _, v := range c.OneOfNoCase {
			args = append(args, v)
		}
	}
	if c.NotOneOf != nil {
		parts = append(parts, key+" NOT IN ("+placeholders(len(c.NotOneOf), "?")+")")
		for _, v := range c.NotOneOf {
			args = append(args, bindValue(v))
		}
	}
	return parts, args
}

// Strings converts a string slice for use in OneOf and NotOneOf.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Ints converts an int slice for use in OneOf and NotOneOf.
func Ints(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func placeholders(n int, p string) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat(p+", ", n), ", ")
}

func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
