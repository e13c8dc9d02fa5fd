package rowstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is a single record keyed by column name.
type Row map[string]any

// ID returns the integer id of the row, or 0.
func (r Row) ID() int64 {
	return toInt64(r["id"])
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns r overlaid with other.
func (r Row) Merge(other Row) Row {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ToRow converts a json-tagged struct into a Row.
func ToRow(v any) (Row, error) {
	if r, ok := v.(Row); ok {
		return r.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	var row Row
	if err := decodeJSON(data, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return row, nil
}

// FromRow fills the json-tagged struct out from row.
func FromRow(row Row, out any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode row: %w", err)
	}
	return nil
}

// FromRows decodes every row into a new T.
func FromRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := FromRow(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func marshalValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	normalizeInPlace(out)
	return nil
}

func normalizeInPlace(out any) {
	switch p := out.(type) {
	case *Row:
		for k, v := range *p {
			(*p)[k] = normalize(v)
		}
	case *any:
		*p = normalize(*p)
	}
}

// normalize replaces json.Number values with int64 or float64.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		i, _ := t.Int64()
		return i
	}
	return 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0"
	case []byte:
		return len(t) > 0 && string(t) != "0"
	}
	return true
}
