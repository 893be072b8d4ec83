package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is an open, schema-less key/value structure stored as a JSON
// column. Values may be nested maps, slices, strings, numbers, bools or nil.
type Document map[string]any

// Scan implements sql.Scanner. Postgres returns jsonb as []byte, SQLite as string.
func (d *Document) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported document source type %T", src)
	}

	if len(raw) == 0 {
		*d = Document{}
		return nil
	}

	doc := Document{}
	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	*d = doc
	return nil
}

// Value implements driver.Valuer. A nil document persists as {}.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return string(b), nil
}

// String returns the value under key when it is a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns the value under key when it is a bool.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Int64 returns the numeric value under key. JSON numbers decode as float64.
func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Clone returns a shallow copy. Nested values are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
