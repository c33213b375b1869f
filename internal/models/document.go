package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a structured JSON document stored in a JSONB column.
type Document map[string]any

// Value implements driver.Valuer. A nil document is stored as {} rather than NULL.
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
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
		return fmt.Errorf("scan document: unsupported type %T", src)
	}

	if len(raw) == 0 {
		*d = Document{}
		return nil
	}

	// Numbers stay json.Number so integers beyond 2^53 read back unchanged.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("scan document: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	*d = m
	return nil
}

// ErrNotADocument is returned when a JSON payload is not an object.
var ErrNotADocument = errors.New("payload must be a JSON object")
