package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseColumns decodes a JSON object of column name to type declaration,
// keeping the order in which the columns appear.
func ParseColumns(raw string) ([]Column, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("invalid metadata: expected a JSON object of column types")
	}

	var columns []Column
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %w", err)
		}
		name, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %w", err)
		}
		typ, ok := value.(string)
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(typ) == "" {
			return nil, errors.New("invalid metadata: empty or undefined key or value found")
		}
		columns = append(columns, Column{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid metadata JSON: trailing data")
	}
	if len(columns) == 0 {
		return nil, errors.New("invalid metadata: empty or undefined metadata object")
	}
	return columns, nil
}

// ParseRows decodes a JSON array of row objects. Integral numbers become
// int64, other numbers float64, and nested values are re-encoded as JSON
// text so they can be bound as parameters.
func ParseRows(raw string) ([]Row, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("invalid data JSON: expected an array of objects: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid data JSON: trailing data")
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		if len(item) == 0 {
			return nil, fmt.Errorf("invalid data: row %d is empty", i)
		}
		row := make(Row, len(item))
		for key, value := range item {
			normalized, err := normalizeValue(value)
			if err != nil {
				return nil, fmt.Errorf("invalid data: row %d column %q: %w", i, key, err)
			}
			row[key] = normalized
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return strings.TrimSpace(buf.String()), nil
	}
}
