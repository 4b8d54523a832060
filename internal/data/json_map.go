package data

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap maps a free-form JSON object column (worker caps, job limits) onto
// a Go map. Stored as TEXT.
type JSONMap map[string]any

var (
	_ driver.Valuer = (JSONMap)(nil)
	_ sql.Scanner   = (*JSONMap)(nil)
)

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling JSONMap: %w", err)
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unexpected type %T for JSONMap", value)
	}

	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Bool reads a boolean key, falling back to def when absent or non-boolean.
func (m JSONMap) Bool(key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// Int reads a numeric key, falling back to def when absent or non-numeric.
// JSON numbers decode as float64.
func (m JSONMap) Int(key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}
