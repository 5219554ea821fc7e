package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RawJSON stores an untyped JSON document (jsonb on postgres, text on sqlite).
type RawJSON json.RawMessage

func (r *RawJSON) Scan(src any) error {
	if src == nil {
		*r = nil
		return nil
	}

	switch v := src.(type) {
	case string:
		*r = RawJSON(append([]byte(nil), v...))
	case []byte:
		*r = RawJSON(append([]byte(nil), v...))
	default:
		return fmt.Errorf("RawJSON: unsupported Scan type %T", src)
	}
	return nil
}

func (r RawJSON) Value() (driver.Value, error) {
	if len(bytes.TrimSpace(r)) == 0 {
		return "{}", nil
	}
	if !json.Valid(r) {
		return nil, fmt.Errorf("RawJSON: invalid document")
	}
	return string(r), nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(r)) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = RawJSON(append([]byte(nil), data...))
	return nil
}

// Object decodes the document into a field map. Non-object documents yield an empty map.
func (r RawJSON) Object() map[string]any {
	out := map[string]any{}
	if len(bytes.TrimSpace(r)) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return map[string]any{}
	}
	return out
}
