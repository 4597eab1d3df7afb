package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure the JSONB-backed types implement both sql.Scanner and
// driver.Valuer, catching signature drift at compile time rather than at
// runtime. Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*Subscription)(nil)
	_ driver.Valuer = Subscription{}
	_ sql.Scanner   = (*Order)(nil)
	_ driver.Valuer = Order{}
	_ sql.Scanner   = (*AddOnHistory)(nil)
	_ driver.Valuer = AddOnHistory(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go
// pointer. It handles nil values, []byte, and string representations from
// different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (s *Subscription) Scan(value interface{}) error {
	return scanJSONB(s, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s Subscription) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (o *Order) Scan(value interface{}) error {
	return scanJSONB(o, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (o Order) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (h *AddOnHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	return scanJSONB(h, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (h AddOnHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}
