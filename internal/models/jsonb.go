package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONB custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(j))
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*j = JSONB(m)
	return nil
}

// Get decodes the value stored under key into out via a JSON round trip.
// Returns false if the key is absent.
func (j JSONB) Get(key string, out interface{}) bool {
	raw, ok := j[key]
	if !ok || raw == nil {
		return false
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(bytes, out) == nil
}

// Set stores v under key as a plain JSON value so the bag stays
// round-trippable through the driver.
func (j JSONB) Set(key string, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return
	}
	var plain interface{}
	if err := json.Unmarshal(bytes, &plain); err != nil {
		return
	}
	j[key] = plain
}
