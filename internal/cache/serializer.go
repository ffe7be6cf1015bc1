package cache

import (
	"encoding/json"
	"fmt"
)

// Encode converts a value to its stored wire representation. Strings and byte
// slices pass through verbatim; everything else is JSON-encoded.
func Encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(data), nil
	}
}

// Decode converts a stored wire representation back into a value. JSON
// payloads decode into their natural Go shapes (map[string]interface{},
// []interface{}, float64, bool, nil). Anything that is not valid JSON is
// returned as the raw string, so plain strings and foreign data written by
// other clients survive a round trip unchanged.
func Decode(raw string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
