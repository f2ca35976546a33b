package storage

import (
	"encoding/json"
	"fmt"
)

// envelope wraps every stored value with its write time and expiry, both in
// Unix milliseconds.
type envelope struct {
	Data      json.RawMessage
	Timestamp int64
	Expires   int64
}

// fieldAliases is the fixed renaming applied to envelope keys before a value
// is written. It only shortens the three wrapper keys; it is not compression
// and never touches the payload. Reads accept both spellings.
var fieldAliases = map[string]string{
	"data":      "d",
	"timestamp": "t",
	"expires":   "e",
}

var fieldNames = func() map[string]string {
	out := make(map[string]string, len(fieldAliases))
	for long, short := range fieldAliases {
		out[short] = long
	}
	return out
}()

func compress(env envelope) ([]byte, error) {
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}
	ts, err := json.Marshal(env.Timestamp)
	if err != nil {
		return nil, err
	}
	exp, err := json.Marshal(env.Expires)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{
		fieldAliases["data"]:      env.Data,
		fieldAliases["timestamp"]: ts,
		fieldAliases["expires"]:   exp,
	})
}

func expand(raw string) (envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if fields == nil {
		return envelope{}, fmt.Errorf("decode envelope: not an object")
	}

	long := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if name, ok := fieldNames[k]; ok {
			k = name
		}
		long[k] = v
	}

	var env envelope
	data, ok := long["data"]
	if !ok {
		return envelope{}, fmt.Errorf("decode envelope: missing data")
	}
	env.Data = data
	if err := unmarshalField(long, "timestamp", &env.Timestamp); err != nil {
		return envelope{}, err
	}
	if err := unmarshalField(long, "expires", &env.Expires); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func unmarshalField(fields map[string]json.RawMessage, name string, dst *int64) error {
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("decode envelope: missing %s", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode envelope %s: %w", name, err)
	}
	return nil
}
