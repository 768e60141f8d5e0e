package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// writeJSON prints v as one line of JSON.
func writeJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return sysError(fmt.Errorf("encode output: %w", err))
	}
	return nil
}

// parseRecord decodes a JSON object argument.
func parseRecord(arg string) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(arg), &rec); err != nil || rec == nil {
		if err == nil {
			err = fmt.Errorf("not an object")
		}
		return nil, userError(fmt.Errorf("invalid record %q: %w", arg, err))
	}
	return rec, nil
}

// parseKey reads a key argument: numbers become numeric keys and anything
// else is a string key. A JSON string literal forces a string key, so "\"42\""
// is the string 42.
func parseKey(arg string) types.Key {
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal([]byte(arg), &s); err == nil {
		return s
	}
	return arg
}
