package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

// marshalDetail converts an event detail to canonical JSON TEXT for storage.
func marshalDetail(detail ir.IRObject) (string, error) {
	if detail == nil {
		detail = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), nil
}

// unmarshalDetail parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON, which keeps integers exact past 2^53.
func unmarshalDetail(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return obj, nil
}
