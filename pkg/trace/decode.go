package trace

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ErrNoLog is returned by Decode for a document without log entries
var ErrNoLog = errors.New("document contains no propagation log")

// Decode reads a propagation log saved to disk. It accepts either the bare JSON
// array of entries or a whole analysis response object with a "log" field.
func Decode(data []byte) ([]RawEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoLog
	}

	if data[0] == '[' {
		var raw []RawEntry
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "decode log array")
		}
		return raw, nil
	}

	var doc struct {
		Log []RawEntry `json:"log"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode analysis response")
	}
	if doc.Log == nil {
		return nil, errors.WithHint(ErrNoLog, `expected an array of entries or an object with a "log" field`)
	}
	return doc.Log, nil
}
