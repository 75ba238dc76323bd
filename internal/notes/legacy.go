package notes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// legacyRecord mirrors one entry of the browser-storage "notes" object.
// isPinned was optional there.
type legacyRecord struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	IsPinned bool    `json:"isPinned"`
}

// ParseLegacy decodes a browser-storage notes dump: a JSON object keyed by
// note id. An empty payload or "null" is an empty mapping. Any syntax or shape
// problem returns an empty mapping and ErrCorruptPayload.
func ParseLegacy(payload []byte) (map[string]Record, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]Record{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return map[string]Record{}, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}

	out := make(map[string]Record, len(raw))
	for id, msg := range raw {
		if strings.TrimSpace(id) == "" {
			return map[string]Record{}, fmt.Errorf("%w: empty note id", ErrCorruptPayload)
		}
		var lr legacyRecord
		if err := json.Unmarshal(msg, &lr); err != nil {
			return map[string]Record{}, fmt.Errorf("%w: note %s: %v", ErrCorruptPayload, id, err)
		}
		if lr.Title == nil || lr.Content == nil {
			return map[string]Record{}, fmt.Errorf("%w: note %s lacks title or content", ErrCorruptPayload, id)
		}
		out[id] = Record{Title: *lr.Title, Content: *lr.Content, IsPinned: lr.IsPinned}
	}
	return out, nil
}

// MarshalLegacy encodes records in the browser-storage layout.
func MarshalLegacy(records map[string]Record) ([]byte, error) {
	return json.Marshal(records)
}
