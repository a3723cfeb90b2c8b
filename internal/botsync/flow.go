package botsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	fieldName = "name"
	fieldID   = "id"
)

// Flow is one conversational flow document. Fields are kept as raw JSON so
// content the sync does not interpret is forwarded byte-for-byte.
type Flow map[string]json.RawMessage

// Airules is the bot's ordered rule list. A nil value means the local
// document is absent; an empty non-nil value is present and still synced.
type Airules []json.RawMessage

// Label is a label record returned by the studio, unmodified.
type Label = json.RawMessage

// ParseFlow decodes a JSON object into a Flow.
func ParseFlow(data []byte) (Flow, error) {
	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow document is null")
	}
	return flow, nil
}

// ParseAirules decodes a JSON array, or null for absent airules.
func ParseAirules(data []byte) (Airules, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var rules Airules
	if err := json.Unmarshal(trimmed, &rules); err != nil {
		return nil, err
	}
	if rules == nil {
		rules = Airules{}
	}
	return rules, nil
}

func (f Flow) Name() string {
	return rawString(f[fieldName])
}

// ID returns the remote id in path form: a JSON string is unquoted, any
// other JSON value is returned as its literal text.
func (f Flow) ID() string {
	return rawString(f[fieldID])
}

func (f Flow) HasID() bool {
	raw, ok := f[fieldID]
	return ok && len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Clone returns a shallow copy; raw values are immutable once decoded.
func (f Flow) Clone() Flow {
	if f == nil {
		return nil
	}
	out := make(Flow, len(f))
	for key, value := range f {
		out[key] = value
	}
	return out
}

// Merge overlays local onto remote. Fields only on the remote side survive,
// every local field wins, and the remote id is always retained.
func Merge(remote, local Flow) Flow {
	merged := remote.Clone()
	if merged == nil {
		merged = Flow{}
	}
	for key, value := range local {
		merged[key] = value
	}
	if id, ok := remote[fieldID]; ok {
		merged[fieldID] = id
	}
	return merged
}

func rawString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(trimmed))
}
