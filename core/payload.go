package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload is a decoded JSON webhook body with path helpers. Missing paths
// yield zero values so extractors only fail on shapes they actually require.
type Payload map[string]any

func ParsePayload(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("core: payload is empty")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var decoded map[string]any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("core: payload is not a json object: %w", err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("core: payload is not a json object")
	}
	return Payload(decoded), nil
}

func (p Payload) Lookup(path ...string) (any, bool) {
	var current any = map[string]any(p)
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func (p Payload) Has(path ...string) bool {
	_, ok := p.Lookup(path...)
	return ok
}

func (p Payload) String(path ...string) string {
	value, ok := p.Lookup(path...)
	if !ok {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

func (p Payload) Int(path ...string) int64 {
	value, ok := p.Lookup(path...)
	if !ok {
		return 0
	}
	switch typed := value.(type) {
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case float64:
		return int64(typed)
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func (p Payload) Bool(path ...string) bool {
	value, ok := p.Lookup(path...)
	if !ok {
		return false
	}
	typed, _ := value.(bool)
	return typed
}

func (p Payload) Object(path ...string) Payload {
	value, ok := p.Lookup(path...)
	if !ok {
		return nil
	}
	if typed, ok := value.(map[string]any); ok {
		return Payload(typed)
	}
	return nil
}

func (p Payload) List(path ...string) []any {
	value, ok := p.Lookup(path...)
	if !ok {
		return nil
	}
	typed, _ := value.([]any)
	return typed
}

// Objects returns the object elements of the list at path.
func (p Payload) Objects(path ...string) []Payload {
	items := p.List(path...)
	out := make([]Payload, 0, len(items))
	for _, item := range items {
		if typed, ok := item.(map[string]any); ok {
			out = append(out, Payload(typed))
		}
	}
	return out
}

// Time parses an RFC3339 string or a unix seconds number.
func (p Payload) Time(path ...string) (time.Time, bool) {
	value, ok := p.Lookup(path...)
	if !ok {
		return time.Time{}, false
	}
	switch typed := value.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(typed))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	case json.Number:
		seconds, err := typed.Int64()
		if err != nil || seconds <= 0 {
			return time.Time{}, false
		}
		return time.Unix(seconds, 0).UTC(), true
	}
	return time.Time{}, false
}
