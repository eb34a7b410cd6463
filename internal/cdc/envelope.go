// Package cdc decodes Debezium change events.
//
// Only logical creates (op "c" for inserts and "r" for snapshot reads) carry a
// payload; updates, deletes and anything unparsable decode to "no record".
// Decoding never fails loudly: a record that does not parse now never will.
package cdc

import (
	"bytes"
	"encoding/json"
)

// Op is the Debezium operation code
type Op string

const (
	OpCreate Op = "c"
	OpRead   Op = "r" // Initial snapshot read
	OpUpdate Op = "u"
	OpDelete Op = "d"
)

// IsCreate reports whether the operation denotes a logical create
func (o Op) IsCreate() bool {
	return o == OpCreate || o == OpRead
}

// Envelope is the Debezium change event envelope
type Envelope[T any] struct {
	Before *T              `json:"before"`
	After  *T              `json:"after"`
	Op     Op              `json:"op"`
	Source json.RawMessage `json:"source,omitempty"`
}

// schemaWrapper is the shape produced by the JSON converter with schemas enabled
type schemaWrapper struct {
	Schema  json.RawMessage `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses raw as an envelope and returns its after payload for create events.
// It returns false for non-create operations, a null after, or malformed input.
func Decode[T any](raw []byte) (*T, bool) {
	env, ok := DecodeEnvelope[T](raw)
	if !ok || !env.Op.IsCreate() || env.After == nil {
		return nil, false
	}
	return env.After, true
}

// DecodeEnvelope parses the full envelope regardless of its operation
func DecodeEnvelope[T any](raw []byte) (*Envelope[T], bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	var env Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	if env.Op == "" {
		var wrapped schemaWrapper
		if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Payload) == 0 {
			return nil, false
		}
		env = Envelope[T]{}
		if err := json.Unmarshal(wrapped.Payload, &env); err != nil || env.Op == "" {
			return nil, false
		}
	}

	return &env, true
}
