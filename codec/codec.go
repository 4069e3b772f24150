// Package codec serializes entities with a versioned envelope so older
// persisted shapes can be upgraded on load. Every write wraps the record
// as {"v":N,"data":{...}}; reads accept the current version, any version
// with a registered upgrader, and bare pre-envelope records. Anything
// else is corruption, reported distinctly from "not found" so maintenance
// operations can remove it instead of crash-looping.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt marks a record that is neither the current schema nor any
// recognized prior schema.
var ErrCorrupt = errors.New("codec: corrupt record")

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Kind describes how one entity kind is encoded. T is the current schema.
type Kind[T any] struct {
	// Version is the current schema version, >= 1.
	Version int
	// Upgrades decode an enveloped record of an older version straight
	// into the current schema, keyed by that older version.
	Upgrades map[int]func(json.RawMessage) (T, error)
	// Legacy decodes a bare, pre-envelope record. Nil means bare records
	// of the current shape are still accepted as-is.
	Legacy func(json.RawMessage) (T, error)
}

// Encode wraps v in the current-version envelope.
func (k Kind[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return json.Marshal(envelope{V: k.Version, Data: data})
}

// Decode parses raw into the current schema. upgraded reports that raw was
// an older shape; the caller should persist the re-encoded value so later
// loads hit the fast path.
func (k Kind[T]) Decode(raw []byte) (v T, upgraded bool, err error) {
	var env envelope
	if jerr := json.Unmarshal(raw, &env); jerr == nil && env.V > 0 && len(env.Data) > 0 {
		if env.V == k.Version {
			if jerr := json.Unmarshal(env.Data, &v); jerr != nil {
				return v, false, fmt.Errorf("%w: v%d payload: %v", ErrCorrupt, env.V, jerr)
			}
			return v, false, nil
		}
		up, ok := k.Upgrades[env.V]
		if !ok {
			return v, false, fmt.Errorf("%w: unknown version %d", ErrCorrupt, env.V)
		}
		v, err = up(env.Data)
		if err != nil {
			return v, false, fmt.Errorf("%w: upgrade from v%d: %v", ErrCorrupt, env.V, err)
		}
		return v, true, nil
	}

	// Bare record written before envelopes existed.
	if !isJSONObject(raw) {
		return v, false, fmt.Errorf("%w: not a JSON object", ErrCorrupt)
	}
	if k.Legacy != nil {
		v, err = k.Legacy(raw)
		if err != nil {
			return v, false, fmt.Errorf("%w: legacy decode: %v", ErrCorrupt, err)
		}
		return v, true, nil
	}
	if jerr := json.Unmarshal(raw, &v); jerr != nil {
		return v, false, fmt.Errorf("%w: %v", ErrCorrupt, jerr)
	}
	return v, true, nil
}

func isJSONObject(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{' && json.Valid(t)
}
