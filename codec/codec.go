// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec provides the deterministic, versioned encoding used
// for everything that crosses the wire or gets signed: unit payloads,
// ConsensusMessage, and alerts. The format itself (currently JSON over
// a canonicalized struct shape) is an implementation detail behind
// Marshal/Unmarshal; callers only rely on Marshal being a pure
// function of its input and Unmarshal being its exact inverse.
package codec

import (
	"encoding/json"
	"fmt"
)

// Version identifies the wire format a payload was encoded with.
type Version uint16

// CurrentVersion is the version MarshalVersioned always writes.
const CurrentVersion Version = 0

// Codec is the package-wide encoder/decoder. It has no state and is
// safe for concurrent use.
var Codec = &JSONCodec{}

// JSONCodec implements Marshal/Unmarshal over encoding/json. JSON
// struct encoding is deterministic for the types in this module
// (plain structs and slices, no maps), which gives Marshal-then-
// Unmarshal round-tripping without a custom binary format.
type JSONCodec struct{}

// Marshal encodes v as bare JSON, with no version prefix.
func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalVersioned encodes v and prepends its version, for payloads
// that are stored or transmitted independently of their type (e.g.
// ConsensusMessage on the wire).
func (c *JSONCodec) MarshalVersioned(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	out := make([]byte, 2, 2+len(body))
	out[0] = byte(CurrentVersion >> 8)
	out[1] = byte(CurrentVersion)
	return append(out, body...), nil
}

// Unmarshal decodes data into v.
func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// UnmarshalVersioned decodes a payload produced by MarshalVersioned.
func (c *JSONCodec) UnmarshalVersioned(data []byte, v any) (Version, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("codec: payload too short: %d bytes", len(data))
	}
	version := Version(data[0])<<8 | Version(data[1])
	if version != CurrentVersion {
		return version, fmt.Errorf("codec: unsupported version: %d", version)
	}
	if err := json.Unmarshal(data[2:], v); err != nil {
		return version, fmt.Errorf("codec: unmarshal: %w", err)
	}
	return version, nil
}
