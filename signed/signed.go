// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signed factors signing and verification out of the rest of
// the system behind a KeyBox capability. A Signed value is only ever
// produced by a successful Sign or Check, so downstream code can treat
// "I hold a Signed[T]" as proof the signature verified — it never
// re-checks.
package signed

import (
	"errors"
	"fmt"

	"github.com/luxfi/rush/unit"
)

// ErrBadSignature is returned by Check when a signature does not
// verify against the payload's claimed signer.
var ErrBadSignature = errors.New("signed: signature does not verify")

// KeyBox is the abstract cryptographic capability the envelope is
// built on. Concrete primitives (which scheme, which curve, how keys
// are distributed) are an external collaborator — see
// signed.BLSKeyBox for one concrete instantiation, used by the example
// binary.
type KeyBox interface {
	// Sign signs bytes with the box's own key. Signing may be slow
	// and blocking; member.Member calls it inline on its reactor
	// goroutine, without offloading it.
	Sign(bytes []byte) ([]byte, error)
	// Verify checks sig against bytes under the authority at signer.
	// It must run in constant time with respect to the signature and
	// payload contents.
	Verify(bytes, sig []byte, signer unit.NodeIndex) bool
	// Index returns the local node's index. ok is false for a box
	// that holds only public verification material.
	Index() (index unit.NodeIndex, ok bool)
}

// Signable is a payload that can produce the bytes a KeyBox signs.
type Signable interface {
	BytesToSign() ([]byte, error)
}

// Indexed is a payload that names its own expected signer.
type Indexed interface {
	Index() unit.NodeIndex
}

// Payload is the full constraint required to sign or check a value:
// it must be able to render itself to bytes and name its signer.
type Payload interface {
	Signable
	Indexed
}

// UncheckedSigned is a signed payload as it arrives over the wire:
// untrusted until Check succeeds.
type UncheckedSigned[T Payload] struct {
	Signable  T
	Signature []byte
}

// Check verifies an UncheckedSigned against keyBox, producing a
// Signed value on success. This is the only way to obtain a Signed —
// by construction, its existence is proof of a valid signature.
func (u UncheckedSigned[T]) Check(keyBox KeyBox) (Signed[T], error) {
	bytes, err := u.Signable.BytesToSign()
	if err != nil {
		return Signed[T]{}, fmt.Errorf("signed: encode payload: %w", err)
	}
	if !keyBox.Verify(bytes, u.Signature, u.Signable.Index()) {
		return Signed[T]{}, ErrBadSignature
	}
	return Signed[T]{unchecked: u}, nil
}

// Signed is a payload whose signature has already been verified.
type Signed[T Payload] struct {
	unchecked UncheckedSigned[T]
}

// Sign signs payload with keyBox and wraps it as Signed. Signing is
// potentially slow; see KeyBox.Sign.
func Sign[T Payload](keyBox KeyBox, payload T) (Signed[T], error) {
	bytes, err := payload.BytesToSign()
	if err != nil {
		return Signed[T]{}, fmt.Errorf("signed: encode payload: %w", err)
	}
	sig, err := keyBox.Sign(bytes)
	if err != nil {
		return Signed[T]{}, fmt.Errorf("signed: sign: %w", err)
	}
	return Signed[T]{unchecked: UncheckedSigned[T]{Signable: payload, Signature: sig}}, nil
}

// Unchecked returns the wire form of a Signed value, for transmission
// or storage inside an alert.
func (s Signed[T]) Unchecked() UncheckedSigned[T] {
	return s.unchecked
}

// Payload returns the verified signable payload.
func (s Signed[T]) Payload() T {
	return s.unchecked.Signable
}

// Signature returns the verified signature bytes.
func (s Signed[T]) Signature() []byte {
	return s.unchecked.Signature
}
