// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package unit defines the cryptographic data model of the DAG: the
// unsigned PreUnit a consensus algorithm produces, the FullUnit that
// gets signed and sent over the wire, the lightweight Unit handed to
// consensus once admitted, and the ControlHash that commits to a
// unit's parents.
package unit

import (
	"fmt"

	"github.com/luxfi/crypto/hashing"
	"github.com/luxfi/ids"

	"github.com/luxfi/rush/codec"
)

// MaxRound bounds every round accepted by a session. Units above it
// are rejected during validation.
const MaxRound Round = 5000

// NodeIndex identifies one of the N authorities in a session.
type NodeIndex uint16

// NodeCount counts authorities, parents, or any other per-session
// quantity bounded by N.
type NodeCount uint16

// Round is a DAG layer. Round r > 0 units reference round r-1 units
// as parents.
type Round uint64

// Threshold returns the quorum size for n members: floor(2n/3) + 1.
func Threshold(n NodeCount) NodeCount {
	return NodeCount(2*uint32(n)/3) + 1
}

// NodeMap is a fixed-length, NodeIndex-indexed mapping. Its length is
// fixed at session start, so a plain slice (rather than a sparse map)
// is the right representation.
type NodeMap[T any] []T

// NewNodeMap returns a NodeMap of length n with zero-valued entries.
func NewNodeMap[T any](n NodeCount) NodeMap[T] {
	return make(NodeMap[T], n)
}

// Get returns the value at i, panicking if i is out of range — a
// NodeIndex outside [0, N) is an internal invariant violation, not a
// condition callers should branch on.
func (m NodeMap[T]) Get(i NodeIndex) T {
	return m[i]
}

// Set stores value at i.
func (m NodeMap[T]) Set(i NodeIndex, value T) {
	m[i] = value
}

// Len returns N.
func (m NodeMap[T]) Len() NodeCount {
	return NodeCount(len(m))
}

// UnitCoord is the (round, creator) address of a unit. At most one
// non-equivocating unit occupies a given coord.
type UnitCoord struct {
	Round   Round
	Creator NodeIndex
}

func (c UnitCoord) String() string {
	return fmt.Sprintf("(round=%d, creator=%d)", c.Round, c.Creator)
}

// ControlHash commits to the ordered sequence of a unit's parent
// hashes by creator index.
type ControlHash struct {
	// Parents[i] records whether the parent at creator index i is
	// present in the committed set.
	Parents NodeMap[bool]
	// Hash is CombineHashes of the full NodeMap<Option<H>> of parent
	// hashes this control hash commits to.
	Hash ids.ID
}

// NParents returns the number of present parents (popcount of Parents).
func (c ControlHash) NParents() NodeCount {
	var n NodeCount
	for _, present := range c.Parents {
		if present {
			n++
		}
	}
	return n
}

// NMembers returns N, the session's authority count.
func (c ControlHash) NMembers() NodeCount {
	return c.Parents.Len()
}

// CombineHashes computes the control-hash digest of an ordered
// sequence of optional parent hashes, one slot per NodeIndex. It is
// the sole place a control hash is derived from parent content, so
// both NewControlHash (unit creation) and parent-response validation
// (member package) call through here to guarantee they agree.
func CombineHashes(parents NodeMap[*ids.ID]) ids.ID {
	const idLen = 32
	buf := make([]byte, 0, len(parents)*(idLen+1))
	for _, h := range parents {
		if h == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, h[:]...)
	}
	return ids.ID(hashing.ComputeHash256Array(buf))
}

// NewControlHash builds the ControlHash committing to parents.
func NewControlHash(parents NodeMap[*ids.ID]) ControlHash {
	present := make(NodeMap[bool], len(parents))
	for i, h := range parents {
		present[i] = h != nil
	}
	return ControlHash{Parents: present, Hash: CombineHashes(parents)}
}

// PreUnit is the unsigned shape a consensus algorithm produces: a
// creator's claim to occupy (round, creator), with a commitment to
// its chosen parents.
type PreUnit struct {
	Creator     NodeIndex
	Round       Round
	ControlHash ControlHash
}

// Coord returns the PreUnit's (round, creator) address.
func (pu PreUnit) Coord() UnitCoord {
	return UnitCoord{Round: pu.Round, Creator: pu.Creator}
}

// NParents returns the number of present parents.
func (pu PreUnit) NParents() NodeCount {
	return pu.ControlHash.NParents()
}

// NMembers returns N.
func (pu PreUnit) NMembers() NodeCount {
	return pu.ControlHash.NMembers()
}

// Unit is the lightweight, in-DAG form handed to consensus: a
// PreUnit plus the content hash of the FullUnit it was derived from.
type Unit struct {
	Creator     NodeIndex
	Round       Round
	Hash        ids.ID
	ControlHash ControlHash
}

// Coord returns the Unit's (round, creator) address.
func (u Unit) Coord() UnitCoord {
	return UnitCoord{Round: u.Round, Creator: u.Creator}
}

// FromPreUnit builds the lightweight Unit consensus sees, given the
// content hash of the FullUnit that carried pu.
func FromPreUnit(pu PreUnit, hash ids.ID) Unit {
	return Unit{
		Creator:     pu.Creator,
		Round:       pu.Round,
		Hash:        hash,
		ControlHash: pu.ControlHash,
	}
}

// FullUnit is the signable payload a creator produces: a PreUnit plus
// the application data it carries and the session it belongs to.
type FullUnit[D any] struct {
	Inner     PreUnit
	Data      D
	SessionID uint64
}

// Creator returns the unit's creator.
func (fu FullUnit[D]) Creator() NodeIndex {
	return fu.Inner.Creator
}

// Round returns the unit's round.
func (fu FullUnit[D]) Round() Round {
	return fu.Inner.Round
}

// Coord returns the unit's (round, creator) address.
func (fu FullUnit[D]) Coord() UnitCoord {
	return fu.Inner.Coord()
}

// BytesToSign is the deterministic encoding that both Sign and Verify
// operate on. It implements signed.Signable.
func (fu FullUnit[D]) BytesToSign() ([]byte, error) {
	return codec.Codec.Marshal(fu)
}

// Index identifies the expected signer: the unit's claimed creator.
// It implements signed.Indexed.
func (fu FullUnit[D]) Index() NodeIndex {
	return fu.Inner.Creator
}

// Hash returns the content hash of the full unit, computed the same
// way regardless of whether the unit is signed yet.
func (fu FullUnit[D]) Hash() (ids.ID, error) {
	bytes, err := fu.BytesToSign()
	if err != nil {
		return ids.ID{}, err
	}
	return ids.ID(hashing.ComputeHash256Array(bytes)), nil
}
