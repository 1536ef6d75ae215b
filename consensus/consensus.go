// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus defines the contract between a member and the
// external consensus engine it drives: the notifications flowing in
// each direction, and the channel-based Engine handle the member
// reactor multiplexes over.
package consensus

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/rush/unit"
)

// NotificationIn is a message the member sends to the consensus
// engine.
type NotificationIn struct {
	// NewUnits is set for a batch of newly admitted units, which
	// consensus should integrate in order.
	NewUnits []unit.Unit
	// UnitParentHash and UnitParents are set together, answering an
	// earlier WrongControlHash for the unit at UnitParentHash.
	UnitParentHash ids.ID
	UnitParents    []ids.ID
}

// IsNewUnits reports whether this notification carries a NewUnits
// batch.
func (n NotificationIn) IsNewUnits() bool {
	return n.NewUnits != nil
}

// IsUnitParents reports whether this notification carries a
// UnitParents answer.
func (n NotificationIn) IsUnitParents() bool {
	return n.UnitParents != nil
}

// NewNotificationInNewUnits builds a NewUnits notification.
func NewNotificationInNewUnits(units []unit.Unit) NotificationIn {
	return NotificationIn{NewUnits: units}
}

// NewNotificationInUnitParents builds a UnitParents notification.
func NewNotificationInUnitParents(hash ids.ID, parents []ids.ID) NotificationIn {
	return NotificationIn{UnitParentHash: hash, UnitParents: parents}
}

// NotificationOutKind discriminates the variants of NotificationOut.
type NotificationOutKind int

const (
	// CreatedPreUnit: the local authority produced a new unit.
	CreatedPreUnit NotificationOutKind = iota
	// MissingUnits: the member should fetch the named coordinates.
	MissingUnits
	// WrongControlHash: the member should fetch the unit's parents.
	WrongControlHash
	// AddedToDag: consensus has an authoritative parent list for a unit.
	AddedToDag
)

// NotificationOut is a message the consensus engine sends to the
// member. Exactly the fields relevant to Kind are populated.
type NotificationOut struct {
	Kind NotificationOutKind

	// CreatedPreUnit
	PreUnit unit.PreUnit

	// MissingUnits
	MissingCoords []unit.UnitCoord

	// WrongControlHash, AddedToDag
	Hash ids.ID

	// AddedToDag
	ParentHashes []ids.ID
}

// NewCreatedPreUnit builds a CreatedPreUnit notification.
func NewCreatedPreUnit(pu unit.PreUnit) NotificationOut {
	return NotificationOut{Kind: CreatedPreUnit, PreUnit: pu}
}

// NewMissingUnits builds a MissingUnits notification.
func NewMissingUnits(coords []unit.UnitCoord) NotificationOut {
	return NotificationOut{Kind: MissingUnits, MissingCoords: coords}
}

// NewWrongControlHash builds a WrongControlHash notification.
func NewWrongControlHash(hash ids.ID) NotificationOut {
	return NotificationOut{Kind: WrongControlHash, Hash: hash}
}

// NewAddedToDag builds an AddedToDag notification.
func NewAddedToDag(hash ids.ID, parentHashes []ids.ID) NotificationOut {
	return NotificationOut{Kind: AddedToDag, Hash: hash, ParentHashes: parentHashes}
}

// Engine is the channel-based handle a member reactor holds onto the
// external consensus engine. The member only ever sends on In and
// receives on Out; who owns the engine's own goroutine(s) is outside
// this package's concern. On receiving the member's own exit signal,
// the reactor signals the engine's one-shot exit through Exit before
// returning, so the engine's goroutine(s) do not outlive the member.
type Engine interface {
	// In returns the channel the member sends NotificationIn values on.
	In() chan<- NotificationIn
	// Out returns the channel the member receives NotificationOut
	// values from. It is closed when the engine shuts down.
	Out() <-chan NotificationOut
	// Exit returns the channel the member signals, once, to request
	// that the engine shut down.
	Exit() chan<- struct{}
}

// Channels is the straightforward Engine implementation: three plain
// channels, for wiring a real or fake consensus engine in the same
// process as the member.
type Channels struct {
	InCh   chan NotificationIn
	OutCh  chan NotificationOut
	ExitCh chan struct{}
}

// NewChannels returns a Channels with the given buffer sizes. ExitCh
// is always buffered by one, since it only ever carries a single
// one-shot signal.
func NewChannels(inBuf, outBuf int) *Channels {
	return &Channels{
		InCh:   make(chan NotificationIn, inBuf),
		OutCh:  make(chan NotificationOut, outBuf),
		ExitCh: make(chan struct{}, 1),
	}
}

func (c *Channels) In() chan<- NotificationIn   { return c.InCh }
func (c *Channels) Out() <-chan NotificationOut { return c.OutCh }
func (c *Channels) Exit() chan<- struct{}       { return c.ExitCh }
