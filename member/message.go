// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/rush/alert"
	"github.com/luxfi/rush/codec"
	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

// MessageKind discriminates the variants of ConsensusMessage.
type MessageKind int

const (
	KindNewUnit MessageKind = iota
	KindRequestCoord
	KindResponseCoord
	KindRequestParents
	KindResponseParents
	KindForkAlert
)

// ConsensusMessage is the sole wire message exchanged between
// members. Exactly the fields relevant to Kind are populated. Member
// sends NewUnit to all peers, RequestCoord and RequestParents to a
// random peer, the two responses to the requesting peer, and ForkAlert
// by reliable broadcast.
type ConsensusMessage[D any] struct {
	Kind MessageKind

	// KindNewUnit, KindResponseCoord
	Unit signed.UncheckedSigned[unit.FullUnit[D]]

	// KindRequestCoord
	Coord unit.UnitCoord

	// KindRequestParents
	Hash ids.ID

	// KindResponseParents
	ParentsOf ids.ID
	Parents   []signed.UncheckedSigned[unit.FullUnit[D]]

	// KindForkAlert
	Alert alert.Alert[D]
}

func newUnitMessage[D any](su signed.Signed[unit.FullUnit[D]]) ConsensusMessage[D] {
	return ConsensusMessage[D]{Kind: KindNewUnit, Unit: su.Unchecked()}
}

func requestCoordMessage[D any](coord unit.UnitCoord) ConsensusMessage[D] {
	return ConsensusMessage[D]{Kind: KindRequestCoord, Coord: coord}
}

func responseCoordMessage[D any](su signed.Signed[unit.FullUnit[D]]) ConsensusMessage[D] {
	return ConsensusMessage[D]{Kind: KindResponseCoord, Unit: su.Unchecked()}
}

func requestParentsMessage[D any](hash ids.ID) ConsensusMessage[D] {
	return ConsensusMessage[D]{Kind: KindRequestParents, Hash: hash}
}

func responseParentsMessage[D any](hash ids.ID, parents []signed.Signed[unit.FullUnit[D]]) ConsensusMessage[D] {
	unchecked := make([]signed.UncheckedSigned[unit.FullUnit[D]], len(parents))
	for i, su := range parents {
		unchecked[i] = su.Unchecked()
	}
	return ConsensusMessage[D]{Kind: KindResponseParents, ParentsOf: hash, Parents: unchecked}
}

func forkAlertMessage[D any](a alert.Alert[D]) ConsensusMessage[D] {
	return ConsensusMessage[D]{Kind: KindForkAlert, Alert: a}
}

// encodeMessage/decodeMessage use the versioned wire form, since a
// ConsensusMessage travels over the network independently of any
// other type information that might pin down how to decode it.
func encodeMessage[D any](msg ConsensusMessage[D]) ([]byte, error) {
	return codec.Codec.MarshalVersioned(msg)
}

func decodeMessage[D any](data []byte) (ConsensusMessage[D], error) {
	var msg ConsensusMessage[D]
	_, err := codec.Codec.UnmarshalVersioned(data, &msg)
	return msg, err
}
