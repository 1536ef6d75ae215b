// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package alert defines the fork-proof and fork-alert wire payloads
// and the validation rules a member applies to them before acting on
// an accusation raised by another authority. Validation needs access
// to a member's own unit-validity rules and authority count, so the
// functions here take those in as parameters rather than importing
// the member package — keeping alert, like unit and store, free of
// any dependency on the reactor that uses it.
package alert

import (
	"fmt"

	"github.com/luxfi/rush/internal/set"
	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

// MaxUnitsAlert bounds how many legitimate units a single alert may
// carry. On truncation the highest-round units are kept, since those
// are the ones consensus is most likely still waiting on.
const MaxUnitsAlert = 200

// ForkProof is evidence that a node equivocated: two distinct units
// signed by the same creator, occupying the same (round, creator)
// coordinate.
type ForkProof[D any] struct {
	U1 signed.UncheckedSigned[unit.FullUnit[D]]
	U2 signed.UncheckedSigned[unit.FullUnit[D]]
}

// Alert is broadcast by a member that has detected (or learned of) a
// forker, to inform the rest of the session and hand over any of the
// forker's units that were in the sender's store before the fork was
// confirmed.
type Alert[D any] struct {
	Sender     unit.NodeIndex
	Forker     unit.NodeIndex
	Proof      ForkProof[D]
	LegitUnits []signed.UncheckedSigned[unit.FullUnit[D]]
}

// TruncateLegitUnits keeps at most MaxUnitsAlert entries of units,
// preferring the highest rounds. units must already be sorted by
// increasing round, as store.MarkForker returns them.
func TruncateLegitUnits[D any](units []signed.Signed[unit.FullUnit[D]]) []signed.Signed[unit.FullUnit[D]] {
	if len(units) <= MaxUnitsAlert {
		return units
	}
	return units[len(units)-MaxUnitsAlert:]
}

// ValidateUnitFunc is a member's own unit-validity predicate (session
// id, round bound, creator bound, parent-commitment check).
type ValidateUnitFunc[D any] func(signed.Signed[unit.FullUnit[D]]) bool

// ValidateForkProof checks that proof genuinely demonstrates an
// equivocation by forker: both units verify, both pass the member's
// own unit validation, both are credited to forker, they occupy the
// same round (and so the same coordinate), and their content hashes
// differ.
func ValidateForkProof[D any](keyBox signed.KeyBox, validateUnit ValidateUnitFunc[D], forker unit.NodeIndex, proof ForkProof[D]) bool {
	u1, err := proof.U1.Check(keyBox)
	if err != nil {
		return false
	}
	u2, err := proof.U2.Check(keyBox)
	if err != nil {
		return false
	}
	if !validateUnit(u1) || !validateUnit(u2) {
		return false
	}
	if u1.Payload().Creator() != forker || u2.Payload().Creator() != forker {
		return false
	}
	if u1.Payload().Round() != u2.Payload().Round() {
		return false
	}
	h1, err := u1.Payload().Hash()
	if err != nil {
		return false
	}
	h2, err := u2.Payload().Hash()
	if err != nil {
		return false
	}
	return h1 != h2
}

// ValidateAlertedUnits checks the legit-units portion of an alert:
// every unit must pass the member's own validation, be credited to
// forker, come from a distinct round, and the list must not exceed
// MaxUnitsAlert entries.
func ValidateAlertedUnits[D any](validateUnit ValidateUnitFunc[D], forker unit.NodeIndex, units []signed.Signed[unit.FullUnit[D]]) bool {
	if len(units) > MaxUnitsAlert {
		return false
	}
	rounds := set.NewSet[unit.Round](len(units))
	for _, u := range units {
		if u.Payload().Creator() != forker {
			return false
		}
		if !validateUnit(u) {
			return false
		}
		if rounds.Contains(u.Payload().Round()) {
			return false
		}
		rounds.Add(u.Payload().Round())
	}
	return true
}

// ValidateAlert fully validates alert: bounds-checks forker and
// sender against nMembers, validates its fork proof, checks every
// legit unit's signature, then runs ValidateAlertedUnits over them.
// On success it returns the checked legit units, ready to feed back
// into the store as alerted units.
func ValidateAlert[D any](keyBox signed.KeyBox, validateUnit ValidateUnitFunc[D], nMembers unit.NodeCount, alrt Alert[D]) ([]signed.Signed[unit.FullUnit[D]], error) {
	if uint16(alrt.Forker) >= uint16(nMembers) {
		return nil, fmt.Errorf("alert: forker index %d out of range", alrt.Forker)
	}
	if uint16(alrt.Sender) >= uint16(nMembers) {
		return nil, fmt.Errorf("alert: sender index %d out of range", alrt.Sender)
	}
	if !ValidateForkProof(keyBox, validateUnit, alrt.Forker, alrt.Proof) {
		return nil, fmt.Errorf("alert: fork proof against %d does not verify", alrt.Forker)
	}

	legitUnits := make([]signed.Signed[unit.FullUnit[D]], 0, len(alrt.LegitUnits))
	for _, unchecked := range alrt.LegitUnits {
		su, err := unchecked.Check(keyBox)
		if err != nil {
			return nil, fmt.Errorf("alert: badly signed legit unit: %w", err)
		}
		legitUnits = append(legitUnits, su)
	}
	if !ValidateAlertedUnits(validateUnit, alrt.Forker, legitUnits) {
		return nil, fmt.Errorf("alert: legit units for forker %d fail validation", alrt.Forker)
	}
	return legitUnits, nil
}

// FormAlert builds the Alert a member broadcasts after confirming (or
// learning of) forker, from sender's own perspective and the units
// its store yielded when marking the forker.
func FormAlert[D any](sender unit.NodeIndex, forker unit.NodeIndex, proof ForkProof[D], units []signed.Signed[unit.FullUnit[D]]) Alert[D] {
	units = TruncateLegitUnits(units)
	legit := make([]signed.UncheckedSigned[unit.FullUnit[D]], len(units))
	for i, su := range units {
		legit[i] = su.Unchecked()
	}
	return Alert[D]{
		Sender:     sender,
		Forker:     forker,
		Proof:      proof,
		LegitUnits: legit,
	}
}
