// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package alert

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

const testN unit.NodeCount = 4

type fakeKeyBox struct{ self unit.NodeIndex }

func (f fakeKeyBox) Sign(bytes []byte) ([]byte, error) { return []byte{fold(bytes)}, nil }
func (f fakeKeyBox) Verify(bytes, sig []byte, signer unit.NodeIndex) bool {
	return len(sig) == 1 && sig[0] == fold(bytes)
}
func (f fakeKeyBox) Index() (unit.NodeIndex, bool) { return f.self, true }

func fold(bytes []byte) byte {
	var b byte
	for _, x := range bytes {
		b ^= x
	}
	return b
}

func makeSignedUnit(t *testing.T, creator unit.NodeIndex, round unit.Round, nonce byte) signed.Signed[unit.FullUnit[int]] {
	t.Helper()
	parents := unit.NewNodeMap[*ids.ID](testN)
	pu := unit.PreUnit{Creator: creator, Round: round, ControlHash: unit.NewControlHash(parents)}
	fu := unit.FullUnit[int]{Inner: pu, Data: int(nonce), SessionID: 1}
	su, err := signed.Sign[unit.FullUnit[int]](fakeKeyBox{self: creator}, fu)
	require.NoError(t, err)
	return su
}

func alwaysValid(signed.Signed[unit.FullUnit[int]]) bool { return true }

func TestValidateForkProofAcceptsGenuineFork(t *testing.T) {
	kb := fakeKeyBox{}
	u1 := makeSignedUnit(t, 1, 3, 0xAA)
	u2 := makeSignedUnit(t, 1, 3, 0xBB)
	proof := ForkProof[int]{U1: u1.Unchecked(), U2: u2.Unchecked()}
	require.True(t, ValidateForkProof[int](kb, alwaysValid, 1, proof))
}

func TestValidateForkProofRejectsMismatchedCreator(t *testing.T) {
	kb := fakeKeyBox{}
	u1 := makeSignedUnit(t, 1, 3, 0xAA)
	u2 := makeSignedUnit(t, 2, 3, 0xBB)
	proof := ForkProof[int]{U1: u1.Unchecked(), U2: u2.Unchecked()}
	require.False(t, ValidateForkProof[int](kb, alwaysValid, 1, proof))
}

func TestValidateForkProofRejectsMismatchedRound(t *testing.T) {
	kb := fakeKeyBox{}
	u1 := makeSignedUnit(t, 1, 3, 0xAA)
	u2 := makeSignedUnit(t, 1, 4, 0xBB)
	proof := ForkProof[int]{U1: u1.Unchecked(), U2: u2.Unchecked()}
	require.False(t, ValidateForkProof[int](kb, alwaysValid, 1, proof))
}

func TestValidateAlertedUnitsRejectsDuplicateRounds(t *testing.T) {
	units := []signed.Signed[unit.FullUnit[int]]{
		makeSignedUnit(t, 1, 0, 1),
		makeSignedUnit(t, 1, 0, 2),
	}
	require.False(t, ValidateAlertedUnits[int](alwaysValid, 1, units))
}

func TestValidateAlertedUnitsRejectsTooMany(t *testing.T) {
	units := make([]signed.Signed[unit.FullUnit[int]], MaxUnitsAlert+1)
	for i := range units {
		units[i] = makeSignedUnit(t, 1, unit.Round(i), byte(i))
	}
	require.False(t, ValidateAlertedUnits[int](alwaysValid, 1, units))
}

func TestValidateAlertedUnitsRejectsWrongCreator(t *testing.T) {
	units := []signed.Signed[unit.FullUnit[int]]{makeSignedUnit(t, 2, 0, 1)}
	require.False(t, ValidateAlertedUnits[int](alwaysValid, 1, units))
}

func TestValidateAlertRoundTrip(t *testing.T) {
	kb := fakeKeyBox{}
	u1 := makeSignedUnit(t, 1, 3, 0xAA)
	u2 := makeSignedUnit(t, 1, 3, 0xBB)
	proof := ForkProof[int]{U1: u1.Unchecked(), U2: u2.Unchecked()}
	legit := []signed.Signed[unit.FullUnit[int]]{makeSignedUnit(t, 1, 0, 1), makeSignedUnit(t, 1, 1, 2)}
	alrt := FormAlert[int](0, 1, proof, legit)

	got, err := ValidateAlert[int](kb, alwaysValid, testN, alrt)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestValidateAlertRejectsOutOfRangeForker(t *testing.T) {
	kb := fakeKeyBox{}
	u1 := makeSignedUnit(t, 1, 3, 0xAA)
	u2 := makeSignedUnit(t, 1, 3, 0xBB)
	proof := ForkProof[int]{U1: u1.Unchecked(), U2: u2.Unchecked()}
	alrt := Alert[int]{Sender: 0, Forker: unit.NodeIndex(testN) + 5, Proof: proof}

	_, err := ValidateAlert[int](kb, alwaysValid, testN, alrt)
	require.Error(t, err)
}

func TestFormAlertTruncatesToHighestRounds(t *testing.T) {
	units := make([]signed.Signed[unit.FullUnit[int]], MaxUnitsAlert+10)
	for i := range units {
		units[i] = makeSignedUnit(t, 1, unit.Round(i), byte(i))
	}
	proof := ForkProof[int]{U1: units[0].Unchecked(), U2: units[0].Unchecked()}
	alrt := FormAlert[int](0, 1, proof, units)
	require.Len(t, alrt.LegitUnits, MaxUnitsAlert)
	require.EqualValues(t, 10, alrt.LegitUnits[0].Signable.Round(), "the 10 lowest rounds are dropped")
}
