// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

const testN unit.NodeCount = 4

// fakeKeyBox signs/verifies by XOR-folding bytes into a single byte;
// it is only ever used inside this package's tests.
type fakeKeyBox struct {
	self unit.NodeIndex
}

func (f fakeKeyBox) Sign(bytes []byte) ([]byte, error) {
	return []byte{fold(bytes)}, nil
}

func (f fakeKeyBox) Verify(bytes, sig []byte, signer unit.NodeIndex) bool {
	return len(sig) == 1 && sig[0] == fold(bytes)
}

func (f fakeKeyBox) Index() (unit.NodeIndex, bool) {
	return f.self, true
}

func fold(bytes []byte) byte {
	var b byte
	for _, x := range bytes {
		b ^= x
	}
	return b
}

func makeUnit(t *testing.T, creator unit.NodeIndex, round unit.Round, nonce byte) SignedUnit[int] {
	t.Helper()
	parents := unit.NewNodeMap[*ids.ID](testN)
	ch := unit.NewControlHash(parents)
	pu := unit.PreUnit{Creator: creator, Round: round, ControlHash: ch}
	fu := unit.FullUnit[int]{Inner: pu, Data: int(nonce), SessionID: 1}
	su, err := signed.Sign[unit.FullUnit[int]](fakeKeyBox{self: creator}, fu)
	require.NoError(t, err)
	return su
}

func TestAddUnitIsIdempotent(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	su := makeUnit(t, 0, 0, 1)
	require.NoError(t, s.AddUnit(su, false))
	require.NoError(t, s.AddUnit(su, false))

	buf := s.YieldBufferUnits()
	require.Len(t, buf, 1, "duplicate insertion must not be buffered twice")
}

func TestContainsCoordAndHash(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	su := makeUnit(t, 1, 0, 7)
	require.NoError(t, s.AddUnit(su, false))

	hash, err := su.Payload().Hash()
	require.NoError(t, err)
	require.True(t, s.ContainsHash(hash))
	require.True(t, s.ContainsCoord(unit.UnitCoord{Round: 0, Creator: 1}))
	require.False(t, s.ContainsCoord(unit.UnitCoord{Round: 0, Creator: 2}))

	got, ok := s.UnitByHash(hash)
	require.True(t, ok)
	require.Equal(t, su.Payload().Data, got.Payload().Data)
}

func TestRoundInProgressAdvancesAtThreshold(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)
	threshold := unit.Threshold(testN)
	require.EqualValues(t, 3, threshold)

	for i := unit.NodeIndex(0); i < unit.NodeIndex(threshold-1); i++ {
		require.NoError(t, s.AddUnit(makeUnit(t, i, 0, byte(i)), false))
	}
	require.EqualValues(t, 0, s.RoundInProgress(), "below threshold, round 0 must not be in progress yet")

	require.NoError(t, s.AddUnit(makeUnit(t, unit.NodeIndex(threshold-1), 0, 9), false))
	require.EqualValues(t, 1, s.RoundInProgress(), "reaching threshold at round 0 advances round_in_progress to 1")
}

func TestIsNewFork(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	first := makeUnit(t, 2, 0, 1)
	require.NoError(t, s.AddUnit(first, false))

	second := makeUnit(t, 2, 0, 2) // same coord, different content => fork
	conflict, isFork := s.IsNewFork(second)
	require.True(t, isFork)
	require.Equal(t, first.Payload().Data, conflict.Payload().Data)

	// Re-adding the exact same unit is not a fork, just a duplicate.
	_, isFork = s.IsNewFork(first)
	require.False(t, isFork)
}

func TestMarkForkerReplaysAndPurges(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	low := makeUnit(t, 3, 0, 1)
	require.NoError(t, s.AddUnit(low, false))
	s.YieldBufferUnits()

	high := makeUnit(t, 3, 4000, 2) // far beyond round_in_progress
	require.NoError(t, s.AddUnit(high, false))

	replay := s.MarkForker(3)
	require.Len(t, replay, 1, "only units at or below round_in_progress are replayed")
	require.EqualValues(t, 0, replay[0].Payload().Round())

	require.True(t, s.IsForker(3))
	require.False(t, s.ContainsCoord(unit.UnitCoord{Round: 4000, Creator: 3}), "units above round_in_progress are purged on marking a forker")
}

func TestAlertedUnitDeliveredImmediately(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)
	s.MarkForker(0)

	far := makeUnit(t, 0, 4999, 3)
	require.NoError(t, s.AddUnit(far, true))

	buf := s.YieldBufferUnits()
	require.Len(t, buf, 1, "alerted units bypass round_in_progress gating")
}

func TestAddUnitRejectsUnmarkedAlert(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	u := makeUnit(t, 1, 0, 1)
	require.Error(t, s.AddUnit(u, true), "an alerted unit's creator must already be marked as a forker")
}

func TestCreatorCounts(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	require.NoError(t, s.AddUnit(makeUnit(t, 0, 0, 1), false))
	require.NoError(t, s.AddUnit(makeUnit(t, 0, 1, 2), false))
	require.NoError(t, s.AddUnit(makeUnit(t, 1, 0, 3), false))

	counts := s.CreatorCounts()
	require.Equal(t, 2, counts.Count(0))
	require.Equal(t, 1, counts.Count(1))
	require.Equal(t, 3, counts.Len())
}

func TestParents(t *testing.T) {
	s, err := New[int](testN, nil)
	require.NoError(t, err)

	h := ids.GenerateTestID()
	p1, p2 := ids.GenerateTestID(), ids.GenerateTestID()
	s.AddParents(h, []ids.ID{p1, p2})

	got, ok := s.GetParents(h)
	require.True(t, ok)
	require.Equal(t, []ids.ID{p1, p2}, got)

	_, ok = s.GetParents(ids.GenerateTestID())
	require.False(t, ok)
}
