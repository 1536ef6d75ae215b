// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store holds the per-session DAG buffer: every unit a member
// has accepted from the network, indexed by coordinate and by hash,
// plus the bookkeeping (round progress, forker tracking, the legit
// buffer) that decides when a unit is ready to be handed to the
// external consensus engine.
package store

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/rush/internal/bag"
	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

// SignedUnit is the stored form of an accepted unit: a FullUnit along
// with the signature that admitted it.
type SignedUnit[D any] = signed.Signed[unit.FullUnit[D]]

// Store is the per-session DAG buffer described in the package
// comment. It is not safe for concurrent use; the member reactor
// serializes all access to it.
type Store[D any] struct {
	byCoord map[unit.UnitCoord]SignedUnit[D]
	byHash  map[ids.ID]SignedUnit[D]
	parents map[ids.ID][]ids.ID

	// roundInProgress is the smallest r such that round r-1 holds at
	// least threshold units: the next round consensus is waiting on.
	roundInProgress unit.Round
	threshold       unit.NodeCount
	nUnitsPerRound  []unit.NodeCount
	isForker        unit.NodeMap[bool]
	legitBuffer     []SignedUnit[D]

	legitBufferDepth prometheus.Gauge
	forkersDetected  prometheus.Counter
	unitsStored      prometheus.Counter
}

// New returns an empty Store for a session of n authorities. reg
// may be nil, in which case no Prometheus collectors are registered.
func New[D any](n unit.NodeCount, reg prometheus.Registerer) (*Store[D], error) {
	s := &Store[D]{
		byCoord:        make(map[unit.UnitCoord]SignedUnit[D]),
		byHash:         make(map[ids.ID]SignedUnit[D]),
		parents:        make(map[ids.ID][]ids.ID),
		threshold:      unit.Threshold(n),
		nUnitsPerRound: make([]unit.NodeCount, unit.MaxRound+1),
		isForker:       unit.NewNodeMap[bool](n),
	}
	if reg == nil {
		return s, nil
	}
	s.legitBufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rush_store_legit_buffer_depth",
		Help: "Number of units currently buffered for delivery to consensus.",
	})
	s.forkersDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rush_store_forkers_detected_total",
		Help: "Number of authorities marked as forkers in this session.",
	})
	s.unitsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rush_store_units_stored_total",
		Help: "Number of distinct units accepted into the store.",
	})
	for _, c := range []prometheus.Collector{s.legitBufferDepth, s.forkersDetected, s.unitsStored} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("store: register metric: %w", err)
		}
	}
	return s, nil
}

// UnitByCoord returns the unit at coord, if any.
func (s *Store[D]) UnitByCoord(coord unit.UnitCoord) (SignedUnit[D], bool) {
	su, ok := s.byCoord[coord]
	return su, ok
}

// UnitByHash returns the unit with the given content hash, if any.
func (s *Store[D]) UnitByHash(hash ids.ID) (SignedUnit[D], bool) {
	su, ok := s.byHash[hash]
	return su, ok
}

// ContainsHash reports whether a unit with hash is stored.
func (s *Store[D]) ContainsHash(hash ids.ID) bool {
	_, ok := s.byHash[hash]
	return ok
}

// ContainsCoord reports whether a (non-forked) unit occupies coord.
func (s *Store[D]) ContainsCoord(coord unit.UnitCoord) bool {
	_, ok := s.byCoord[coord]
	return ok
}

// RoundInProgress returns the smallest round consensus is still
// waiting to see saturated.
func (s *Store[D]) RoundInProgress() unit.Round {
	return s.roundInProgress
}

// IsForker reports whether node has been marked as a forker.
func (s *Store[D]) IsForker(node unit.NodeIndex) bool {
	return s.isForker[node]
}

// YieldBufferUnits drains and returns every unit newly ready for
// delivery to consensus since the last call.
func (s *Store[D]) YieldBufferUnits() []SignedUnit[D] {
	out := s.legitBuffer
	s.legitBuffer = nil
	if s.legitBufferDepth != nil {
		s.legitBufferDepth.Set(0)
	}
	return out
}

// IsNewFork reports whether su, if added, would be a fork: a second,
// distinct unit at a coordinate this store already holds a unit for.
// It returns the conflicting unit and true when so, or the zero value
// and false when su is either already stored (by hash) or the first
// unit seen at its coordinate.
func (s *Store[D]) IsNewFork(su SignedUnit[D]) (SignedUnit[D], bool) {
	hash, err := su.Payload().Hash()
	if err != nil {
		var zero SignedUnit[D]
		return zero, false
	}
	if s.ContainsHash(hash) {
		var zero SignedUnit[D]
		return zero, false
	}
	return s.UnitByCoord(su.Payload().Coord())
}

// MarkForker marks node as a forker and returns every unit already in
// the store, created by node, at a round at most RoundInProgress — the
// units that must now be delivered to consensus as part of an alert,
// sorted by increasing round. Units of higher round created by node
// are dropped from the store: it is the alert, not the store, that
// delivers them, so forker units never arrive at consensus twice.
func (s *Store[D]) MarkForker(node unit.NodeIndex) []SignedUnit[D] {
	s.isForker[node] = true
	if s.forkersDetected != nil {
		s.forkersDetected.Inc()
	}

	var forkersUnits []SignedUnit[D]
	for r := unit.Round(0); r <= s.roundInProgress; r++ {
		if su, ok := s.UnitByCoord(unit.UnitCoord{Round: r, Creator: node}); ok {
			forkersUnits = append(forkersUnits, su)
		}
	}

	for r := s.roundInProgress + 1; r <= unit.MaxRound; r++ {
		coord := unit.UnitCoord{Round: r, Creator: node}
		su, ok := s.UnitByCoord(coord)
		if !ok {
			continue
		}
		delete(s.byCoord, coord)
		if hash, err := su.Payload().Hash(); err == nil {
			delete(s.byHash, hash)
			delete(s.parents, hash)
		}
	}
	return forkersUnits
}

// AddUnit inserts su into the store. alert must be true when su
// arrives as part of a fork alert, in which case node must already be
// marked as a forker (the caller — member.onForkAlert — marks the
// forker before replaying its alerted units). A unit whose hash is
// already stored is a duplicate and is silently ignored, matching
// at-least-once delivery over an unreliable network.
func (s *Store[D]) AddUnit(su SignedUnit[D], alert bool) error {
	hash, err := su.Payload().Hash()
	if err != nil {
		return fmt.Errorf("store: hash unit: %w", err)
	}
	round := su.Payload().Round()
	creator := su.Payload().Creator()
	if alert && !s.isForker[creator] {
		return fmt.Errorf("store: alerted unit from %d but %d is not marked as a forker", creator, creator)
	}
	if s.ContainsHash(hash) {
		return nil
	}

	s.byHash[hash] = su
	if s.unitsStored != nil {
		s.unitsStored.Inc()
	}
	coord := su.Payload().Coord()
	if _, existed := s.byCoord[coord]; !existed {
		// Only non-forked insertions at a fresh coordinate count toward
		// round saturation; a store never tracks more than one unit per
		// coordinate, since nothing ever needs to fetch every fork.
		s.byCoord[coord] = su
		s.nUnitsPerRound[round]++
	}

	// A minor, intentional inefficiency: alerted units of a round far
	// beyond roundInProgress are pushed to consensus immediately rather
	// than waiting for their round to become current. This never helps
	// an actual attacker, and accidental forks rarely land rounds ahead
	// of roundInProgress.
	if alert || (round <= s.roundInProgress && !s.isForker[creator]) {
		s.legitBuffer = append(s.legitBuffer, su)
		if s.legitBufferDepth != nil {
			s.legitBufferDepth.Set(float64(len(s.legitBuffer)))
		}
	}
	s.updateRoundInProgress(round)
	return nil
}

func (s *Store[D]) updateRoundInProgress(candidate unit.Round) {
	if candidate < s.roundInProgress || s.nUnitsPerRound[candidate] < s.threshold {
		return
	}
	oldRound := s.roundInProgress
	s.roundInProgress = candidate + 1
	for r := oldRound + 1; r <= s.roundInProgress; r++ {
		for creator, forker := range s.isForker {
			if forker {
				continue
			}
			if su, ok := s.UnitByCoord(unit.UnitCoord{Round: r, Creator: unit.NodeIndex(creator)}); ok {
				s.legitBuffer = append(s.legitBuffer, su)
			}
		}
	}
	if s.legitBufferDepth != nil {
		s.legitBufferDepth.Set(float64(len(s.legitBuffer)))
	}
}

// AddParents records the parent hashes of a unit identified by hash,
// as supplied by a ResponseParents message.
func (s *Store[D]) AddParents(hash ids.ID, parents []ids.ID) {
	s.parents[hash] = parents
}

// GetParents returns the previously recorded parent hashes of hash.
func (s *Store[D]) GetParents(hash ids.ID) ([]ids.ID, bool) {
	parents, ok := s.parents[hash]
	return parents, ok
}

// LimitPerNode returns the maximum round this store accepts.
func (s *Store[D]) LimitPerNode() unit.Round {
	return unit.MaxRound
}

// CreatorCounts returns a diagnostic snapshot of how many units each
// creator has contributed at distinct coordinates, honest and forker
// alike — useful for spotting a creator that has gone unusually quiet
// or unusually prolific without adding a dedicated counting structure.
func (s *Store[D]) CreatorCounts() bag.Bag[unit.NodeIndex] {
	counts := bag.New[unit.NodeIndex]()
	for coord := range s.byCoord {
		counts.Add(coord.Creator)
	}
	return counts
}
