// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"fmt"
	"math/rand"
	"sync"
)

// Hub is a shared in-memory switchboard connecting a fixed set of
// InMemory peers, for use in tests and the example binary. It is safe
// for concurrent use.
type Hub struct {
	mu    sync.Mutex
	peers map[PeerID]chan Event
	rng   *rand.Rand
}

// NewHub returns an empty Hub whose SendToRandPeer choices are
// reproducible across runs, seeded deterministically. Use
// NewHubSeeded to control the seed explicitly.
func NewHub() *Hub {
	return NewHubSeeded(0)
}

// NewHubSeeded returns an empty Hub whose SendToRandPeer choices are
// drawn from a math/rand source seeded with seed.
func NewHubSeeded(seed int64) *Hub {
	return &Hub{
		peers: make(map[PeerID]chan Event),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Join registers self on the hub and returns its Network handle.
func (h *Hub) Join(self PeerID) *InMemory {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make(chan Event, 256)
	h.peers[self] = events
	return &InMemory{self: self, hub: h, events: events}
}

func (h *Hub) deliver(from PeerID, cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.Kind {
	case SendToAll, ReliableBroadcast:
		for peer, ch := range h.peers {
			if peer == from {
				continue
			}
			h.send(ch, Event{Data: cmd.Data, Peer: from})
		}
		return nil
	case SendToPeer:
		ch, ok := h.peers[cmd.Peer]
		if !ok {
			return fmt.Errorf("network: unknown peer %s", cmd.Peer)
		}
		h.send(ch, Event{Data: cmd.Data, Peer: from})
		return nil
	case SendToRandPeer:
		candidates := make([]PeerID, 0, len(h.peers))
		for peer := range h.peers {
			if peer != from {
				candidates = append(candidates, peer)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
		target := candidates[h.rng.Intn(len(candidates))]
		h.send(h.peers[target], Event{Data: cmd.Data, Peer: from})
		return nil
	default:
		return fmt.Errorf("network: unknown command kind %d", cmd.Kind)
	}
}

func (h *Hub) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		// A full buffer means a wedged or absent consumer; dropping here
		// matches the best-effort contract for everything but
		// ReliableBroadcast, which production deployments back with a
		// retrying transport rather than an unbounded buffer.
	}
}

// InMemory is a Network handle bound to one peer on a Hub.
type InMemory struct {
	self   PeerID
	hub    *Hub
	events chan Event
}

func (n *InMemory) Send(cmd Command) error {
	return n.hub.deliver(n.self, cmd)
}

func (n *InMemory) Events() <-chan Event {
	return n.events
}
