// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dataio

import "sync"

// Memory is a trivial DataIO backed by an in-process queue: GetData
// drains a caller-supplied source of pending payloads (falling back
// to the zero value once it is empty), and SendOrderedBatch appends
// to a slice the caller can inspect. It is meant for tests and the
// example binary, not production use.
type Memory[D any] struct {
	mu      sync.Mutex
	pending []D
	batches []OrderedBatch[D]
}

// NewMemory returns a Memory seeded with pending, the payloads GetData
// will hand out in order before falling back to the zero value of D.
func NewMemory[D any](pending ...D) *Memory[D] {
	return &Memory[D]{pending: pending}
}

func (m *Memory[D]) GetData() D {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		var zero D
		return zero
	}
	d := m.pending[0]
	m.pending = m.pending[1:]
	return d
}

func (m *Memory[D]) SendOrderedBatch(batch OrderedBatch[D]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
	return nil
}

// Batches returns every batch delivered so far, for test assertions.
func (m *Memory[D]) Batches() []OrderedBatch[D] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderedBatch[D], len(m.batches))
	copy(out, m.batches)
	return out
}
