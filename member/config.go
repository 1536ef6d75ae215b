// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package member implements the reactive event loop that bridges an
// external consensus engine, network transport, and application data
// source: the Member. It owns the unit store, the per-unit fetch/
// multicast scheduler, and fork-alert handling, and is the only
// package in this module that performs I/O or logs.
package member

import (
	"time"

	"github.com/luxfi/rush/unit"
)

// Config describes one session a Member runs.
type Config struct {
	// Self is this member's own index among the session's authorities.
	Self unit.NodeIndex
	// SessionID scopes units to this run; a unit carrying any other
	// session id is rejected during validation.
	SessionID uint64
	// NMembers is the session's authority count, N.
	NMembers unit.NodeCount
	// CreateLag is the minimum delay the local authority observes
	// between a round becoming ready (enough parents available) and
	// creating its own unit for it. Member itself never consumes
	// CreateLag directly — it is part of the session configuration the
	// host binary forwards into the external consensus engine's own
	// config when constructing it, alongside Self/SessionID/NMembers.
	CreateLag time.Duration
}

// Threshold returns the session's quorum size.
func (c Config) Threshold() unit.NodeCount {
	return unit.Threshold(c.NMembers)
}

// Scheduler timing for the task queue's retry/multicast loops.
const (
	// TickInterval drives the periodic call to triggerTasks.
	TickInterval = 100 * time.Millisecond
	// FetchInterval is the retry period for an unanswered coord or
	// parents request.
	FetchInterval = 4 * time.Second
	// InitialMulticastDelay is the first redelivery delay for a
	// locally created unit; it doubles on every retry.
	InitialMulticastDelay = 3 * time.Second
	// RoundsMargin bounds how far above round_in_progress an incoming
	// unit's round may be before it is ignored rather than buffered.
	RoundsMargin unit.Round = 100
)
