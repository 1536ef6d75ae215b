// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/rush/network"
)

// TestRunSignalsEngineExitOnExit checks the cancellation contract: on
// the external exit signal, Run must forward a one-shot exit to the
// consensus engine before returning, so the engine's own goroutine(s)
// do not outlive the member.
func TestRunSignalsEngineExitOnExit(t *testing.T) {
	hub := network.NewHub()
	m, ch := newTestMember(t, 0, hub.Join("m0"))

	orderedCh := make(chan []ids.ID)
	var ordered OrderedBatchSource = orderedCh

	done := make(chan error, 1)
	exit := make(chan struct{})
	go func() { done <- m.Run(ordered, exit) }()

	close(exit)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after exit was closed")
	}

	select {
	case <-ch.ExitCh:
	default:
		t.Fatal("Run did not forward the exit signal to the consensus engine")
	}
}
