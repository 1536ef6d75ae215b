// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"time"

	"github.com/luxfi/ids"
)

// OrderedBatchSource is the stream of finalized hash batches the
// consensus engine delivers for this member to translate into
// application data and hand to dataio.DataIO.
type OrderedBatchSource <-chan []ids.ID

// Run drives the Member's event loop until one of its four input
// streams closes or exit fires, whichever happens first. It
// multiplexes: consensus notifications, network events, ordered
// consensus output, and a periodic ticker that drives scheduled
// fetch/multicast retries. After every event it drains the store's
// legit buffer to consensus (moveUnitsToConsensus). On exit, it signals the consensus engine's own one-shot exit
// before returning, so the engine's goroutine(s) do not outlive the
// member.
func (m *Member[D]) Run(ordered OrderedBatchSource, exit <-chan struct{}) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		now := time.Now()
		select {
		case n, ok := <-m.engine.Out():
			if !ok {
				return errClosed("consensus notification stream")
			}
			m.onConsensusNotification(n, now)

		case ev, ok := <-m.net.Events():
			if !ok {
				return errClosed("network event stream")
			}
			m.onNetworkEvent(ev, now)

		case batch, ok := <-ordered:
			if !ok {
				return errClosed("ordered batch stream")
			}
			m.onOrderedBatch(batch)

		case <-ticker.C:
			m.triggerTasks(time.Now())

		case <-exit:
			select {
			case m.engine.Exit() <- struct{}{}:
			default:
				m.log.Debug("consensus engine exit channel full or unready, dropping shutdown signal")
			}
			return nil
		}
		m.moveUnitsToConsensus()
	}
}

type runError string

func (e runError) Error() string { return string(e) }

func errClosed(stream string) error {
	return runError(stream + " closed")
}
