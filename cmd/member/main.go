// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command member runs a small local simulation of a rush session: a
// handful of in-process members, connected over an in-memory network
// hub, each driven by a trivial round-robin stand-in for a real
// consensus engine. It exists to exercise the wiring between member,
// store, signed, network, and dataio end to end; it is not itself a
// consensus algorithm.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/rush/consensus"
	"github.com/luxfi/rush/dataio"
	"github.com/luxfi/rush/member"
	"github.com/luxfi/rush/network"
	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/unit"
)

func main() {
	nodes := flag.Int("nodes", 4, "number of simulated authorities")
	duration := flag.Duration("duration", 2*time.Second, "how long to run the simulation")
	flag.Parse()

	logger := log.NewNoOpLogger()
	if err := run(*nodes, *duration, logger); err != nil {
		fmt.Fprintln(os.Stderr, "member:", err)
		os.Exit(1)
	}
}

func run(nNodes int, duration time.Duration, logger log.Logger) error {
	n := unit.NodeCount(nNodes)

	secretKeys := make([]*bls.SecretKey, nNodes)
	publicKeys := unit.NewNodeMap[*bls.PublicKey](n)
	for i := range secretKeys {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return fmt.Errorf("generate key seed: %w", err)
		}
		sk, err := bls.SecretKeyFromSeed(seed)
		if err != nil {
			return fmt.Errorf("derive bls key: %w", err)
		}
		secretKeys[i] = sk
		publicKeys[i] = sk.PublicKey()
	}

	hub := network.NewHub()
	members := make([]*member.Member[string], nNodes)
	engines := make([]*roundRobinEngine, nNodes)
	exit := make(chan struct{})

	config := member.Config{Self: 0, SessionID: 1, NMembers: n, CreateLag: 500 * time.Millisecond}

	for i := 0; i < nNodes; i++ {
		self := unit.NodeIndex(i)
		keyBox := signed.NewBLSKeyBox(self, secretKeys[i], publicKeys)
		peerID := network.PeerID(fmt.Sprintf("node-%d", i))
		net := hub.Join(peerID)
		data := dataio.NewMemory[string]()
		// The engine's own creation cadence is driven by config.CreateLag,
		// matching what a real consensus engine would be constructed with.
		engine := newRoundRobinEngine(self, n, config.CreateLag)

		config.Self = self
		m, err := member.New[string](config, keyBox, net, data, engine, logger, nil)
		if err != nil {
			return fmt.Errorf("create member %d: %w", i, err)
		}
		members[i] = m
		engines[i] = engine
	}

	for i, m := range members {
		go func(m *member.Member[string], eng *roundRobinEngine) {
			_ = m.Run(eng.orderedBatches, exit)
		}(m, engines[i])
		go engines[i].drive()
	}

	time.Sleep(duration)
	close(exit)
	return nil
}

// roundRobinEngine is a minimal stand-in for a real consensus engine:
// it asks the member to create one unit per tick and, on the same tick,
// forwards the hashes of a NewUnits batch it has received (if any) as
// an ordered batch. It never sends AddedToDag. It exists only to exercise
// the member/consensus wiring in this demonstration binary.
type roundRobinEngine struct {
	self      unit.NodeIndex
	n         unit.NodeCount
	createLag time.Duration
	in        chan consensus.NotificationIn
	out       chan consensus.NotificationOut
	exit      chan struct{}
	round     unit.Round

	orderedBatches chan []ids.ID
}

// newRoundRobinEngine builds a stand-in engine that creates one unit
// every createLag, mirroring member.Config.CreateLag's role in a real
// consensus engine's own configuration.
func newRoundRobinEngine(self unit.NodeIndex, n unit.NodeCount, createLag time.Duration) *roundRobinEngine {
	return &roundRobinEngine{
		self:           self,
		n:              n,
		createLag:      createLag,
		in:             make(chan consensus.NotificationIn, 64),
		out:            make(chan consensus.NotificationOut, 64),
		exit:           make(chan struct{}, 1),
		orderedBatches: make(chan []ids.ID, 64),
	}
}

func (e *roundRobinEngine) In() chan<- consensus.NotificationIn   { return e.in }
func (e *roundRobinEngine) Out() <-chan consensus.NotificationOut { return e.out }
func (e *roundRobinEngine) Exit() chan<- struct{}                 { return e.exit }

func (e *roundRobinEngine) drive() {
	ticker := time.NewTicker(e.createLag)
	defer ticker.Stop()
	for {
		select {
		case <-e.exit:
			return
		case <-ticker.C:
			parents := unit.NewNodeMap[*ids.ID](e.n)
			pu := unit.PreUnit{Creator: e.self, Round: e.round, ControlHash: unit.NewControlHash(parents)}
			select {
			case e.out <- consensus.NewCreatedPreUnit(pu):
				e.round++
			default:
			}

			select {
			case n := <-e.in:
				if n.IsNewUnits() {
					hashes := make([]ids.ID, len(n.NewUnits))
					for i, u := range n.NewUnits {
						hashes[i] = u.Hash
					}
					select {
					case e.orderedBatches <- hashes:
					default:
					}
				}
			default:
			}
		}
	}
}
