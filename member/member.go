// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package member

import (
	"container/heap"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/rush/alert"
	"github.com/luxfi/rush/consensus"
	"github.com/luxfi/rush/dataio"
	"github.com/luxfi/rush/internal/linked"
	"github.com/luxfi/rush/internal/metric"
	"github.com/luxfi/rush/network"
	"github.com/luxfi/rush/signed"
	"github.com/luxfi/rush/store"
	"github.com/luxfi/rush/unit"
)

// Member is the reactive event loop described in the package doc. It
// is not safe for concurrent use; all of its exported behavior is
// driven through Run.
type Member[D any] struct {
	config Config
	keyBox signed.KeyBox
	net    network.Network
	dataIO dataio.DataIO[D]
	engine consensus.Engine
	store  *store.Store[D]
	log    log.Logger

	tasks taskQueue

	// pendingCoordRequests/pendingParentsRequests track in-flight
	// fetch requests so onMissingCoords and onWrongControlHash can avoid
	// scheduling a second request task for a coordinate or hash that is
	// already outstanding.
	// This never changes what a Member accepts off the wire — an
	// unsolicited response is still processed normally — it only
	// suppresses redundant outgoing requests.
	pendingCoordRequests   *linked.Hashmap[unit.UnitCoord, struct{}]
	pendingParentsRequests *linked.Hashmap[ids.ID, struct{}]

	// multicastOrigin records, per unit hash, the moment it was first
	// scheduled for multicast — so each (re)multicast can report how
	// old the unit was when it went back out.
	multicastOrigin map[ids.ID]time.Time
	multicastAge    metric.Averager
}

// New returns a Member ready to Run, for a session described by
// config, backed by the given collaborators. logger may be nil, in
// which case nothing is logged. reg may be nil, in which case no
// Prometheus collectors are registered.
func New[D any](config Config, keyBox signed.KeyBox, net network.Network, io dataio.DataIO[D], engine consensus.Engine, logger log.Logger, reg prometheus.Registerer) (*Member[D], error) {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	st, err := store.New[D](config.NMembers, reg)
	if err != nil {
		return nil, err
	}
	m := &Member[D]{
		config:                 config,
		keyBox:                 keyBox,
		net:                    net,
		dataIO:                 io,
		engine:                 engine,
		store:                  st,
		log:                    logger,
		pendingCoordRequests:   linked.NewHashmap[unit.UnitCoord, struct{}](),
		pendingParentsRequests: linked.NewHashmap[ids.ID, struct{}](),
		multicastOrigin:        make(map[ids.ID]time.Time),
	}
	if reg != nil {
		avg, err := metric.NewAverager("rush_member_multicast_age_seconds", "Average age of a unit, from creation to (re)multicast, at the moment it is sent.", reg)
		if err != nil {
			return nil, err
		}
		m.multicastAge = avg
	}
	return m, nil
}

func (m *Member[D]) sendConsensusNotification(n consensus.NotificationIn) {
	select {
	case m.engine.In() <- n:
	default:
		m.log.Debug("consensus inbound channel full, dropping notification")
	}
}

func (m *Member[D]) sendNetworkCommand(cmd network.Command) {
	if err := m.net.Send(cmd); err != nil {
		m.log.Debug("failed to send network command", "error", err)
	}
}

// onCreate handles a CreatedPreUnit notification: it fetches data for
// the new unit, signs it inline on the reactor goroutine (potentially
// slow — see signed.KeyBox.Sign; no other event is handled until it
// returns), stores it, and schedules its first multicast.
func (m *Member[D]) onCreate(pu unit.PreUnit, now time.Time) {
	data := m.dataIO.GetData()
	full := unit.FullUnit[D]{Inner: pu, Data: data, SessionID: m.config.SessionID}
	su, err := signed.Sign[unit.FullUnit[D]](m.keyBox, full)
	if err != nil {
		m.log.Error("failed to sign locally created unit", "error", err)
		return
	}
	if err := m.store.AddUnit(su, false); err != nil {
		m.log.Error("failed to add locally created unit to store", "error", err)
		return
	}
	hash, err := full.Hash()
	if err != nil {
		m.log.Error("failed to hash locally created unit", "error", err)
		return
	}
	m.multicastOrigin[hash] = now
	heap.Push(&m.tasks, ScheduledTask{
		Task: Task{Kind: TaskUnitMulticast, Hash: hash, Delay: InitialMulticastDelay},
		At:   now,
	})
}

// triggerTasks pops and runs every task whose scheduled time has
// arrived.
func (m *Member[D]) triggerTasks(now time.Time) {
	for m.tasks.Len() > 0 {
		next := m.tasks[0]
		if next.At.After(now) {
			return
		}
		heap.Pop(&m.tasks)
		switch next.Task.Kind {
		case TaskCoordRequest:
			m.scheduleCoordRequest(next.Task.Coord, now)
		case TaskParentsRequest:
			m.scheduleParentsRequest(next.Task.Hash, now)
		case TaskUnitMulticast:
			m.scheduleUnitMulticast(next.Task.Hash, next.Task.Delay, now)
		}
	}
}

func (m *Member[D]) scheduleCoordRequest(coord unit.UnitCoord, now time.Time) {
	if m.store.ContainsCoord(coord) {
		m.pendingCoordRequests.Delete(coord)
		return
	}
	msg := requestCoordMessage[D](coord)
	m.sendEncoded(msg, network.SendToRandPeerCommand)
	m.pendingCoordRequests.Put(coord, struct{}{})
	heap.Push(&m.tasks, ScheduledTask{Task: Task{Kind: TaskCoordRequest, Coord: coord}, At: now.Add(FetchInterval)})
}

func (m *Member[D]) scheduleParentsRequest(hash ids.ID, now time.Time) {
	if _, ok := m.store.GetParents(hash); ok {
		m.pendingParentsRequests.Delete(hash)
		return
	}
	msg := requestParentsMessage[D](hash)
	m.sendEncoded(msg, network.SendToRandPeerCommand)
	m.pendingParentsRequests.Put(hash, struct{}{})
	heap.Push(&m.tasks, ScheduledTask{Task: Task{Kind: TaskParentsRequest, Hash: hash}, At: now.Add(FetchInterval)})
}

func (m *Member[D]) scheduleUnitMulticast(hash ids.ID, delay time.Duration, now time.Time) {
	su, ok := m.store.UnitByHash(hash)
	if !ok {
		m.log.Error("scheduled multicast for a unit missing from our own store", "hash", hash)
		return
	}
	msg := newUnitMessage[D](su)
	m.sendEncoded(msg, network.SendToAllCommand)
	if m.multicastAge != nil {
		if origin, ok := m.multicastOrigin[hash]; ok {
			m.multicastAge.Observe(now.Sub(origin).Seconds())
		}
	}
	heap.Push(&m.tasks, ScheduledTask{Task: Task{Kind: TaskUnitMulticast, Hash: hash, Delay: delay * 2}, At: now.Add(delay)})
}

func (m *Member[D]) sendEncoded(msg ConsensusMessage[D], toCommand func([]byte) network.Command) {
	data, err := encodeMessage(msg)
	if err != nil {
		m.log.Error("failed to encode outgoing message", "error", err)
		return
	}
	m.sendNetworkCommand(toCommand(data))
}

// onMissingCoords handles a MissingUnits notification.
func (m *Member[D]) onMissingCoords(coords []unit.UnitCoord, now time.Time) {
	for _, coord := range coords {
		if m.store.ContainsCoord(coord) {
			continue
		}
		if _, pending := m.pendingCoordRequests.Get(coord); pending {
			continue
		}
		heap.Push(&m.tasks, ScheduledTask{Task: Task{Kind: TaskCoordRequest, Coord: coord}, At: now})
	}
	m.triggerTasks(now)
}

// onWrongControlHash handles a WrongControlHash notification.
func (m *Member[D]) onWrongControlHash(hash ids.ID, now time.Time) {
	if parents, ok := m.store.GetParents(hash); ok {
		m.sendConsensusNotification(consensus.NewNotificationInUnitParents(hash, parents))
		return
	}
	if _, pending := m.pendingParentsRequests.Get(hash); pending {
		return
	}
	heap.Push(&m.tasks, ScheduledTask{Task: Task{Kind: TaskParentsRequest, Hash: hash}, At: now})
	m.triggerTasks(now)
}

// onConsensusNotification dispatches a NotificationOut to its handler.
func (m *Member[D]) onConsensusNotification(n consensus.NotificationOut, now time.Time) {
	switch n.Kind {
	case consensus.CreatedPreUnit:
		m.onCreate(n.PreUnit, now)
	case consensus.MissingUnits:
		m.onMissingCoords(n.MissingCoords, now)
	case consensus.WrongControlHash:
		m.onWrongControlHash(n.Hash, now)
	case consensus.AddedToDag:
		m.store.AddParents(n.Hash, n.ParentHashes)
	}
}

// validateUnitParents checks the structural constraints a unit's
// control hash must satisfy given its round, independent of whether
// the control hash's content is actually correct (that can only be
// discovered by consensus, once it has the parents in hand).
func (m *Member[D]) validateUnitParents(pu unit.PreUnit) bool {
	if pu.NMembers() != m.config.NMembers {
		return false
	}
	nParents := pu.NParents()
	if pu.Round == 0 && nParents > 0 {
		return false
	}
	threshold := m.config.Threshold()
	if pu.Round > 0 && nParents < threshold {
		return false
	}
	if pu.Round > 0 && !pu.ControlHash.Parents[pu.Creator] {
		return false
	}
	return true
}

// validateUnit implements alert.ValidateUnitFunc: the full structural
// check applied to every unit, whether it arrives directly, as a
// fetch response, or inside a fork alert.
func (m *Member[D]) validateUnit(su signed.Signed[unit.FullUnit[D]]) bool {
	full := su.Payload()
	if full.SessionID != m.config.SessionID {
		return false
	}
	if full.Round() > m.store.LimitPerNode() {
		return false
	}
	if uint16(full.Creator()) >= uint16(m.config.NMembers) {
		return false
	}
	return m.validateUnitParents(full.Inner)
}

// addUnitToStoreUnlessFork implements the fork-detection path: a unit
// that conflicts with one already at its coordinate triggers an
// alert instead of being stored.
func (m *Member[D]) addUnitToStoreUnlessFork(su signed.Signed[unit.FullUnit[D]], now time.Time) {
	if conflict, isFork := m.store.IsNewFork(su); isFork {
		creator := su.Payload().Creator()
		if !m.store.IsForker(creator) {
			proof := alert.ForkProof[D]{U1: su.Unchecked(), U2: conflict.Unchecked()}
			m.onNewForkerDetected(creator, proof)
		}
		return
	}
	round := su.Payload().Round()
	if round <= m.store.RoundInProgress()+RoundsMargin {
		if err := m.store.AddUnit(su, false); err != nil {
			m.log.Error("failed to add validated unit to store", "error", err)
		}
	} else {
		m.log.Debug("ignoring unit far beyond round in progress", "round", round, "round_in_progress", m.store.RoundInProgress())
	}
}

// moveUnitsToConsensus drains the store's legit buffer and forwards
// it to consensus as a single NewUnits batch — called after every
// event processed by Run.
func (m *Member[D]) moveUnitsToConsensus() {
	buffered := m.store.YieldBufferUnits()
	if len(buffered) == 0 {
		return
	}
	units := make([]unit.Unit, len(buffered))
	for i, su := range buffered {
		full := su.Payload()
		hash, err := full.Hash()
		if err != nil {
			m.log.Error("failed to hash buffered unit", "error", err)
			continue
		}
		units[i] = unit.FromPreUnit(full.Inner, hash)
	}
	m.sendConsensusNotification(consensus.NewNotificationInNewUnits(units))
}

func (m *Member[D]) onUnitReceived(su signed.Signed[unit.FullUnit[D]], fromAlert bool, now time.Time) {
	if fromAlert {
		if err := m.store.AddUnit(su, true); err != nil {
			m.log.Error("failed to add alerted unit to store", "error", err)
		}
		return
	}
	if m.validateUnit(su) {
		m.addUnitToStoreUnlessFork(su, now)
	}
}

func (m *Member[D]) onRequestCoord(peer network.PeerID, coord unit.UnitCoord) {
	su, ok := m.store.UnitByCoord(coord)
	if !ok {
		return
	}
	msg := responseCoordMessage[D](su)
	m.sendEncoded(msg, func(data []byte) network.Command { return network.SendToPeerCommand(data, peer) })
}

func (m *Member[D]) onRequestParents(peer network.PeerID, hash ids.ID) {
	parentHashes, ok := m.store.GetParents(hash)
	if !ok {
		return
	}
	parents := make([]signed.Signed[unit.FullUnit[D]], 0, len(parentHashes))
	for _, ph := range parentHashes {
		su, ok := m.store.UnitByHash(ph)
		if !ok {
			m.log.Error("parent hash missing from store answering parents request", "hash", ph)
			return
		}
		parents = append(parents, su)
	}
	msg := responseParentsMessage[D](hash, parents)
	m.sendEncoded(msg, func(data []byte) network.Command { return network.SendToPeerCommand(data, peer) })
}

// onParentsResponse validates a ResponseParents reply against the
// unit it claims to answer for, recombines the control hash, and on
// success reports the parents to consensus. A response whose length
// does not match the unit's declared parent count is dropped as
// invalid, rather than processed partially.
func (m *Member[D]) onParentsResponse(hash ids.ID, parents []signed.Signed[unit.FullUnit[D]], now time.Time) {
	owner, ok := m.store.UnitByHash(hash)
	if !ok {
		m.log.Debug("parents response for unknown unit", "hash", hash)
		return
	}
	uRound := owner.Payload().Round()
	controlHash := owner.Payload().Inner.ControlHash

	var parentIDs []unit.NodeIndex
	for i, present := range controlHash.Parents {
		if present {
			parentIDs = append(parentIDs, unit.NodeIndex(i))
		}
	}
	if len(parentIDs) != len(parents) {
		m.log.Debug("parents response has wrong length", "expected", len(parentIDs), "got", len(parents))
		return
	}

	parentMap := unit.NewNodeMap[*ids.ID](m.config.NMembers)
	for i, su := range parents {
		if su.Payload().Round()+1 != uRound {
			m.log.Debug("parents response contains a unit of the wrong round")
			return
		}
		if su.Payload().Creator() != parentIDs[i] {
			m.log.Debug("parents response contains a unit with the wrong creator")
			return
		}
		if !m.validateUnit(su) {
			m.log.Debug("parents response contains a unit that fails validation")
			return
		}
		pHash, err := su.Payload().Hash()
		if err != nil {
			m.log.Error("failed to hash a parent unit", "error", err)
			return
		}
		parentMap[parentIDs[i]] = &pHash
		m.addUnitToStoreUnlessFork(su, now)
	}

	if unit.CombineHashes(parentMap) != controlHash.Hash {
		m.log.Debug("parents response recombines to the wrong control hash", "hash", hash)
		return
	}
	var parentHashes []ids.ID
	for _, h := range parentMap {
		if h != nil {
			parentHashes = append(parentHashes, *h)
		}
	}
	m.store.AddParents(hash, parentHashes)
	m.pendingParentsRequests.Delete(hash)
	m.sendConsensusNotification(consensus.NewNotificationInUnitParents(hash, parentHashes))
}

// onNewForkerDetected marks forker, replays its in-store units as
// part of a fresh fork alert, and reliably broadcasts it.
func (m *Member[D]) onNewForkerDetected(forker unit.NodeIndex, proof alert.ForkProof[D]) {
	alertedUnits := m.store.MarkForker(forker)
	a := alert.FormAlert[D](m.config.Self, forker, proof, alertedUnits)
	msg := forkAlertMessage[D](a)
	m.sendEncoded(msg, network.ReliableBroadcastCommand)
}

func (m *Member[D]) onForkAlert(a alert.Alert[D], now time.Time) {
	legitUnits, err := alert.ValidateAlert[D](m.keyBox, m.validateUnit, m.config.NMembers, a)
	if err != nil {
		m.log.Debug("received an invalid fork alert", "sender", a.Sender, "forker", a.Forker, "error", err)
		return
	}
	if !m.store.IsForker(a.Forker) {
		m.onNewForkerDetected(a.Forker, a.Proof)
	}
	for _, su := range legitUnits {
		m.onUnitReceived(su, true, now)
	}
}

func (m *Member[D]) onConsensusMessage(msg ConsensusMessage[D], peer network.PeerID, now time.Time) {
	switch msg.Kind {
	case KindNewUnit:
		if su, err := msg.Unit.Check(m.keyBox); err == nil {
			m.onUnitReceived(su, false, now)
		}
	case KindRequestCoord:
		m.onRequestCoord(peer, msg.Coord)
	case KindResponseCoord:
		if su, err := msg.Unit.Check(m.keyBox); err == nil {
			m.onUnitReceived(su, false, now)
		}
	case KindRequestParents:
		m.onRequestParents(peer, msg.Hash)
	case KindResponseParents:
		parents := make([]signed.Signed[unit.FullUnit[D]], 0, len(msg.Parents))
		for _, unchecked := range msg.Parents {
			su, err := unchecked.Check(m.keyBox)
			if err != nil {
				m.log.Debug("bad signature in parents response", "error", err)
				return
			}
			parents = append(parents, su)
		}
		m.onParentsResponse(msg.ParentsOf, parents, now)
	case KindForkAlert:
		m.onForkAlert(msg.Alert, now)
	}
}

func (m *Member[D]) onOrderedBatch(hashes []ids.ID) {
	batch := make(dataio.OrderedBatch[D], len(hashes))
	for i, h := range hashes {
		su, ok := m.store.UnitByHash(h)
		if !ok {
			m.log.Error("ordered batch references a unit missing from the store", "hash", h)
			panic("member: ordered unit must be in store")
		}
		batch[i] = su.Payload().Data
	}
	if err := m.dataIO.SendOrderedBatch(batch); err != nil {
		m.log.Debug("error sending ordered batch", "error", err)
	}
}

func (m *Member[D]) onNetworkEvent(ev network.Event, now time.Time) {
	msg, err := decodeMessage[D](ev.Data)
	if err != nil {
		m.log.Debug("error decoding network message", "error", err)
		return
	}
	m.onConsensusMessage(msg, ev.Peer, now)
}
