// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network defines the member's transport contract and a
// simple in-memory implementation usable in tests and the example
// binary. A real deployment supplies its own Network backed by actual
// peer connections; the member only ever depends on this interface.
package network

import "fmt"

// PeerID identifies a peer on the network. Its representation is
// transport-specific; the member treats it as an opaque token.
type PeerID string

// CommandKind discriminates the variants of Command.
type CommandKind int

const (
	// SendToAll multicasts Data to every known peer. Best-effort.
	SendToAll CommandKind = iota
	// SendToRandPeer sends Data to one peer chosen uniformly at
	// random. Best-effort.
	SendToRandPeer
	// SendToPeer sends Data to exactly the named peer. Best-effort.
	SendToPeer
	// ReliableBroadcast multicasts Data to every honest peer with a
	// guarantee of eventual delivery even under adversarial message
	// reordering or loss.
	ReliableBroadcast
)

// Command is an outbound instruction the member issues to the
// network. Send is fire-and-forget: the member never blocks waiting
// for delivery.
type Command struct {
	Kind CommandKind
	Data []byte
	// Peer is set only for SendToPeer.
	Peer PeerID
}

// SendToAllCommand builds a SendToAll command.
func SendToAllCommand(data []byte) Command { return Command{Kind: SendToAll, Data: data} }

// SendToRandPeerCommand builds a SendToRandPeer command.
func SendToRandPeerCommand(data []byte) Command { return Command{Kind: SendToRandPeer, Data: data} }

// SendToPeerCommand builds a SendToPeer command addressed to peer.
func SendToPeerCommand(data []byte, peer PeerID) Command {
	return Command{Kind: SendToPeer, Data: data, Peer: peer}
}

// ReliableBroadcastCommand builds a ReliableBroadcast command.
func ReliableBroadcastCommand(data []byte) Command {
	return Command{Kind: ReliableBroadcast, Data: data}
}

// Event is an inbound occurrence the member reacts to: a message
// received from a peer.
type Event struct {
	Data []byte
	Peer PeerID
}

func (e Event) String() string {
	return fmt.Sprintf("MessageReceived(%d bytes from %s)", len(e.Data), e.Peer)
}

// Network is the transport contract a member depends on. Send never
// blocks on delivery; Events yields inbound messages as they arrive
// and is closed when the network shuts down.
type Network interface {
	Send(cmd Command) error
	Events() <-chan Event
}
