// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendToAllReachesEveryOtherPeer(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	c := hub.Join("c")

	require.NoError(t, a.Send(SendToAllCommand([]byte("hello"))))

	for _, n := range []*InMemory{b, c} {
		select {
		case ev := <-n.Events():
			require.Equal(t, []byte("hello"), ev.Data)
			require.Equal(t, PeerID("a"), ev.Peer)
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}
	select {
	case ev := <-a.Events():
		t.Fatalf("sender should not receive its own broadcast: %v", ev)
	default:
	}
}

func TestSendToPeerIsDirected(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	c := hub.Join("c")

	require.NoError(t, a.Send(SendToPeerCommand([]byte("hi"), "b")))

	select {
	case ev := <-b.Events():
		require.Equal(t, []byte("hi"), ev.Data)
	case <-time.After(time.Second):
		t.Fatal("expected event on b")
	}
	select {
	case ev := <-c.Events():
		t.Fatalf("c should not receive a directed message: %v", ev)
	default:
	}
}

func TestSendToUnknownPeerErrors(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	require.Error(t, a.Send(SendToPeerCommand([]byte("hi"), "ghost")))
}

func TestSendToRandPeerPicksOneOther(t *testing.T) {
	hub := NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	c := hub.Join("c")

	require.NoError(t, a.Send(SendToRandPeerCommand([]byte("x"))))

	delivered := 0
	for _, n := range []*InMemory{b, c} {
		select {
		case <-n.Events():
			delivered++
		default:
		}
	}
	require.Equal(t, 1, delivered, "exactly one peer should receive a SendToRandPeer message")
}
