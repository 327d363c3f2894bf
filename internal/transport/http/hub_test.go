package http

import (
	"testing"

	"quizastrous-server/internal/domain"
)

func TestHubDisconnectsSlowObserver(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 1})
	slow := &client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	hub.clients[slow] = struct{}{}

	hub.Publish(domain.Snapshot{Phase: "reading"})
	hub.Publish(domain.Snapshot{Phase: "answering"})

	if hub.Count() != 0 {
		t.Fatalf("expected slow observer to be dropped, got %d", hub.Count())
	}
	if _, ok := <-slow.send; !ok {
		t.Fatalf("expected the first snapshot to stay queued")
	}
	if _, ok := <-slow.send; ok {
		t.Fatalf("expected queue to be closed after the drop")
	}
}

func TestHubKeepsFastObservers(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 4})
	fast := &client{id: "fast", hub: hub, send: make(chan []byte, 4)}
	hub.clients[fast] = struct{}{}

	hub.Publish(domain.Snapshot{Phase: "reading"})
	hub.Publish(domain.Snapshot{Phase: "answering"})
	if hub.Count() != 1 || len(fast.send) != 2 {
		t.Fatalf("expected both snapshots queued, count=%d queued=%d", hub.Count(), len(fast.send))
	}
}
