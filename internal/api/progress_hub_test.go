package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rnadash/ports"
)

func waitForClients(t *testing.T, hub *ProgressHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (have %d)", want, hub.ClientCount())
}

func TestProgressHubFanOut(t *testing.T) {
	hub := NewProgressHub()

	ch1 := make(chan ports.ProgressEvent, 10)
	ch2 := make(chan ports.ProgressEvent, 10)
	hub.register <- progressClient{ch: ch1}
	hub.register <- progressClient{ch: ch2}
	waitForClients(t, hub, 2)

	hub.Emit(ports.ProgressEvent{Stage: ports.StageFit, Progress: 0.8})

	for _, ch := range []chan ports.ProgressEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, ports.StageFit, ev.Stage)
			assert.Equal(t, 0.8, ev.Progress)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(2 * time.Second):
			t.Fatal("event never reached client")
		}
	}
}

func TestProgressHubUnregisterClosesChannel(t *testing.T) {
	hub := NewProgressHub()

	ch := make(chan ports.ProgressEvent, 10)
	hub.register <- progressClient{ch: ch}
	waitForClients(t, hub, 1)

	hub.unregister <- progressClient{ch: ch}
	waitForClients(t, hub, 0)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unregister")
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed")
	}

	// Emitting with no clients must not block or panic.
	hub.Emit(ports.ProgressEvent{Stage: ports.StageResults, Progress: 1, Done: true})
}
