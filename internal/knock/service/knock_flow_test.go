package service_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	fwmemory "github.com/BrandonDHaskell/Portcullis/internal/knock/firewall/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/service"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// TestKnockFlow_EndToEnd runs the real pipeline — TCP listeners, engine,
// tracker, grant service — against loopback connections, the same way a
// client would knock.
func TestKnockFlow_EndToEnd(t *testing.T) {
	// Bind ephemeral ports first, then build the sequence from what we got.
	ls := service.NewListenerSet("127.0.0.1", []int{0, 0, 0}, silentLogger())
	if err := ls.Bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}
	sequence := ls.Ports()

	tracker := service.NewSequenceTracker(sequence, 10*time.Second)
	fw := fwmemory.NewController()
	grants := service.NewGrantService(fw, memory.NewGrantEventStore(), 30*time.Second, silentLogger())
	engine := service.NewEngine(tracker, grants, memory.NewKnockEventStore(), service.EngineConfig{}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan types.KnockEvent, 16)
	go ls.Run(ctx, events)
	engine.Start(ctx, events)
	t.Cleanup(engine.Stop)

	// Knock each port in order, waiting for the tracker to register one
	// knock before sending the next so arrival order is deterministic.
	for i, port := range sequence {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			t.Fatalf("knock %d: %v", i+1, err)
		}
		conn.Close()

		wantPos := i + 1
		if wantPos == len(sequence) {
			break // completion removes the entry; poll the grant instead
		}
		waitFor(t, 2*time.Second, func() bool {
			return tracker.Position("127.0.0.1") == wantPos
		}, "tracker did not register knock "+strconv.Itoa(wantPos))
	}

	waitFor(t, 2*time.Second, func() bool {
		return fw.Granted("127.0.0.1")
	}, "expected completed knock sequence to grant 127.0.0.1")

	if got := tracker.TrackedCount(); got != 0 {
		t.Errorf("expected no tracked sources after completion, got %d", got)
	}
}
