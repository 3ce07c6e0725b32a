package service_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/service"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

func TestListenerSet_AcceptProducesKnockEvent(t *testing.T) {
	ls := service.NewListenerSet("127.0.0.1", []int{0, 0}, silentLogger())
	if err := ls.Bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan types.KnockEvent, 4)
	go ls.Run(ctx, events)

	ports := ls.Ports()
	if len(ports) != 2 {
		t.Fatalf("expected 2 bound ports, got %v", ports)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[1])))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case ev := <-events:
		if ev.Port != ports[1] {
			t.Errorf("expected port %d, got %d", ports[1], ev.Port)
		}
		if ev.Address != "127.0.0.1" {
			t.Errorf("expected address 127.0.0.1, got %q", ev.Address)
		}
		if ev.At.IsZero() {
			t.Error("expected a knock timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no knock event delivered")
	}
}

func TestListenerSet_BindFailureIsFatalAndCleansUp(t *testing.T) {
	first := service.NewListenerSet("127.0.0.1", []int{0}, silentLogger())
	if err := first.Bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer first.Close()
	taken := first.Ports()[0]

	// Second set wants a free port and the taken one: the whole bind
	// must fail, including the port that would have succeeded.
	second := service.NewListenerSet("127.0.0.1", []int{0, taken}, silentLogger())
	if err := second.Bind(); err == nil {
		second.Close()
		t.Fatal("expected bind error on an occupied knock port")
	}

	// The partially bound listener must have been released.
	if got := second.Ports(); len(got) != 0 {
		t.Errorf("expected no bound ports after failed bind, got %v", got)
	}
}

func TestListenerSet_RunStopsOnCancel(t *testing.T) {
	ls := service.NewListenerSet("127.0.0.1", []int{0}, silentLogger())
	if err := ls.Bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ls.Run(ctx, make(chan types.KnockEvent))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
