package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// ListenerSet owns one passive TCP listener per knock port. An accepted
// connection is the knock itself: it is closed immediately, no data is
// read, and nothing is ever written back — to the client a knock port
// behaves like any other open-then-closed port.
type ListenerSet struct {
	host      string
	ports     []int
	logger    *log.Logger
	listeners []net.Listener
}

func NewListenerSet(host string, ports []int, logger *log.Logger) *ListenerSet {
	return &ListenerSet{host: host, ports: ports, logger: logger}
}

// Bind opens every knock port. Any single failure closes what was bound
// and returns an error: a missing knock listener silently breaks the
// protocol, so there is no degraded mode.
func (ls *ListenerSet) Bind() error {
	for _, p := range ls.ports {
		l, err := net.Listen("tcp", net.JoinHostPort(ls.host, strconv.Itoa(p)))
		if err != nil {
			ls.Close()
			ls.listeners = nil
			return fmt.Errorf("bind knock port %d: %w", p, err)
		}
		ls.listeners = append(ls.listeners, l)
	}
	return nil
}

// Ports returns the actual bound ports, in sequence order. Differs from
// the configured ports only when binding port 0 (tests).
func (ls *ListenerSet) Ports() []int {
	out := make([]int, 0, len(ls.listeners))
	for _, l := range ls.listeners {
		out = append(out, l.Addr().(*net.TCPAddr).Port)
	}
	return out
}

// Run accepts knocks on all listeners and delivers them to events until
// ctx is cancelled. Bind must have succeeded first. Run blocks; the
// caller decides whether to spawn it.
func (ls *ListenerSet) Run(ctx context.Context, events chan<- types.KnockEvent) {
	var wg sync.WaitGroup

	// Cancellation unblocks Accept by closing the listeners.
	go func() {
		<-ctx.Done()
		ls.Close()
	}()

	for _, l := range ls.listeners {
		wg.Add(1)
		go func(l net.Listener) {
			defer wg.Done()
			ls.accept(ctx, l, events)
		}(l)
	}
	wg.Wait()
}

func (ls *ListenerSet) accept(ctx context.Context, l net.Listener, events chan<- types.KnockEvent) {
	port := l.Addr().(*net.TCPAddr).Port

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			// Transient accept errors drop the single knock, nothing else.
			ls.logger.Printf("accept on knock port %d: %v", port, err)
			continue
		}

		ev := types.KnockEvent{Port: port, At: time.Now().UTC()}
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			ev.Address = host
		}
		_ = conn.Close()

		if ev.Address == "" {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts every listener down. Safe to call more than once.
func (ls *ListenerSet) Close() {
	for _, l := range ls.listeners {
		_ = l.Close()
	}
}
