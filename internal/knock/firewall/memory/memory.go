package memory

import (
	"context"
	"sync"
)

// Call records one Grant or Revoke invocation, in order.
type Call struct {
	Action  string // "grant" | "revoke"
	Address string
}

// Controller is an in-memory firewall double for tests and dev
// environments. It tracks the set of granted addresses and every call
// made, so tests can assert both external state and call counts.
type Controller struct {
	mu      sync.Mutex
	granted map[string]struct{}
	calls   []Call

	// GrantErr / RevokeErr, when set, are returned by the respective
	// operation. State is not mutated on a failed call.
	GrantErr  error
	RevokeErr error
}

func NewController() *Controller {
	return &Controller{granted: make(map[string]struct{})}
}

func (c *Controller) Grant(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Action: "grant", Address: address})
	if c.GrantErr != nil {
		return c.GrantErr
	}
	c.granted[address] = struct{}{}
	return nil
}

func (c *Controller) Revoke(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Action: "revoke", Address: address})
	if c.RevokeErr != nil {
		return c.RevokeErr
	}
	delete(c.granted, address)
	return nil
}

// Granted reports whether address currently has access.
func (c *Controller) Granted(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.granted[address]
	return ok
}

// Calls returns a copy of every invocation made so far.
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}
