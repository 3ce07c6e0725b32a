// Package iptables implements the firewall boundary with iptables INPUT
// rules: a default DROP for the protected port, and per-source ACCEPT
// rules inserted above it on grant.
package iptables

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	ipt "github.com/coreos/go-iptables/iptables"
)

const (
	table = "filter"
	chain = "INPUT"
)

type Controller struct {
	ipt           *ipt.IPTables
	protectedPort string

	// iptables rule churn from overlapping grant/revoke goroutines can
	// race between Exists and Insert; serialize mutations.
	mu sync.Mutex
}

// New builds the controller and ensures the protected port is dropped by
// default, so that knocking has an effect. Requires the iptables binary
// and the privileges to run it.
func New(protectedPort int) (*Controller, error) {
	t, err := ipt.New()
	if err != nil {
		return nil, fmt.Errorf("iptables init: %w", err)
	}

	c := &Controller{
		ipt:           t,
		protectedPort: strconv.Itoa(protectedPort),
	}

	if err := c.ensureDefaultDrop(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) ensureDefaultDrop() error {
	rule := []string{"-p", "tcp", "--dport", c.protectedPort, "-j", "DROP"}

	exists, err := c.ipt.Exists(table, chain, rule...)
	if err != nil {
		return fmt.Errorf("check default drop: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.ipt.Insert(table, chain, 1, rule...); err != nil {
		return fmt.Errorf("install default drop for port %s: %w", c.protectedPort, err)
	}
	return nil
}

func (c *Controller) acceptRule(address string) []string {
	return []string{"-p", "tcp", "-s", address, "--dport", c.protectedPort, "-j", "ACCEPT"}
}

// Grant inserts an ACCEPT rule for address above the default DROP.
// Granting an address that already has a rule is a no-op.
func (c *Controller) Grant(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.acceptRule(address)
	exists, err := c.ipt.Exists(table, chain, rule...)
	if err != nil {
		return fmt.Errorf("check accept rule for %s: %w", address, err)
	}
	if exists {
		return nil
	}
	if err := c.ipt.Insert(table, chain, 1, rule...); err != nil {
		return fmt.Errorf("insert accept rule for %s: %w", address, err)
	}
	return nil
}

// Revoke removes the ACCEPT rule for address. Revoking an address with
// no rule is a no-op.
func (c *Controller) Revoke(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ipt.DeleteIfExists(table, chain, c.acceptRule(address)...); err != nil {
		return fmt.Errorf("delete accept rule for %s: %w", address, err)
	}
	return nil
}
