// Package firewall defines the boundary behind which network access is
// actually granted or revoked. The knock engine never manipulates rules
// itself; it only calls a Controller.
package firewall

import "context"

// Controller grants and revokes a source address's access to the
// protected port. Both operations are idempotent: granting an address
// that already has access and revoking one that has none are no-ops,
// not errors. Implementations must be safe for concurrent use — the
// engine dispatches calls from short-lived goroutines.
type Controller interface {
	Grant(ctx context.Context, address string) error
	Revoke(ctx context.Context, address string) error
}
