package types

import "time"

// KnockEvent is one accepted-and-closed connection on a knock port.
// The connection itself is the signal; it carries no payload.
type KnockEvent struct {
	Address string // source IP, no port
	Port    int    // the knock port that was hit
	At      time.Time
}

// GrantInfo describes one currently-open grant for the status API.
type GrantInfo struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	OpenedAt  string `json:"opened_at"`
	ExpiresAt string `json:"expires_at,omitempty"` // empty when auto-revoke is disabled
}

type StatusResponse struct {
	OK             bool        `json:"ok"`
	ProtectedPort  int         `json:"protected_port"`
	SequenceLength int         `json:"sequence_length"`
	TrackedSources int         `json:"tracked_sources"`
	ActiveGrants   []GrantInfo `json:"active_grants"`
	ServerTime     string      `json:"server_time"`
}

type RevokeRequest struct {
	Address string `json:"address"`
}

type RevokeResponse struct {
	OK         bool   `json:"ok"`
	Address    string `json:"address"`
	ServerTime string `json:"server_time"`
}
