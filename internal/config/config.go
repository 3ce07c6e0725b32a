package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Knock protocol
	Sequence      []int // ordered knock ports
	ProtectedPort int
	WindowSeconds int // max elapsed time first->last knock
	OpenSeconds   int // auto-revoke delay; 0 = never

	ListenHost string
	HTTPAddr   string

	Env      string // "dev" | "prod"
	Firewall string // "iptables" | "memory"
	DBPath   string // e.g. "./data/portcullis.db"

	// Knock audit retention
	EventRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)
}

// FromEnv reads configuration from PORTCULLIS_* environment variables.
// Malformed values for the knock-critical options (sequence, protected
// port, window, open seconds) are returned as errors rather than papered
// over with a default: running with the wrong ports or window silently
// breaks the protocol. Operational knobs (retention, prune interval)
// keep fail-soft defaults.
func FromEnv() (Config, error) {
	env := strings.ToLower(getenvDefault("PORTCULLIS_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	seq, err := parsePorts(getenvDefault("PORTCULLIS_SEQUENCE", "1234,5678,9012"))
	if err != nil {
		return Config{}, fmt.Errorf("PORTCULLIS_SEQUENCE: %w", err)
	}

	// Same strictness for the other knock-critical numbers: a typo here
	// must not quietly become a default.
	protected, err := getenvIntStrict("PORTCULLIS_PROTECTED_PORT", 2222)
	if err != nil {
		return Config{}, err
	}
	window, err := getenvIntStrict("PORTCULLIS_WINDOW_SECONDS", 10)
	if err != nil {
		return Config{}, err
	}
	open, err := getenvIntStrict("PORTCULLIS_OPEN_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}

	firewall := strings.ToLower(strings.TrimSpace(os.Getenv("PORTCULLIS_FIREWALL")))
	if firewall == "" {
		if env == "prod" {
			firewall = "iptables"
		} else {
			firewall = "memory"
		}
	}

	return Config{
		Sequence:      seq,
		ProtectedPort: protected,
		WindowSeconds: window,
		OpenSeconds:   open,

		ListenHost: getenvDefault("PORTCULLIS_LISTEN_HOST", "0.0.0.0"),
		HTTPAddr:   getenvDefault("PORTCULLIS_HTTP_ADDR", "127.0.0.1:8080"),

		Env:      env,
		Firewall: firewall,
		DBPath:   getenvDefault("PORTCULLIS_DB_PATH", "./data/portcullis.db"),

		EventRetentionDays: getenvInt("PORTCULLIS_EVENT_RETENTION_DAYS", 30),
		PruneIntervalHours: getenvInt("PORTCULLIS_PRUNE_INTERVAL_HOURS", 6),
	}, nil
}

// Validate rejects configurations the daemon must not run with. A knock
// server with a bad sequence or window is not degraded, it is wrong, so
// callers should treat any error here as fatal.
func (c Config) Validate() error {
	if len(c.Sequence) == 0 {
		return fmt.Errorf("knock sequence is empty")
	}
	seen := make(map[int]struct{}, len(c.Sequence))
	for _, p := range c.Sequence {
		if p < 1 || p > 65535 {
			return fmt.Errorf("knock port %d out of range", p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("knock port %d appears twice in sequence", p)
		}
		seen[p] = struct{}{}
	}
	if c.ProtectedPort < 1 || c.ProtectedPort > 65535 {
		return fmt.Errorf("protected port %d out of range", c.ProtectedPort)
	}
	if _, ok := seen[c.ProtectedPort]; ok {
		return fmt.Errorf("protected port %d is part of the knock sequence", c.ProtectedPort)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.WindowSeconds)
	}
	if c.OpenSeconds < 0 {
		return fmt.Errorf("open seconds must not be negative, got %d", c.OpenSeconds)
	}
	if c.Firewall != "iptables" && c.Firewall != "memory" {
		return fmt.Errorf("unknown firewall backend %q", c.Firewall)
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvIntStrict fails on an unparsable value instead of hiding it
// behind the default. Out-of-range numbers still parse here; Validate
// rejects them with a better message.
func getenvIntStrict(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad integer %q", key, v)
	}
	return n, nil
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parsePorts(v string) ([]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad port %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
