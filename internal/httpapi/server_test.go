package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/httpapi"
	fwmemory "github.com/BrandonDHaskell/Portcullis/internal/knock/firewall/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/service"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// newTestServer wires the admin API against in-memory backends and
// returns the httptest server plus the pieces tests poke at directly.
func newTestServer(t *testing.T) (*httptest.Server, *service.SequenceTracker, *service.GrantService, *fwmemory.Controller) {
	t.Helper()

	tracker := service.NewSequenceTracker([]int{1000, 2000, 3000}, 10*time.Second)
	fw := fwmemory.NewController()
	grants := service.NewGrantService(fw, memory.NewGrantEventStore(), 30*time.Second, log.New(io.Discard, "", 0))

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        log.New(io.Discard, "", 0),
		Addr:          ":0",
		Tracker:       tracker,
		Grants:        grants,
		ProtectedPort: 2222,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tracker, grants, fw
}

func TestStatus_ReportsGrantsAndTracking(t *testing.T) {
	ts, tracker, grants, _ := newTestServer(t)

	grants.Open(context.Background(), "10.0.0.5")
	tracker.HandleKnock(types.KnockEvent{Address: "10.0.0.9", Port: 1000, At: time.Now().UTC()})

	resp, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !status.OK || status.ProtectedPort != 2222 || status.SequenceLength != 3 {
		t.Errorf("unexpected status header fields: %+v", status)
	}
	if status.TrackedSources != 1 {
		t.Errorf("expected 1 tracked source, got %d", status.TrackedSources)
	}
	if len(status.ActiveGrants) != 1 || status.ActiveGrants[0].Address != "10.0.0.5" {
		t.Errorf("expected active grant for 10.0.0.5, got %+v", status.ActiveGrants)
	}
	if status.ActiveGrants[0].ExpiresAt == "" {
		t.Error("expected grant expiry in status")
	}
}

func TestRevoke_RemovesGrant(t *testing.T) {
	ts, _, grants, fw := newTestServer(t)

	grants.Open(context.Background(), "10.0.0.5")

	body := []byte(`{"address":"10.0.0.5"}`)
	resp, err := http.Post(ts.URL+"/v1/revoke", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if fw.Granted("10.0.0.5") {
		t.Error("expected access revoked")
	}
	if len(grants.Active()) != 0 {
		t.Errorf("expected no active grants, got %+v", grants.Active())
	}
}

func TestRevoke_UnknownAddressIsStillOK(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	body := []byte(`{"address":"198.51.100.7"}`)
	resp, err := http.Post(ts.URL+"/v1/revoke", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	// Revoke is idempotent; revoking a never-granted address is a no-op.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRevoke_BadRequests(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	for name, body := range map[string]string{
		"bad json":      `{"address":`,
		"empty address": `{"address":"  "}`,
		"unknown field": `{"address":"10.0.0.5","force":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/revoke", "application/json", bytes.NewReader([]byte(body)))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}
