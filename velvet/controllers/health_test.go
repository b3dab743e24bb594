package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"velvet/velvet/utils/types"
)

type staticHealth string

func (s staticHealth) Health(ctx context.Context) string { return string(s) }

func TestHealthCheck(t *testing.T) {
	hc := NewHealthController(map[string]HealthChecker{
		"database": staticHealth("healthy"),
		"llm":      staticHealth("healthy"),
	})
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	hc.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type application/json, got %v", rr.Header().Get("Content-Type"))
	}

	var body types.HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Services["llm"] != "healthy" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	hc := NewHealthController(map[string]HealthChecker{
		"database": staticHealth("healthy"),
		"bcrp":     staticHealth("unhealthy"),
	})
	got := hc.Check(context.Background())
	if got.Status != "degraded" || got.Services["bcrp"] != "unhealthy" {
		t.Errorf("unexpected result %+v", got)
	}
}

// rendezvousHealth reports healthy only if every sibling check is running at
// the same time.
type rendezvousHealth struct{ all *sync.WaitGroup }

func (r rendezvousHealth) Health(ctx context.Context) string {
	r.all.Done()
	done := make(chan struct{})
	go func() { r.all.Wait(); close(done) }()
	select {
	case <-done:
		return "healthy"
	case <-time.After(2 * time.Second):
		return "unhealthy"
	}
}

func TestHealthChecksRunConcurrently(t *testing.T) {
	var all sync.WaitGroup
	all.Add(3)
	hc := NewHealthController(map[string]HealthChecker{
		"database": rendezvousHealth{&all},
		"cache":    rendezvousHealth{&all},
		"llm":      rendezvousHealth{&all},
	})
	got := hc.Check(context.Background())
	if got.Status != "healthy" || len(got.Services) != 3 {
		t.Errorf("expected all checks to meet, got %+v", got)
	}
}
