package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthyPinger() Pinger {
	return PingerFunc(func(ctx context.Context) error { return nil })
}

func failingPinger(msg string) Pinger {
	return PingerFunc(func(ctx context.Context) error { return errors.New(msg) })
}

func TestCheckAllHealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("platform", healthyPinger())
	hc.AddDependency("redis", healthyPinger())

	status := hc.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy", status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("dependencies = %d, want 2", len(status.Dependencies))
	}
}

func TestCheckPlatformDownIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("platform", failingPinger("connection refused"))
	hc.AddDependency("redis", healthyPinger())

	status := hc.Check(context.Background())
	if status.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", status.Status)
	}
	if status.Dependencies["platform"].Message != "connection refused" {
		t.Errorf("message = %q", status.Dependencies["platform"].Message)
	}
}

func TestCheckOptionalDependencyDownIsDegraded(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("platform", healthyPinger())
	hc.AddDependency("redis", failingPinger("timeout"))

	status := hc.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", status.Status)
	}
}

func TestAddDependencyNilIgnored(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("redis", nil)

	status := hc.Check(context.Background())
	if len(status.Dependencies) != 0 {
		t.Errorf("nil pinger should not register a dependency")
	}
}

func TestReadinessEndpoint(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("platform", failingPinger("down"))

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, hc)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("body status = %s, want unhealthy", status.Status)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddDependency("platform", failingPinger("down"))

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, hc)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// Liveness ignores dependencies.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
