package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthyCheck() Check   { return Check{Status: StatusHealthy} }
func degradedCheck() Check  { return Check{Status: StatusDegraded, Message: "backlog above threshold"} }
func unhealthyCheck() Check { return Check{Status: StatusUnhealthy, Message: "connection refused"} }

func TestHandler_AllHealthy(t *testing.T) {
	handler := NewHandler("v1.0.0 (abc, today)")
	handler.Register("postgres", CheckerFunc(healthyCheck))
	handler.Register("redis", CheckerFunc(healthyCheck))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Build != "v1.0.0 (abc, today)" {
		t.Errorf("unexpected build string: %s", response.Build)
	}
	if len(response.Checks) != 2 {
		t.Errorf("expected 2 checks, got %d", len(response.Checks))
	}
}

func TestHandler_UnhealthyWins(t *testing.T) {
	handler := NewHandler("dev")
	handler.Register("postgres", CheckerFunc(unhealthyCheck))
	handler.Register("notify-backlog", CheckerFunc(degradedCheck))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
}

func TestHandler_DegradedStaysOK(t *testing.T) {
	handler := NewHandler("dev")
	handler.Register("notify-backlog", CheckerFunc(degradedCheck))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for degraded, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusDegraded {
		t.Errorf("expected status degraded, got %s", response.Status)
	}
}

func TestReadiness(t *testing.T) {
	handler := NewHandler("dev")
	handler.Register("postgres", CheckerFunc(healthyCheck))
	handler.Register("notify-backlog", CheckerFunc(degradedCheck))

	w := httptest.NewRecorder()
	handler.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("degraded must not fail readiness, got %d", w.Code)
	}

	handler.Register("postgres", CheckerFunc(unhealthyCheck))
	w = httptest.NewRecorder()
	handler.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 when a check is unhealthy, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestLiveness(t *testing.T) {
	w := httptest.NewRecorder()
	Liveness(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker(0, func(ctx context.Context) error { return nil })
	if check := ok.Check(); check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", check.Status)
	}

	broken := NewPingChecker(0, func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	})
	check := broken.Check()
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", check.Status)
	}
	if check.Message == "" {
		t.Error("expected error message in check")
	}
}

func TestBacklogChecker(t *testing.T) {
	pending := 0
	var pendingErr error
	checker := NewBacklogChecker(100, func() (int, error) { return pending, pendingErr })

	if check := checker.Check(); check.Status != StatusHealthy {
		t.Errorf("expected healthy at zero backlog, got %s", check.Status)
	}

	pending = 101
	if check := checker.Check(); check.Status != StatusDegraded {
		t.Errorf("expected degraded above threshold, got %s", check.Status)
	}

	pendingErr = errors.New("stats unavailable")
	if check := checker.Check(); check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy on stats error, got %s", check.Status)
	}
}
