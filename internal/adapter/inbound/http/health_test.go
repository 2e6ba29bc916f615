package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keyforge/keyforge/internal/adapter/outbound/memstore"
)

func TestHealthHandlerReturns200WhenBothStoresReachable(t *testing.T) {
	validatorStore := memstore.New()
	t.Cleanup(validatorStore.Stop)
	managerStore := memstore.New()
	t.Cleanup(managerStore.Stop)

	checker := NewHealthChecker(validatorStore, managerStore)
	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status field = %q, want healthy", resp.Status)
	}
}

// failingPingStore wraps a working memstore but reports unreachable,
// simulating a down manager-principal connection.
type failingPingStore struct {
	*memstore.Store
}

func (failingPingStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthHandlerReturns503WhenAPrincipalFails(t *testing.T) {
	validatorStore := memstore.New()
	t.Cleanup(validatorStore.Stop)
	backingManager := memstore.New()
	t.Cleanup(backingManager.Stop)
	failedManager := failingPingStore{Store: backingManager}

	checker := NewHealthChecker(validatorStore, failedManager)
	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body=%s", rec.Code, rec.Body.String())
	}
}
