package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flss-ops/api/internal/commerce"
	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/services"
)

type stubReconciliationService struct {
	reconcileFn func(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error)
	statusFn    func(draftOrderID int64) (domain.ReconciliationStatus, error)
	commands    []services.ReconcileCommand
}

func (s *stubReconciliationService) Reconcile(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
	s.commands = append(s.commands, cmd)
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return services.ReconcileResult{}, nil
}

func (s *stubReconciliationService) Status(draftOrderID int64) (domain.ReconciliationStatus, error) {
	if s.statusFn != nil {
		return s.statusFn(draftOrderID)
	}
	return domain.ReconciliationStatus{}, services.ErrStatusNotFound
}

func newReconciliationRouter(reconciler services.ReconciliationService) chi.Router {
	r := chi.NewRouter()
	NewReconciliationHandlers(reconciler).Routes(r)
	return r
}

func TestReconciliationHandlersReconcile(t *testing.T) {
	stub := &stubReconciliationService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
			return services.ReconcileResult{
				DraftOrderID: cmd.DraftOrderID,
				Tier:         "wholesale",
				ExpectedHash: "deadbeef",
				Corrected:    true,
				LinesChecked: 2,
				Message:      "pricing corrected",
			}, nil
		},
	}
	router := newReconciliationRouter(stub)

	payload := `{"tierDiscounts": {"wholesale": 40}}`
	req := httptest.NewRequest(http.MethodPost, "/42:reconcile-pricing", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp reconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.DraftOrderID != 42 || !resp.Corrected || resp.ExpectedHash != "deadbeef" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(stub.commands) != 1 {
		t.Fatalf("expected one reconcile call, got %d", len(stub.commands))
	}
	if stub.commands[0].TierDiscounts["wholesale"] != 40 {
		t.Fatalf("expected tier discounts forwarded, got %v", stub.commands[0].TierDiscounts)
	}
}

func TestReconciliationHandlersReconcileWithoutBody(t *testing.T) {
	stub := &stubReconciliationService{}
	router := newReconciliationRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/42:reconcile-pricing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(stub.commands) != 1 || stub.commands[0].TierDiscounts != nil {
		t.Fatalf("expected reconcile without overrides, got %+v", stub.commands)
	}
}

func TestReconciliationHandlersReconcileInvalidID(t *testing.T) {
	router := newReconciliationRouter(&stubReconciliationService{})

	for _, id := range []string{"abc", "-1", "0"} {
		req := httptest.NewRequest(http.MethodPost, "/"+id+":reconcile-pricing", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected status 400, got %d", id, rr.Code)
		}
	}
}

func TestReconciliationHandlersReconcileUpstreamErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: commerce.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "upstream failure", err: &commerce.StatusError{Status: http.StatusServiceUnavailable}, wantStatus: http.StatusBadGateway},
		{name: "timeout", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubReconciliationService{
				reconcileFn: func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error) {
					return services.ReconcileResult{}, tc.err
				},
			}
			router := newReconciliationRouter(stub)

			req := httptest.NewRequest(http.MethodPost, "/42:reconcile-pricing", nil)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
		})
	}
}

func TestReconciliationHandlersPricingStatus(t *testing.T) {
	updated := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	stub := &stubReconciliationService{
		statusFn: func(draftOrderID int64) (domain.ReconciliationStatus, error) {
			if draftOrderID != 42 {
				return domain.ReconciliationStatus{}, services.ErrStatusNotFound
			}
			return domain.ReconciliationStatus{
				DraftOrderID: 42,
				Tier:         "wholesale",
				Hash:         "deadbeef",
				Corrected:    true,
				LinesChecked: 2,
				UpdatedAt:    updated,
			}, nil
		},
	}
	router := newReconciliationRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/42/pricing-status", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var status domain.ReconciliationStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status.DraftOrderID != 42 || status.Hash != "deadbeef" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestReconciliationHandlersPricingStatusNotFound(t *testing.T) {
	router := newReconciliationRouter(&stubReconciliationService{})

	req := httptest.NewRequest(http.MethodGet, "/42/pricing-status", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "status_not_found" {
		t.Fatalf("expected status_not_found, got %v", body["error"])
	}
}
