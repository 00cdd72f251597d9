package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flss-ops/api/internal/commerce"
	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/platform/httpx"
	"github.com/flss-ops/api/internal/services"
)

const maxReconcileBodySize = 16 * 1024

// ReconciliationHandlers exposes the pricing reconciliation endpoints for
// draft orders.
type ReconciliationHandlers struct {
	reconciler services.ReconciliationService
}

// NewReconciliationHandlers constructs a new ReconciliationHandlers instance.
func NewReconciliationHandlers(reconciler services.ReconciliationService) *ReconciliationHandlers {
	return &ReconciliationHandlers{reconciler: reconciler}
}

// Routes registers the reconciliation endpoints on the draft-orders group.
func (h *ReconciliationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{draftOrderID}:reconcile-pricing", h.reconcile)
	r.Get("/{draftOrderID}/pricing-status", h.pricingStatus)
}

type reconcileRequest struct {
	TierDiscounts map[string]float64 `json:"tierDiscounts"`
}

type reconcileResponse struct {
	DraftOrderID   int64                 `json:"draftOrderId"`
	Tier           string                `json:"tier"`
	TierResolution domain.TierResolution `json:"tierResolution"`
	ExpectedHash   string                `json:"expectedHash"`
	Corrected      bool                  `json:"corrected"`
	Mismatch       bool                  `json:"mismatch"`
	LinesChecked   int                   `json:"linesChecked"`
	Message        string                `json:"message,omitempty"`
}

func (h *ReconciliationHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_service_unavailable", "reconciliation service unavailable", http.StatusServiceUnavailable))
		return
	}

	draftOrderID, err := parseDraftOrderID(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "draft order id must be a positive integer", http.StatusBadRequest))
		return
	}

	cmd := services.ReconcileCommand{DraftOrderID: draftOrderID}

	// The body is optional; when present it may carry a tier discount
	// override table.
	body, err := readLimitedBody(r, maxReconcileBodySize)
	switch {
	case err == nil:
		var req reconcileRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
		cmd.TierDiscounts = req.TierDiscounts
	case errors.Is(err, errEmptyBody):
		// no overrides
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.reconciler.Reconcile(ctx, cmd)
	if err != nil {
		writeReconcileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		DraftOrderID:   result.DraftOrderID,
		Tier:           result.Tier,
		TierResolution: result.TierResolution,
		ExpectedHash:   result.ExpectedHash,
		Corrected:      result.Corrected,
		Mismatch:       result.Mismatch,
		LinesChecked:   result.LinesChecked,
		Message:        result.Message,
	})
}

func (h *ReconciliationHandlers) pricingStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_service_unavailable", "reconciliation service unavailable", http.StatusServiceUnavailable))
		return
	}

	draftOrderID, err := parseDraftOrderID(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "draft order id must be a positive integer", http.StatusBadRequest))
		return
	}

	status, err := h.reconciler.Status(draftOrderID)
	if err != nil {
		if errors.Is(err, services.ErrStatusNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("status_not_found", "no reconciliation recorded for this draft order", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load reconciliation status", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, status)
}

func parseDraftOrderID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "draftOrderID"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.ErrReconcileInvalidInput
	}
	return id, nil
}

func writeReconcileError(ctx context.Context, w http.ResponseWriter, err error) {
	var statusErr *commerce.StatusError
	switch {
	case errors.Is(err, services.ErrReconcileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, commerce.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("draft_order_not_found", "draft order not found upstream", http.StatusNotFound))
	case errors.As(err, &statusErr):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", "order system request failed", http.StatusBadGateway))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "reconciliation aborted", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to reconcile pricing", http.StatusInternalServerError))
	}
}
