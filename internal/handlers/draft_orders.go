package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flss-ops/api/internal/commerce"
	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/platform/httpx"
	"github.com/flss-ops/api/internal/services"
)

const maxDraftOrderBodySize = 256 * 1024

// DraftOrderHandlers exposes the staff order capture endpoint.
type DraftOrderHandlers struct {
	drafts services.DraftOrderService
}

// NewDraftOrderHandlers constructs a new DraftOrderHandlers instance.
func NewDraftOrderHandlers(drafts services.DraftOrderService) *DraftOrderHandlers {
	return &DraftOrderHandlers{drafts: drafts}
}

// Routes registers the draft order capture endpoint on the draft-orders group.
func (h *DraftOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createDraftOrder)
}

type noteAttributeRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type createDraftOrderRequest struct {
	CustomerID    int64                  `json:"customerId"`
	CustomerTier  string                 `json:"customerTier"`
	CustomerTags  []string               `json:"customerTags"`
	Currency      string                 `json:"currency"`
	SalesChannel  string                 `json:"salesChannel"`
	TierDiscounts map[string]float64     `json:"tierDiscounts"`
	Lines         []resolveLineRequest   `json:"lines"`
	Note          string                 `json:"note"`
	Attributes    []noteAttributeRequest `json:"attributes"`
}

type createDraftOrderResponse struct {
	DraftOrder domain.DraftOrder     `json:"draftOrder"`
	Tier       string                `json:"tier"`
	Hash       string                `json:"hash"`
	Lines      []resolvedLinePayload `json:"lines"`
}

func (h *DraftOrderHandlers) createDraftOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("draft_order_service_unavailable", "draft order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxDraftOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createDraftOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.CreateDraftOrderCommand{
		CustomerID:    req.CustomerID,
		CustomerTier:  strings.TrimSpace(req.CustomerTier),
		CustomerTags:  req.CustomerTags,
		Currency:      strings.TrimSpace(req.Currency),
		SalesChannel:  strings.TrimSpace(req.SalesChannel),
		TierDiscounts: req.TierDiscounts,
		Note:          strings.TrimSpace(req.Note),
		Lines:         make([]services.ResolveLineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, services.ResolveLineInput{
			VariantID:   strings.TrimSpace(line.VariantID),
			SKU:         strings.TrimSpace(line.SKU),
			Quantity:    line.Quantity,
			BasePrice:   line.BasePrice,
			Collections: line.Collections,
		})
	}
	for _, attr := range req.Attributes {
		name := strings.TrimSpace(attr.Name)
		if name == "" {
			continue
		}
		cmd.Attributes = append(cmd.Attributes, domain.NoteAttribute{Name: name, Value: attr.Value})
	}

	result, err := h.drafts.Create(ctx, cmd)
	if err != nil {
		writeDraftOrderError(ctx, w, err)
		return
	}

	resp := createDraftOrderResponse{
		DraftOrder: result.DraftOrder,
		Tier:       result.Tier,
		Hash:       result.Hash,
		Lines:      make([]resolvedLinePayload, 0, len(result.Lines)),
	}
	for _, line := range result.Lines {
		resp.Lines = append(resp.Lines, resolvedLinePayload{
			VariantID:      line.VariantID,
			SKU:            line.SKU,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			MatchedRuleID:  line.MatchedRuleID,
			FallbackReason: line.FallbackReason,
			Source:         string(line.Source),
		})
	}

	writeJSONResponse(w, http.StatusCreated, resp)
}

func writeDraftOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var statusErr *commerce.StatusError
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDraftOrderLineUnpriced):
		httpx.WriteError(ctx, w, httpx.NewError("line_unpriced", err.Error(), http.StatusUnprocessableEntity))
	case errors.As(err, &statusErr):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", "order system request failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to create draft order", http.StatusInternalServerError))
	}
}
