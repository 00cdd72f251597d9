package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flss-ops/api/internal/platform/httpx"
	"github.com/flss-ops/api/internal/services"
)

const maxPricingBodySize = 256 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// PricingHandlers exposes the batch price resolution endpoint.
type PricingHandlers struct {
	pricing services.PricingService
}

// NewPricingHandlers constructs a new PricingHandlers instance.
func NewPricingHandlers(pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricing: pricing}
}

// Routes registers the pricing endpoints.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/pricing:resolve", h.resolve)
}

type resolveLineRequest struct {
	VariantID   string   `json:"variantId"`
	SKU         string   `json:"sku"`
	Quantity    int      `json:"quantity"`
	BasePrice   *float64 `json:"basePrice"`
	Collections []string `json:"collections"`
}

type resolveRequest struct {
	Lines         []resolveLineRequest `json:"lines"`
	CustomerTier  string               `json:"customerTier"`
	CustomerTags  []string             `json:"customerTags"`
	CustomerGroup string               `json:"customerGroup"`
	Currency      string               `json:"currency"`
	SalesChannel  string               `json:"salesChannel"`
	TierDiscounts map[string]float64   `json:"tierDiscounts"`
	AsOf          *time.Time           `json:"asOf"`
}

type resolvedLinePayload struct {
	VariantID      string   `json:"variantId"`
	SKU            string   `json:"sku,omitempty"`
	Quantity       int      `json:"quantity"`
	UnitPrice      *float64 `json:"unitPrice"`
	MatchedRuleID  string   `json:"matchedRuleId,omitempty"`
	FallbackReason string   `json:"fallbackReason,omitempty"`
	Source         string   `json:"source"`
}

type resolveResponse struct {
	Tier     string                `json:"tier"`
	Currency string                `json:"currency"`
	Lines    []resolvedLinePayload `json:"lines"`
	Hash     string                `json:"hash"`
}

func (h *PricingHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPricingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.ResolveLinesCommand{
		Lines:         make([]services.ResolveLineInput, 0, len(req.Lines)),
		CustomerTier:  strings.TrimSpace(req.CustomerTier),
		CustomerTags:  req.CustomerTags,
		CustomerGroup: strings.TrimSpace(req.CustomerGroup),
		Currency:      strings.TrimSpace(req.Currency),
		SalesChannel:  strings.TrimSpace(req.SalesChannel),
		TierDiscounts: req.TierDiscounts,
	}
	if req.AsOf != nil {
		cmd.AsOf = *req.AsOf
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

	pricing, err := h.pricing.ResolveLines(ctx, cmd)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildResolveResponse(pricing))
}

func buildResolveResponse(pricing services.ResolvedPricing) resolveResponse {
	resp := resolveResponse{
		Tier:     pricing.Tier,
		Currency: pricing.Currency,
		Hash:     pricing.Hash,
		Lines:    make([]resolvedLinePayload, 0, len(pricing.Lines)),
	}
	for _, line := range pricing.Lines {
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
	return resp
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to resolve pricing", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxPricingBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
