package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/platform/httpx"
	"github.com/flss-ops/api/internal/services"
)

const maxPriceListBodySize = 64 * 1024

// PriceListHandlers exposes the admin CRUD endpoints for price lists and
// their rules.
type PriceListHandlers struct {
	lists services.PriceListService
}

// NewPriceListHandlers constructs a new PriceListHandlers instance.
func NewPriceListHandlers(lists services.PriceListService) *PriceListHandlers {
	return &PriceListHandlers{lists: lists}
}

// Routes registers the /price-lists endpoints on the admin group.
func (h *PriceListHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/price-lists", func(group chi.Router) {
		group.Get("/", h.listPriceLists)
		group.Post("/", h.createPriceList)
		group.Get("/{priceListID}", h.getPriceList)
		group.Put("/{priceListID}", h.updatePriceList)
		group.Delete("/{priceListID}", h.deletePriceList)
		group.Post("/{priceListID}/rules", h.createRule)
		group.Put("/{priceListID}/rules/{ruleID}", h.updateRule)
		group.Delete("/{priceListID}/rules/{ruleID}", h.deleteRule)
	})
}

type upsertPriceListRequest struct {
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	IsDefault bool   `json:"isDefault"`
}

type upsertRuleRequest struct {
	Name          string                 `json:"name"`
	Priority      *int                   `json:"priority"`
	Conditions    []domain.RuleCondition `json:"conditions"`
	Action        domain.RuleAction      `json:"action"`
	EffectiveFrom *time.Time             `json:"effectiveFrom"`
	EffectiveTo   *time.Time             `json:"effectiveTo"`
	Active        *bool                  `json:"active"`
}

type priceListCollectionResponse struct {
	PriceLists []domain.PriceList `json:"priceLists"`
}

func (h *PriceListHandlers) listPriceLists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	lists, err := h.lists.ListPriceLists(ctx)
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}
	if lists == nil {
		lists = []domain.PriceList{}
	}

	writeJSONResponse(w, http.StatusOK, priceListCollectionResponse{PriceLists: lists})
}

func (h *PriceListHandlers) createPriceList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	req, ok := decodePriceListRequest(ctx, w, r)
	if !ok {
		return
	}

	list, err := h.lists.CreatePriceList(ctx, services.UpsertPriceListCommand{
		Name:      strings.TrimSpace(req.Name),
		Currency:  strings.TrimSpace(req.Currency),
		Channel:   strings.TrimSpace(req.Channel),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, list)
}

func (h *PriceListHandlers) getPriceList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	list, err := h.lists.GetPriceList(ctx, chi.URLParam(r, "priceListID"))
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, list)
}

func (h *PriceListHandlers) updatePriceList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	req, ok := decodePriceListRequest(ctx, w, r)
	if !ok {
		return
	}

	list, err := h.lists.UpdatePriceList(ctx, services.UpsertPriceListCommand{
		PriceListID: chi.URLParam(r, "priceListID"),
		Name:        strings.TrimSpace(req.Name),
		Currency:    strings.TrimSpace(req.Currency),
		Channel:     strings.TrimSpace(req.Channel),
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, list)
}

func (h *PriceListHandlers) deletePriceList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	if err := h.lists.DeletePriceList(ctx, chi.URLParam(r, "priceListID")); err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PriceListHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	req, ok := decodeRuleRequest(ctx, w, r)
	if !ok {
		return
	}

	rule, err := h.lists.CreateRule(ctx, buildRuleCommand(r, req, ""))
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, rule)
}

func (h *PriceListHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	req, ok := decodeRuleRequest(ctx, w, r)
	if !ok {
		return
	}

	rule, err := h.lists.UpdateRule(ctx, buildRuleCommand(r, req, chi.URLParam(r, "ruleID")))
	if err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, rule)
}

func (h *PriceListHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lists == nil {
		writePriceListUnavailable(ctx, w)
		return
	}

	if err := h.lists.DeleteRule(ctx, chi.URLParam(r, "priceListID"), chi.URLParam(r, "ruleID")); err != nil {
		writePriceListError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodePriceListRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (upsertPriceListRequest, bool) {
	var req upsertPriceListRequest
	body, err := readLimitedBody(r, maxPriceListBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

func decodeRuleRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (upsertRuleRequest, bool) {
	var req upsertRuleRequest
	body, err := readLimitedBody(r, maxPriceListBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

func buildRuleCommand(r *http.Request, req upsertRuleRequest, ruleID string) services.UpsertRuleCommand {
	return services.UpsertRuleCommand{
		PriceListID:   chi.URLParam(r, "priceListID"),
		RuleID:        ruleID,
		Name:          strings.TrimSpace(req.Name),
		Priority:      req.Priority,
		Conditions:    req.Conditions,
		Action:        req.Action,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Active:        req.Active,
	}
}

func writePriceListUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("price_list_service_unavailable", "price list service unavailable", http.StatusServiceUnavailable))
}

func writePriceListError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPriceListNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("price_list_not_found", "price list not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPriceRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("price_rule_not_found", "price rule not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPriceListInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "price list operation failed", http.StatusInternalServerError))
	}
}
