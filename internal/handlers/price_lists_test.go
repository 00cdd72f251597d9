package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/services"
)

type stubPriceListService struct {
	listFn       func(ctx context.Context) ([]domain.PriceList, error)
	getFn        func(ctx context.Context, priceListID string) (domain.PriceList, error)
	createFn     func(ctx context.Context, cmd services.UpsertPriceListCommand) (domain.PriceList, error)
	updateFn     func(ctx context.Context, cmd services.UpsertPriceListCommand) (domain.PriceList, error)
	deleteFn     func(ctx context.Context, priceListID string) error
	createRuleFn func(ctx context.Context, cmd services.UpsertRuleCommand) (domain.PriceRule, error)
	updateRuleFn func(ctx context.Context, cmd services.UpsertRuleCommand) (domain.PriceRule, error)
	deleteRuleFn func(ctx context.Context, priceListID string, ruleID string) error
}

func (s *stubPriceListService) ListPriceLists(ctx context.Context) ([]domain.PriceList, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubPriceListService) GetPriceList(ctx context.Context, priceListID string) (domain.PriceList, error) {
	if s.getFn != nil {
		return s.getFn(ctx, priceListID)
	}
	return domain.PriceList{}, services.ErrPriceListNotFound
}

func (s *stubPriceListService) CreatePriceList(ctx context.Context, cmd services.UpsertPriceListCommand) (domain.PriceList, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.PriceList{}, nil
}

func (s *stubPriceListService) UpdatePriceList(ctx context.Context, cmd services.UpsertPriceListCommand) (domain.PriceList, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.PriceList{}, nil
}

func (s *stubPriceListService) DeletePriceList(ctx context.Context, priceListID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, priceListID)
	}
	return nil
}

func (s *stubPriceListService) CreateRule(ctx context.Context, cmd services.UpsertRuleCommand) (domain.PriceRule, error) {
	if s.createRuleFn != nil {
		return s.createRuleFn(ctx, cmd)
	}
	return domain.PriceRule{}, nil
}

func (s *stubPriceListService) UpdateRule(ctx context.Context, cmd services.UpsertRuleCommand) (domain.PriceRule, error) {
	if s.updateRuleFn != nil {
		return s.updateRuleFn(ctx, cmd)
	}
	return domain.PriceRule{}, nil
}

func (s *stubPriceListService) DeleteRule(ctx context.Context, priceListID string, ruleID string) error {
	if s.deleteRuleFn != nil {
		return s.deleteRuleFn(ctx, priceListID, ruleID)
	}
	return nil
}

func newPriceListRouter(lists services.PriceListService) chi.Router {
	r := chi.NewRouter()
	NewPriceListHandlers(lists).Routes(r)
	return r
}

func TestPriceListHandlersList(t *testing.T) {
	stub := &stubPriceListService{
		listFn: func(context.Context) ([]domain.PriceList, error) {
			return []domain.PriceList{
				{ID: "pl-1", Name: "Wholesale ZA", Currency: "ZAR"},
			}, nil
		},
	}
	router := newPriceListRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/price-lists", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp priceListCollectionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.PriceLists) != 1 || resp.PriceLists[0].ID != "pl-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPriceListHandlersListEmpty(t *testing.T) {
	router := newPriceListRouter(&stubPriceListService{})

	req := httptest.NewRequest(http.MethodGet, "/price-lists", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"priceLists":[]`) {
		t.Fatalf("expected empty array, got %s", rr.Body.String())
	}
}

func TestPriceListHandlersCreate(t *testing.T) {
	stub := &stubPriceListService{
		createFn: func(_ context.Context, cmd services.UpsertPriceListCommand) (domain.PriceList, error) {
			return domain.PriceList{ID: "pl-1", Name: cmd.Name, Currency: cmd.Currency}, nil
		},
	}
	router := newPriceListRouter(stub)

	payload := `{"name": "Wholesale ZA", "currency": "ZAR", "isDefault": true}`
	req := httptest.NewRequest(http.MethodPost, "/price-lists", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var list domain.PriceList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if list.ID != "pl-1" || list.Name != "Wholesale ZA" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestPriceListHandlersCreateInvalid(t *testing.T) {
	stub := &stubPriceListService{
		createFn: func(context.Context, services.UpsertPriceListCommand) (domain.PriceList, error) {
			return domain.PriceList{}, services.ErrPriceListInvalid
		},
	}
	router := newPriceListRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/price-lists", strings.NewReader(`{"name": ""}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPriceListHandlersGetNotFound(t *testing.T) {
	router := newPriceListRouter(&stubPriceListService{})

	req := httptest.NewRequest(http.MethodGet, "/price-lists/missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "price_list_not_found" {
		t.Fatalf("expected price_list_not_found, got %v", body["error"])
	}
}

func TestPriceListHandlersUpdateRule(t *testing.T) {
	var captured services.UpsertRuleCommand
	stub := &stubPriceListService{
		updateRuleFn: func(_ context.Context, cmd services.UpsertRuleCommand) (domain.PriceRule, error) {
			captured = cmd
			return domain.PriceRule{ID: cmd.RuleID, PriceListID: cmd.PriceListID, Priority: 10}, nil
		},
	}
	router := newPriceListRouter(stub)

	payload := `{"priority": 10, "action": {"type": "percent_discount", "value": 25}}`
	req := httptest.NewRequest(http.MethodPut, "/price-lists/pl-1/rules/rule-9", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PriceListID != "pl-1" || captured.RuleID != "rule-9" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Priority == nil || *captured.Priority != 10 {
		t.Fatalf("expected priority pointer forwarded, got %+v", captured.Priority)
	}
	if captured.Active != nil {
		t.Fatalf("expected absent active field to stay nil, got %+v", captured.Active)
	}
	if captured.Action.Type != domain.ActionPercentDiscount || captured.Action.Value != 25 {
		t.Fatalf("unexpected action %+v", captured.Action)
	}
}

func TestPriceListHandlersDeleteRuleNotFound(t *testing.T) {
	stub := &stubPriceListService{
		deleteRuleFn: func(context.Context, string, string) error {
			return services.ErrPriceRuleNotFound
		},
	}
	router := newPriceListRouter(stub)

	req := httptest.NewRequest(http.MethodDelete, "/price-lists/pl-1/rules/missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPriceListHandlersDelete(t *testing.T) {
	deleted := ""
	stub := &stubPriceListService{
		deleteFn: func(_ context.Context, priceListID string) error {
			deleted = priceListID
			return nil
		},
	}
	router := newPriceListRouter(stub)

	req := httptest.NewRequest(http.MethodDelete, "/price-lists/pl-1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "pl-1" {
		t.Fatalf("expected delete for pl-1, got %q", deleted)
	}
}
