package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/services"
)

type stubDraftOrderService struct {
	createFn func(ctx context.Context, cmd services.CreateDraftOrderCommand) (services.CreateDraftOrderResult, error)
	commands []services.CreateDraftOrderCommand
}

func (s *stubDraftOrderService) Create(ctx context.Context, cmd services.CreateDraftOrderCommand) (services.CreateDraftOrderResult, error) {
	s.commands = append(s.commands, cmd)
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.CreateDraftOrderResult{}, nil
}

func newDraftOrderRouter(drafts services.DraftOrderService) chi.Router {
	r := chi.NewRouter()
	NewDraftOrderHandlers(drafts).Routes(r)
	return r
}

func TestDraftOrderHandlersCreate(t *testing.T) {
	price := 60.0
	stub := &stubDraftOrderService{
		createFn: func(_ context.Context, cmd services.CreateDraftOrderCommand) (services.CreateDraftOrderResult, error) {
			return services.CreateDraftOrderResult{
				DraftOrder: domain.DraftOrder{
					ID:       9001,
					Name:     "#D9001",
					Currency: "ZAR",
					Note:     cmd.Note,
				},
				Tier: "wholesale",
				Hash: "deadbeef",
				Lines: []services.ResolvedLine{
					{VariantID: "111", Quantity: 2, UnitPrice: &price, Source: domain.PriceSourceRule},
				},
			}, nil
		},
	}
	router := newDraftOrderRouter(stub)

	payload := `{
		"customerId": 777,
		"customerTier": "wholesale",
		"currency": "ZAR",
		"note": "monthly stock order",
		"attributes": [{"name": "po_number", "value": "PO-118"}],
		"lines": [{"variantId": "111", "quantity": 2, "basePrice": 100}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp createDraftOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.DraftOrder.ID != 9001 || resp.Hash != "deadbeef" || resp.Tier != "wholesale" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(stub.commands) != 1 {
		t.Fatalf("expected one create call, got %d", len(stub.commands))
	}
	cmd := stub.commands[0]
	if cmd.CustomerID != 777 || cmd.Note != "monthly stock order" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if len(cmd.Attributes) != 1 || cmd.Attributes[0].Name != "po_number" {
		t.Fatalf("expected caller attributes forwarded, got %+v", cmd.Attributes)
	}
}

func TestDraftOrderHandlersCreateUnpricedLine(t *testing.T) {
	stub := &stubDraftOrderService{
		createFn: func(context.Context, services.CreateDraftOrderCommand) (services.CreateDraftOrderResult, error) {
			return services.CreateDraftOrderResult{}, fmt.Errorf("variant 111 (NO_BASE_PRICE): %w", services.ErrDraftOrderLineUnpriced)
		},
	}
	router := newDraftOrderRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines": [{"variantId": "111", "quantity": 1}]}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "line_unpriced" {
		t.Fatalf("expected line_unpriced, got %v", body["error"])
	}
}

func TestDraftOrderHandlersCreateRequiresBody(t *testing.T) {
	router := newDraftOrderRouter(&stubDraftOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
