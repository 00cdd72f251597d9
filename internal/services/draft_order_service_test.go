package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/flss-ops/api/internal/domain"
)

func newTestDraftOrderService(t *testing.T, orders *stubOrderClient, repo *stubPriceListRepo) DraftOrderService {
	t.Helper()
	pricing := newTestPricingService(t, repo, orders)
	svc, err := NewDraftOrderService(DraftOrderServiceDeps{Orders: orders, Pricing: pricing})
	if err != nil {
		t.Fatalf("new draft order service: %v", err)
	}
	return svc
}

func TestCreateDraftOrderStampsPricingHash(t *testing.T) {
	orders := &stubOrderClient{}
	svc := newTestDraftOrderService(t, orders, wholesaleRuleRepo(60))

	result, err := svc.Create(context.Background(), CreateDraftOrderCommand{
		CustomerID:   7,
		CustomerTier: "wholesale",
		Currency:     "zar",
		Note:         "phone order",
		Lines:        []ResolveLineInput{{VariantID: "12345", SKU: "CANDLE-01", Quantity: 2, BasePrice: floatPtr(90)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.DraftOrder.ID != 9001 {
		t.Fatalf("expected upstream id, got %d", result.DraftOrder.ID)
	}
	if result.Tier != "wholesale" || result.Hash == "" {
		t.Fatalf("expected tier and hash, got %+v", result)
	}

	created := orders.createdDraft
	if created == nil {
		t.Fatal("expected an upstream create call")
	}
	if created.Currency != "ZAR" || created.Note != "phone order" || created.CustomerID != 7 {
		t.Fatalf("unexpected draft payload: %+v", created)
	}
	if len(created.Lines) != 1 || created.Lines[0].Price != 60 || created.Lines[0].VariantID != 12345 {
		t.Fatalf("expected resolved price on the line, got %+v", created.Lines)
	}
	stamped, ok := created.NoteAttribute(domain.PricingHashAttribute)
	if !ok || stamped != result.Hash {
		t.Fatalf("expected stamped hash %s, got %s (%v)", result.Hash, stamped, ok)
	}
}

func TestCreateDraftOrderKeepsCallerAttributes(t *testing.T) {
	orders := &stubOrderClient{}
	svc := newTestDraftOrderService(t, orders, wholesaleRuleRepo(60))

	_, err := svc.Create(context.Background(), CreateDraftOrderCommand{
		CustomerTier: "wholesale",
		Lines:        []ResolveLineInput{{VariantID: "12345", Quantity: 1, BasePrice: floatPtr(90)}},
		Attributes:   []NoteAttribute{{Name: "sales_rep", Value: "thandi"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	attrs := orders.createdDraft.NoteAttributes
	if len(attrs) != 2 {
		t.Fatalf("expected caller attribute plus hash, got %+v", attrs)
	}
	if attrs[0].Name != "sales_rep" || attrs[0].Value != "thandi" {
		t.Fatalf("expected caller attribute preserved, got %+v", attrs[0])
	}
}

func TestCreateDraftOrderRejectsUnpricedLines(t *testing.T) {
	orders := &stubOrderClient{}
	svc := newTestDraftOrderService(t, orders, &stubPriceListRepo{})

	_, err := svc.Create(context.Background(), CreateDraftOrderCommand{
		CustomerTier: "retail",
		Lines:        []ResolveLineInput{{VariantID: "12345", Quantity: 1}},
	})
	if !errors.Is(err, ErrDraftOrderLineUnpriced) {
		t.Fatalf("expected unpriced rejection, got %v", err)
	}
	if orders.createdDraft != nil {
		t.Fatal("expected no upstream create for a rejected order")
	}
}

func TestCreateDraftOrderRejectsNonNumericVariant(t *testing.T) {
	orders := &stubOrderClient{}
	svc := newTestDraftOrderService(t, orders, &stubPriceListRepo{})

	_, err := svc.Create(context.Background(), CreateDraftOrderCommand{
		CustomerTier: "retail",
		Lines:        []ResolveLineInput{{VariantID: "gid://shop/Variant/1", Quantity: 1, BasePrice: floatPtr(10)}},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
