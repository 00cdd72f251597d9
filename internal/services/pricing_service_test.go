package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/flss-ops/api/internal/domain"
)

type stubPriceListRepo struct {
	mu      sync.Mutex
	lists   []domain.PriceList
	listErr error
	calls   int
}

func (s *stubPriceListRepo) List(ctx context.Context) ([]domain.PriceList, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.lists, nil
}

func (s *stubPriceListRepo) FindByID(ctx context.Context, id string) (domain.PriceList, error) {
	for _, list := range s.lists {
		if list.ID == id {
			return list, nil
		}
	}
	return domain.PriceList{}, notFoundRepoError{}
}

func (s *stubPriceListRepo) Insert(ctx context.Context, list domain.PriceList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, list)
	return nil
}

func (s *stubPriceListRepo) Update(ctx context.Context, list domain.PriceList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lists {
		if s.lists[i].ID == list.ID {
			s.lists[i] = list
			return nil
		}
	}
	return notFoundRepoError{}
}

func (s *stubPriceListRepo) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lists {
		if s.lists[i].ID == id {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			return nil
		}
	}
	return nil
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

func newTestPricingService(t *testing.T, repo *stubPriceListRepo, orders OrderSystemClient) PricingService {
	t.Helper()
	svc, err := NewPricingService(PricingServiceDeps{
		PriceLists: repo,
		Orders:     orders,
		Now:        fixedClock,
	})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	return svc
}

func TestResolveLinesMatchesRuleFromPriceList(t *testing.T) {
	repo := &stubPriceListRepo{lists: []domain.PriceList{{
		ID:       "pl1",
		Currency: "ZAR",
		Rules: []domain.PriceRule{{
			ID:         "wholesale-fixed",
			Priority:   10,
			Conditions: []domain.RuleCondition{{Type: domain.ConditionCustomerTag, Values: []string{"wholesale"}}},
			Action:     domain.RuleAction{Type: domain.ActionFixedUnitPrice, Value: 64.5},
			Active:     true,
		}},
	}}}
	svc := newTestPricingService(t, repo, nil)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier: "wholesale",
		Lines:        []ResolveLineInput{{VariantID: "111", Quantity: 2, BasePrice: floatPtr(90)}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	line := out.Lines[0]
	if line.MatchedRuleID != "wholesale-fixed" || *line.UnitPrice != 64.5 {
		t.Fatalf("expected rule match at 64.5, got %+v", line)
	}
	if line.Source != domain.PriceSourceRule {
		t.Fatalf("expected source rule, got %q", line.Source)
	}
	if out.Hash == "" {
		t.Fatal("expected a pricing hash")
	}
}

func TestResolveLinesTierNameActsAsCustomerTag(t *testing.T) {
	repo := &stubPriceListRepo{lists: []domain.PriceList{{
		ID: "pl1",
		Rules: []domain.PriceRule{{
			ID:         "agent-rule",
			Priority:   10,
			Conditions: []domain.RuleCondition{{Type: domain.ConditionCustomerTag, Values: []string{"agent"}}},
			Action:     domain.RuleAction{Type: domain.ActionFixedUnitPrice, Value: 70},
			Active:     true,
		}},
	}}}
	svc := newTestPricingService(t, repo, nil)

	// No explicit tags: the normalised tier itself must satisfy tag conditions.
	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier: " Agent ",
		Lines:        []ResolveLineInput{{VariantID: "111", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	if out.Lines[0].MatchedRuleID != "agent-rule" {
		t.Fatalf("expected tier-as-tag match, got %+v", out.Lines[0])
	}
	if out.Tier != "agent" {
		t.Fatalf("expected normalised tier, got %q", out.Tier)
	}
}

func TestResolveLinesLegacyMetafieldBridge(t *testing.T) {
	orders := &stubOrderClient{
		variantTiers: map[int64]domain.VariantPriceTiers{
			12345: {VariantID: 12345, Tiers: map[string]float64{"retail": 80, "default": 100}},
		},
	}
	svc := newTestPricingService(t, &stubPriceListRepo{}, orders)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier: "retail",
		Lines:        []ResolveLineInput{{VariantID: "12345", Quantity: 1, BasePrice: floatPtr(999)}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	line := out.Lines[0]
	if line.UnitPrice == nil || *line.UnitPrice != 80 {
		t.Fatalf("expected legacy tier price 80, got %v", line.UnitPrice)
	}
	if line.Source != domain.PriceSourceMetafield {
		t.Fatalf("expected source metafield, got %q", line.Source)
	}
}

func TestResolveLinesLegacyBridgeBeatsTierDiscount(t *testing.T) {
	orders := &stubOrderClient{
		variantTiers: map[int64]domain.VariantPriceTiers{
			12345: {VariantID: 12345, Tiers: map[string]float64{"wholesale": 60}},
		},
	}
	svc := newTestPricingService(t, &stubPriceListRepo{}, orders)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier:  "wholesale",
		TierDiscounts: map[string]float64{"wholesale": 25},
		Lines:         []ResolveLineInput{{VariantID: "12345", Quantity: 1, BasePrice: floatPtr(100)}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	line := out.Lines[0]
	if *line.UnitPrice != 60 || line.Source != domain.PriceSourceMetafield {
		t.Fatalf("expected the fixed tier price to beat the percentage override, got %+v", line)
	}
}

func TestResolveLinesTierDiscountOverrideTable(t *testing.T) {
	svc := newTestPricingService(t, &stubPriceListRepo{}, nil)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier:  "agent",
		TierDiscounts: map[string]float64{"agent": 30},
		Lines:         []ResolveLineInput{{VariantID: "111", Quantity: 1, BasePrice: floatPtr(100)}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	line := out.Lines[0]
	if line.UnitPrice == nil || *line.UnitPrice != 70 {
		t.Fatalf("expected 30%% off 100, got %v", line.UnitPrice)
	}
	if line.Source != domain.PriceSourceTierDiscount {
		t.Fatalf("expected source tier_discount, got %q", line.Source)
	}
}

func TestResolveLinesBasePriceFallback(t *testing.T) {
	svc := newTestPricingService(t, &stubPriceListRepo{}, nil)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier: "retail",
		Lines: []ResolveLineInput{
			{VariantID: "111", Quantity: 1, BasePrice: floatPtr(49.99)},
			{VariantID: "222", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	priced := out.Lines[0]
	if *priced.UnitPrice != 49.99 || priced.Source != domain.PriceSourceBase || priced.FallbackReason != domain.FallbackNoMatchingRule {
		t.Fatalf("expected base price fallback, got %+v", priced)
	}
	unpriced := out.Lines[1]
	if unpriced.UnitPrice != nil || unpriced.FallbackReason != domain.FallbackNoBasePrice {
		t.Fatalf("expected NO_BASE_PRICE, got %+v", unpriced)
	}

	// Unpriced lines stay out of the fingerprint.
	want := BuildPricingHash("retail", "ZAR", []domain.ResolvedPriceLine{
		{VariantID: "111", Quantity: 1, UnitPrice: 49.99},
	})
	if out.Hash != want {
		t.Fatal("expected the hash to cover priced lines only")
	}
}

func TestResolveLinesValidatesInput(t *testing.T) {
	svc := newTestPricingService(t, &stubPriceListRepo{}, nil)

	if _, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for empty lines, got %v", err)
	}
	_, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		Lines: []ResolveLineInput{{VariantID: "111", Quantity: 0}},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
}

func TestResolveLinesSkipsListsForOtherCurrencies(t *testing.T) {
	repo := &stubPriceListRepo{lists: []domain.PriceList{{
		ID:       "usd",
		Currency: "USD",
		Rules: []domain.PriceRule{{
			ID:       "usd-rule",
			Priority: 1,
			Action:   domain.RuleAction{Type: domain.ActionFixedUnitPrice, Value: 5},
			Active:   true,
		}},
	}}}
	svc := newTestPricingService(t, repo, nil)

	out, err := svc.ResolveLines(context.Background(), ResolveLinesCommand{
		CustomerTier: "retail",
		Currency:     "ZAR",
		Lines:        []ResolveLineInput{{VariantID: "111", Quantity: 1, BasePrice: floatPtr(20)}},
	})
	if err != nil {
		t.Fatalf("resolve lines: %v", err)
	}
	if out.Lines[0].MatchedRuleID != "" {
		t.Fatalf("expected the USD rule to be out of scope, got %+v", out.Lines[0])
	}
}

func TestResolveLinesCachesVariantTierLookups(t *testing.T) {
	orders := &stubOrderClient{
		variantTiers: map[int64]domain.VariantPriceTiers{
			12345: {VariantID: 12345, Tiers: map[string]float64{"retail": 80}},
		},
	}
	svc := newTestPricingService(t, &stubPriceListRepo{}, orders)

	cmd := ResolveLinesCommand{
		CustomerTier: "retail",
		Lines:        []ResolveLineInput{{VariantID: "12345", Quantity: 1}},
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.ResolveLines(context.Background(), cmd); err != nil {
			t.Fatalf("resolve lines: %v", err)
		}
	}
	if got := orders.tierFetches(); got != 1 {
		t.Fatalf("expected a single upstream tier fetch, got %d", got)
	}
}
