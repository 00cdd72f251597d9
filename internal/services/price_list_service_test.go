package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domain "github.com/flss-ops/api/internal/domain"
)

func newTestPriceListService(t *testing.T, repo *stubPriceListRepo) PriceListService {
	t.Helper()
	counter := 0
	svc, err := NewPriceListService(PriceListServiceDeps{
		PriceLists: repo,
		Now:        fixedClock,
		NewID: func() string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		},
	})
	if err != nil {
		t.Fatalf("new price list service: %v", err)
	}
	return svc
}

func TestCreatePriceListDefaultsCurrency(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)

	list, err := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale 2026"})
	if err != nil {
		t.Fatalf("create price list: %v", err)
	}
	if list.ID != "id-1" {
		t.Fatalf("expected generated id, got %s", list.ID)
	}
	if list.Currency != domain.DefaultCurrency {
		t.Fatalf("expected default currency, got %s", list.Currency)
	}
	if list.Rules == nil || len(list.Rules) != 0 {
		t.Fatalf("expected an empty rule set, got %v", list.Rules)
	}
}

func TestCreatePriceListRequiresName(t *testing.T) {
	svc := newTestPriceListService(t, &stubPriceListRepo{})

	if _, err := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{}); !errors.Is(err, ErrPriceListInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestGetPriceListMapsNotFound(t *testing.T) {
	svc := newTestPriceListService(t, &stubPriceListRepo{})

	if _, err := svc.GetPriceList(context.Background(), "missing"); !errors.Is(err, ErrPriceListNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRuleAppliesDefaults(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)

	list, err := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("create price list: %v", err)
	}

	rule, err := svc.CreateRule(context.Background(), UpsertRuleCommand{
		PriceListID: list.ID,
		Name:        "bulk candles",
		Conditions:  []RuleCondition{{Type: domain.ConditionMinQuantity, MinQuantity: 12}},
		Action:      RuleAction{Type: domain.ActionFixedUnitPrice, Value: 55},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if rule.Priority != domain.DefaultRulePriority {
		t.Fatalf("expected default priority, got %d", rule.Priority)
	}
	if !rule.Active {
		t.Fatal("expected new rules to default to active")
	}
	if rule.PriceListID != list.ID {
		t.Fatalf("expected rule scoped to list, got %s", rule.PriceListID)
	}

	stored, err := svc.GetPriceList(context.Background(), list.ID)
	if err != nil {
		t.Fatalf("get price list: %v", err)
	}
	if len(stored.Rules) != 1 || stored.Rules[0].ID != rule.ID {
		t.Fatalf("expected rule persisted on the list, got %+v", stored.Rules)
	}
}

func TestCreateRuleValidatesAction(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)
	list, err := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale"})
	if err != nil {
		t.Fatalf("create price list: %v", err)
	}

	cases := []RuleAction{
		{Type: domain.ActionPercentDiscount, Value: 101},
		{Type: domain.ActionPercentDiscount, Value: -1},
		{Type: domain.ActionFixedUnitPrice, Value: -5},
		{Type: "free_shipping", Value: 0},
	}
	for _, action := range cases {
		_, err := svc.CreateRule(context.Background(), UpsertRuleCommand{PriceListID: list.ID, Action: action})
		if !errors.Is(err, ErrPriceListInvalid) {
			t.Fatalf("action %+v: expected invalid error, got %v", action, err)
		}
	}
}

func TestUpdateRulePartialFields(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)
	list, _ := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale"})
	rule, err := svc.CreateRule(context.Background(), UpsertRuleCommand{
		PriceListID: list.ID,
		Name:        "bulk",
		Action:      RuleAction{Type: domain.ActionFixedUnitPrice, Value: 55},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	priority := 5
	inactive := false
	updated, err := svc.UpdateRule(context.Background(), UpsertRuleCommand{
		PriceListID: list.ID,
		RuleID:      rule.ID,
		Priority:    &priority,
		Active:      &inactive,
	})
	if err != nil {
		t.Fatalf("update rule: %v", err)
	}
	if updated.Priority != 5 || updated.Active {
		t.Fatalf("expected priority 5 inactive, got %+v", updated)
	}
	if updated.Name != "bulk" || updated.Action.Value != 55 {
		t.Fatalf("expected untouched fields preserved, got %+v", updated)
	}
}

func TestUpdateRuleUnknownRule(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)
	list, _ := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale"})

	_, err := svc.UpdateRule(context.Background(), UpsertRuleCommand{
		PriceListID: list.ID,
		RuleID:      "nope",
		Action:      RuleAction{Type: domain.ActionFixedUnitPrice, Value: 10},
	})
	if !errors.Is(err, ErrPriceRuleNotFound) {
		t.Fatalf("expected rule not found, got %v", err)
	}
}

func TestDeleteRule(t *testing.T) {
	repo := &stubPriceListRepo{}
	svc := newTestPriceListService(t, repo)
	list, _ := svc.CreatePriceList(context.Background(), UpsertPriceListCommand{Name: "Wholesale"})
	rule, _ := svc.CreateRule(context.Background(), UpsertRuleCommand{
		PriceListID: list.ID,
		Action:      RuleAction{Type: domain.ActionFixedUnitPrice, Value: 55},
	})

	if err := svc.DeleteRule(context.Background(), list.ID, rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	stored, _ := svc.GetPriceList(context.Background(), list.ID)
	if len(stored.Rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(stored.Rules))
	}

	if err := svc.DeleteRule(context.Background(), list.ID, rule.ID); !errors.Is(err, ErrPriceRuleNotFound) {
		t.Fatalf("expected rule not found on second delete, got %v", err)
	}
}
