package services

import (
	"math"
	"testing"

	domain "github.com/flss-ops/api/internal/domain"
)

func TestLegacyTierRulesSkipsDefaultAndSortsByName(t *testing.T) {
	rules := LegacyTierRules(domain.VariantPriceTiers{
		VariantID: 12345,
		Tiers: map[string]float64{
			"wholesale": 60,
			"agent":     70,
			"default":   100,
			"broken":    math.NaN(),
		},
	})

	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].ID != "legacy:12345:agent" || rules[1].ID != "legacy:12345:wholesale" {
		t.Fatalf("expected deterministic name-sorted ids, got %s / %s", rules[0].ID, rules[1].ID)
	}
	if rules[0].Priority != 200 || rules[1].Priority != 201 {
		t.Fatalf("expected priorities 200/201, got %d/%d", rules[0].Priority, rules[1].Priority)
	}
	if rules[0].Action.Type != domain.ActionFixedUnitPrice || rules[0].Action.Value != 70 {
		t.Fatalf("expected fixed price 70 for agent, got %+v", rules[0].Action)
	}
	if !rules[0].Active {
		t.Fatal("expected synthesised rules to be active")
	}
}

func TestLegacyTierRulesConditionsCarrySKUWhenKnown(t *testing.T) {
	rules := LegacyTierRules(domain.VariantPriceTiers{
		VariantID: 12345,
		SKU:       "CANDLE-01",
		Tiers:     map[string]float64{"Retail": 80},
	})

	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	rule := rules[0]
	if rule.ID != "legacy:CANDLE-01:retail" {
		t.Fatalf("expected sku-keyed id, got %s", rule.ID)
	}
	if len(rule.Conditions) != 2 {
		t.Fatalf("expected tag + sku conditions, got %d", len(rule.Conditions))
	}
	if rule.Conditions[0].Type != domain.ConditionCustomerTag || rule.Conditions[0].Values[0] != "retail" {
		t.Fatalf("expected normalised tier tag condition, got %+v", rule.Conditions[0])
	}
	if rule.Conditions[1].Type != domain.ConditionSKU || rule.Conditions[1].Values[0] != "CANDLE-01" {
		t.Fatalf("expected sku condition, got %+v", rule.Conditions[1])
	}
}

func TestLegacyTierRulesEmptyMap(t *testing.T) {
	if rules := LegacyTierRules(domain.VariantPriceTiers{VariantID: 1}); rules != nil {
		t.Fatalf("expected nil for an empty tier map, got %d rules", len(rules))
	}
}

func TestLegacyDefaultPrice(t *testing.T) {
	tiers := domain.VariantPriceTiers{Tiers: map[string]float64{"Default": 99.5, "retail": 80}}
	price, ok := LegacyDefaultPrice(tiers)
	if !ok || price != 99.5 {
		t.Fatalf("expected default 99.5, got %v (%v)", price, ok)
	}

	if _, ok := LegacyDefaultPrice(domain.VariantPriceTiers{Tiers: map[string]float64{"retail": 80}}); ok {
		t.Fatal("expected no default price")
	}
}
