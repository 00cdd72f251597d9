package services

import (
	"math"
	"strings"

	domain "github.com/flss-ops/api/internal/domain"
)

// matchConditions reports whether every condition on the rule holds for the
// context. Conditions combine with AND; an empty slice matches everything.
func matchConditions(conditions []domain.RuleCondition, pctx domain.PricingContext, onUnknown func(domain.ConditionType)) bool {
	for _, cond := range conditions {
		if !matchCondition(cond, pctx, onUnknown) {
			return false
		}
	}
	return true
}

// matchCondition evaluates a single condition. Unknown condition types match
// by default so rules written for a newer schema do not silently block
// pricing for existing accounts; callers surface them via onUnknown.
func matchCondition(cond domain.RuleCondition, pctx domain.PricingContext, onUnknown func(domain.ConditionType)) bool {
	switch cond.Type {
	case domain.ConditionCustomerTag:
		return anyTagMatch(cond.Values, pctx.CustomerTags)
	case domain.ConditionCustomerGroup:
		return equalFoldTrim(cond.Value, pctx.CustomerGroup)
	case domain.ConditionSKU:
		if pctx.SKU == "" {
			return false
		}
		for _, sku := range cond.Values {
			if sku == pctx.SKU {
				return true
			}
		}
		return false
	case domain.ConditionCollection:
		for _, want := range cond.Values {
			for _, have := range pctx.Collections {
				if equalFoldTrim(want, have) {
					return true
				}
			}
		}
		return false
	case domain.ConditionMinQuantity:
		threshold := cond.MinQuantity
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			threshold = 0
		}
		return float64(pctx.Quantity) >= threshold
	case domain.ConditionCurrency:
		return equalFoldTrim(cond.Value, pctx.Currency)
	case domain.ConditionSalesChannel:
		return equalFoldTrim(cond.Value, pctx.SalesChannel)
	case domain.ConditionDateWindow:
		// A context without a usable as-of instant never satisfies a window.
		if pctx.AsOf.IsZero() {
			return false
		}
		if cond.From != nil && pctx.AsOf.Before(*cond.From) {
			return false
		}
		if cond.To != nil && pctx.AsOf.After(*cond.To) {
			return false
		}
		return true
	default:
		if onUnknown != nil {
			onUnknown(cond.Type)
		}
		return true
	}
}

func anyTagMatch(expected []string, have []string) bool {
	for _, want := range expected {
		for _, tag := range have {
			if equalFoldTrim(want, tag) {
				return true
			}
		}
	}
	return false
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
