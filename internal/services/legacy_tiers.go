package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	domain "github.com/flss-ops/api/internal/domain"
)

// legacyRulePriorityBase keeps synthesised legacy rules behind any modern
// rule stored at a typical priority (<= 100).
const legacyRulePriorityBase = 200

// legacyTierKeyDefault marks the base price in a legacy tier map; it is the
// fallback price, never a conditional rule.
const legacyTierKeyDefault = "default"

// LegacyTierRules converts an older per-variant flat tier map metafield into
// equivalent synthetic price rules, so the resolver operates uniformly over
// legacy and modern pricing sources. Rule ids are deterministic from the
// variant (or sku) and tier name, which keeps repeated conversions (and the
// hashes built from them) stable.
func LegacyTierRules(tiers domain.VariantPriceTiers) []domain.PriceRule {
	if len(tiers.Tiers) == 0 {
		return nil
	}

	names := make([]string, 0, len(tiers.Tiers))
	for name := range tiers.Tiers {
		if strings.EqualFold(strings.TrimSpace(name), legacyTierKeyDefault) {
			continue
		}
		if !isFinite(tiers.Tiers[name]) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	subject := strings.TrimSpace(tiers.SKU)
	if subject == "" {
		subject = strconv.FormatInt(tiers.VariantID, 10)
	}

	rules := make([]domain.PriceRule, 0, len(names))
	for idx, name := range names {
		tier := domain.NormalizeTier(name)
		conditions := []domain.RuleCondition{
			{Type: domain.ConditionCustomerTag, Values: []string{tier}},
		}
		if sku := strings.TrimSpace(tiers.SKU); sku != "" {
			conditions = append(conditions, domain.RuleCondition{Type: domain.ConditionSKU, Values: []string{sku}})
		}
		rules = append(rules, domain.PriceRule{
			ID:         fmt.Sprintf("legacy:%s:%s", subject, tier),
			Name:       fmt.Sprintf("legacy tier %s", tier),
			Priority:   legacyRulePriorityBase + idx,
			Conditions: conditions,
			Action:     domain.RuleAction{Type: domain.ActionFixedUnitPrice, Value: tiers.Tiers[name]},
			Active:     true,
		})
	}
	return rules
}

// LegacyDefaultPrice extracts the base price from a legacy tier map, if any.
func LegacyDefaultPrice(tiers domain.VariantPriceTiers) (float64, bool) {
	for name, value := range tiers.Tiers {
		if strings.EqualFold(strings.TrimSpace(name), legacyTierKeyDefault) && isFinite(value) {
			return value, true
		}
	}
	return 0, false
}
