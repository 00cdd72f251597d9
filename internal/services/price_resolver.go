package services

import (
	"context"
	"math"
	"sort"
	"time"

	domain "github.com/flss-ops/api/internal/domain"
)

// PriceResolver evaluates a candidate rule set against a pricing context.
// First match wins: rules are scanned in ascending priority order and the
// first rule whose conditions hold and whose action yields a finite price
// decides the outcome. Rule counts are small, so a sorted linear scan is
// all the indexing this needs.
type PriceResolver struct {
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// PriceResolverDeps bundles the optional collaborators of a PriceResolver.
type PriceResolverDeps struct {
	Now    func() time.Time
	Logger func(context.Context, string, map[string]any)
}

// NewPriceResolver constructs a resolver. Zero-value deps are usable.
func NewPriceResolver(deps PriceResolverDeps) *PriceResolver {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PriceResolver{
		now:    func() time.Time { return now().UTC() },
		logger: logger,
	}
}

// Resolve computes the unit price for one context. It holds no mutable state
// and is safe for concurrent batch use.
func (r *PriceResolver) Resolve(ctx context.Context, pctx domain.PricingContext, rules []domain.PriceRule) domain.ResolvedPrice {
	if pctx.AsOf.IsZero() {
		pctx.AsOf = r.now()
	}

	candidates := make([]domain.PriceRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !rule.InEffect(pctx.AsOf) {
			continue
		}
		candidates = append(candidates, rule)
	}

	// Stable sort: equal priorities keep their input order so resolution is
	// deterministic and testable.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	onUnknown := func(t domain.ConditionType) {
		r.logger(ctx, "pricing_unknown_condition_type", map[string]any{"type": string(t)})
	}

	for _, rule := range candidates {
		if !matchConditions(rule.Conditions, pctx, onUnknown) {
			continue
		}
		price, ok := applyAction(rule.Action, pctx)
		if !ok {
			// Conditions matched but the action cannot produce a price
			// (e.g. percent discount with no base price); keep scanning.
			continue
		}
		return domain.ResolvedPrice{UnitPrice: &price, MatchedRuleID: rule.ID}
	}

	if pctx.HasBasePrice() {
		base := domain.RoundPrice(*pctx.BasePrice)
		return domain.ResolvedPrice{UnitPrice: &base, FallbackReason: domain.FallbackNoMatchingRule}
	}
	return domain.ResolvedPrice{FallbackReason: domain.FallbackNoBasePrice}
}

func applyAction(action domain.RuleAction, pctx domain.PricingContext) (float64, bool) {
	switch action.Type {
	case domain.ActionFixedUnitPrice:
		if !isFinite(action.Value) {
			return 0, false
		}
		return domain.RoundPrice(action.Value), true
	case domain.ActionPercentDiscount:
		if !pctx.HasBasePrice() || !isFinite(action.Value) {
			return 0, false
		}
		price := *pctx.BasePrice * (1 - action.Value/100)
		if price < 0 {
			price = 0
		}
		return domain.RoundPrice(price), true
	default:
		return 0, false
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
