package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/repositories"
)

// tierDiscountPriorityBase places externally-supplied tier discount rules
// behind both modern rules (<= 100) and legacy fixed-tier rules (200+), so a
// fixed tier price always beats a percentage fallback.
const tierDiscountPriorityBase = 300

const (
	legacyRuleIDPrefix       = "legacy:"
	tierDiscountRuleIDPrefix = "tierdisc:"
)

// PricingServiceDeps bundles the collaborators of the pricing service.
type PricingServiceDeps struct {
	PriceLists repositories.PriceListRepository
	// Orders enables the legacy variant tier metafield bridge; nil disables it.
	Orders       OrderSystemClient
	Resolver     *PriceResolver
	TierCacheTTL time.Duration
	Now          func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type pricingService struct {
	lists     repositories.PriceListRepository
	orders    OrderSystemClient
	resolver  *PriceResolver
	tierCache *variantTierCache
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewPricingService wires a PricingService over the live price lists, with
// the legacy metafield bridge as a last-resort pricing source.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.PriceLists == nil {
		return nil, errors.New("pricing service: price list repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = NewPriceResolver(PriceResolverDeps{Now: now, Logger: logger})
	}
	ttl := deps.TierCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	utcNow := func() time.Time { return now().UTC() }
	return &pricingService{
		lists:     deps.PriceLists,
		orders:    deps.Orders,
		resolver:  resolver,
		tierCache: newVariantTierCache(ttl, utcNow),
		now:       utcNow,
		logger:    logger,
	}, nil
}

func (s *pricingService) ResolveLines(ctx context.Context, cmd ResolveLinesCommand) (ResolvedPricing, error) {
	if len(cmd.Lines) == 0 {
		return ResolvedPricing{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return ResolvedPricing{}, fmt.Errorf("%w: line %s quantity must be positive", ErrPricingInvalidInput, line.VariantID)
		}
	}

	tier := domain.NormalizeTier(cmd.CustomerTier)
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	asOf := cmd.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	tags := mergeTierTag(cmd.CustomerTags, tier)

	rules, err := s.candidateRules(ctx, currency, cmd.SalesChannel)
	if err != nil {
		return ResolvedPricing{}, err
	}
	discountRules := tierDiscountRules(cmd.TierDiscounts)

	resolved := make([]ResolvedLine, 0, len(cmd.Lines))
	hashLines := make([]domain.ResolvedPriceLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		pctx := domain.PricingContext{
			CustomerTags:  tags,
			CustomerGroup: cmd.CustomerGroup,
			SKU:           strings.TrimSpace(line.SKU),
			Collections:   line.Collections,
			Quantity:      line.Quantity,
			Currency:      currency,
			SalesChannel:  cmd.SalesChannel,
			BasePrice:     line.BasePrice,
			AsOf:          asOf,
		}

		// Staged resolution: live price lists first, the legacy fixed-tier
		// metafield bridge second, the percentage override table last.
		price := s.resolver.Resolve(ctx, pctx, rules)
		if price.MatchedRuleID == "" {
			price = s.resolveLegacy(ctx, pctx, line, price)
		}
		if price.MatchedRuleID == "" && len(discountRules) > 0 {
			if discounted := s.resolver.Resolve(ctx, pctx, discountRules); discounted.MatchedRuleID != "" {
				price = discounted
			}
		}

		out := ResolvedLine{
			VariantID:      line.VariantID,
			SKU:            line.SKU,
			Quantity:       line.Quantity,
			UnitPrice:      price.UnitPrice,
			MatchedRuleID:  price.MatchedRuleID,
			FallbackReason: price.FallbackReason,
			Source:         priceSource(price),
		}
		resolved = append(resolved, out)

		if out.UnitPrice != nil {
			hashLines = append(hashLines, domain.ResolvedPriceLine{
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
				UnitPrice: *out.UnitPrice,
				Source:    out.Source,
			})
		}
	}

	return ResolvedPricing{
		Tier:     tier,
		Currency: currency,
		Lines:    resolved,
		Hash:     BuildPricingHash(tier, currency, hashLines),
	}, nil
}

// resolveLegacy consults the per-variant flat tier map metafield when no
// modern rule produced a price. It is a compatibility bridge, never the
// primary path.
func (s *pricingService) resolveLegacy(ctx context.Context, pctx domain.PricingContext, line ResolveLineInput, fallback domain.ResolvedPrice) domain.ResolvedPrice {
	if s.orders == nil {
		return fallback
	}
	variantID, err := strconv.ParseInt(strings.TrimSpace(line.VariantID), 10, 64)
	if err != nil || variantID == 0 {
		return fallback
	}

	tiers, ok := s.tierCache.Get(variantID)
	if !ok {
		fetched, err := s.orders.FetchVariantPriceTiers(ctx, variantID)
		if err != nil {
			s.logger(ctx, "legacy_tier_fetch_failed", map[string]any{"variantId": variantID, "error": err.Error()})
			return fallback
		}
		tiers = fetched
		s.tierCache.Put(variantID, tiers)
	}

	rules := LegacyTierRules(tiers)
	if len(rules) == 0 {
		return fallback
	}
	if !pctx.HasBasePrice() {
		if def, ok := LegacyDefaultPrice(tiers); ok {
			pctx.BasePrice = &def
		}
	}

	price := s.resolver.Resolve(ctx, pctx, rules)
	if price.UnitPrice == nil {
		return fallback
	}
	return price
}

func (s *pricingService) candidateRules(ctx context.Context, currency string, channel string) ([]domain.PriceRule, error) {
	lists, err := s.lists.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("pricing: load price lists: %w", err)
	}
	var rules []domain.PriceRule
	for _, list := range lists {
		if list.Currency != "" && !strings.EqualFold(list.Currency, currency) {
			continue
		}
		if list.Channel != "" && !strings.EqualFold(list.Channel, channel) {
			continue
		}
		rules = append(rules, list.Rules...)
	}
	return rules, nil
}

// tierDiscountRules converts an externally-supplied {tier: percent} override
// table into percent-discount rules, keyed deterministically per tier.
func tierDiscountRules(discounts map[string]float64) []domain.PriceRule {
	if len(discounts) == 0 {
		return nil
	}
	names := make([]string, 0, len(discounts))
	for name := range discounts {
		if isFinite(discounts[name]) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	rules := make([]domain.PriceRule, 0, len(names))
	for idx, name := range names {
		tier := domain.NormalizeTier(name)
		rules = append(rules, domain.PriceRule{
			ID:         tierDiscountRuleIDPrefix + tier,
			Name:       fmt.Sprintf("tier discount %s", tier),
			Priority:   tierDiscountPriorityBase + idx,
			Conditions: []domain.RuleCondition{{Type: domain.ConditionCustomerTag, Values: []string{tier}}},
			Action:     domain.RuleAction{Type: domain.ActionPercentDiscount, Value: discounts[name]},
			Active:     true,
		})
	}
	return rules
}

func priceSource(price domain.ResolvedPrice) domain.PriceSource {
	switch {
	case strings.HasPrefix(price.MatchedRuleID, legacyRuleIDPrefix):
		return domain.PriceSourceMetafield
	case strings.HasPrefix(price.MatchedRuleID, tierDiscountRuleIDPrefix):
		return domain.PriceSourceTierDiscount
	case price.MatchedRuleID != "":
		return domain.PriceSourceRule
	case price.UnitPrice != nil:
		return domain.PriceSourceBase
	default:
		return ""
	}
}

func mergeTierTag(tags []string, tier string) []string {
	if tier == "" {
		return tags
	}
	for _, tag := range tags {
		if strings.EqualFold(strings.TrimSpace(tag), tier) {
			return tags
		}
	}
	merged := make([]string, 0, len(tags)+1)
	merged = append(merged, tags...)
	return append(merged, tier)
}

// variantTierCache memoises legacy tier map lookups for a bounded lifetime.
// It is process-scoped, owned by the pricing service, and rebuilt per test.
type variantTierCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[int64]variantTierEntry
}

type variantTierEntry struct {
	tiers   domain.VariantPriceTiers
	expires time.Time
}

func newVariantTierCache(ttl time.Duration, now func() time.Time) *variantTierCache {
	return &variantTierCache{ttl: ttl, now: now, m: make(map[int64]variantTierEntry)}
}

func (c *variantTierCache) Get(variantID int64) (domain.VariantPriceTiers, bool) {
	c.mu.RLock()
	entry, ok := c.m[variantID]
	c.mu.RUnlock()
	if !ok {
		return domain.VariantPriceTiers{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, variantID)
		c.mu.Unlock()
		return domain.VariantPriceTiers{}, false
	}
	return entry.tiers, true
}

func (c *variantTierCache) Put(variantID int64, tiers domain.VariantPriceTiers) {
	c.mu.Lock()
	c.m[variantID] = variantTierEntry{tiers: tiers, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
