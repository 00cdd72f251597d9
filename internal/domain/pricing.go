package domain

import (
	"math"
	"strings"
	"time"
)

// ConditionType identifies how a rule condition is evaluated against a
// pricing context. Unknown types are tolerated for forward compatibility;
// the matcher decides how to treat them.
type ConditionType string

const (
	ConditionCustomerTag   ConditionType = "customer_tag"
	ConditionCustomerGroup ConditionType = "customer_group"
	ConditionSKU           ConditionType = "sku"
	ConditionCollection    ConditionType = "collection"
	ConditionMinQuantity   ConditionType = "min_quantity"
	ConditionCurrency      ConditionType = "currency"
	ConditionSalesChannel  ConditionType = "sales_channel"
	ConditionDateWindow    ConditionType = "date_window"
)

// ActionType identifies what a matched rule does to the unit price.
type ActionType string

const (
	ActionFixedUnitPrice  ActionType = "fixed_unit_price"
	ActionPercentDiscount ActionType = "percent_discount"
)

// Fallback reasons reported when resolution completes without a rule match.
const (
	FallbackNoMatchingRule = "NO_MATCHING_RULE"
	FallbackNoBasePrice    = "NO_BASE_PRICE"
)

// PriceSource records which pricing path produced a resolved line price.
type PriceSource string

const (
	PriceSourceRule         PriceSource = "rule"
	PriceSourceMetafield    PriceSource = "metafield"
	PriceSourceTierDiscount PriceSource = "tier_discount"
	PriceSourceBase         PriceSource = "base_price"
)

// RuleCondition is one AND-combined predicate on a price rule. Only the
// fields relevant to its Type carry meaning; the rest stay zero.
type RuleCondition struct {
	Type        ConditionType `json:"type"`
	Values      []string      `json:"values,omitempty"`
	Value       string        `json:"value,omitempty"`
	MinQuantity float64       `json:"minQuantity,omitempty"`
	From        *time.Time    `json:"from,omitempty"`
	To          *time.Time    `json:"to,omitempty"`
}

// RuleAction describes the pricing effect of a matched rule.
type RuleAction struct {
	Type  ActionType `json:"type"`
	Value float64    `json:"value"`
}

// PriceRule is an immutable pricing rule. An empty Conditions slice is a
// valid unconditional rule and is distinct from "no rule at all".
type PriceRule struct {
	ID            string          `json:"id"`
	PriceListID   string          `json:"priceListId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Priority      int             `json:"priority"`
	Conditions    []RuleCondition `json:"conditions"`
	Action        RuleAction      `json:"action"`
	EffectiveFrom *time.Time      `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time      `json:"effectiveTo,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"createdAt,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt,omitempty"`
}

// DefaultRulePriority applies when a rule is stored without an explicit priority.
const DefaultRulePriority = 100

// InEffect reports whether the rule's effective window covers the given instant.
// Missing bounds are open-ended; bounds are inclusive.
func (r PriceRule) InEffect(asOf time.Time) bool {
	if asOf.IsZero() {
		return false
	}
	if r.EffectiveFrom != nil && asOf.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && asOf.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// PriceList is a named collection of price rules, optionally scoped to a
// currency and sales channel.
type PriceList struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Currency  string      `json:"currency"`
	Channel   string      `json:"channel,omitempty"`
	IsDefault bool        `json:"isDefault"`
	Rules     []PriceRule `json:"rules"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// DefaultCurrency is assumed when a price list or context omits one.
const DefaultCurrency = "ZAR"

// PricingContext carries everything the resolver needs for one line. It is
// built per resolution call and never persisted.
type PricingContext struct {
	CustomerTags  []string
	CustomerGroup string
	SKU           string
	Collections   []string
	Quantity      int
	Currency      string
	SalesChannel  string
	BasePrice     *float64
	AsOf          time.Time
}

// HasBasePrice reports whether the context carries a usable base price.
func (c PricingContext) HasBasePrice() bool {
	return c.BasePrice != nil && !math.IsNaN(*c.BasePrice) && !math.IsInf(*c.BasePrice, 0)
}

// ResolvedPrice is the outcome of resolving one pricing context.
type ResolvedPrice struct {
	UnitPrice      *float64 `json:"unitPrice"`
	MatchedRuleID  string   `json:"matchedRuleId,omitempty"`
	FallbackReason string   `json:"fallbackReason,omitempty"`
}

// ResolvedPriceLine ties a resolved unit price to a draft-order line. It is
// both the pricing-hash input and the upstream line payload.
type ResolvedPriceLine struct {
	VariantID string      `json:"variantId"`
	Quantity  int         `json:"quantity"`
	UnitPrice float64     `json:"unitPrice"`
	Source    PriceSource `json:"source"`
}

// RoundPrice normalises a unit price to two decimals, the money precision
// used throughout pricing and hashing.
func RoundPrice(value float64) float64 {
	return math.Round(value*100) / 100
}

// NormalizeTier lowercases and trims a tier name so tag-derived and
// metafield-derived tiers compare consistently.
func NormalizeTier(tier string) string {
	return strings.ToLower(strings.TrimSpace(tier))
}
