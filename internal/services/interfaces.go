package services

import (
	"context"
	"time"

	domain "github.com/flss-ops/api/internal/domain"
)

// Type aliases expose domain models to the services package without
// reversing dependency direction.
type (
	PriceRule            = domain.PriceRule
	PriceList            = domain.PriceList
	RuleCondition        = domain.RuleCondition
	RuleAction           = domain.RuleAction
	PricingContext       = domain.PricingContext
	ResolvedPrice        = domain.ResolvedPrice
	ResolvedPriceLine    = domain.ResolvedPriceLine
	DraftOrder           = domain.DraftOrder
	DraftOrderLine       = domain.DraftOrderLine
	NoteAttribute        = domain.NoteAttribute
	CustomerTierProfile  = domain.CustomerTierProfile
	VariantPriceTiers    = domain.VariantPriceTiers
	TierResolution       = domain.TierResolution
	ReconciliationStatus = domain.ReconciliationStatus
)

// OrderSystemClient is the external commerce platform collaborator. The
// concrete implementation lives in internal/commerce; retry and rate-limit
// handling are its concern, not the services'.
type OrderSystemClient interface {
	FetchDraftOrder(ctx context.Context, draftOrderID int64) (DraftOrder, error)
	UpdateDraftOrderLines(ctx context.Context, draftOrderID int64, lines []DraftOrderLine, noteAttributes []NoteAttribute) (DraftOrder, error)
	CreateDraftOrder(ctx context.Context, draft DraftOrder) (DraftOrder, error)
	FetchCustomerTierProfile(ctx context.Context, customerID int64) (CustomerTierProfile, error)
	FetchVariantPriceTiers(ctx context.Context, variantID int64) (VariantPriceTiers, error)
}

// PricingService resolves unit prices for batches of lines against the live
// price lists, bridging to legacy variant tier metafields when no modern
// rule applies.
type PricingService interface {
	ResolveLines(ctx context.Context, cmd ResolveLinesCommand) (ResolvedPricing, error)
}

// PriceListService owns admin CRUD over price lists and their rules.
type PriceListService interface {
	ListPriceLists(ctx context.Context) ([]PriceList, error)
	GetPriceList(ctx context.Context, priceListID string) (PriceList, error)
	CreatePriceList(ctx context.Context, cmd UpsertPriceListCommand) (PriceList, error)
	UpdatePriceList(ctx context.Context, cmd UpsertPriceListCommand) (PriceList, error)
	DeletePriceList(ctx context.Context, priceListID string) error
	CreateRule(ctx context.Context, cmd UpsertRuleCommand) (PriceRule, error)
	UpdateRule(ctx context.Context, cmd UpsertRuleCommand) (PriceRule, error)
	DeleteRule(ctx context.Context, priceListID string, ruleID string) error
}

// ReconciliationService detects and corrects pricing drift on draft orders.
type ReconciliationService interface {
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error)
	Status(draftOrderID int64) (ReconciliationStatus, error)
}

// DraftOrderService captures staff orders upstream with resolved pricing and
// a stamped fingerprint.
type DraftOrderService interface {
	Create(ctx context.Context, cmd CreateDraftOrderCommand) (CreateDraftOrderResult, error)
}

// ReconciliationEventPublisher receives reconciliation outcomes for
// downstream ops tooling. Optional; a nil publisher disables emission.
type ReconciliationEventPublisher interface {
	PublishReconciliationEvent(ctx context.Context, event ReconciliationEvent) error
}

// Command and DTO definitions ------------------------------------------------

// ResolveLineInput is one line of a pricing resolution request.
type ResolveLineInput struct {
	VariantID   string
	SKU         string
	Quantity    int
	BasePrice   *float64
	Collections []string
}

// ResolveLinesCommand prices a batch of lines for one customer context.
type ResolveLinesCommand struct {
	Lines         []ResolveLineInput
	CustomerTier  string
	CustomerTags  []string
	CustomerGroup string
	Currency      string
	SalesChannel  string
	TierDiscounts map[string]float64
	AsOf          time.Time
}

// ResolvedLine is the per-line outcome of a batch resolution.
type ResolvedLine struct {
	VariantID      string
	SKU            string
	Quantity       int
	UnitPrice      *float64
	MatchedRuleID  string
	FallbackReason string
	Source         domain.PriceSource
}

// ResolvedPricing is the outcome of a batch resolution, including the
// fingerprint of the priced lines.
type ResolvedPricing struct {
	Tier     string
	Currency string
	Lines    []ResolvedLine
	Hash     string
}

// UpsertPriceListCommand carries price list create/update input.
type UpsertPriceListCommand struct {
	PriceListID string
	Name        string
	Currency    string
	Channel     string
	IsDefault   bool
}

// UpsertRuleCommand carries rule create/update input scoped to a parent list.
type UpsertRuleCommand struct {
	PriceListID   string
	RuleID        string
	Name          string
	Priority      *int
	Conditions    []RuleCondition
	Action        RuleAction
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Active        *bool
}

// ReconcileCommand triggers a pricing reconciliation for one draft order.
type ReconcileCommand struct {
	DraftOrderID  int64
	TierDiscounts map[string]float64
}

// ReconcileResult reports the outcome of a completed reconciliation attempt.
type ReconcileResult struct {
	DraftOrderID   int64
	Tier           string
	TierResolution TierResolution
	ExpectedHash   string
	Corrected      bool
	Mismatch       bool
	LinesChecked   int
	Message        string
}

// ReconciliationEvent is the payload published after each completed attempt.
type ReconciliationEvent struct {
	DraftOrderID int64     `json:"draftOrderId"`
	Tier         string    `json:"tier"`
	Hash         string    `json:"hash"`
	Corrected    bool      `json:"corrected"`
	Mismatch     bool      `json:"mismatch"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// CreateDraftOrderCommand captures a staff order with resolved pricing.
type CreateDraftOrderCommand struct {
	CustomerID    int64
	CustomerTier  string
	CustomerTags  []string
	Currency      string
	SalesChannel  string
	TierDiscounts map[string]float64
	Lines         []ResolveLineInput
	Note          string
	Attributes    []NoteAttribute
}

// CreateDraftOrderResult reports the created upstream draft order and its
// stamped fingerprint.
type CreateDraftOrderResult struct {
	DraftOrder DraftOrder
	Tier       string
	Hash       string
	Lines      []ResolvedLine
}
