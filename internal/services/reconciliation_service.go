package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/flss-ops/api/internal/domain"
)

const (
	tierSourceMetafield = "metafield"
	tierSourceTag       = "tag"
	tierSourceDefault   = "default"
)

// defaultKnownTiers is the tag vocabulary consulted when resolving a
// customer's tier from their tags.
var defaultKnownTiers = []string{"retail", "agent", "export", "private", "wholesale"}

// ReconciliationServiceDeps bundles the collaborators of the reconciler.
type ReconciliationServiceDeps struct {
	Orders  OrderSystemClient
	Pricing PricingService
	// Statuses holds the per-order outcome; nil gets a default-capacity store.
	Statuses *ReconciliationStatusStore
	// Publisher receives outcome events; nil disables emission.
	Publisher   ReconciliationEventPublisher
	KnownTiers  []string
	DefaultTier string
	Now         func() time.Time
	Logger      func(context.Context, string, map[string]any)
	Tracer      trace.Tracer
}

type reconciliationService struct {
	orders      OrderSystemClient
	pricing     PricingService
	statuses    *ReconciliationStatusStore
	publisher   ReconciliationEventPublisher
	knownTiers  map[string]struct{}
	defaultTier string
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	tracer      trace.Tracer

	mu       sync.Mutex
	inflight map[int64]*inflightReconcile
}

type inflightReconcile struct {
	done   chan struct{}
	result ReconcileResult
	err    error
}

// NewReconciliationService wires the draft order pricing reconciler.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("reconciliation service: order system client is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("reconciliation service: pricing service is required")
	}
	statuses := deps.Statuses
	if statuses == nil {
		statuses = NewReconciliationStatusStore(0)
	}
	known := deps.KnownTiers
	if len(known) == 0 {
		known = defaultKnownTiers
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, tier := range known {
		if normalized := domain.NormalizeTier(tier); normalized != "" {
			knownSet[normalized] = struct{}{}
		}
	}
	defaultTier := domain.NormalizeTier(deps.DefaultTier)
	if defaultTier == "" {
		defaultTier = "public"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("flss-ops/reconciliation")
	}
	return &reconciliationService{
		orders:      deps.Orders,
		pricing:     deps.Pricing,
		statuses:    statuses,
		publisher:   deps.Publisher,
		knownTiers:  knownSet,
		defaultTier: defaultTier,
		now:         func() time.Time { return now().UTC() },
		logger:      logger,
		tracer:      tracer,
		inflight:    make(map[int64]*inflightReconcile),
	}, nil
}

// Reconcile checks and, when stale, repairs the pricing of one draft order.
// Concurrent calls for the same draft order collapse onto a single attempt
// and share its outcome.
func (s *reconciliationService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	if cmd.DraftOrderID <= 0 {
		return ReconcileResult{}, fmt.Errorf("%w: draft order id must be positive", ErrReconcileInvalidInput)
	}

	s.mu.Lock()
	if call, ok := s.inflight[cmd.DraftOrderID]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return ReconcileResult{}, ctx.Err()
		}
	}
	call := &inflightReconcile{done: make(chan struct{})}
	s.inflight[cmd.DraftOrderID] = call
	s.mu.Unlock()

	call.result, call.err = s.reconcile(ctx, cmd)
	close(call.done)

	s.mu.Lock()
	delete(s.inflight, cmd.DraftOrderID)
	s.mu.Unlock()

	return call.result, call.err
}

// Status returns the last recorded outcome for a draft order.
func (s *reconciliationService) Status(draftOrderID int64) (ReconciliationStatus, error) {
	status, ok := s.statuses.Get(draftOrderID)
	if !ok {
		return ReconciliationStatus{}, ErrStatusNotFound
	}
	return status, nil
}

func (s *reconciliationService) reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.reconcile",
		trace.WithAttributes(attribute.Int64("draft_order.id", cmd.DraftOrderID)))
	defer span.End()

	draft, err := s.orders.FetchDraftOrder(ctx, cmd.DraftOrderID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: fetch draft order %d: %w", cmd.DraftOrderID, err)
	}
	if len(draft.Lines) == 0 {
		result := ReconcileResult{
			DraftOrderID: cmd.DraftOrderID,
			Message:      "draft order has no lines",
		}
		s.record(ctx, result)
		return result, nil
	}

	resolution, profileTags := s.resolveTier(ctx, draft)
	span.SetAttributes(attribute.String("customer.tier", resolution.Tier))

	expected, err := s.expectedPricing(ctx, draft, resolution.Tier, profileTags, cmd.TierDiscounts)
	if err != nil {
		return ReconcileResult{}, err
	}

	storedHash, _ := draft.NoteAttribute(domain.PricingHashAttribute)
	currentHash := currentPricingHash(resolution.Tier, draft)

	result := ReconcileResult{
		DraftOrderID:   cmd.DraftOrderID,
		Tier:           resolution.Tier,
		TierResolution: resolution,
		ExpectedHash:   expected.Hash,
		LinesChecked:   len(draft.Lines),
	}

	if storedHash == expected.Hash && currentHash == expected.Hash {
		result.Message = "pricing aligned"
		s.record(ctx, result)
		return result, nil
	}

	corrected, verifyErr := s.correct(ctx, draft, expected)
	if verifyErr != nil {
		return ReconcileResult{}, verifyErr
	}

	result.Corrected = true
	verifyHash := currentPricingHash(resolution.Tier, corrected)
	if verifyHash != expected.Hash {
		result.Mismatch = true
		result.Message = "pricing corrected but verification hash still differs"
		s.logger(ctx, "reconcile_verification_mismatch", map[string]any{
			"draftOrderId": cmd.DraftOrderID,
			"expectedHash": expected.Hash,
			"verifyHash":   verifyHash,
		})
	} else {
		result.Message = "pricing corrected"
	}
	s.record(ctx, result)
	return result, nil
}

// resolveTier determines the customer's tier from the metafield first, the
// customer tags second, falling back to the configured default. Disagreement
// between the two signals is surfaced, not hidden. The customer's tags are
// returned alongside so the pricing resolution can reuse the same fetch.
func (s *reconciliationService) resolveTier(ctx context.Context, draft domain.DraftOrder) (domain.TierResolution, []string) {
	resolution := domain.TierResolution{Tier: s.defaultTier, Source: tierSourceDefault}
	if draft.CustomerID == 0 {
		return resolution, nil
	}

	profile, err := s.orders.FetchCustomerTierProfile(ctx, draft.CustomerID)
	if err != nil {
		s.logger(ctx, "reconcile_tier_profile_fetch_failed", map[string]any{
			"draftOrderId": draft.ID,
			"customerId":   draft.CustomerID,
			"error":        err.Error(),
		})
		return resolution, nil
	}

	resolution.MetafieldTier = domain.NormalizeTier(profile.Tier)
	for _, tag := range profile.Tags {
		candidate := domain.NormalizeTier(tag)
		if _, ok := s.knownTiers[candidate]; ok {
			resolution.TagTier = candidate
			break
		}
	}

	switch {
	case resolution.MetafieldTier != "":
		resolution.Tier = resolution.MetafieldTier
		resolution.Source = tierSourceMetafield
	case resolution.TagTier != "":
		resolution.Tier = resolution.TagTier
		resolution.Source = tierSourceTag
	}
	if resolution.MetafieldTier != "" && resolution.TagTier != "" && resolution.MetafieldTier != resolution.TagTier {
		resolution.Conflict = true
		s.logger(ctx, "reconcile_tier_conflict", map[string]any{
			"draftOrderId":  draft.ID,
			"customerId":    draft.CustomerID,
			"metafieldTier": resolution.MetafieldTier,
			"tagTier":       resolution.TagTier,
		})
	}
	return resolution, profile.Tags
}

// expectedPricing resolves what the draft order's lines should cost right
// now. Each line's listed price is the resolution base; corrections ride on
// the applied discount rather than the price itself, so the base is stable
// across runs and percentage rules never compound on an earlier correction.
func (s *reconciliationService) expectedPricing(ctx context.Context, draft domain.DraftOrder, tier string, tags []string, tierDiscounts map[string]float64) (ResolvedPricing, error) {
	lines := make([]ResolveLineInput, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		base := line.Price
		lines = append(lines, ResolveLineInput{
			VariantID: strconv.FormatInt(line.VariantID, 10),
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			BasePrice: &base,
		})
	}
	expected, err := s.pricing.ResolveLines(ctx, ResolveLinesCommand{
		Lines:         lines,
		CustomerTier:  tier,
		CustomerTags:  tags,
		Currency:      draft.Currency,
		TierDiscounts: tierDiscounts,
	})
	if err != nil {
		return ResolvedPricing{}, fmt.Errorf("reconcile: resolve expected pricing for draft order %d: %w", draft.ID, err)
	}
	return expected, nil
}

// correct writes the expected prices upstream, stamps the fingerprint, and
// returns the re-fetched post-update state for verification. Expected lines
// map to draft lines by position: the resolver returns one resolved line per
// input line in order, and the same variant can appear on several lines with
// different quantities and prices.
func (s *reconciliationService) correct(ctx context.Context, draft domain.DraftOrder, expected ResolvedPricing) (domain.DraftOrder, error) {
	if len(expected.Lines) != len(draft.Lines) {
		return domain.DraftOrder{}, fmt.Errorf("reconcile: draft order %d: resolved %d lines for %d draft lines", draft.ID, len(expected.Lines), len(draft.Lines))
	}

	lines := make([]domain.DraftOrderLine, 0, len(draft.Lines))
	for idx, line := range draft.Lines {
		updated := line
		if resolved := expected.Lines[idx]; resolved.UnitPrice != nil {
			target := domain.RoundPrice(*resolved.UnitPrice)
			if target < updated.Price && updated.Quantity > 0 {
				// Express the correction as a line discount so the listed
				// price stays intact as the base of future resolutions. Any
				// previously applied discount is superseded.
				amount := domain.RoundPrice((updated.Price - target) * float64(updated.Quantity))
				updated.AppliedDiscount = &domain.LineDiscount{
					Description: "tier pricing",
					ValueType:   "fixed_amount",
					Value:       amount,
					Amount:      amount,
				}
			} else {
				updated.Price = target
				updated.AppliedDiscount = nil
			}
		}
		lines = append(lines, updated)
	}

	attrs := stampNoteAttribute(draft.NoteAttributes, domain.PricingHashAttribute, expected.Hash)
	if _, err := s.orders.UpdateDraftOrderLines(ctx, draft.ID, lines, attrs); err != nil {
		return domain.DraftOrder{}, fmt.Errorf("reconcile: update draft order %d: %w", draft.ID, err)
	}

	verified, err := s.orders.FetchDraftOrder(ctx, draft.ID)
	if err != nil {
		return domain.DraftOrder{}, fmt.Errorf("reconcile: verify draft order %d: %w", draft.ID, err)
	}
	return verified, nil
}

func (s *reconciliationService) record(ctx context.Context, result ReconcileResult) {
	now := s.now()
	s.statuses.Put(domain.ReconciliationStatus{
		DraftOrderID: result.DraftOrderID,
		Tier:         result.Tier,
		Hash:         result.ExpectedHash,
		Corrected:    result.Corrected,
		Mismatch:     result.Mismatch,
		Message:      result.Message,
		LinesChecked: result.LinesChecked,
		UpdatedAt:    now,
	})

	if s.publisher == nil {
		return
	}
	event := ReconciliationEvent{
		DraftOrderID: result.DraftOrderID,
		Tier:         result.Tier,
		Hash:         result.ExpectedHash,
		Corrected:    result.Corrected,
		Mismatch:     result.Mismatch,
		OccurredAt:   now,
	}
	if err := s.publisher.PublishReconciliationEvent(ctx, event); err != nil {
		s.logger(ctx, "reconcile_event_publish_failed", map[string]any{
			"draftOrderId": result.DraftOrderID,
			"error":        err.Error(),
		})
	}
}

// currentPricingHash fingerprints the draft order's pricing as it stands
// upstream, using each line's effective unit price.
func currentPricingHash(tier string, draft domain.DraftOrder) string {
	lines := make([]domain.ResolvedPriceLine, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		lines = append(lines, domain.ResolvedPriceLine{
			VariantID: strconv.FormatInt(line.VariantID, 10),
			Quantity:  line.Quantity,
			UnitPrice: line.EffectiveUnitPrice(),
		})
	}
	return BuildPricingHash(tier, strings.ToUpper(strings.TrimSpace(draft.Currency)), lines)
}

func stampNoteAttribute(attrs []domain.NoteAttribute, name string, value string) []domain.NoteAttribute {
	out := make([]domain.NoteAttribute, 0, len(attrs)+1)
	replaced := false
	for _, attr := range attrs {
		if attr.Name == name {
			out = append(out, domain.NoteAttribute{Name: name, Value: value})
			replaced = true
			continue
		}
		out = append(out, attr)
	}
	if !replaced {
		out = append(out, domain.NoteAttribute{Name: name, Value: value})
	}
	return out
}
