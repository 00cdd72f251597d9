package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/flss-ops/api/internal/domain"
)

// DraftOrderServiceDeps bundles the collaborators of the draft order service.
type DraftOrderServiceDeps struct {
	Orders  OrderSystemClient
	Pricing PricingService
	Logger  func(context.Context, string, map[string]any)
}

type draftOrderService struct {
	orders  OrderSystemClient
	pricing PricingService
	logger  func(context.Context, string, map[string]any)
}

// NewDraftOrderService wires the staff order capture service.
func NewDraftOrderService(deps DraftOrderServiceDeps) (DraftOrderService, error) {
	if deps.Orders == nil {
		return nil, ErrOrderClientMissing
	}
	if deps.Pricing == nil {
		return nil, errors.New("draft order service: pricing service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &draftOrderService{orders: deps.Orders, pricing: deps.Pricing, logger: logger}, nil
}

// Create resolves pricing for the requested lines, rejects the order if any
// line could not be priced, and captures it upstream with the pricing
// fingerprint stamped as a note attribute.
func (s *draftOrderService) Create(ctx context.Context, cmd CreateDraftOrderCommand) (CreateDraftOrderResult, error) {
	pricing, err := s.pricing.ResolveLines(ctx, ResolveLinesCommand{
		Lines:         cmd.Lines,
		CustomerTier:  cmd.CustomerTier,
		CustomerTags:  cmd.CustomerTags,
		Currency:      cmd.Currency,
		SalesChannel:  cmd.SalesChannel,
		TierDiscounts: cmd.TierDiscounts,
	})
	if err != nil {
		return CreateDraftOrderResult{}, err
	}

	lines := make([]domain.DraftOrderLine, 0, len(pricing.Lines))
	for _, line := range pricing.Lines {
		if line.UnitPrice == nil {
			return CreateDraftOrderResult{}, fmt.Errorf("%w: variant %s (%s)", ErrDraftOrderLineUnpriced, line.VariantID, line.FallbackReason)
		}
		variantID, err := strconv.ParseInt(strings.TrimSpace(line.VariantID), 10, 64)
		if err != nil {
			return CreateDraftOrderResult{}, fmt.Errorf("%w: variant id %q is not numeric", ErrPricingInvalidInput, line.VariantID)
		}
		lines = append(lines, domain.DraftOrderLine{
			VariantID: variantID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			Price:     *line.UnitPrice,
		})
	}

	attrs := stampNoteAttribute(cmd.Attributes, domain.PricingHashAttribute, pricing.Hash)
	draft := domain.DraftOrder{
		Currency:       pricing.Currency,
		Note:           cmd.Note,
		CustomerID:     cmd.CustomerID,
		Lines:          lines,
		NoteAttributes: attrs,
	}

	created, err := s.orders.CreateDraftOrder(ctx, draft)
	if err != nil {
		return CreateDraftOrderResult{}, fmt.Errorf("draft order: create upstream: %w", err)
	}

	s.logger(ctx, "draft_order_created", map[string]any{
		"draftOrderId": created.ID,
		"tier":         pricing.Tier,
		"lines":        len(lines),
	})
	return CreateDraftOrderResult{
		DraftOrder: created,
		Tier:       pricing.Tier,
		Hash:       pricing.Hash,
		Lines:      pricing.Lines,
	}, nil
}
