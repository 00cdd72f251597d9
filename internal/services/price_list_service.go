package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/repositories"
)

var knownConditionTypes = map[domain.ConditionType]struct{}{
	domain.ConditionCustomerTag:   {},
	domain.ConditionCustomerGroup: {},
	domain.ConditionSKU:           {},
	domain.ConditionCollection:    {},
	domain.ConditionMinQuantity:   {},
	domain.ConditionCurrency:      {},
	domain.ConditionSalesChannel:  {},
	domain.ConditionDateWindow:    {},
}

// PriceListServiceDeps bundles dependencies of the admin price list service.
type PriceListServiceDeps struct {
	PriceLists repositories.PriceListRepository
	Now        func() time.Time
	NewID      func() string
	Logger     func(context.Context, string, map[string]any)
}

type priceListService struct {
	repo   repositories.PriceListRepository
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewPriceListService wires the admin CRUD service for price lists and rules.
func NewPriceListService(deps PriceListServiceDeps) (PriceListService, error) {
	if deps.PriceLists == nil {
		return nil, errors.New("price list service: repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &priceListService{
		repo:   deps.PriceLists,
		now:    func() time.Time { return now().UTC() },
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *priceListService) ListPriceLists(ctx context.Context) ([]PriceList, error) {
	lists, err := s.repo.List(ctx)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return lists, nil
}

func (s *priceListService) GetPriceList(ctx context.Context, priceListID string) (PriceList, error) {
	priceListID = strings.TrimSpace(priceListID)
	if priceListID == "" {
		return PriceList{}, fmt.Errorf("%w: price list id is required", ErrPriceListInvalid)
	}
	list, err := s.repo.FindByID(ctx, priceListID)
	if err != nil {
		return PriceList{}, translateRepoError(err)
	}
	return list, nil
}

func (s *priceListService) CreatePriceList(ctx context.Context, cmd UpsertPriceListCommand) (PriceList, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return PriceList{}, fmt.Errorf("%w: name is required", ErrPriceListInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	now := s.now()
	list := domain.PriceList{
		ID:        s.newID(),
		Name:      name,
		Currency:  currency,
		Channel:   strings.TrimSpace(cmd.Channel),
		IsDefault: cmd.IsDefault,
		Rules:     []domain.PriceRule{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, list); err != nil {
		return PriceList{}, translateRepoError(err)
	}
	return list, nil
}

func (s *priceListService) UpdatePriceList(ctx context.Context, cmd UpsertPriceListCommand) (PriceList, error) {
	list, err := s.GetPriceList(ctx, cmd.PriceListID)
	if err != nil {
		return PriceList{}, err
	}
	if name := strings.TrimSpace(cmd.Name); name != "" {
		list.Name = name
	}
	if currency := strings.ToUpper(strings.TrimSpace(cmd.Currency)); currency != "" {
		list.Currency = currency
	}
	list.Channel = strings.TrimSpace(cmd.Channel)
	list.IsDefault = cmd.IsDefault
	list.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, list); err != nil {
		return PriceList{}, translateRepoError(err)
	}
	return list, nil
}

func (s *priceListService) DeletePriceList(ctx context.Context, priceListID string) error {
	priceListID = strings.TrimSpace(priceListID)
	if priceListID == "" {
		return fmt.Errorf("%w: price list id is required", ErrPriceListInvalid)
	}
	if err := s.repo.Delete(ctx, priceListID); err != nil {
		return translateRepoError(err)
	}
	return nil
}

func (s *priceListService) CreateRule(ctx context.Context, cmd UpsertRuleCommand) (PriceRule, error) {
	list, err := s.GetPriceList(ctx, cmd.PriceListID)
	if err != nil {
		return PriceRule{}, err
	}

	rule, err := s.buildRule(ctx, list.ID, cmd, domain.PriceRule{
		ID:        s.newID(),
		Priority:  domain.DefaultRulePriority,
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return PriceRule{}, err
	}

	list.Rules = append(list.Rules, rule)
	list.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, list); err != nil {
		return PriceRule{}, translateRepoError(err)
	}
	return rule, nil
}

func (s *priceListService) UpdateRule(ctx context.Context, cmd UpsertRuleCommand) (PriceRule, error) {
	list, err := s.GetPriceList(ctx, cmd.PriceListID)
	if err != nil {
		return PriceRule{}, err
	}

	idx := -1
	for i, rule := range list.Rules {
		if rule.ID == strings.TrimSpace(cmd.RuleID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PriceRule{}, ErrPriceRuleNotFound
	}

	rule, err := s.buildRule(ctx, list.ID, cmd, list.Rules[idx])
	if err != nil {
		return PriceRule{}, err
	}

	list.Rules[idx] = rule
	list.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, list); err != nil {
		return PriceRule{}, translateRepoError(err)
	}
	return rule, nil
}

func (s *priceListService) DeleteRule(ctx context.Context, priceListID string, ruleID string) error {
	list, err := s.GetPriceList(ctx, priceListID)
	if err != nil {
		return err
	}

	ruleID = strings.TrimSpace(ruleID)
	kept := list.Rules[:0]
	found := false
	for _, rule := range list.Rules {
		if rule.ID == ruleID {
			found = true
			continue
		}
		kept = append(kept, rule)
	}
	if !found {
		return ErrPriceRuleNotFound
	}

	list.Rules = kept
	list.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, list); err != nil {
		return translateRepoError(err)
	}
	return nil
}

// buildRule applies an upsert command on top of an existing (or freshly
// seeded) rule, validating the result.
func (s *priceListService) buildRule(ctx context.Context, priceListID string, cmd UpsertRuleCommand, base domain.PriceRule) (domain.PriceRule, error) {
	rule := base
	rule.PriceListID = priceListID
	if name := strings.TrimSpace(cmd.Name); name != "" {
		rule.Name = name
	}
	if cmd.Priority != nil {
		rule.Priority = *cmd.Priority
	}
	if cmd.Conditions != nil {
		rule.Conditions = cmd.Conditions
	}
	if rule.Conditions == nil {
		// An empty condition set is a valid unconditional rule; normalise
		// nil to empty so storage round-trips keep the distinction visible.
		rule.Conditions = []domain.RuleCondition{}
	}
	if cmd.Action.Type != "" {
		rule.Action = cmd.Action
	}
	rule.EffectiveFrom = cmd.EffectiveFrom
	rule.EffectiveTo = cmd.EffectiveTo
	if cmd.Active != nil {
		rule.Active = *cmd.Active
	}
	rule.UpdatedAt = s.now()

	if err := s.validateRule(ctx, rule); err != nil {
		return domain.PriceRule{}, err
	}
	return rule, nil
}

func (s *priceListService) validateRule(ctx context.Context, rule domain.PriceRule) error {
	switch rule.Action.Type {
	case domain.ActionFixedUnitPrice:
		if !isFinite(rule.Action.Value) || rule.Action.Value < 0 {
			return fmt.Errorf("%w: fixed unit price must be a non-negative number", ErrPriceListInvalid)
		}
	case domain.ActionPercentDiscount:
		if !isFinite(rule.Action.Value) || rule.Action.Value < 0 || rule.Action.Value > 100 {
			return fmt.Errorf("%w: percent discount must be between 0 and 100", ErrPriceListInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported action type %q", ErrPriceListInvalid, rule.Action.Type)
	}

	for _, cond := range rule.Conditions {
		if _, ok := knownConditionTypes[cond.Type]; !ok {
			// Stored anyway: the matcher fails open on unknown types, but
			// staff should know they wrote a condition nothing understands.
			s.logger(ctx, "price_rule_unknown_condition_type", map[string]any{
				"ruleId": rule.ID,
				"type":   string(cond.Type),
			})
		}
	}
	return nil
}

func translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrPriceListNotFound
	}
	return err
}
