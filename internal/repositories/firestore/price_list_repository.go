package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/flss-ops/api/internal/domain"
	pfirestore "github.com/flss-ops/api/internal/platform/firestore"
)

const priceListsCollection = "priceLists"

// PriceListRepository persists price lists (rules embedded) in Firestore.
type PriceListRepository struct {
	base *pfirestore.BaseRepository[domain.PriceList]
}

// NewPriceListRepository constructs a Firestore-backed price list repository.
func NewPriceListRepository(provider *pfirestore.Provider) (*PriceListRepository, error) {
	if provider == nil {
		return nil, errors.New("price list repository: firestore provider is required")
	}

	encoder := func(value domain.PriceList) (any, error) {
		return encodePriceListDocument(value), nil
	}
	decoder := func(snap *firestore.DocumentSnapshot) (domain.PriceList, error) {
		var doc priceListDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PriceList{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = snap.UpdateTime
		}
		return decodePriceListDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.PriceList](provider, priceListsCollection, encoder, decoder)
	return &PriceListRepository{base: base}, nil
}

// List returns every stored price list ordered by name.
func (r *PriceListRepository) List(ctx context.Context) ([]domain.PriceList, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("price list repository not initialised")
	}
	return r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
}

// FindByID loads one price list.
func (r *PriceListRepository) FindByID(ctx context.Context, priceListID string) (domain.PriceList, error) {
	if r == nil || r.base == nil {
		return domain.PriceList{}, errors.New("price list repository not initialised")
	}
	return r.base.Get(ctx, priceListID)
}

// Insert stores a new price list, failing if the id already exists.
func (r *PriceListRepository) Insert(ctx context.Context, list domain.PriceList) error {
	if r == nil || r.base == nil {
		return errors.New("price list repository not initialised")
	}
	if strings.TrimSpace(list.ID) == "" {
		return errors.New("price list repository: id is required")
	}
	return r.base.Create(ctx, list.ID, list)
}

// Update replaces the stored list state.
func (r *PriceListRepository) Update(ctx context.Context, list domain.PriceList) error {
	if r == nil || r.base == nil {
		return errors.New("price list repository not initialised")
	}
	if strings.TrimSpace(list.ID) == "" {
		return errors.New("price list repository: id is required")
	}
	return r.base.Set(ctx, list.ID, list)
}

// Delete removes the list document. Rules live inside the document, so no
// cascade is involved.
func (r *PriceListRepository) Delete(ctx context.Context, priceListID string) error {
	if r == nil || r.base == nil {
		return errors.New("price list repository not initialised")
	}
	return r.base.Delete(ctx, priceListID)
}

type priceListDocument struct {
	ID        string              `firestore:"-"`
	Name      string              `firestore:"name"`
	Currency  string              `firestore:"currency"`
	Channel   string              `firestore:"channel,omitempty"`
	IsDefault bool                `firestore:"isDefault"`
	Rules     []priceRuleDocument `firestore:"rules"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

type priceRuleDocument struct {
	ID            string                  `firestore:"id"`
	Name          string                  `firestore:"name,omitempty"`
	Priority      int                     `firestore:"priority"`
	Conditions    []ruleConditionDocument `firestore:"conditions"`
	ActionType    string                  `firestore:"actionType"`
	ActionValue   float64                 `firestore:"actionValue"`
	EffectiveFrom *time.Time              `firestore:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time              `firestore:"effectiveTo,omitempty"`
	Active        bool                    `firestore:"active"`
	CreatedAt     time.Time               `firestore:"createdAt,omitempty"`
	UpdatedAt     time.Time               `firestore:"updatedAt,omitempty"`
}

type ruleConditionDocument struct {
	Type        string     `firestore:"type"`
	Values      []string   `firestore:"values,omitempty"`
	Value       string     `firestore:"value,omitempty"`
	MinQuantity float64    `firestore:"minQuantity,omitempty"`
	From        *time.Time `firestore:"from,omitempty"`
	To          *time.Time `firestore:"to,omitempty"`
}

func encodePriceListDocument(list domain.PriceList) priceListDocument {
	rules := make([]priceRuleDocument, 0, len(list.Rules))
	for _, rule := range list.Rules {
		rules = append(rules, encodePriceRuleDocument(rule))
	}
	return priceListDocument{
		Name:      strings.TrimSpace(list.Name),
		Currency:  strings.ToUpper(strings.TrimSpace(list.Currency)),
		Channel:   strings.TrimSpace(list.Channel),
		IsDefault: list.IsDefault,
		Rules:     rules,
		CreatedAt: list.CreatedAt,
		UpdatedAt: list.UpdatedAt,
	}
}

func encodePriceRuleDocument(rule domain.PriceRule) priceRuleDocument {
	conditions := make([]ruleConditionDocument, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		conditions = append(conditions, ruleConditionDocument{
			Type:        string(cond.Type),
			Values:      cond.Values,
			Value:       cond.Value,
			MinQuantity: cond.MinQuantity,
			From:        cond.From,
			To:          cond.To,
		})
	}
	return priceRuleDocument{
		ID:            rule.ID,
		Name:          rule.Name,
		Priority:      rule.Priority,
		Conditions:    conditions,
		ActionType:    string(rule.Action.Type),
		ActionValue:   rule.Action.Value,
		EffectiveFrom: rule.EffectiveFrom,
		EffectiveTo:   rule.EffectiveTo,
		Active:        rule.Active,
		CreatedAt:     rule.CreatedAt,
		UpdatedAt:     rule.UpdatedAt,
	}
}

func decodePriceListDocument(doc priceListDocument) domain.PriceList {
	rules := make([]domain.PriceRule, 0, len(doc.Rules))
	for _, rule := range doc.Rules {
		rules = append(rules, decodePriceRuleDocument(doc.ID, rule))
	}
	return domain.PriceList{
		ID:        doc.ID,
		Name:      doc.Name,
		Currency:  doc.Currency,
		Channel:   doc.Channel,
		IsDefault: doc.IsDefault,
		Rules:     rules,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func decodePriceRuleDocument(priceListID string, doc priceRuleDocument) domain.PriceRule {
	conditions := make([]domain.RuleCondition, 0, len(doc.Conditions))
	for _, cond := range doc.Conditions {
		conditions = append(conditions, domain.RuleCondition{
			Type:        domain.ConditionType(cond.Type),
			Values:      cond.Values,
			Value:       cond.Value,
			MinQuantity: cond.MinQuantity,
			From:        cond.From,
			To:          cond.To,
		})
	}
	return domain.PriceRule{
		ID:            doc.ID,
		PriceListID:   priceListID,
		Name:          doc.Name,
		Priority:      doc.Priority,
		Conditions:    conditions,
		Action:        domain.RuleAction{Type: domain.ActionType(doc.ActionType), Value: doc.ActionValue},
		EffectiveFrom: doc.EffectiveFrom,
		EffectiveTo:   doc.EffectiveTo,
		Active:        doc.Active,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
