package domain

import "time"

// PricingHashAttribute is the draft-order note attribute carrying the
// pricing fingerprint. The key is wire-compatible with orders stamped by the
// previous stack and must not change while those orders are still open.
const PricingHashAttribute = "flss_pricing_hash"

// NoteAttribute is an order-level key/value annotation on the commerce platform.
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineDiscount is a discount already applied to a draft-order line upstream.
// Amount is the total reduction for the line, not per unit.
type LineDiscount struct {
	Description string  `json:"description,omitempty"`
	ValueType   string  `json:"value_type,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Amount      float64 `json:"amount"`
}

// DraftOrderLine is one line of a draft order as stored upstream.
type DraftOrderLine struct {
	ID              int64         `json:"id,omitempty"`
	VariantID       int64         `json:"variant_id"`
	SKU             string        `json:"sku,omitempty"`
	Title           string        `json:"title,omitempty"`
	Quantity        int           `json:"quantity"`
	Price           float64       `json:"price"`
	AppliedDiscount *LineDiscount `json:"applied_discount,omitempty"`
}

// EffectiveUnitPrice returns the line's unit price after any already-applied
// line discount, which is how the current pricing state is fingerprinted.
func (l DraftOrderLine) EffectiveUnitPrice() float64 {
	price := l.Price
	if l.AppliedDiscount != nil && l.Quantity > 0 {
		price -= l.AppliedDiscount.Amount / float64(l.Quantity)
	}
	if price < 0 {
		price = 0
	}
	return RoundPrice(price)
}

// DraftOrder is the subset of the upstream draft order the pricing core needs.
type DraftOrder struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name,omitempty"`
	Currency       string           `json:"currency"`
	Note           string           `json:"note,omitempty"`
	CustomerID     int64            `json:"customer_id,omitempty"`
	Lines          []DraftOrderLine `json:"line_items"`
	NoteAttributes []NoteAttribute  `json:"note_attributes"`
	UpdatedAt      time.Time        `json:"updated_at,omitempty"`
}

// NoteAttribute returns the value of the named note attribute, if present.
func (o DraftOrder) NoteAttribute(name string) (string, bool) {
	for _, attr := range o.NoteAttributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// CustomerTierProfile is the customer metadata consulted for tier resolution.
type CustomerTierProfile struct {
	CustomerID int64    `json:"customer_id"`
	Tier       string   `json:"tier,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// VariantPriceTiers is the legacy per-variant flat tier map metafield.
type VariantPriceTiers struct {
	VariantID int64              `json:"variant_id"`
	SKU       string             `json:"sku,omitempty"`
	Tiers     map[string]float64 `json:"price_tiers"`
}

// TierResolution records how a customer's tier was determined and whether
// the metafield- and tag-derived answers disagreed.
type TierResolution struct {
	Tier          string `json:"tier"`
	Source        string `json:"source"`
	MetafieldTier string `json:"metafieldTier,omitempty"`
	TagTier       string `json:"tagTier,omitempty"`
	Conflict      bool   `json:"conflict"`
}

// ReconciliationStatus is the last-known outcome of a pricing reconciliation
// attempt for a draft order. It lives in process memory only.
type ReconciliationStatus struct {
	DraftOrderID int64     `json:"draftOrderId"`
	Tier         string    `json:"tier"`
	Hash         string    `json:"hash"`
	Corrected    bool      `json:"corrected"`
	Mismatch     bool      `json:"mismatch"`
	Message      string    `json:"message,omitempty"`
	LinesChecked int       `json:"linesChecked"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
