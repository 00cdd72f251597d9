package commerce

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	domain "github.com/flss-ops/api/internal/domain"
)

// decimal handles the admin API's habit of sending money as quoted strings
// ("999.00") while accepting bare numbers from older payloads.
type decimal float64

func (d *decimal) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*d = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*d = decimal(value)
	return nil
}

func (d decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(d), 'f', 2, 64))
}

type draftOrderEnvelope struct {
	DraftOrder draftOrderPayload `json:"draft_order"`
}

type draftOrderPayload struct {
	ID             int64                  `json:"id,omitempty"`
	Name           string                 `json:"name,omitempty"`
	Currency       string                 `json:"currency,omitempty"`
	Note           string                 `json:"note,omitempty"`
	Customer       *customerRefPayload    `json:"customer,omitempty"`
	LineItems      []lineItemPayload      `json:"line_items"`
	NoteAttributes []noteAttributePayload `json:"note_attributes"`
	UpdatedAt      *time.Time             `json:"updated_at,omitempty"`
}

type customerRefPayload struct {
	ID int64 `json:"id"`
}

type lineItemPayload struct {
	ID              int64                   `json:"id,omitempty"`
	VariantID       int64                   `json:"variant_id"`
	SKU             string                  `json:"sku,omitempty"`
	Title           string                  `json:"title,omitempty"`
	Quantity        int                     `json:"quantity"`
	Price           decimal                 `json:"price"`
	AppliedDiscount *appliedDiscountPayload `json:"applied_discount,omitempty"`
}

type appliedDiscountPayload struct {
	Description string  `json:"description,omitempty"`
	ValueType   string  `json:"value_type,omitempty"`
	Value       decimal `json:"value,omitempty"`
	Amount      decimal `json:"amount"`
}

type noteAttributePayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type customerEnvelope struct {
	Customer customerPayload `json:"customer"`
}

type customerPayload struct {
	ID   int64  `json:"id"`
	Tags string `json:"tags"`
}

type metafieldsEnvelope struct {
	Metafields []metafieldPayload `json:"metafields"`
}

type metafieldPayload struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
}

func (m metafieldPayload) stringValue() string {
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return s
	}
	return strings.Trim(string(m.Value), `"`)
}

func decodeDraftOrder(payload draftOrderPayload) domain.DraftOrder {
	lines := make([]domain.DraftOrderLine, 0, len(payload.LineItems))
	for _, item := range payload.LineItems {
		lines = append(lines, decodeLineItem(item))
	}
	attrs := make([]domain.NoteAttribute, 0, len(payload.NoteAttributes))
	for _, attr := range payload.NoteAttributes {
		attrs = append(attrs, domain.NoteAttribute{Name: attr.Name, Value: attr.Value})
	}
	order := domain.DraftOrder{
		ID:             payload.ID,
		Name:           payload.Name,
		Currency:       payload.Currency,
		Note:           payload.Note,
		Lines:          lines,
		NoteAttributes: attrs,
	}
	if payload.Customer != nil {
		order.CustomerID = payload.Customer.ID
	}
	if payload.UpdatedAt != nil {
		order.UpdatedAt = *payload.UpdatedAt
	}
	return order
}

func decodeLineItem(item lineItemPayload) domain.DraftOrderLine {
	line := domain.DraftOrderLine{
		ID:        item.ID,
		VariantID: item.VariantID,
		SKU:       item.SKU,
		Title:     item.Title,
		Quantity:  item.Quantity,
		Price:     float64(item.Price),
	}
	if item.AppliedDiscount != nil {
		line.AppliedDiscount = &domain.LineDiscount{
			Description: item.AppliedDiscount.Description,
			ValueType:   item.AppliedDiscount.ValueType,
			Value:       float64(item.AppliedDiscount.Value),
			Amount:      float64(item.AppliedDiscount.Amount),
		}
	}
	return line
}

func encodeLineItem(line domain.DraftOrderLine) lineItemPayload {
	item := lineItemPayload{
		ID:        line.ID,
		VariantID: line.VariantID,
		SKU:       line.SKU,
		Title:     line.Title,
		Quantity:  line.Quantity,
		Price:     decimal(line.Price),
	}
	if line.AppliedDiscount != nil {
		item.AppliedDiscount = &appliedDiscountPayload{
			Description: line.AppliedDiscount.Description,
			ValueType:   line.AppliedDiscount.ValueType,
			Value:       decimal(line.AppliedDiscount.Value),
			Amount:      decimal(line.AppliedDiscount.Amount),
		}
	}
	return item
}

func encodeNoteAttributes(attrs []domain.NoteAttribute) []noteAttributePayload {
	out := make([]noteAttributePayload, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, noteAttributePayload{Name: attr.Name, Value: attr.Value})
	}
	return out
}

// parseTierMap decodes a price-tier metafield value: a JSON object keyed by
// tier name with numeric (or numeric-string) prices. Non-numeric entries are
// dropped here; tier semantics stay with the pricing service.
func parseTierMap(raw string) map[string]float64 {
	var entries map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	tiers := make(map[string]float64, len(entries))
	for name, value := range entries {
		switch v := value.(type) {
		case float64:
			tiers[name] = v
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				tiers[name] = parsed
			}
		}
	}
	if len(tiers) == 0 {
		return nil
	}
	return tiers
}

func splitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
