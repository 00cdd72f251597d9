package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	domain "github.com/flss-ops/api/internal/domain"
)

// BuildPricingHash fingerprints a resolved pricing state. The canonical form
// serialises tier, currency, and each line's (variantId, quantity, unit
// price) in a fixed order with lines sorted by variant id, so two
// resolutions of the same logical state hash identically regardless of line
// order. The provenance tag is deliberately excluded: two resolutions that
// agree on every unit price are the same pricing state.
//
// This is drift detection, not integrity against an attacker; SHA-256 is
// used because it is cheap enough and unambiguous.
func BuildPricingHash(tier string, currency string, lines []domain.ResolvedPriceLine) string {
	sorted := make([]domain.ResolvedPriceLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].VariantID != sorted[j].VariantID {
			return sorted[i].VariantID < sorted[j].VariantID
		}
		if sorted[i].Quantity != sorted[j].Quantity {
			return sorted[i].Quantity < sorted[j].Quantity
		}
		return sorted[i].UnitPrice < sorted[j].UnitPrice
	})

	var b strings.Builder
	b.WriteString(domain.NormalizeTier(tier))
	b.WriteByte('|')
	b.WriteString(strings.ToUpper(strings.TrimSpace(currency)))
	b.WriteByte('|')
	for idx, line := range sorted {
		if idx > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s:%d:%.2f", line.VariantID, line.Quantity, domain.RoundPrice(line.UnitPrice))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
