package services

import "errors"

var (
	// ErrPricingInvalidInput signals bad resolution input such as a missing
	// line set or a non-positive quantity. Never retried.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")

	// ErrDraftOrderLineUnpriced is returned when order capture cannot price a
	// line and no base price exists to fall back to.
	ErrDraftOrderLineUnpriced = errors.New("draft order: line has no resolvable price")

	// ErrPriceListNotFound is returned when the referenced price list does not exist.
	ErrPriceListNotFound = errors.New("price list: not found")

	// ErrPriceRuleNotFound is returned when a rule id does not exist under its parent list.
	ErrPriceRuleNotFound = errors.New("price rule: not found")

	// ErrPriceListInvalid signals a price list or rule that fails validation.
	ErrPriceListInvalid = errors.New("price list: invalid")

	// ErrReconcileInvalidInput signals a reconciliation request without a usable draft order id.
	ErrReconcileInvalidInput = errors.New("reconcile: invalid input")

	// ErrStatusNotFound is returned when no reconciliation has run for a draft order id.
	ErrStatusNotFound = errors.New("reconciliation status: not found")

	// ErrOrderClientMissing signals a service constructed without its commerce client.
	ErrOrderClientMissing = errors.New("order system client is required")
)
