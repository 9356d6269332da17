// Package receipt defines the structured purchase data flowing through the
// extraction and reconciliation pipeline. All monetary and quantity values are
// exact decimals, never binary floats, to avoid rounding drift.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one receipt row after typed conversion.
type Item struct {
	RawName            string          `json:"raw_name"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit,omitempty"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	LineTotal          decimal.Decimal `json:"line_total"`
	Discount           decimal.Decimal `json:"discount"`
	PriceAfterDiscount decimal.Decimal `json:"price_after_discount"`
	// CanonicalName is filled by the name resolver; empty when unresolved,
	// "SKIP" for known non-products.
	CanonicalName string `json:"canonical_name,omitempty"`
}

// Store identifies where the purchase happened.
type Store struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// RawExtraction is the direct LLM output after typed conversion, before
// discount merging and totals verification.
type RawExtraction struct {
	Store         Store           `json:"store"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`
	Items         []Item          `json:"items"`
	// Warnings records per-field recoveries (bad numbers defaulted to zero)
	// so a best-effort receipt still tells the caller what was patched.
	Warnings []string `json:"warnings,omitempty"`
}

// ReconciledReceipt is a RawExtraction after discount merging and totals
// verification.
type ReconciledReceipt struct {
	RawExtraction
	// TotalDiscrepancy is declared minus computed at verification time.
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy"`
	// InferredCardDiscount is set when a loyalty-card deduction explains the
	// gap between declared and computed totals.
	InferredCardDiscount *decimal.Decimal `json:"inferred_card_discount,omitempty"`
}

// ComputedTotal sums price-after-discount across items. The line total is the
// fallback only for rows no merge ever touched: zero post-discount price AND
// zero discount. A zero post-discount price next to a recorded discount is a
// real price (fully discounted row), not an absent one.
func ComputedTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.PriceAfterDiscount.IsZero() && it.Discount.IsZero() && !it.LineTotal.IsZero() {
			total = total.Add(it.LineTotal)
		} else {
			total = total.Add(it.PriceAfterDiscount)
		}
	}
	return total
}

// NormalizationSource tells which stage of the resolver cascade produced a
// canonical name.
type NormalizationSource string

const (
	SourceAlias      NormalizationSource = "alias"
	SourceStaticRule NormalizationSource = "static_rule"
	SourceLLM        NormalizationSource = "llm"
)

// SkipMarker is the canonical value for known non-products (bags, deposits,
// recycling fees) excluded downstream.
const SkipMarker = "SKIP"

// NormalizationResult is the outcome of resolving one raw item name.
// CanonicalName is empty when no stage produced a suggestion.
type NormalizationResult struct {
	CanonicalName string              `json:"canonical_name"`
	Source        NormalizationSource `json:"source"`
	// Confidence is only set by batch LLM resolution; 0 means "not scored".
	Confidence float64 `json:"confidence,omitempty"`
	// Alternatives are extra LLM suggestions (at most 3) in rich batch mode.
	Alternatives []string `json:"alternatives,omitempty"`
}
