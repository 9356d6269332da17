// Package reconcile makes extracted receipts arithmetically consistent:
// stand-alone discount rows are merged into the items they belong to and the
// declared total is checked against item-level math.
package reconcile

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lkaczmarek/paragon-pipeline/constants"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
)

// DiscountOptions selects the store-specific strictness rules.
type DiscountOptions struct {
	// FixNegativeDiscounts flips a negative declared discount on the item
	// itself and recomputes its post-discount price.
	FixNegativeDiscounts bool
	// StrictDiscountNameMatch requires the row label to equal "rabat"/"upust"
	// exactly (lower-cased, trimmed). Non-strict mode accepts a substring
	// match. Kaufland's OCR isolates the word reliably; Lidl's does not.
	StrictDiscountNameMatch bool
}

// Boilerplate rows that are not products: VAT/tax summary lines, section
// headers, fiscal footers. They must not participate in discount attachment
// or totals math.
var nonProductPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^ptu\s*[a-g]?\b`),
	regexp.MustCompile(`(?i)\bptu\s+\d`),
	regexp.MustCompile(`(?i)^vat\b`),
	regexp.MustCompile(`(?i)sprzeda[żz]\s+opodatk`),
	regexp.MustCompile(`(?i)suma\s+pln`),
	regexp.MustCompile(`(?i)suma\s+ptu`),
	regexp.MustCompile(`(?i)podsumowanie`),
	regexp.MustCompile(`(?i)^razem\b`),
	regexp.MustCompile(`(?i)paragon\s+fiskalny`),
	regexp.MustCompile(`(?i)do\s+zap[łl]aty`),
	regexp.MustCompile(`(?i)^got[óo]wka\b`),
	regexp.MustCompile(`(?i)^karta\s+p[łl]atnicza`),
	regexp.MustCompile(`(?i)^reszta\b`),
}

// IsNonProduct reports whether a row is summary/tax boilerplate.
func IsNonProduct(rawName string) bool {
	name := strings.TrimSpace(rawName)
	for _, re := range nonProductPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// IsDiscountLine classifies a row as a stand-alone discount for the preceding
// item.
func IsDiscountLine(it receipt.Item, strict bool) bool {
	if it.LineTotal.IsNegative() {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(it.RawName))
	for _, kw := range constants.DiscountKeywords {
		if strict {
			if name == kw {
				return true
			}
		} else if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// MergeDiscounts removes boilerplate rows, then folds discount lines into
// their preceding items in a single forward pass. Discounts are clamped to
// the line total; a post-discount price never goes negative. Running the
// merge on its own output is a no-op.
func MergeDiscounts(items []receipt.Item, opts DiscountOptions) []receipt.Item {
	filtered := make([]receipt.Item, 0, len(items))
	for _, it := range items {
		if IsNonProduct(it.RawName) {
			continue
		}
		filtered = append(filtered, it)
	}

	out := make([]receipt.Item, 0, len(filtered))
	for i := 0; i < len(filtered); i++ {
		it := filtered[i]

		if opts.FixNegativeDiscounts && it.Discount.IsNegative() {
			it.Discount = it.Discount.Abs()
			it.PriceAfterDiscount = clampFloor(it.LineTotal.Sub(it.Discount))
		}

		// A discount row with no preceding item has nothing to attach to;
		// keep it so the caller sees the anomaly instead of losing money data.
		if len(out) == 0 && IsDiscountLine(it, opts.StrictDiscountNameMatch) && i == 0 {
			out = append(out, it)
			continue
		}

		// Consume the run of discount rows following the item. OCR sometimes
		// splits one reduction across several lines.
		for i+1 < len(filtered) && IsDiscountLine(filtered[i+1], opts.StrictDiscountNameMatch) {
			it.Discount = it.Discount.Add(discountAmount(filtered[i+1]))
			if it.Discount.GreaterThan(it.LineTotal) {
				it.Discount = it.LineTotal
			}
			it.PriceAfterDiscount = clampFloor(it.LineTotal.Sub(it.Discount))
			i++
		}

		if it.PriceAfterDiscount.IsZero() && !it.LineTotal.IsZero() && it.Discount.IsZero() {
			it.PriceAfterDiscount = it.LineTotal
		}
		out = append(out, it)
	}
	return out
}

// discountAmount extracts the magnitude of a discount row: the line total if
// set, otherwise the post-discount price (some OCR puts the amount there).
func discountAmount(it receipt.Item) decimal.Decimal {
	if !it.LineTotal.IsZero() {
		return it.LineTotal.Abs()
	}
	return it.PriceAfterDiscount.Abs()
}

func clampFloor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
