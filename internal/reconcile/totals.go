package reconcile

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lkaczmarek/paragon-pipeline/constants"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
)

// TotalsConfig holds the calibration constants for totals correction. The
// values are empirically tuned against real receipts, not derived; override
// per deployment rather than editing here.
type TotalsConfig struct {
	// Tolerance is the discrepancy treated as OCR noise and left alone.
	Tolerance decimal.Decimal
	// ImplausibleFactor flags a declared total as misread when it exceeds
	// the computed total by this factor.
	ImplausibleFactor decimal.Decimal
	// MinBasket/MaxBasket bound the computed totals for which a card
	// discount denomination may be inferred from the discrepancy alone.
	MinBasket decimal.Decimal
	MaxBasket decimal.Decimal
	// DenominationTolerance is how close -discrepancy must be to a known
	// denomination to count as a card discount.
	DenominationTolerance decimal.Decimal
	// MaxCardDiscount bounds any amount accepted as a card discount; loyalty
	// vouchers never approach basket size.
	MaxCardDiscount decimal.Decimal
	// Denominations are the typical loyalty discount amounts.
	Denominations []decimal.Decimal
	// CardKeywords mark loyalty lines in item names and raw OCR text.
	CardKeywords []string
}

// DefaultTotalsConfig returns the calibration in use today.
func DefaultTotalsConfig() TotalsConfig {
	denoms := make([]decimal.Decimal, 0, len(constants.CardDenominations))
	for _, s := range constants.CardDenominations {
		denoms = append(denoms, decimal.RequireFromString(s))
	}
	return TotalsConfig{
		Tolerance:             decimal.RequireFromString("0.50"),
		ImplausibleFactor:     decimal.NewFromInt(2),
		MinBasket:             decimal.NewFromInt(20),
		MaxBasket:             decimal.NewFromInt(2000),
		DenominationTolerance: decimal.RequireFromString("1.00"),
		MaxCardDiscount:       decimal.NewFromInt(50),
		Denominations:         denoms,
		CardKeywords:          constants.CardKeywords,
	}
}

// VerifyResult is the outcome of totals verification.
type VerifyResult struct {
	CorrectedTotal       decimal.Decimal
	Discrepancy          decimal.Decimal
	InferredCardDiscount *decimal.Decimal
}

// reSavedPLN matches "zaoszczędziłeś 10,50 PLN" style savings callouts near
// loyalty-card branding in raw OCR text.
var reSavedPLN = regexp.MustCompile(`(?i)(?:zaoszcz[ęe]dzi[łl][ae]?[śs]?|oszcz[ęe]dno[śs][ćc]|saved)\D{0,20}(\d+[.,]\d{2})\s*(?:z[łl]|pln)`)

// VerifyTotals compares the declared total against item-level math, infers a
// plausible loyalty-card discount, and corrects a misread summary line. Item
// sums are trusted over the declared total because the summary line is the
// most frequently misread region of a receipt.
func VerifyTotals(items []receipt.Item, declaredTotal decimal.Decimal, ocrText string, cfg TotalsConfig, logger *slog.Logger) VerifyResult {
	if logger == nil {
		logger = slog.Default()
	}
	computed := receipt.ComputedTotal(items)
	discrepancy := declaredTotal.Sub(computed)

	card := inferCardDiscount(items, discrepancy, computed, ocrText, cfg)

	res := VerifyResult{CorrectedTotal: declaredTotal, Discrepancy: discrepancy, InferredCardDiscount: card}

	switch {
	case discrepancy.Abs().LessThanOrEqual(cfg.Tolerance):
		// Close enough; leave the declared value.
	case declaredTotal.GreaterThan(computed.Mul(cfg.ImplausibleFactor)),
		discrepancy.GreaterThan(cfg.Tolerance):
		// Declared total is misread upward; rebuild it from item math.
		corrected := computed
		if card != nil {
			corrected = corrected.Sub(*card)
		}
		if corrected.IsNegative() {
			corrected = decimal.Zero
		}
		logger.Warn("reconcile.totals.corrected",
			"declared", declaredTotal.StringFixed(2),
			"computed", computed.StringFixed(2),
			"corrected", corrected.StringFixed(2),
		)
		res.CorrectedTotal = corrected
	case card != nil && discrepancy.Neg().Sub(*card).Abs().LessThanOrEqual(cfg.DenominationTolerance):
		// Declared is lower than computed by a plausible card discount:
		// trust the printed total.
	default:
		logger.Warn("reconcile.totals.unexplained_discrepancy",
			"declared", declaredTotal.StringFixed(2),
			"computed", computed.StringFixed(2),
			"discrepancy", discrepancy.StringFixed(2),
		)
	}
	return res
}

// inferCardDiscount runs the inference cascade: item keyword scan, raw-OCR
// savings pattern, then denomination matching. First hit wins.
func inferCardDiscount(items []receipt.Item, discrepancy, computed decimal.Decimal, ocrText string, cfg TotalsConfig) *decimal.Decimal {
	// (a) loyalty keyword on an item with a discount-sized amount.
	for _, it := range items {
		name := strings.ToLower(it.RawName)
		for _, kw := range cfg.CardKeywords {
			if strings.Contains(name, kw) {
				amount := it.LineTotal.Abs()
				if amount.IsZero() {
					amount = it.PriceAfterDiscount.Abs()
				}
				if !amount.IsZero() && amount.LessThanOrEqual(cfg.MaxCardDiscount) {
					return &amount
				}
			}
		}
	}

	// (b) "saved X PLN" callout near card branding in the raw OCR text.
	if ocrText != "" && containsAnyFold(ocrText, cfg.CardKeywords) {
		if m := reSavedPLN.FindStringSubmatch(ocrText); m != nil {
			if d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ".")); err == nil &&
				d.IsPositive() && d.LessThanOrEqual(cfg.MaxCardDiscount) {
				return &d
			}
		}
	}

	// (c) the discrepancy itself looks like a known denomination on a
	// plausible basket.
	if computed.GreaterThanOrEqual(cfg.MinBasket) && computed.LessThanOrEqual(cfg.MaxBasket) {
		gap := discrepancy.Neg()
		for _, denom := range cfg.Denominations {
			if gap.Sub(denom).Abs().LessThanOrEqual(cfg.DenominationTolerance) {
				d := denom
				return &d
			}
		}
	}
	return nil
}

func containsAnyFold(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
