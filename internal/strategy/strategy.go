// Package strategy holds the per-store parsing configuration: the system
// prompt sent to the model and the post-processing rules applied to its
// output. Strategies are immutable; one is selected per receipt.
package strategy

import (
	"log/slog"
	"strings"

	"github.com/lkaczmarek/paragon-pipeline/constants"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
	"github.com/lkaczmarek/paragon-pipeline/internal/reconcile"
)

// StoreStrategy is a store-specific bundle of prompt text and
// post-processing rules.
type StoreStrategy interface {
	Store() constants.Store
	SystemPrompt() string
	// PostProcess merges discounts and verifies totals on a raw extraction.
	// ocrText, when available, feeds card-discount inference.
	PostProcess(raw *receipt.RawExtraction, ocrText string) *receipt.ReconciledReceipt
}

// Registry selects a strategy for a receipt header. Selection is a total
// function: unknown stores degrade to the generic strategy instead of
// blocking the pipeline.
type Registry struct {
	strategies map[constants.Store]StoreStrategy
	generic    StoreStrategy
	logger     *slog.Logger
}

func NewRegistry(totals reconcile.TotalsConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	generic := &storeStrategy{
		store:  constants.Generic,
		prompt: buildPrompt(""),
		opts:   reconcile.DiscountOptions{FixNegativeDiscounts: true},
		totals: totals,
		logger: logger,
	}
	r := &Registry{
		strategies: map[constants.Store]StoreStrategy{
			constants.Lidl: &storeStrategy{
				store: constants.Lidl,
				prompt: buildPrompt("This is a Lidl receipt. Discount lines are printed below the item " +
					"they apply to and may be mangled by OCR; keep them as separate items with negative totals."),
				// Lidl OCR rarely isolates the word "Rabat" cleanly.
				opts:   reconcile.DiscountOptions{FixNegativeDiscounts: true},
				totals: totals,
				logger: logger,
			},
			constants.Biedronka: &storeStrategy{
				store: constants.Biedronka,
				prompt: buildPrompt("This is a Biedronka (Jeronimo Martins) receipt. Loyalty-card discounts " +
					"from 'Moja Biedronka' appear near the total; item discounts appear as 'Rabat' lines."),
				opts:   reconcile.DiscountOptions{FixNegativeDiscounts: true},
				totals: totals,
				logger: logger,
			},
			constants.Kaufland: &storeStrategy{
				store: constants.Kaufland,
				prompt: buildPrompt("This is a Kaufland receipt. Discount lines are labelled exactly 'Rabat' " +
					"and always follow the discounted item."),
				// Kaufland OCR isolates the label reliably; exact match avoids
				// swallowing products whose names merely contain the word.
				opts:   reconcile.DiscountOptions{FixNegativeDiscounts: true, StrictDiscountNameMatch: true},
				totals: totals,
				logger: logger,
			},
			constants.Auchan: &storeStrategy{
				store: constants.Auchan,
				prompt: buildPrompt("This is an Auchan receipt. Per-item discounts are labelled 'upust' or " +
					"'rabat'; the summary section repeats totals per VAT class, which are not items."),
				opts:   reconcile.DiscountOptions{FixNegativeDiscounts: true},
				totals: totals,
				logger: logger,
			},
		},
		generic: generic,
		logger:  logger,
	}
	logger.Debug("strategy.registry.ready", "stores", constants.AsStringSlice())
	return r
}

// Select matches a receipt header snippet to a strategy. Never fails.
func (r *Registry) Select(headerText string) StoreStrategy {
	store := constants.DetectStore(headerText)
	if s, ok := r.strategies[store]; ok {
		r.logger.Info("strategy.selected", "store", string(store))
		return s
	}
	r.logger.Info("strategy.selected", "store", string(constants.Generic))
	return r.generic
}

type storeStrategy struct {
	store  constants.Store
	prompt string
	opts   reconcile.DiscountOptions
	totals reconcile.TotalsConfig
	logger *slog.Logger
}

func (s *storeStrategy) Store() constants.Store { return s.store }
func (s *storeStrategy) SystemPrompt() string   { return s.prompt }

func (s *storeStrategy) PostProcess(raw *receipt.RawExtraction, ocrText string) *receipt.ReconciledReceipt {
	merged := reconcile.MergeDiscounts(raw.Items, s.opts)
	res := reconcile.VerifyTotals(merged, raw.DeclaredTotal, ocrText, s.totals, s.logger)

	out := &receipt.ReconciledReceipt{RawExtraction: *raw}
	out.Items = merged
	out.DeclaredTotal = res.CorrectedTotal
	out.TotalDiscrepancy = res.Discrepancy
	out.InferredCardDiscount = res.InferredCardDiscount

	s.logger.Info("strategy.post_process.ok",
		"store", string(s.store),
		"items", len(merged),
		"total", out.DeclaredTotal.StringFixed(2),
		"discrepancy", res.Discrepancy.StringFixed(2),
		"card_discount", res.InferredCardDiscount != nil,
	)
	return out
}

// buildPrompt composes the extraction system prompt the way all stores share
// it, with an optional store-specific preamble.
func buildPrompt(storeNote string) string {
	parts := []string{
		"You are a receipt parser for Polish retail receipts. Return ONLY a JSON object, no prose.",
		"Shape: {\"store\":{\"name\",\"location\"},\"purchase\":{\"date\",\"declared_total\"}," +
			"\"items\":[{\"raw_name\",\"quantity\",\"unit\",\"unit_price\",\"line_total\",\"discount\",\"price_after_discount\"}]}.",
		"All prices and quantities are decimal STRINGS with a dot separator, e.g. \"7.18\".",
		"Keep dates exactly as printed on the receipt.",
		"Copy item names verbatim, including OCR noise; do not translate or clean them.",
		"Discount lines (rabat, upust) must stay separate items with negative line_total.",
		"Never output null. If a field is not visible, omit it.",
	}
	if storeNote != "" {
		parts = append([]string{storeNote}, parts...)
	}
	return strings.Join(parts, " ")
}
