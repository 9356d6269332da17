// Package pipeline wires the stages together: strategy dispatch, LLM
// extraction, reconciliation, and per-item name resolution. Stages run
// strictly in sequence; each depends on the previous stage's output.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lkaczmarek/paragon-pipeline/internal/extractor"
	"github.com/lkaczmarek/paragon-pipeline/internal/normalize"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
	"github.com/lkaczmarek/paragon-pipeline/internal/strategy"
)

// Processor coordinates strategy selection, extraction and normalization.
type Processor struct {
	Logger   *slog.Logger
	Registry *strategy.Registry
	Extract  *extractor.Extractor
	Resolver *normalize.Resolver
}

func NewProcessor(logger *slog.Logger, registry *strategy.Registry, ext *extractor.Extractor, resolver *normalize.Resolver) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Registry: registry, Extract: ext, Resolver: resolver}
}

// Result pairs the reconciled receipt with the name resolutions for its items.
type Result struct {
	Receipt     *receipt.ReconciledReceipt
	Resolutions map[string]*receipt.NormalizationResult
}

// Process runs the full pipeline for one receipt source. The header for
// strategy dispatch is the OCR text itself; vision-only sources fall through
// to the generic strategy.
func (p *Processor) Process(ctx context.Context, src extractor.Source) (*Result, error) {
	runID := uuid.New().String()
	start := time.Now()

	strat := p.Registry.Select(headerOf(src.Text))

	rec, err := p.Extract.Extract(ctx, src, strat)
	if err != nil {
		p.Logger.Error("pipeline.extract.failed", "run_id", runID, "store", string(strat.Store()), "err", err)
		return nil, err
	}
	p.Logger.Info("pipeline.extract.ok",
		"run_id", runID,
		"store", string(strat.Store()),
		"items", len(rec.Items),
		"total", rec.DeclaredTotal.StringFixed(2),
	)

	res := &Result{Receipt: rec}
	if p.Resolver != nil {
		names := make([]string, 0, len(rec.Items))
		for _, it := range rec.Items {
			names = append(names, it.RawName)
		}
		res.Resolutions = p.Resolver.ResolveBatch(ctx, names, normalize.BatchOptions{})
		for i := range rec.Items {
			if r := res.Resolutions[rec.Items[i].RawName]; r != nil {
				rec.Items[i].CanonicalName = r.CanonicalName
			}
		}
	}

	p.Logger.Info("pipeline.run.ok", "run_id", runID, "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// headerOf keeps only the top of the OCR text, where the store name prints.
func headerOf(text string) string {
	const headerChars = 300
	if len(text) <= headerChars {
		return text
	}
	return text[:headerChars]
}
