package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
	"github.com/lkaczmarek/paragon-pipeline/internal/retry"
)

// Config holds resolver knobs; zero values fall back to defaults in New.
type Config struct {
	MinSimilarity float64 // 0..100 cutoff for few-shot examples
	TopExamples   int
	BatchSize     int
	Workers       int
}

// Resolver normalizes raw item descriptions to canonical product names.
type Resolver struct {
	aliases  AliasLookup
	examples ExampleSource
	client   llm.ChatClient
	retry    *retry.Policy
	model    string
	cfg      Config
	logger   *slog.Logger
}

func New(aliases AliasLookup, examples ExampleSource, client llm.ChatClient, policy *retry.Policy, model string, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 55
	}
	if cfg.TopExamples <= 0 {
		cfg.TopExamples = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		aliases:  aliases,
		examples: examples,
		client:   client,
		retry:    policy,
		model:    model,
		cfg:      cfg,
		logger:   logger,
	}
}

// Resolve runs the cascade for one raw name, short-circuiting at the first
// success: exact alias, static rule, then the LLM with fuzzy-ranked few-shot
// examples. An empty canonical name means no stage produced a suggestion.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (receipt.NormalizationResult, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return receipt.NormalizationResult{}, common.NewPipelineError(common.KindValidation, "empty raw name", nil)
	}

	// 1) exact alias lookup.
	if r.aliases != nil {
		canonical, found, err := r.aliases.Lookup(ctx, name)
		if err != nil {
			r.logger.Warn("normalize.alias_lookup_failed", "raw_name", name, "error", err)
		} else if found {
			return receipt.NormalizationResult{CanonicalName: canonical, Source: receipt.SourceAlias}, nil
		}
	}

	// 2) static rule dictionary.
	if canonical := lookupStaticRule(name); canonical != "" {
		return receipt.NormalizationResult{CanonicalName: canonical, Source: receipt.SourceStaticRule}, nil
	}

	// 3+4) LLM fallback, biased by similar historical choices.
	suggestion, err := r.llmSuggest(ctx, name)
	if err != nil {
		return receipt.NormalizationResult{}, err
	}
	return receipt.NormalizationResult{CanonicalName: suggestion, Source: receipt.SourceLLM}, nil
}

func (r *Resolver) llmSuggest(ctx context.Context, rawName string) (string, error) {
	examples := r.fewShot(ctx, rawName)

	var b strings.Builder
	b.WriteString("Normalize this Polish receipt item description to a short canonical product name.\n")
	b.WriteString("Reply with ONLY a JSON object {\"canonical_name\": \"...\"}.\n")
	b.WriteString("Use SKIP for non-products such as bags, deposits or recycling fees.\n")
	if len(examples) > 0 {
		b.WriteString("\nPrior confirmed normalizations, closest first:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "%q -> %q\n", ex.Raw, ex.Canonical)
		}
	}
	fmt.Fprintf(&b, "\nItem: %q", rawName)

	req := llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: "You normalize grocery product names. Answer with JSON only."},
			{Role: "user", Content: b.String()},
		},
		Format:  "json",
		Options: map[string]any{"temperature": 0.0},
	}

	var content string
	err := r.retry.Do(ctx, func() error {
		var cerr error
		content, cerr = r.client.Chat(ctx, req)
		return cerr
	})
	if err != nil {
		return "", err
	}

	if obj, rerr := llm.ExtractObject(content); rerr == nil {
		if v, ok := obj["canonical_name"].(string); ok {
			return CleanSuggestion(v), nil
		}
		if v, ok := obj["name"].(string); ok {
			return CleanSuggestion(v), nil
		}
	}
	// Some models answer in plain text despite the format hint.
	return CleanSuggestion(content), nil
}

func (r *Resolver) fewShot(ctx context.Context, rawName string) []rankedExample {
	if r.examples == nil {
		return nil
	}
	pairs, err := r.examples.Pairs(ctx)
	if err != nil {
		r.logger.Warn("normalize.examples_failed", "error", err)
		return nil
	}
	return rankExamples(rawName, pairs, r.cfg.MinSimilarity, r.cfg.TopExamples)
}

// CleanSuggestion strips the artifact prefixes and wrapping models add around
// a suggested name ("Clean: ", quotes, stray colons).
func CleanSuggestion(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Clean:", "clean:", "Canonical:", "Name:", "Answer:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}
