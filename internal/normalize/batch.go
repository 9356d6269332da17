package normalize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
)

// BatchOptions controls batched resolution.
type BatchOptions struct {
	// Rich asks the model for per-item confidence scores and up to three
	// alternative suggestions.
	Rich bool
}

// ResolveBatch normalizes many raw names in one pass. Alias and static-rule
// hits are resolved locally; the remainder fans out to a bounded worker pool,
// one LLM call per chunk. A failing chunk yields nil results only for its own
// names, never the whole batch. The returned map is keyed by raw name; a nil
// value means no suggestion.
func (r *Resolver) ResolveBatch(ctx context.Context, rawNames []string, opts BatchOptions) map[string]*receipt.NormalizationResult {
	results := make(map[string]*receipt.NormalizationResult, len(rawNames))
	var pending []string

	for _, raw := range rawNames {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, seen := results[name]; seen {
			continue
		}
		if r.aliases != nil {
			if canonical, found, err := r.aliases.Lookup(ctx, name); err == nil && found {
				results[name] = &receipt.NormalizationResult{CanonicalName: canonical, Source: receipt.SourceAlias}
				continue
			}
		}
		if canonical := lookupStaticRule(name); canonical != "" {
			results[name] = &receipt.NormalizationResult{CanonicalName: canonical, Source: receipt.SourceStaticRule}
			continue
		}
		results[name] = nil // placeholder; also deduplicates
		pending = append(pending, name)
	}

	if len(pending) == 0 {
		return results
	}

	// Chunking is tuned so small batches collapse to a single call.
	chunks := chunk(pending, r.cfg.BatchSize)
	type chunkResult struct {
		resolved map[string]*receipt.NormalizationResult
	}

	jobs := make(chan []string)
	out := make(chan chunkResult)

	workers := r.cfg.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for names := range jobs {
				resolved, err := r.llmSuggestChunk(ctx, names, opts)
				if err != nil {
					r.logger.Error("normalize.batch.chunk_failed",
						"worker_id", workerID, "names", len(names), "error", err)
					resolved = nil
				}
				out <- chunkResult{resolved: resolved}
			}
		}(w + 1)
	}

	go func() {
		for _, c := range chunks {
			jobs <- c
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	// The merge is the only point of contention; it runs here, on the
	// coordinating goroutine, as results arrive.
	for cr := range out {
		for name, res := range cr.resolved {
			results[name] = res
		}
	}
	return results
}

// maxChunkExamples caps the few-shot block shared by one chunk prompt.
const maxChunkExamples = 25

// llmSuggestChunk issues one model call covering a chunk of names, biased by
// historical pairs similar to any name in the chunk.
func (r *Resolver) llmSuggestChunk(ctx context.Context, names []string, opts BatchOptions) (map[string]*receipt.NormalizationResult, error) {
	var b strings.Builder
	b.WriteString("Normalize each Polish receipt item description to a short canonical product name.\n")
	b.WriteString("Use SKIP for non-products such as bags, deposits or recycling fees.\n")
	if opts.Rich {
		b.WriteString("Reply with ONLY a JSON object: {\"items\":[{\"raw_name\",\"canonical_name\",\"confidence\",\"alternatives\"}]}. ")
		b.WriteString("confidence is 0..1; alternatives lists up to 3 other plausible names.\n")
	} else {
		b.WriteString("Reply with ONLY a JSON object: {\"items\":[{\"raw_name\",\"canonical_name\"}]}.\n")
	}
	if examples := r.fewShotChunk(ctx, names); len(examples) > 0 {
		b.WriteString("\nPrior confirmed normalizations, closest first:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "%q -> %q\n", ex.Raw, ex.Canonical)
		}
	}
	b.WriteString("\nItems:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %q\n", n)
	}

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
		return nil, err
	}

	obj, rerr := llm.ExtractObject(content)
	if rerr != nil {
		return nil, rerr
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}

	resolved := make(map[string]*receipt.NormalizationResult, len(names))
	entries, _ := obj["items"].([]any)
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rawName, _ := entry["raw_name"].(string)
		if _, ok := wanted[rawName]; !ok {
			continue
		}
		canonical, _ := entry["canonical_name"].(string)
		canonical = CleanSuggestion(canonical)
		if canonical == "" {
			continue
		}
		res := &receipt.NormalizationResult{CanonicalName: canonical, Source: receipt.SourceLLM}
		if opts.Rich {
			res.Confidence = clampConfidence(entry["confidence"])
			res.Alternatives = readAlternatives(entry["alternatives"])
		}
		resolved[rawName] = res
	}

	return resolved, nil
}

func (r *Resolver) fewShotChunk(ctx context.Context, names []string) []rankedExample {
	if r.examples == nil {
		return nil
	}
	pairs, err := r.examples.Pairs(ctx)
	if err != nil {
		r.logger.Warn("normalize.examples_failed", "error", err)
		return nil
	}
	return rankExamplesForChunk(names, pairs, r.cfg.MinSimilarity, r.cfg.TopExamples, maxChunkExamples)
}

// clampConfidence reads a 0..1 score; malformed entries fall back to a
// neutral 0.5 instead of erroring the batch.
func clampConfidence(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0.5
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func readAlternatives(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var alts []string
	for _, a := range raw {
		if s, ok := a.(string); ok {
			if cleaned := CleanSuggestion(s); cleaned != "" {
				alts = append(alts, cleaned)
			}
		}
		if len(alts) == 3 {
			break
		}
	}
	return alts
}

func chunk(names []string, size int) [][]string {
	if size <= 0 {
		return [][]string{names}
	}
	var chunks [][]string
	for len(names) > size {
		chunks = append(chunks, names[:size])
		names = names[size:]
	}
	if len(names) > 0 {
		chunks = append(chunks, names)
	}
	return chunks
}
