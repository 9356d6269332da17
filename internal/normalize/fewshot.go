package normalize

import (
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// rankedExample is an alias pair scored against the name being resolved.
type rankedExample struct {
	AliasPair
	Similarity float64 // 0..100
}

var jaroWinkler = metrics.NewJaroWinkler()

// similarity scores two names on a 0..100 scale.
func similarity(a, b string) float64 {
	return strutil.Similarity(a, b, jaroWinkler) * 100
}

// rankExamplesForChunk unions the top-K examples of every name in a chunk,
// deduplicated by raw form, best first. The overall limit keeps a 50-name
// chunk from flooding the prompt with examples.
func rankExamplesForChunk(names []string, pairs []AliasPair, minSimilarity float64, topK, limit int) []rankedExample {
	best := make(map[string]rankedExample)
	for _, n := range names {
		for _, ex := range rankExamples(n, pairs, minSimilarity, topK) {
			if cur, ok := best[ex.Raw]; !ok || ex.Similarity > cur.Similarity {
				best[ex.Raw] = ex
			}
		}
	}
	out := make([]rankedExample, 0, len(best))
	for _, ex := range best {
		out = append(out, ex)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// rankExamples keeps the pairs similar enough to rawName to be useful
// few-shot material, best first, at most topK.
func rankExamples(rawName string, pairs []AliasPair, minSimilarity float64, topK int) []rankedExample {
	ranked := make([]rankedExample, 0, len(pairs))
	for _, p := range pairs {
		if s := similarity(rawName, p.Raw); s >= minSimilarity {
			ranked = append(ranked, rankedExample{AliasPair: p, Similarity: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
