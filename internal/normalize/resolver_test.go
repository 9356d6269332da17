package normalize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
	"github.com/lkaczmarek/paragon-pipeline/internal/retry"
)

type fakeChat struct {
	mu    sync.Mutex
	calls int
	reply func(req llm.ChatRequest) (string, error)
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.reply == nil {
		return `{"canonical_name":"Mleko"}`, nil
	}
	return f.reply(req)
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type mapAliases map[string]string

func (m mapAliases) Lookup(_ context.Context, raw string) (string, bool, error) {
	c, ok := m[raw]
	return c, ok, nil
}

type staticExamples []AliasPair

func (s staticExamples) Pairs(_ context.Context) ([]AliasPair, error) { return s, nil }

func fastRetry() *retry.Policy {
	return retry.New(common.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}, nil)
}

func newTestResolver(chat *fakeChat, aliases AliasLookup, examples ExampleSource) *Resolver {
	return New(aliases, examples, chat, fastRetry(), "test-model", Config{MinSimilarity: 80}, nil)
}

func TestResolveAliasShortCircuits(t *testing.T) {
	chat := &fakeChat{}
	r := newTestResolver(chat, mapAliases{"MLEKO UHT 3,2% 1L": "Mleko"}, nil)

	res, err := r.Resolve(context.Background(), "MLEKO UHT 3,2% 1L")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanonicalName != "Mleko" || res.Source != receipt.SourceAlias {
		t.Errorf("got %+v, want alias hit", res)
	}
	if chat.callCount() != 0 {
		t.Errorf("alias hit must not call the LLM, got %d calls", chat.callCount())
	}
}

func TestResolveStaticRuleSkipWithoutLLM(t *testing.T) {
	chat := &fakeChat{}
	r := newTestResolver(chat, nil, nil)

	res, err := r.Resolve(context.Background(), "Reklamówka mała płatna")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanonicalName != receipt.SkipMarker {
		t.Errorf("canonical = %q, want SKIP", res.CanonicalName)
	}
	if res.Source != receipt.SourceStaticRule {
		t.Errorf("source = %q, want static_rule", res.Source)
	}
	if chat.callCount() != 0 {
		t.Errorf("static rule hit must not call the LLM, got %d calls", chat.callCount())
	}
}

func TestResolveFallsThroughToLLM(t *testing.T) {
	chat := &fakeChat{reply: func(req llm.ChatRequest) (string, error) {
		return `{"canonical_name":"Serek wiejski"}`, nil
	}}
	r := newTestResolver(chat, nil, nil)

	res, err := r.Resolve(context.Background(), "SEREK WIEJ.ML 200G xx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanonicalName != "Serek wiejski" || res.Source != receipt.SourceLLM {
		t.Errorf("got %+v, want llm suggestion", res)
	}
	if chat.callCount() != 1 {
		t.Errorf("calls = %d, want 1", chat.callCount())
	}
}

func TestResolvePlainTextReplyCleaned(t *testing.T) {
	chat := &fakeChat{reply: func(req llm.ChatRequest) (string, error) {
		return `Clean: "Serek wiejski"`, nil
	}}
	r := newTestResolver(chat, nil, nil)

	res, err := r.Resolve(context.Background(), "SEREK WIEJ.ML 200G xx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanonicalName != "Serek wiejski" {
		t.Errorf("canonical = %q, want cleaned suggestion", res.CanonicalName)
	}
}

func TestResolveEmptyNameValidationError(t *testing.T) {
	r := newTestResolver(&fakeChat{}, nil, nil)
	_, err := r.Resolve(context.Background(), "   ")
	if common.KindOf(err) != common.KindValidation {
		t.Errorf("kind = %q, want VALIDATION", common.KindOf(err))
	}
}

func TestResolveLLMFailureSurfaces(t *testing.T) {
	chat := &fakeChat{reply: func(req llm.ChatRequest) (string, error) {
		return "", errors.New("provider down")
	}}
	r := newTestResolver(chat, nil, nil)
	_, err := r.Resolve(context.Background(), "nieznany produkt xyz")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFewShotExamplesReachThePrompt(t *testing.T) {
	var prompt string
	chat := &fakeChat{reply: func(req llm.ChatRequest) (string, error) {
		prompt = req.Messages[len(req.Messages)-1].Content
		return `{"canonical_name":"Mleko"}`, nil
	}}
	examples := staticExamples{
		{Raw: "SEREK WIEJ.ML 200G", Canonical: "Serek wiejski"},
		{Raw: "KASZA GRYCZANA 400G", Canonical: "Kasza"},
	}
	r := newTestResolver(chat, nil, examples)

	// A name no static rule claims, so the cascade reaches the LLM.
	if _, err := r.Resolve(context.Background(), "SEREK WIEJ.ML 190G"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt == "" {
		t.Fatal("no prompt captured")
	}
	if !strings.Contains(prompt, "SEREK WIEJ.ML 200G") {
		t.Errorf("similar example missing from prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "KASZA GRYCZANA") {
		t.Errorf("dissimilar example should be filtered out:\n%s", prompt)
	}
}

func TestRankExamplesOrderAndCutoff(t *testing.T) {
	pairs := []AliasPair{
		{Raw: "maslo extra 200g", Canonical: "Masło"},
		{Raw: "maslo extra 82%", Canonical: "Masło"},
		{Raw: "zupa pomidorowa", Canonical: "Zupa"},
	}
	ranked := rankExamples("maslo extra", pairs, 70, 5)
	if len(ranked) < 1 {
		t.Fatal("expected at least one ranked example")
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Similarity > ranked[i-1].Similarity {
			t.Error("examples not sorted best-first")
		}
	}
	for _, r := range ranked {
		if r.Canonical == "Zupa" {
			t.Error("below-threshold example survived the cutoff")
		}
		if r.Similarity < 70 || r.Similarity > 100 {
			t.Errorf("similarity %f outside 70..100", r.Similarity)
		}
	}
}

func TestRankExamplesForChunkDedupAndLimit(t *testing.T) {
	pairs := []AliasPair{
		{Raw: "maslo extra 200g", Canonical: "Masło"},
		{Raw: "maslo extra 82%", Canonical: "Masło"},
	}
	names := []string{"maslo extra", "maslo extra 200"}

	out := rankExamplesForChunk(names, pairs, 70, 5, 10)
	seen := map[string]bool{}
	for _, ex := range out {
		if seen[ex.Raw] {
			t.Errorf("example %q listed twice", ex.Raw)
		}
		seen[ex.Raw] = true
	}

	if out = rankExamplesForChunk(names, pairs, 70, 5, 1); len(out) != 1 {
		t.Fatalf("limit not applied, got %d examples", len(out))
	}
}

func TestCleanSuggestion(t *testing.T) {
	cases := map[string]string{
		`Clean: "Mleko"`:   "Mleko",
		`"Mleko"`:          "Mleko",
		`'Mleko'`:          "Mleko",
		"Mleko:":           "Mleko",
		": Mleko":          "Mleko",
		"  Mleko  ":        "Mleko",
		"Canonical: Mleko": "Mleko",
	}
	for in, want := range cases {
		if got := CleanSuggestion(in); got != want {
			t.Errorf("CleanSuggestion(%q) = %q, want %q", in, got, want)
		}
	}
}
