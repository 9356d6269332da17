package llm

import (
	"reflect"
	"testing"
)

func TestExtractObjectValidJSONUnchanged(t *testing.T) {
	in := `{"a":1,"b":{"c":[1,2,3]},"d":"x"}`
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"a": float64(1),
		"b": map[string]any{"c": []any{float64(1), float64(2), float64(3)}},
		"d": "x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestExtractObjectFencedTruncated(t *testing.T) {
	got, err := ExtractObject("```json\n{\"a\":1,\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != float64(1) {
		t.Errorf("expected a=1, got %+v", got)
	}
	if len(got) != 1 {
		t.Errorf("expected single key, got %+v", got)
	}
}

func TestExtractObjectLeadingProse(t *testing.T) {
	in := "Here is the extracted receipt:\n\n{\"total\":\"7.18\"}\n\nLet me know if you need anything else."
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["total"] != "7.18" {
		t.Errorf("expected total=7.18, got %+v", got)
	}
}

func TestExtractObjectTruncatedGeneration(t *testing.T) {
	// Truncated mid-string, no closing braces.
	in := `{"store":{"name":"Lidl"},"items":[],"purchase":{"date":"2025-11-18","declared_total":"12.3`
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := got["purchase"].(map[string]any)
	if !ok {
		t.Fatalf("expected purchase object, got %+v", got)
	}
	if p["date"] != "2025-11-18" {
		t.Errorf("expected date kept, got %+v", p)
	}
}

func TestExtractObjectTruncatedInsideArray(t *testing.T) {
	// The most common cut point for receipt output: mid-items, right after an
	// element comma.
	in := `{"store":{"name":"Lidl"},"items":[{"raw_name":"Mleko","line_total":"7.18"},`
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := got["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one recovered item, got %+v", got)
	}
	first, _ := items[0].(map[string]any)
	if first["raw_name"] != "Mleko" {
		t.Errorf("item lost in recovery: %+v", first)
	}
}

func TestExtractObjectTrailingCommas(t *testing.T) {
	got, err := ExtractObject(`{"a":[1,2,],"b":{"c":1,},}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] == nil || got["b"] == nil {
		t.Errorf("expected both keys, got %+v", got)
	}
}

func TestExtractObjectMultipleObjectsKeepsBalancedSpan(t *testing.T) {
	in := `{"a":1} trailing prose {"ignored":true`
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != float64(1) {
		t.Errorf("expected first balanced object, got %+v", got)
	}
}

func TestExtractObjectBracesInsideStrings(t *testing.T) {
	in := `{"name":"weird {brace} value","n":2}`
	got, err := ExtractObject(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["name"] != "weird {brace} value" {
		t.Errorf("string braces mishandled: %+v", got)
	}
}

func TestExtractObjectUnrecoverable(t *testing.T) {
	_, err := ExtractObject("no json here at all")
	if err == nil {
		t.Fatal("expected error")
	}
	re, ok := err.(*RepairError)
	if !ok {
		t.Fatalf("expected *RepairError, got %T", err)
	}
	if re.Context == "" && re.Offset == 0 && re.Cause == nil {
		t.Errorf("diagnostic is empty: %+v", re)
	}
}

func TestExtractObjectNeverPanics(t *testing.T) {
	inputs := []string{
		"", "{", "}", "```", "```json", `{"a":`, `{"a": "unterminated`,
		"[1,2,3]", `{"a":{"b":{"c":`, "\x00\x01{", `{{{{`,
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("panic on %q: %v", in, r)
				}
			}()
			_, _ = ExtractObject(in)
		}()
	}
}
