// Package normalize resolves raw OCR item descriptions to canonical product
// names through a strict cascade: persisted alias, static rule, then an LLM
// suggestion biased by fuzzy-matched historical examples.
package normalize

import "context"

// AliasPair is one user-confirmed (raw, canonical) mapping.
type AliasPair struct {
	Raw       string
	Canonical string
}

// AliasLookup is the read-only collaborator over persisted aliases. This
// package never writes alias history; committing a user's choice is the
// caller's step.
type AliasLookup interface {
	Lookup(ctx context.Context, rawName string) (canonical string, found bool, err error)
}

// ExampleSource provides the historical pairs used as few-shot material.
type ExampleSource interface {
	Pairs(ctx context.Context) ([]AliasPair, error)
}
