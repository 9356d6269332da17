// Package store provides the read-only sqlite-backed alias history used by
// the name resolver. The pipeline core never writes here; confirming an alias
// is the caller's separate step.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/lkaczmarek/paragon-pipeline/internal/normalize"
)

// AliasStore serves alias lookups and few-shot example pairs from a sqlite
// database with a product_aliases(raw_name, canonical_name) table.
type AliasStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*AliasStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open alias db: %w", err)
	}
	return &AliasStore{db: db, logger: logger}, nil
}

func (s *AliasStore) Close() error { return s.db.Close() }

// Lookup finds the exact canonical name confirmed for a raw description.
func (s *AliasStore) Lookup(ctx context.Context, rawName string) (string, bool, error) {
	var canonical string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_name FROM product_aliases WHERE raw_name = ? LIMIT 1`,
		rawName,
	).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("alias lookup: %w", err)
	}
	return canonical, true, nil
}

// Pairs returns the confirmed alias history for few-shot ranking.
func (s *AliasStore) Pairs(ctx context.Context) ([]normalize.AliasPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_name, canonical_name FROM product_aliases`)
	if err != nil {
		return nil, fmt.Errorf("load alias pairs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("store.aliases.rows_close_error", "error", cerr)
		}
	}()

	var pairs []normalize.AliasPair
	for rows.Next() {
		var p normalize.AliasPair
		if err := rows.Scan(&p.Raw, &p.Canonical); err != nil {
			return nil, fmt.Errorf("scan alias pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
