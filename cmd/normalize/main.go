package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/normalize"
	"github.com/lkaczmarek/paragon-pipeline/internal/retry"
	"github.com/lkaczmarek/paragon-pipeline/internal/store"
)

// Reads raw item names (one per line) from a file or stdin and prints the
// batch normalization result as JSON.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	var (
		inPath  = flag.String("in", "-", "file with raw names, one per line (- for stdin)")
		rich    = flag.Bool("rich", false, "request confidence scores and alternatives")
		timeout = flag.Duration("timeout", 10*time.Minute, "overall timeout")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	in := os.Stdin
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			logger.Error("open input", "path", *inPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var names []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("read input", "error", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		logger.Error("no names to normalize")
		os.Exit(2)
	}

	var aliases normalize.AliasLookup
	var examples normalize.ExampleSource
	if cfg.AliasDB.Path != "" {
		aliasStore, err := store.Open(cfg.AliasDB.Path, logger)
		if err != nil {
			logger.Error("open alias db", "path", cfg.AliasDB.Path, "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := aliasStore.Close(); cerr != nil {
				logger.Warn("close alias db", "error", cerr)
			}
		}()
		aliases = aliasStore
		examples = aliasStore
	}

	policy := retry.New(cfg.Retry, logger)
	client := llm.NewClient(cfg.LLM, logger)
	resolver := normalize.New(aliases, examples, client, policy, cfg.LLM.Model, normalize.Config{
		MinSimilarity: cfg.Normalize.MinSimilarity,
		TopExamples:   cfg.Normalize.TopExamples,
		BatchSize:     cfg.Normalize.BatchSize,
		Workers:       cfg.Normalize.Workers,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	results := resolver.ResolveBatch(ctx, names, normalize.BatchOptions{Rich: *rich})
	logger.Info("normalize.batch.done", "names", len(names), "elapsed_ms", time.Since(start).Milliseconds())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
