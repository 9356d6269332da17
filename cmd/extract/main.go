package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
	"github.com/lkaczmarek/paragon-pipeline/internal/extractor"
	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/normalize"
	"github.com/lkaczmarek/paragon-pipeline/internal/pipeline"
	"github.com/lkaczmarek/paragon-pipeline/internal/reconcile"
	"github.com/lkaczmarek/paragon-pipeline/internal/retry"
	"github.com/lkaczmarek/paragon-pipeline/internal/store"
	"github.com/lkaczmarek/paragon-pipeline/internal/strategy"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	var (
		textPath  = flag.String("text", "", "path to OCR text file")
		imagePath = flag.String("image", "", "path to receipt image (vision mode)")
		skipNames = flag.Bool("skip-normalize", false, "skip product name resolution")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall pipeline timeout")
	)
	flag.Parse()

	if *textPath == "" && *imagePath == "" {
		logger.Error("usage: extract -text <ocr.txt> | -image <receipt.jpg> [-text <ocr-assist.txt>]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	src := extractor.Source{ImagePath: *imagePath}
	if *textPath != "" {
		b, err := os.ReadFile(*textPath)
		if err != nil {
			logger.Error("read text file", "path", *textPath, "error", err)
			os.Exit(1)
		}
		src.Text = string(b)
	}

	policy := retry.New(cfg.Retry, logger)
	client := llm.NewClient(cfg.LLM, logger)
	registry := strategy.NewRegistry(reconcile.DefaultTotalsConfig(), logger)
	ext := extractor.New(client, policy, cfg.LLM, logger)

	var resolver *normalize.Resolver
	if !*skipNames {
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
		resolver = normalize.New(aliases, examples, client, policy, cfg.LLM.Model, normalize.Config{
			MinSimilarity: cfg.Normalize.MinSimilarity,
			TopExamples:   cfg.Normalize.TopExamples,
			BatchSize:     cfg.Normalize.BatchSize,
			Workers:       cfg.Normalize.Workers,
		}, logger)
	}

	proc := pipeline.NewProcessor(logger, registry, ext, resolver)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := proc.Process(ctx, src)
	if err != nil {
		logger.Error("pipeline failed", "kind", string(common.KindOf(err)), "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Receipt); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
