// Package extractor turns OCR text or a receipt image into a reconciled
// receipt: chat call with retry, JSON repair, typed conversion, then the
// selected store strategy's post-processing.
package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
	"github.com/lkaczmarek/paragon-pipeline/internal/llm"
	"github.com/lkaczmarek/paragon-pipeline/internal/receipt"
	"github.com/lkaczmarek/paragon-pipeline/internal/retry"
	"github.com/lkaczmarek/paragon-pipeline/internal/strategy"
)

// Input caps. Longer input is truncated with a visible marker rather than
// silently dropped: tokens are not wasted, but the receipt keeps a signal
// that data may be incomplete.
const (
	maxVisionAssistChars = 10_000
	maxTextChars         = 50_000
	truncationMarker     = "\n[...truncated...]"
)

// Source is the upstream input: either an image path (vision mode, with
// optional OCR-assist text) or plain OCR text.
type Source struct {
	ImagePath string
	Text      string
}

func (s Source) visionMode() bool { return s.ImagePath != "" }

// Extractor runs the LLM extraction stage.
type Extractor struct {
	client llm.ChatClient
	retry  *retry.Policy
	cfg    common.LLMConfig
	logger *slog.Logger
}

func New(client llm.ChatClient, policy *retry.Policy, cfg common.LLMConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, retry: policy, cfg: cfg, logger: logger}
}

// Extract produces a reconciled receipt for one source using the given store
// strategy. Failures are typed: MalformedResponse when no JSON survives
// repair, UnparsableDate when the purchase date matches no known format.
func (e *Extractor) Extract(ctx context.Context, src Source, strat strategy.StoreStrategy) (*receipt.ReconciledReceipt, error) {
	rid := uuid.New().String()
	start := time.Now()

	req, err := e.buildRequest(src, strat)
	if err != nil {
		return nil, err
	}

	e.logger.Info("extract.start",
		"req_id", rid,
		"store", string(strat.Store()),
		"model", e.cfg.Model,
		"vision", src.visionMode(),
		"text_len", len(src.Text),
	)

	var content string
	callErr := e.retry.Do(ctx, func() error {
		var cerr error
		content, cerr = e.client.Chat(ctx, req)
		return cerr
	})
	if callErr != nil {
		e.logger.Error("extract.chat_failed", "req_id", rid, "error", callErr,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, callErr
	}

	obj, repErr := llm.ExtractObject(content)
	if repErr != nil {
		e.logger.Error("extract.malformed_response", "req_id", rid, "error", repErr)
		return nil, &common.PipelineError{
			Kind:    common.KindMalformedResponse,
			Message: "no JSON object recovered from model output",
			RawText: headOf(content, 500),
			Cause:   repErr,
		}
	}

	if changed := llm.SanitizeExtraction(obj); len(changed) > 0 {
		e.logger.Warn("extract.sanitize_applied", "req_id", rid, "changed", changed)
	}
	if data, merr := json.Marshal(obj); merr == nil {
		if verr := llm.ValidateJSONAgainstSchema(llm.BuildReceiptJSONSchema(), data); verr != nil {
			// Advisory only: the typed conversion below absorbs field-level
			// problems with zero defaults instead of rejecting the receipt.
			e.logger.Warn("extract.schema_mismatch", "req_id", rid, "error", verr)
		}
	}

	raw, convErr := e.convert(obj)
	if convErr != nil {
		return nil, convErr
	}

	out := strat.PostProcess(raw, src.Text)

	e.logger.Info("extract.ok",
		"req_id", rid,
		"store", out.Store.Name,
		"items", len(out.Items),
		"total", out.DeclaredTotal.StringFixed(2),
		"warnings", len(out.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (e *Extractor) buildRequest(src Source, strat strategy.StoreStrategy) (llm.ChatRequest, error) {
	messages := []llm.Message{{Role: "system", Content: strat.SystemPrompt()}}

	if src.visionMode() {
		img, err := os.ReadFile(src.ImagePath)
		if err != nil {
			return llm.ChatRequest{}, common.NewPipelineError(common.KindValidation,
				"read receipt image: "+src.ImagePath, err)
		}
		user := "Extract the structured receipt from the attached image."
		if assist := capText(src.Text, maxVisionAssistChars); assist != "" {
			user += "\n\nOCR text for reference (may be noisy):\n" + assist
		}
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: user,
			Images:  []string{base64.StdEncoding.EncodeToString(img)},
		})
	} else {
		text := capText(src.Text, maxTextChars)
		if text == "" {
			return llm.ChatRequest{}, common.NewPipelineError(common.KindValidation,
				"source has neither image nor text", nil)
		}
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: "Extract the structured receipt from this OCR text:\n\n" + text,
		})
	}

	return llm.ChatRequest{
		Model:    e.cfg.Model,
		Messages: messages,
		Format:   "json",
		Options: map[string]any{
			"temperature": e.cfg.Temperature,
			"num_predict": e.cfg.MaxTokens,
		},
	}, nil
}

// convert maps the repaired object onto typed values. Bad numbers default to
// zero with a warning; a bad date is a hard failure.
func (e *Extractor) convert(obj map[string]any) (*receipt.RawExtraction, error) {
	out := &receipt.RawExtraction{}

	if store, ok := obj["store"].(map[string]any); ok {
		out.Store.Name, _ = store["name"].(string)
		out.Store.Location, _ = store["location"].(string)
	}

	purchase, ok := obj["purchase"].(map[string]any)
	if !ok {
		return nil, common.NewPipelineError(common.KindMalformedResponse,
			"extraction has no purchase object", nil)
	}
	dateStr, _ := purchase["date"].(string)
	date, err := receipt.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	out.PurchaseDate = date
	out.DeclaredTotal = e.decimalField(out, purchase["declared_total"], "purchase.declared_total")

	rawItems, _ := obj["items"].([]any)
	for i, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			out.Warnings = append(out.Warnings, fmt.Sprintf("items[%d]: not an object, dropped", i))
			continue
		}
		it := receipt.Item{}
		it.RawName, _ = m["raw_name"].(string)
		it.Unit, _ = m["unit"].(string)
		it.Quantity = e.decimalField(out, m["quantity"], fmt.Sprintf("items[%d].quantity", i))
		it.UnitPrice = e.decimalField(out, m["unit_price"], fmt.Sprintf("items[%d].unit_price", i))
		it.LineTotal = e.decimalField(out, m["line_total"], fmt.Sprintf("items[%d].line_total", i))
		it.Discount = e.decimalField(out, m["discount"], fmt.Sprintf("items[%d].discount", i))
		it.PriceAfterDiscount = e.decimalField(out, m["price_after_discount"], fmt.Sprintf("items[%d].price_after_discount", i))
		out.Items = append(out.Items, it)
	}
	return out, nil
}

func (e *Extractor) decimalField(out *receipt.RawExtraction, v any, field string) decimal.Decimal {
	d, ok := receipt.ParseDecimal(v)
	if !ok {
		// A single bad price must not discard an otherwise-valid receipt.
		out.Warnings = append(out.Warnings, field+": unparsable number, defaulted to 0.00")
	}
	return d
}

func capText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + truncationMarker
}

func headOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
