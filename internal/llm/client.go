package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
)

// Client talks to an Ollama-style chat endpoint:
// POST {base}/api/chat with {model, messages, stream:false, format, options},
// response {message:{content}}.
type Client struct {
	cfg    common.LLMConfig
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg common.LLMConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Chat sends one chat request and returns the raw message content.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	reqID := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Format != "" {
		body["format"] = req.Format
	}
	if len(req.Options) > 0 {
		body["options"] = req.Options
	}

	bs, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("llm.chat.encode_error", "req_id", reqID, "error", err)
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("llm.chat.request",
		"req_id", reqID,
		"model", req.Model,
		"messages", len(req.Messages),
		"content_length", len(bs),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("llm.chat.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", common.NewPipelineError(common.KindTransient, "chat request failed", err)
	}
	defer func(b io.ReadCloser) {
		if cerr := b.Close(); cerr != nil {
			c.logger.Warn("llm.chat.body_close_error", "req_id", reqID, "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("llm.chat.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return "", &common.HTTPStatusError{Status: resp.StatusCode, Body: truncate(string(raw), 300)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return cr.Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
