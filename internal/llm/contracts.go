package llm

import (
	"context"
	"strconv"
	"strings"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
)

// Message is one chat turn. Images carries base64-encoded attachments for
// vision-capable models.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest is the provider-agnostic chat call. Format "json" is a hint,
// not a guarantee; callers must tolerate malformed output.
type ChatRequest struct {
	Model    string
	Messages []Message
	Format   string
	Options  map[string]any
}

// ChatClient is the collaborator contract for the model provider.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Validate rejects structurally bad requests before they reach the wire.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return common.NewPipelineError(common.KindValidation, "model is required", nil)
	}
	if len(r.Messages) == 0 {
		return common.NewPipelineError(common.KindValidation, "at least one message is required", nil)
	}
	for i, m := range r.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return common.NewPipelineError(common.KindValidation, "empty role in message "+strconv.Itoa(i), nil)
		}
	}
	return nil
}
