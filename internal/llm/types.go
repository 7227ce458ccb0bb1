package llm

import (
	"context"

	"github.com/nemui39/conversational-voice-agent/internal/dialog"
)

// Replier is the reply-generation service contract. History is the bounded
// window of prior turns, oldest first.
type Replier interface {
	Generate(ctx context.Context, transcript string, history []dialog.Turn) (string, error)
}
