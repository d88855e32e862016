// Package llm defines the completion interface the transcript merger uses to
// arbitrate between two engine transcripts. Adapters live in the sub-packages
// (anyllm for Groq, Anthropic, Ollama and friends; openai for any
// OpenAI-compatible endpoint) and a test double in mock.
//
// Adapters make exactly one HTTP attempt per call. Arbitration has a
// deterministic fallback, so a retry would only add latency to the user's
// dictation.
package llm

import (
	"context"
	"errors"
)

// ErrNoChoices is returned by adapters when the backend answers without any
// completion choice.
var ErrNoChoices = errors.New("llm: response has no choices")

// CompletionRequest is one single-turn completion.
type CompletionRequest struct {
	// SystemPrompt, when set, is sent as the first message with
	// [RoleSystem].
	SystemPrompt string

	Messages []Message

	// Temperature in [0, 2]. Zero keeps the backend default.
	Temperature float64

	// MaxTokens caps the answer. Zero keeps the backend default.
	MaxTokens int
}

// Conversation returns the system prompt (if any) followed by Messages.
func (r CompletionRequest) Conversation() []Message {
	out := make([]Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	return append(out, r.Messages...)
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content string

	// FinishReason is the backend's stop reason ("stop", "length", ...).
	// "length" means Content was cut off.
	FinishReason string

	Usage Usage
}

// Truncated reports whether generation stopped at the token limit.
func (r *CompletionResponse) Truncated() bool {
	return r != nil && r.FinishReason == "length"
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is implemented by every adapter. Implementations must be safe for
// concurrent use.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
