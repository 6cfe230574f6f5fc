// Package llm provides the chat-completion clients the planner talks
// to. The agent sends UTF-8 prompts and expects UTF-8 replies; JSON
// tolerance lives in the planner layer, not here.
package llm

import (
	"context"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting from the last call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageReporter is implemented by clients that track token usage.
type UsageReporter interface {
	LastUsage() Usage
}
