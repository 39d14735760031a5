// Package llm provides the generation client used by the runner: a thin
// Anthropic Messages API client plus a retrying wrapper.
package llm

import "context"

// Request is one generation request. Prompts reaching this package are
// already sanitized.
type Request struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Result is one generation response.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
	StopReason   string
}

// Client generates text from a prompt pair.
type Client interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Model() string
}
