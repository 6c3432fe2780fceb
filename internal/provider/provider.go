package provider

import (
	"context"
)

type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

type Response struct {
	ID           string
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
}

type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
	CostPerInputToken() float64 // cost in USD per 1 token
	CostPerOutputToken() float64
	SupportedModels() []string
}

// Client is the completion surface the rest of the service depends on; the
// Router implements it over the configured providers.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
