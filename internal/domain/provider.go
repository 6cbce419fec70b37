package domain

import "context"

// TokenStream is a pull-based stream of text fragments from a generation
// backend. Next returns io.EOF once the backend signals completion.
// Close tears the stream down; it is safe to call more than once.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Generator is the generation backend consumed by the agent loop.
type Generator interface {
	// Generate starts a generation round. Fragments are delivered in
	// backend order; a mid-stream failure surfaces as a Next error.
	Generate(ctx context.Context, req GenerationRequest) (TokenStream, error)
	// Name returns the backend identifier (e.g. "ollama", "scripted").
	Name() string
}

// TokenCounter estimates prompt size for context budgeting.
type TokenCounter interface {
	Count(text string) int
}
