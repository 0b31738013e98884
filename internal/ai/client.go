package ai

import (
	"context"
	"errors"
	"hash/fnv"
)

// ErrEmptyResult is returned when the model responds with no vector or no
// text; callers treat it as terminal for the event (no comment is posted).
var ErrEmptyResult = errors.New("model returned an empty result")

// Client provides embedding and review-generation capabilities. Documents
// and queries embed with different task types so asymmetric retrieval
// models encode them differently.
type Client interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Review(ctx context.Context, prompt string) (string, error)
	Dim() int
}

// Provider is the enumeration of supported AI providers.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderStub   Provider = "stub"
)

// ClientConfig holds configuration for AI clients.
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	ReviewModel string
	Dim         int
	ProjectID   string
	Location    string
	Provider    Provider
}

// NewClient creates a new AI client based on configuration.
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a deterministic in-process implementation for testing.
type StubClient struct {
	dim int
}

func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 8
	}
	return &StubClient{dim: dim}
}

// embed hashes the text into a repeatable pseudo-vector so identical inputs
// map to identical vectors.
func (s *StubClient) embed(text string, salt byte) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte{salt})
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, s.dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 1000
	}
	return vec
}

func (s *StubClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return s.embed(text, 'd'), nil
}

func (s *StubClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(text, 'q'), nil
}

func (s *StubClient) Review(ctx context.Context, prompt string) (string, error) {
	return "Stub review for testing.", nil
}

func (s *StubClient) Dim() int {
	return s.dim
}
