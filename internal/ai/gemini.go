package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Task types for asymmetric retrieval embeddings.
const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewGeminiClient creates a new client for the Gemini API.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.ReviewModel == "" {
		config.ReviewModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{config: config, client: client}, nil
}

func (c *GeminiClient) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	cfg := genai.EmbedContentConfig{
		TaskType: taskType,
	}
	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyResult
	}
	return res.Embeddings[0].Values, nil
}

// EmbedDocument encodes chunk text for indexing.
func (c *GeminiClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskDocument)
}

// EmbedQuery encodes a search query for retrieval.
func (c *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskQuery)
}

// Review generates the review text for an already-assembled prompt. The
// prompt template is the caller's concern; this client treats it as opaque.
func (c *GeminiClient) Review(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature: &temp,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.config.ReviewModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", fmt.Errorf("review generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResult
	}
	out := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if out == "" {
		return "", ErrEmptyResult
	}
	return out, nil
}

func (c *GeminiClient) Dim() int {
	return c.config.Dim
}
