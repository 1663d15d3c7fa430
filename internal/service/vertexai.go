package service

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

type VertexConfig struct {
	Project     string
	Location    string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// VertexClient grades answers with a Gemini model on Vertex AI
type VertexClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("vertex project is not set")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxTokens)
	}
	return &VertexClient{client: client, model: model}, nil
}

func (v *VertexClient) ScoreText(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

func (v *VertexClient) Close() error {
	return v.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
