package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"candor/internal/scoring"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

type ScorerConfig struct {
	Provider string
	OpenAI   OpenAIConfig
	Vertex   VertexConfig
}

// NewEvaluator builds the external grader selected by cfg.Provider. The evaluator is nil for
// the "none" provider; close is always safe to call.
func NewEvaluator(ctx context.Context, cfg ScorerConfig, logger *zap.Logger) (scoring.Evaluator, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, noop, nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAI, logger), noop, nil
	case ProviderVertex:
		v, err := NewVertexClient(ctx, cfg.Vertex)
		if err != nil {
			return nil, noop, err
		}
		return v, v.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown scorer provider %q", cfg.Provider)
	}
}
