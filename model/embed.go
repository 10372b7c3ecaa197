package model

import (
	"context"
	"fmt"
	"log/slog"

	"ragchat/config"
	"ragchat/types"
)

// Embedder turns text into vectors. EmbedMany returns one vector per input,
// in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Generator produces one assistant reply for an ordered message list.
type Generator interface {
	Generate(ctx context.Context, msgs []types.Message, temperature float64, maxTokens int) (string, error)
	ModelName() string
}

// NewEmbedder picks the embedding provider named in cfg.Embedding.Provider.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		slog.Info("using local Ollama for embeddings", "model", cfg.Embedding.Model)
		return NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimension), nil
	case "openai", "":
		slog.Info("using OpenAI for embeddings", "model", cfg.Embedding.Model, "api_type", cfg.LLM.APIType)
		return NewOpenAIEmbedder(cfg.LLM, cfg.Embedding.Model, cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// NewGenerator picks the chat provider named in cfg.LLM.Provider.
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		slog.Info("using local Ollama for generation", "model", cfg.LLM.Model)
		return NewOllamaGenerator(cfg.LLM.OllamaURL, cfg.LLM.Model), nil
	case "openai", "":
		slog.Info("using OpenAI for generation", "model", cfg.LLM.Model, "api_type", cfg.LLM.APIType)
		return NewOpenAIGenerator(cfg.LLM)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
