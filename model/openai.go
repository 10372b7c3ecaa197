package model

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"ragchat/config"
	"ragchat/types"
)

// maxEmbedBatch is the largest input array sent in one embeddings call.
const maxEmbedBatch = 100

var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// clientOptions builds request options for plain OpenAI, OpenAI-compatible
// servers (BaseURL) and Azure OpenAI. Retries are disabled: failures surface
// to the caller unchanged.
func clientOptions(cfg config.LLMConfig) ([]option.RequestOption, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if strings.EqualFold(cfg.APIType, "azure") {
		if cfg.BaseURL == "" {
			return nil, errors.New("OPENAI_BASE_URL is required for azure")
		}
		opts = append(opts,
			azure.WithEndpoint(cfg.BaseURL, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
		return opts, nil
	}

	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts, nil
}

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(cfg config.LLMConfig, model string, dimension int, extra ...option.RequestOption) (*OpenAIEmbedder, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(append(opts, extra...)...),
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int   { return e.dimension }
func (e *OpenAIEmbedder) ModelName() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany splits texts into batches of at most maxEmbedBatch.
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	// Only the text-embedding-3 family accepts a dimensions parameter.
	if e.dimension > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, types.Errorf(types.KindProvider, "embed", "expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, types.Errorf(types.KindProvider, "embed", "embedding index %d out of range", idx)
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vectors[idx] = vec
	}
	return vectors, nil
}

type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(cfg config.LLMConfig, extra ...option.RequestOption) (*OpenAIGenerator, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{
		client: openai.NewClient(append(opts, extra...)...),
		model:  cfg.Model,
	}, nil
}

func (g *OpenAIGenerator) ModelName() string { return g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, msgs []types.Message, temperature float64, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.model),
		Messages:    toOpenAIMessages(msgs),
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify("generate", err)
	}
	if len(completion.Choices) == 0 {
		return "", types.Errorf(types.KindProvider, "generate", "no completion choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

func toOpenAIMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var (
	_ Embedder  = (*OpenAIEmbedder)(nil)
	_ Generator = (*OpenAIGenerator)(nil)
)
