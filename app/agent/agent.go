// Package agent answers questions over the indexed documents: it retrieves
// passages, assembles the prompt with the conversation so far, asks the chat
// model and records the exchange.
package agent

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/config"
	"ragchat/model"
	"ragchat/types"
)

const previewLen = 200

type Agent struct {
	cfg           config.ChatConfig
	retriever     *Retriever
	generator     model.Generator
	conversations *ConversationStore
	counter       TokenCounter
	logger        *slog.Logger
	now           func() time.Time
}

func New(cfg config.ChatConfig, retriever *Retriever, generator model.Generator, conversations *ConversationStore) *Agent {
	return &Agent{
		cfg:           cfg,
		retriever:     retriever,
		generator:     generator,
		conversations: conversations,
		counter:       NewTiktokenCounter(generator.ModelName()),
		logger:        slog.Default(),
		now:           time.Now,
	}
}

// WithTokenCounter replaces the prompt token counter.
func (a *Agent) WithTokenCounter(c TokenCounter) *Agent {
	a.counter = c
	return a
}

// Chat answers one user message. A missing conversation id starts a new
// conversation; nil MaxTokens or Temperature use the configured defaults.
func (a *Agent) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	start := time.Now()
	defer func() {
		a.logger.Debug("chat finished", "took", time.Since(start))
	}()

	if strings.TrimSpace(req.Message) == "" {
		return nil, types.Errorf(types.KindValidation, "chat", "message is empty")
	}

	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	maxTokens := a.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	temperature := a.cfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	results, err := a.retriever.Search(ctx, req.Message, a.cfg.RetrievalK)
	if err != nil {
		a.logger.Error("retrieval failed", "conversation_id", id, "error", err)
		return nil, err
	}
	systemPrompt := SystemPrompt(BuildContext(results))

	var (
		answer       string
		promptTokens int
	)
	err = a.conversations.Exclusive(id, func() error {
		msgs := BuildMessages(systemPrompt, a.conversations.Get(id), req.Message, a.cfg.MaxConversationLength)
		promptTokens = a.counter.Count(msgs)
		a.logger.Info("prompting llm",
			"conversation_id", id,
			"messages", len(msgs),
			"retrieved", len(results),
			"prompt_tokens", promptTokens)

		out, err := a.generator.Generate(ctx, msgs, temperature, maxTokens)
		if err != nil {
			return types.Wrap(types.KindProvider, "generate answer", err)
		}
		answer = out
		a.conversations.Append(id, req.Message, answer)
		return nil
	})
	if err != nil {
		a.logger.Error("chat failed", "conversation_id", id, "error", err)
		return nil, err
	}

	return &types.ChatResult{
		Answer:         answer,
		ConversationID: id,
		Sources:        formatSources(results),
		Metadata: types.ChatMetadata{
			RetrievedDocuments: len(results),
			Timestamp:          a.now(),
			Model:              a.generator.ModelName(),
			Temperature:        temperature,
			MaxTokens:          maxTokens,
			PromptTokens:       promptTokens,
		},
	}, nil
}

// History returns the stored turns of a conversation.
func (a *Agent) History(id string) ([]types.ConversationTurn, error) {
	if !a.conversations.Exists(id) {
		return nil, types.Errorf(types.KindNotFound, "conversation history", "conversation %s not found", id)
	}
	return a.conversations.Get(id), nil
}

// ClearConversation forgets a conversation. Unknown ids are ignored.
func (a *Agent) ClearConversation(id string) {
	if a.conversations.Clear(id) {
		a.logger.Info("conversation cleared", "conversation_id", id)
	}
}

func (a *Agent) ListConversations() []string {
	return a.conversations.ListIDs()
}

func formatSources(results []types.RetrievalResult) []types.Source {
	sources := make([]types.Source, 0, len(results))
	for _, r := range results {
		preview := r.Content
		if runes := []rune(preview); len(runes) > previewLen {
			preview = string(runes[:previewLen]) + "..."
		}
		sources = append(sources, types.Source{
			FilePath:       r.MetaString(types.MetaSource, unknownSource),
			FileName:       r.MetaString(types.MetaFileName, unknownSource),
			FileType:       r.MetaString(types.MetaFileType, unknownSource),
			RelevanceScore: math.Round(r.Score*1000) / 1000,
			ContentPreview: preview,
		})
	}
	return sources
}
