package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/config"
	"ragchat/store"
	"ragchat/types"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return e.vec, e.err }
func (e fixedEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vec
	}
	return out, e.err
}
func (e fixedEmbedder) Dimension() int    { return len(e.vec) }
func (e fixedEmbedder) ModelName() string { return "fixed" }

type recordingGenerator struct {
	mu    sync.Mutex
	calls [][]types.Message
	temps []float64
	maxes []int
	reply string
	err   error
}

func (g *recordingGenerator) Generate(_ context.Context, msgs []types.Message, temperature float64, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, msgs)
	g.temps = append(g.temps, temperature)
	g.maxes = append(g.maxes, maxTokens)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *recordingGenerator) ModelName() string { return "test-model" }

func chatConfig() config.ChatConfig {
	return config.ChatConfig{
		RetrievalK:            5,
		SimilarityThreshold:   0.7,
		DefaultTemperature:    0.7,
		DefaultMaxTokens:      1000,
		MaxConversationLength: 10,
	}
}

func newAgent(t *testing.T, vs store.VectorStore, gen *recordingGenerator) *Agent {
	t.Helper()
	r := NewRetriever(fixedEmbedder{vec: []float32{1, 0, 0}}, vs, 5, 0.7)
	return New(chatConfig(), r, gen, NewConversationStore(10)).WithTokenCounter(EstimateCounter{})
}

func seed(t *testing.T, vs store.VectorStore, texts ...string) {
	t.Helper()
	chunks := make([]types.Chunk, len(texts))
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = types.Chunk{
			ID:            fmt.Sprintf("c%d", i),
			Text:          text,
			SourcePath:    fmt.Sprintf("/docs/f%d.md", i),
			FileName:      fmt.Sprintf("f%d.md", i),
			FileExtension: ".md",
		}
		vecs[i] = []float32{1, float32(i), 0}
	}
	require.NoError(t, vs.Add(context.Background(), chunks, vecs))
}

func TestChatOnEmptyIndex(t *testing.T) {
	gen := &recordingGenerator{reply: "Hi there"}
	a := newAgent(t, store.NewMemoryStore("documents", 3), gen)

	res, err := a.Chat(context.Background(), types.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", res.Answer)
	assert.Empty(t, res.Sources)
	assert.Zero(t, res.Metadata.RetrievedDocuments)
	_, err = uuid.Parse(res.ConversationID)
	assert.NoError(t, err)
	assert.Equal(t, "test-model", res.Metadata.Model)
	assert.Equal(t, 0.7, res.Metadata.Temperature)
	assert.Equal(t, 1000, res.Metadata.MaxTokens)
	assert.Positive(t, res.Metadata.PromptTokens)

	require.Len(t, gen.calls, 1)
	msgs := gen.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, NoDocumentsContext)
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "hello"}, msgs[1])
}

func TestChatWithSources(t *testing.T) {
	vs := store.NewMemoryStore("documents", 3)
	long := strings.Repeat("é", 250)
	seed(t, vs, "install with make", long)

	gen := &recordingGenerator{reply: "Run make."}
	a := newAgent(t, vs, gen)
	a.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := a.Chat(context.Background(), types.ChatRequest{Message: "how to install?", ConversationID: "conv-1"})
	require.NoError(t, err)

	assert.Equal(t, "conv-1", res.ConversationID)
	assert.Equal(t, 2, res.Metadata.RetrievedDocuments)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), res.Metadata.Timestamp)
	require.Len(t, res.Sources, 2)

	first := res.Sources[0]
	assert.Equal(t, "/docs/f0.md", first.FilePath)
	assert.Equal(t, "f0.md", first.FileName)
	assert.Equal(t, ".md", first.FileType)
	assert.Equal(t, 1.0, first.RelevanceScore)
	assert.Equal(t, "install with make", first.ContentPreview)

	second := res.Sources[1]
	// cos([1,0,0],[1,1,0]) = 0.7071...
	assert.Equal(t, 0.707, second.RelevanceScore)
	assert.Equal(t, strings.Repeat("é", 200)+"...", second.ContentPreview)

	system := gen.calls[0][0].Content
	assert.Contains(t, system, "Document 1 (from /docs/f0.md):\ninstall with make\n")
	assert.Contains(t, system, "Document 2 (from /docs/f1.md):")
}

func TestChatParameterFallbacks(t *testing.T) {
	gen := &recordingGenerator{reply: "ok"}
	a := newAgent(t, store.NewMemoryStore("documents", 3), gen)
	ctx := context.Background()

	zero := 0.0
	maxTokens := 50
	res, err := a.Chat(ctx, types.ChatRequest{Message: "q", Temperature: &zero, MaxTokens: &maxTokens})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Metadata.Temperature)
	assert.Equal(t, 50, res.Metadata.MaxTokens)
	assert.Equal(t, []float64{0}, gen.temps)
	assert.Equal(t, []int{50}, gen.maxes)
}

func TestChatKeepsHistory(t *testing.T) {
	gen := &recordingGenerator{reply: "answer"}
	a := newAgent(t, store.NewMemoryStore("documents", 3), gen)
	ctx := context.Background()

	first, err := a.Chat(ctx, types.ChatRequest{Message: "one"})
	require.NoError(t, err)
	_, err = a.Chat(ctx, types.ChatRequest{Message: "two", ConversationID: first.ConversationID})
	require.NoError(t, err)

	msgs := gen.calls[1]
	require.Len(t, msgs, 4)
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "one"}, msgs[1])
	assert.Equal(t, types.Message{Role: types.RoleAssistant, Content: "answer"}, msgs[2])
	assert.Equal(t, types.Message{Role: types.RoleUser, Content: "two"}, msgs[3])

	history, err := a.History(first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Equal(t, []string{first.ConversationID}, a.ListConversations())

	a.ClearConversation(first.ConversationID)
	_, err = a.History(first.ConversationID)
	assert.True(t, types.IsKind(err, types.KindNotFound))
	a.ClearConversation(first.ConversationID)
}

func TestChatGenerationFailure(t *testing.T) {
	gen := &recordingGenerator{err: types.E(types.KindRateLimited, "chat completion", errors.New("429"))}
	a := newAgent(t, store.NewMemoryStore("documents", 3), gen)

	_, err := a.Chat(context.Background(), types.ChatRequest{Message: "q", ConversationID: "c"})
	require.Error(t, err)
	assert.Equal(t, types.KindRateLimited, types.KindOf(err))
	assert.Empty(t, a.ListConversations())

	gen.err = errors.New("boom")
	_, err = a.Chat(context.Background(), types.ChatRequest{Message: "q", ConversationID: "c"})
	assert.Equal(t, types.KindProvider, types.KindOf(err))
}

func TestChatRetrievalFailure(t *testing.T) {
	gen := &recordingGenerator{reply: "x"}
	r := NewRetriever(fixedEmbedder{err: types.E(types.KindConnectivity, "embed", errors.New("refused"))},
		store.NewMemoryStore("documents", 3), 5, 0.7)
	a := New(chatConfig(), r, gen, NewConversationStore(10)).WithTokenCounter(EstimateCounter{})

	_, err := a.Chat(context.Background(), types.ChatRequest{Message: "q"})
	assert.Equal(t, types.KindConnectivity, types.KindOf(err))
	assert.Empty(t, gen.calls)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	a := newAgent(t, store.NewMemoryStore("documents", 3), &recordingGenerator{})
	_, err := a.Chat(context.Background(), types.ChatRequest{Message: "   "})
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestConcurrentChatsOnOneConversation(t *testing.T) {
	gen := &recordingGenerator{reply: "r"}
	vs := store.NewMemoryStore("documents", 3)
	r := NewRetriever(fixedEmbedder{vec: []float32{1, 0, 0}}, vs, 5, 0.7)
	a := New(chatConfig(), r, gen, NewConversationStore(100)).WithTokenCounter(EstimateCounter{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Chat(context.Background(), types.ChatRequest{Message: fmt.Sprintf("m%d", i), ConversationID: "shared"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := a.History("shared")
	require.NoError(t, err)
	require.Len(t, history, 40)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, types.RoleUser, history[i].Role)
		assert.Equal(t, types.RoleAssistant, history[i+1].Role)
	}
}

func TestRetrieverDefaultsK(t *testing.T) {
	vs := store.NewMemoryStore("documents", 3)
	seed(t, vs, "a", "b", "c")
	r := NewRetriever(fixedEmbedder{vec: []float32{1, 0, 0}}, vs, 2, 0.9)

	res, err := r.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Equal(t, 1, res[0].Rank)

	// below the threshold but still returned
	res, err = r.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Less(t, res[2].Score, 0.9)
}
