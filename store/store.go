package store

import (
	"context"
	"fmt"

	"ragchat/config"
	"ragchat/types"
)

const collectionDescription = "Document embeddings for RAG chatbot"

// VectorStore persists chunk embeddings in one named collection and answers
// nearest-neighbour queries by cosine distance. Engine failures are returned
// as KindStorage; nothing is retried.
type VectorStore interface {
	// Init creates the collection when it does not exist yet.
	Init(ctx context.Context) error
	// Add upserts chunks with their aligned embeddings.
	Add(ctx context.Context, chunks []types.Chunk, embeddings [][]float32) error
	// Query returns at most k results, ascending by distance, ranked from 1.
	Query(ctx context.Context, embedding []float32, k int) ([]types.RetrievalResult, error)
	Count(ctx context.Context) (int, error)
	// Clear drops and recreates the collection under the same name.
	Clear(ctx context.Context) error
	Name() string
	Close() error
}

// New opens the store selected by cfg.Database.Driver and initializes it.
func New(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	var (
		s   VectorStore
		err error
	)
	switch cfg.Database.Driver {
	case "memory":
		s = NewMemoryStore(cfg.Database.CollectionName, cfg.Embedding.Dimension)
	case "postgres", "":
		s, err = NewPostgresStore(ctx, cfg.Database.DSN(), cfg.Database.CollectionName, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Database.Driver)
	}

	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func validateBatch(op string, chunks []types.Chunk, embeddings [][]float32, dimension int) error {
	if len(chunks) != len(embeddings) {
		return types.Errorf(types.KindValidation, op, "chunks and embeddings length mismatch: %d != %d", len(chunks), len(embeddings))
	}
	for i, vec := range embeddings {
		if len(vec) != dimension {
			return types.Errorf(types.KindValidation, op, "embedding %d has dimension %d, want %d", i, len(vec), dimension)
		}
	}
	return nil
}
