package agent

import (
	"context"
	"log/slog"

	"ragchat/model"
	"ragchat/store"
	"ragchat/types"
)

// Retriever turns a free-text query into ranked passages.
type Retriever struct {
	embedder  model.Embedder
	store     store.VectorStore
	k         int
	threshold float64
	logger    *slog.Logger
}

func NewRetriever(embedder model.Embedder, vs store.VectorStore, k int, threshold float64) *Retriever {
	return &Retriever{
		embedder:  embedder,
		store:     vs,
		k:         k,
		threshold: threshold,
		logger:    slog.Default(),
	}
}

// Search returns at most k results, best first. k <= 0 uses the configured
// default. Score is 1 - distance; the similarity threshold is not applied.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]types.RetrievalResult, error) {
	if k <= 0 {
		k = r.k
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, types.Wrap(types.KindProvider, "embed query", err)
	}

	results, err := r.store.Query(ctx, vec, k)
	if err != nil {
		return nil, types.Wrap(types.KindStorage, "query store", err)
	}

	below := 0
	for i := range results {
		results[i].Score = 1 - results[i].Distance
		if results[i].Score < r.threshold {
			below++
		}
	}
	r.logger.Debug("retrieved documents", "k", k, "results", len(results), "below_threshold", below, "threshold", r.threshold)
	return results, nil
}
