package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ragchat/app/agent"
	"ragchat/config"
	"ragchat/loader"
	"ragchat/loader/service"
	"ragchat/model"
	"ragchat/store"
)

// Services holds everything built once per process and shared by handlers.
type Services struct {
	Store     store.VectorStore
	Embedder  model.Embedder
	Generator model.Generator
	Ingest    *service.Service
	Agent     *agent.Agent
}

// NewServices wires the providers, the vector store and the two domain
// services. On failure everything already built is closed.
func NewServices(ctx context.Context, cfg *config.Config) (_ *Services, err error) {
	s := &Services{}
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				slog.Warn("cleanup after failed startup", "error", cerr)
			}
		}
	}()

	if s.Embedder, err = model.NewEmbedder(cfg); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if s.Generator, err = model.NewGenerator(cfg); err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if s.Store, err = store.New(ctx, cfg); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	registry := loader.DefaultRegistry(loader.Options{
		PDFCropTop:    cfg.Ingest.PDFCropTop,
		PDFCropBottom: cfg.Ingest.PDFCropBottom,
	})
	if s.Ingest, err = service.New(cfg.Ingest, registry, s.Embedder, s.Store); err != nil {
		return nil, fmt.Errorf("ingestion service: %w", err)
	}

	retriever := agent.NewRetriever(s.Embedder, s.Store, cfg.Chat.RetrievalK, cfg.Chat.SimilarityThreshold)
	s.Agent = agent.New(cfg.Chat, retriever, s.Generator, agent.NewConversationStore(cfg.Chat.MaxConversationLength))
	return s, nil
}

// Close stops ingestion before closing the store it writes to.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	if s.Ingest != nil {
		s.Ingest.Close()
	}
	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store: %w", err))
		}
	}
	return errors.Join(errs...)
}
