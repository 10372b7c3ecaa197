// Command loader indexes DOCUMENTS_FOLDER once and exits. It shares the
// server's configuration, so both processes agree on collection and model.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragchat/app/logger"
	"ragchat/config"
	"ragchat/loader"
	"ragchat/loader/service"
	"ragchat/model"
	"ragchat/store"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}
	logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("loader failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	embedder, err := model.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	vs, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		slog.Info("closing vector store")
		if err := vs.Close(); err != nil {
			slog.Error("error closing vector store", "error", err)
		}
	}()

	registry := loader.DefaultRegistry(loader.Options{
		PDFCropTop:    cfg.Ingest.PDFCropTop,
		PDFCropBottom: cfg.Ingest.PDFCropBottom,
	})
	svc, err := service.New(cfg.Ingest, registry, embedder, vs)
	if err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	summary, err := svc.Refresh(ctx)
	if err != nil {
		return err
	}
	for _, d := range summary.Details {
		slog.Warn("ingestion detail", "detail", d)
	}
	slog.Info("documents indexed",
		"folder", cfg.Ingest.DocumentsFolder,
		"processed_files", summary.ProcessedFiles,
		"total_chunks", summary.TotalChunks,
		"took", time.Since(start))
	return nil
}
