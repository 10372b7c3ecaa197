package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ragchat/app/logger"
	"ragchat/app/server"
	"ragchat/config"
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

	s := server.NewServer(cfg)
	if err := s.Run(ctx); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
