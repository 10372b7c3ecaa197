package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"ragchat/app/api"
	"ragchat/app/middleware"
	"ragchat/config"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// NewApp builds the fiber app with all routes mounted.
func NewApp(cfg *config.Config, docs api.DocumentService, chat api.ChatService) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			AppName:      config.AppName,
			ErrorHandler: api.ErrorHandler,
		})
		checkHandler    = api.NewCheckHandler()
		documentHandler = api.NewDocumentHandler(docs)
		chatHandler     = api.NewChatHandler(chat)
	)

	app.Use(middleware.RequestLogger(slog.Default()))
	app.Use(recover.New())
	app.Use(middleware.CORS(cfg.CORSOrigins))
	app.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	var (
		check     = app.Group("/check")
		apiv1     = app.Group("/api/v1")
		documents = apiv1.Group("/documents")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	app.Get("/", checkHandler.HandleRoot)
	app.Get("/health", checkHandler.HandleHealth)

	documents.Post("/refresh", documentHandler.HandleRefresh)
	documents.Get("/folder-info", documentHandler.HandleFolderInfo)
	documents.Post("/upload", documentHandler.HandleUpload)
	documents.Get("/status", documentHandler.HandleStatus)
	documents.Delete("/clear", documentHandler.HandleClear)

	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Get("/conversations", chatHandler.HandleListConversations)
	apiv1.Get("/conversations/:id", chatHandler.HandleGetConversation)
	apiv1.Delete("/conversations/:id", chatHandler.HandleDeleteConversation)

	return app
}

// Run serves until ctx is cancelled, then shuts down gracefully. Services are
// closed on every return path.
func (s *Server) Run(ctx context.Context) error {
	services, err := NewServices(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			s.logger.Error("error closing services", "error", err)
		}
	}()

	if s.cfg.Ingest.AutoLoadOnStartup {
		s.autoLoad(ctx, services)
	}

	app := NewApp(s.cfg, services.Ingest, services.Agent)

	ln, err := net.Listen("tcp", s.cfg.ServerAddr)
	if err != nil {
		s.logger.Error("error to start server", "error", err)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", ln.Addr().String())
		errCh <- app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		s.logger.Error("error to start server", "error", err)
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Error("server shutdown", "error", err)
	}
	// unblocks Serve if shutdown ran before it registered the listener
	_ = ln.Close()
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("listener returned", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// autoLoad never aborts startup; failures are logged.
func (s *Server) autoLoad(ctx context.Context, services *Services) {
	start := time.Now()
	summary, err := services.Ingest.AutoLoad(ctx)
	if err != nil {
		s.logger.Error("auto-load failed", "error", err)
		return
	}
	s.logger.Info("auto-load finished",
		"processed_files", summary.ProcessedFiles,
		"total_chunks", summary.TotalChunks,
		"details", len(summary.Details),
		"took", time.Since(start))
}
