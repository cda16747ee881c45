package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewRouter wires every route. Chat streaming and uploads sit outside the
// request timeout since they can legitimately run long.
func NewRouter(cfg *config.Config, docs *services.DocumentService, chat *services.ChatService) http.Handler {
	docHandler := handlers.NewDocumentHandler(docs)
	chatHandler := handlers.NewChatHandler(chat)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.Identity(cfg.DefaultUserID))

		api.Post("/documents/upload", docHandler.UploadDocument)
		api.Post("/chat/stream", chatHandler.ChatStream)

		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(120 * time.Second))
			timed.Get("/documents", docHandler.GetDocuments)
			timed.Get("/documents/{document_id}", docHandler.GetDocument)
			timed.Post("/chat", chatHandler.Chat)
			timed.Get("/chat/{conversation_id}", chatHandler.GetConversation)
		})
	})

	return r
}

// NewServer builds the HTTP server around NewRouter.
func NewServer(cfg *config.Config, docs *services.DocumentService, chat *services.ChatService) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, docs, chat),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	logrus.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
