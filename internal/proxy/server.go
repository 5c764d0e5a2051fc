package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zhengjr9/chatgpt-agent/internal/adapter/anthropic"
	"github.com/zhengjr9/chatgpt-agent/internal/adapter/gemini"
	"github.com/zhengjr9/chatgpt-agent/internal/adapter/openai"
	"github.com/zhengjr9/chatgpt-agent/internal/chatgpt"
	"github.com/zhengjr9/chatgpt-agent/internal/config"
)

// Server is the reverse proxy HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config.
func New(cfg *config.Config) *Server {
	client := chatgpt.NewClient(cfg.ClientConfig(), chatgpt.WithLogger(slog.Default()))

	oaHandler := openai.NewHandler(client, cfg.DefaultUser, cfg.RequestTimeout)
	anHandler := anthropic.NewHandler(client, cfg.DefaultUser, cfg.RequestTimeout)
	gmHandler := gemini.NewHandler(client, cfg.DefaultUser, cfg.RequestTimeout)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	// OpenAI
	router.Handle("/v1/chat/completions", oaHandler).Methods(http.MethodPost)

	// Anthropic
	router.Handle("/v1/messages", anHandler).Methods(http.MethodPost)

	// Gemini
	router.Handle("/v1beta/models/{model}:streamGenerateContent", gmHandler.Streaming()).Methods(http.MethodPost)
	router.Handle("/v1beta/models/{model}:generateContent", gmHandler).Methods(http.MethodPost)

	router.Use(recoveryMiddleware, loggingMiddleware)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
