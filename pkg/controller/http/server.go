package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
)

// config holds internal HTTP server configuration
type config struct {
	addr          string
	webhookSecret string
	pipelineUC    interfaces.PipelineUseCase
	downloadUC    interfaces.DownloadUseCase
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the GitHub webhook secret. The webhook endpoint
// is registered only when a secret is configured.
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// WithDownload enables the artifact download endpoints
func WithDownload(uc interfaces.DownloadUseCase) Option {
	return func(c *config) {
		c.downloadUC = uc
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	pipelineUC interfaces.PipelineUseCase,
	opts ...Option,
) (*Server, error) {
	// Default configuration
	cfg := &config{
		addr:       "localhost:8080",
		pipelineUC: pipelineUC,
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	// Health check
	router.Get("/health", handleHealth)

	pipelineHandler := NewPipelineHandler(cfg.pipelineUC)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/pipelines", pipelineHandler.Trigger)
		r.Get("/runs", pipelineHandler.ListRuns)
		r.Get("/runs/{runID}", pipelineHandler.GetRun)

		if cfg.downloadUC != nil {
			downloadHandler := NewDownloadHandler(cfg.downloadUC)
			r.Post("/runs/{runID}/artifacts/{jobName}/authorize", downloadHandler.Authorize)
			r.Get("/download", downloadHandler.Download)
		}
	})

	if cfg.webhookSecret != "" {
		webhookHandler := NewWebhookHandler(cfg.webhookSecret, cfg.pipelineUC)
		router.Post("/hooks/github", webhookHandler.Handle)
	}

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
