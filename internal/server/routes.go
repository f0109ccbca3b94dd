package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/videogen/internal/provider"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// Route paths come from the provider adapters so the client and the proxy
// agree on them.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	veo3 := provider.NewVeo3Adapter()
	sora2 := provider.NewSora2Adapter()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST "+sora2.CreateEndpoint(), h.Sora2Create)
	mux.HandleFunc("GET "+sora2.DetailEndpoint(), h.Query(provider.Sora2))
	mux.HandleFunc("POST "+veo3.CreateEndpoint(), h.Veo3Create)
	mux.HandleFunc("GET "+veo3.DetailEndpoint(), h.Query(provider.Veo3))

	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
