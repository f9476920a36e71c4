// Package router assembles the HTTP surface: the WhatsApp webhook, health
// check, and Prometheus metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/conversation"
	httpmiddleware "github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/http/middleware"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *conversation.Handler
	MetricsHandler http.Handler

	// WebhookRatePerSecond throttles webhook deliveries per source IP.
	// Zero disables the limiter.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(hook chi.Router) {
		if cfg.WebhookRatePerSecond > 0 {
			hook.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst))
		}
		hook.Get("/webhook", cfg.WebhookHandler.Verify)
		hook.Post("/webhook", cfg.WebhookHandler.Receive)
	})

	return r
}
