package conversation

import (
	"errors"
	"net/http"
	"time"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/observability/metrics"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

// Handler terminates the WhatsApp webhook: subscription verification on
// GET, inbound message dispatch on POST.
type Handler struct {
	engine      *Engine
	messenger   whatsapp.Messenger
	allowed     map[string]struct{}
	verifyToken string
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

// NewHandler creates the webhook handler. allowedNumbers is the operator
// allowlist; everyone else gets a rejection notice.
func NewHandler(engine *Engine, messenger whatsapp.Messenger, allowedNumbers []string, verifyToken string, m *metrics.Metrics, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("conversation: engine required")
	}
	if messenger == nil {
		panic("conversation: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	allowed := make(map[string]struct{}, len(allowedNumbers))
	for _, n := range allowedNumbers {
		allowed[n] = struct{}{}
	}
	return &Handler{
		engine:      engine,
		messenger:   messenger,
		allowed:     allowed,
		verifyToken: verifyToken,
		metrics:     m,
		logger:      logger,
	}
}

// Verify handles GET /webhook, the Cloud API subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(r, h.verifyToken)
	if !ok {
		h.logger.Warn("webhook verification rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive handles POST /webhook. The transport retries non-200 responses,
// so the handler acknowledges everything it managed to parse; processing
// failures surface to the operator as a notice, never as a webhook error.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(time.Since(start).Seconds())
	}()

	in, err := whatsapp.ParseWebhook(r)
	if err != nil {
		if !errors.Is(err, whatsapp.ErrNoMessage) {
			h.logger.Warn("unparseable webhook payload", "error", err)
		}
		// Status callbacks and other non-message events land here.
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if _, ok := h.allowed[in.From]; !ok {
		h.metrics.ObserveInbound("unauthorized")
		h.logger.Warn("unauthorized sender", "from", in.From)
		if err := h.messenger.SendText(ctx, in.From, "⛔ You are not authorized to use this booking bot."); err != nil {
			h.logger.Error("rejection notice failed", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.engine.Handle(ctx, in); err != nil {
		h.metrics.ObserveInbound("error")
		h.logger.Error("inbound dispatch failed", "error", err, "from", in.From)
		if serr := h.messenger.SendText(ctx, in.From, "❌ Internal error. Please try again."); serr != nil {
			h.logger.Error("error notice failed", "error", serr)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	h.metrics.ObserveInbound("ok")
	w.WriteHeader(http.StatusOK)
}
