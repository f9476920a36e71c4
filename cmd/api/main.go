package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/api/router"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/booking"
	appconfig "github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/config"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/conversation"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/notify"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/observability/metrics"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/voucher"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting discovery-hike booking bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	messenger := whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAPIBaseURL, logger)

	var (
		sessions    conversation.Store
		subSessions voucher.SubStore
	)
	if cfg.SessionBackend == "redis" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		sessions = conversation.NewRedisStore(rdb, cfg.SessionIdleTTL)
		subSessions = voucher.NewRedisSubStore(rdb, cfg.VoucherFlowTTL)
		logger.Info("session backend: redis", "addr", cfg.RedisAddr)
	} else {
		sessions = conversation.NewMemoryStore(cfg.SessionIdleTTL)
		subSessions = voucher.NewMemorySubStore(cfg.VoucherFlowTTL)
		logger.Info("session backend: memory")
	}

	mailer := notify.NewService(emailSender(cfg, logger), cfg.SendGridFromName, logger)

	voucherRepo := voucher.NewRepository(pool)
	voucherFlow := voucher.NewFlow(voucherRepo, messenger, subSessions, mailer, m, logger)

	bookingRepo := booking.NewRepository(pool)
	bookings := booking.NewService(bookingRepo, messenger, mailer, voucherRepo, m, logger)

	engine := conversation.NewEngine(
		conversation.DefaultSchema(nil),
		sessions,
		voucherFlow,
		voucherFinder{repo: voucherRepo},
		bookings,
		messenger,
		m,
		logger,
	)
	webhook := conversation.NewHandler(engine, messenger, cfg.AllowedNumbers, cfg.WhatsAppVerifyToken, m, logger)

	r := router.New(&router.Config{
		Logger:               logger,
		WebhookHandler:       webhook,
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookRatePerSecond: 10,
		WebhookBurst:         30,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// emailSender returns the configured SendGrid sender, or a logging stub
// when no API key is set.
func emailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		logger.Warn("SENDGRID_API_KEY not set, email disabled")
		return notify.NewStubEmailSender(logger)
	}
	return sender
}

// voucherFinder adapts the voucher repository to the engine's candidate
// lookup.
type voucherFinder struct {
	repo *voucher.Repository
}

func (f voucherFinder) FindForContact(ctx context.Context, phone, email string) ([]conversation.VoucherCandidate, error) {
	matches, err := f.repo.ActiveByContact(ctx, phone, email)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.VoucherCandidate, 0, len(matches))
	for _, v := range matches {
		out = append(out, conversation.VoucherCandidate{
			Code:   v.Code,
			Amount: v.Amount,
			Phone:  v.Phone,
			Email:  v.Email,
		})
	}
	return out, nil
}
