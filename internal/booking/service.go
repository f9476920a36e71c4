package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/observability/metrics"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

const maxCommitAttempts = 5

// Repo is the persistence surface the service needs.
type Repo interface {
	Insert(ctx context.Context, b *Booking) error
	FindByCode(ctx context.Context, code string) (*Booking, error)
	FindLatestByContact(ctx context.Context, term string) (*Booking, error)
}

// Mailer sends the booking confirmation email. Failure is best-effort.
type Mailer interface {
	BookingConfirmation(ctx context.Context, to, code string, d Details) error
}

// VoucherMarker consumes the applied voucher once the booking commits.
type VoucherMarker interface {
	MarkUsed(ctx context.Context, code, bookingCode string) error
}

// Service commits finished conversations: unique code, insert, operator
// and client confirmations, email, voucher consumption.
type Service struct {
	repo      Repo
	messenger whatsapp.Messenger
	mailer    Mailer
	vouchers  VoucherMarker
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewService wires the commit path. mailer and vouchers may be nil when
// the deployment has no email or voucher support configured.
func NewService(repo Repo, messenger whatsapp.Messenger, mailer Mailer, vouchers VoucherMarker, m *metrics.Metrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("booking: repo required")
	}
	if messenger == nil {
		panic("booking: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		messenger: messenger,
		mailer:    mailer,
		vouchers:  vouchers,
		metrics:   m,
		logger:    logger,
	}
}

// Commit persists the booking and fans out confirmations. The uniqueness
// constraint on the booking code is the serialization point: on conflict
// a fresh code is generated, up to maxCommitAttempts; any other
// persistence error propagates immediately. Notification failures are
// logged, never fatal to the commit.
func (s *Service) Commit(ctx context.Context, operator string, d Details) (string, error) {
	rec := d.Reconciled()

	var code string
	for attempt := 1; ; attempt++ {
		code = GenerateCode()
		b := &Booking{
			ID:            uuid.New(),
			Code:          code,
			ClientName:    d.ClientName,
			ClientPhone:   d.ClientPhone,
			ClientEmail:   d.ClientEmail,
			TrekCategory:  d.TrekCategory,
			TrekName:      d.TrekName,
			TrekDate:      d.TrekDate,
			GroupSize:     d.GroupSize,
			RatePerPerson: d.RatePerPerson,
			Total:         d.Total(),
			AdvancePaid:   rec.CappedAdvance,
			Balance:       rec.AdjustedBalance,
			PaymentMode:   rec.PaymentMode,
			SharingType:   d.SharingType,
			SpecialNotes:  d.SpecialNotes,
			VoucherUsed:   d.VoucherCode,
			Status:        "confirmed",
		}
		err := s.repo.Insert(ctx, b)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return "", err
		}
		if attempt >= maxCommitAttempts {
			return "", fmt.Errorf("booking: could not generate a unique code after %d attempts: %w", maxCommitAttempts, err)
		}
		s.logger.Warn("booking code collision, retrying", "attempt", attempt)
	}

	s.metrics.ObserveBookingConfirmed()
	s.logger.Info("booking committed", "code", code, "trek", d.TrekName, "client", d.ClientPhone)

	if err := s.messenger.SendText(ctx, operator, fmt.Sprintf("✅ Booking confirmed!\n🆔 Booking ID: %s", code)); err != nil {
		s.logger.Error("operator confirmation failed", "error", err, "code", code)
	}
	clientMsg := fmt.Sprintf("🎉 Hi %s, your booking (%s) for %s on %s is confirmed!", d.ClientName, code, d.TrekName, d.TrekDate)
	if err := s.messenger.SendText(ctx, d.ClientPhone, clientMsg); err != nil {
		s.logger.Error("client confirmation failed", "error", err, "code", code)
	}

	if s.mailer != nil && d.ClientEmail != "" {
		if err := s.mailer.BookingConfirmation(ctx, d.ClientEmail, code, d); err != nil {
			s.logger.Error("confirmation email failed", "error", err, "code", code)
		}
	}

	if s.vouchers != nil && d.VoucherCode != "" {
		if err := s.vouchers.MarkUsed(ctx, d.VoucherCode, code); err != nil {
			s.logger.Error("voucher consumption failed", "error", err, "voucher", d.VoucherCode, "code", code)
		}
	}

	return code, nil
}

// Search finds one booking by code, phone or email and renders it for the
// operator. The empty string return means no match.
func (s *Service) Search(ctx context.Context, term string) (string, error) {
	term = strings.TrimSpace(term)
	var (
		b   *Booking
		err error
	)
	if strings.Contains(term, "@") || strings.HasPrefix(term, "+") {
		b, err = s.repo.FindLatestByContact(ctx, term)
	} else {
		b, err = s.repo.FindByCode(ctx, strings.ToUpper(term))
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return RecordSummary(b), nil
}
