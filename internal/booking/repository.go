package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateCode signals the booking_code uniqueness constraint fired;
	// the commit path retries with a fresh code.
	ErrDuplicateCode = errors.New("booking: duplicate booking code")
	// ErrNotFound signals no booking matched a lookup.
	ErrNotFound = errors.New("booking: not found")
)

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores bookings in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("booking: db required")
	}
	return &Repository{db: db}
}

const bookingColumns = `id, booking_code, client_name, client_phone, client_email,
	trek_category, trek_name, trek_date, group_size, rate_per_person,
	total, advance_paid, balance, payment_mode, sharing_type,
	special_notes, voucher_used, status, created_at`

// Insert persists a booking. A uniqueness violation on the booking code
// maps to ErrDuplicateCode; every other error propagates untouched.
func (r *Repository) Insert(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (id, booking_code, client_name, client_phone, client_email,
			trek_category, trek_name, trek_date, group_size, rate_per_person,
			total, advance_paid, balance, payment_mode, sharing_type,
			special_notes, voucher_used, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.Code, b.ClientName, b.ClientPhone, b.ClientEmail,
		b.TrekCategory, b.TrekName, b.TrekDate, b.GroupSize, b.RatePerPerson,
		b.Total, b.AdvancePaid, b.Balance, b.PaymentMode, b.SharingType,
		b.SpecialNotes, nullable(b.VoucherUsed), b.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("booking: insert: %w", err)
	}
	return nil
}

// FindByCode returns the booking with the exact code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE booking_code = $1`, bookingColumns)
	return r.findOne(ctx, query, code)
}

// FindLatestByContact returns the most recent booking for a client phone
// or email, picking the column by the term's shape.
func (r *Repository) FindLatestByContact(ctx context.Context, term string) (*Booking, error) {
	column := "client_phone"
	if strings.Contains(term, "@") {
		column = "client_email"
	}
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE %s = $1 ORDER BY created_at DESC LIMIT 1`, bookingColumns, column)
	return r.findOne(ctx, query, term)
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*Booking, error) {
	var b Booking
	var voucherUsed *string
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.Code, &b.ClientName, &b.ClientPhone, &b.ClientEmail,
		&b.TrekCategory, &b.TrekName, &b.TrekDate, &b.GroupSize, &b.RatePerPerson,
		&b.Total, &b.AdvancePaid, &b.Balance, &b.PaymentMode, &b.SharingType,
		&b.SpecialNotes, &voucherUsed, &b.Status, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: select: %w", err)
	}
	if voucherUsed != nil {
		b.VoucherUsed = *voucherUsed
	}
	return &b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
