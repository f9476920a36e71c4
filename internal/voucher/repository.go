package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateCode signals the voucher code uniqueness constraint fired.
	ErrDuplicateCode = errors.New("voucher: duplicate voucher code")
	// ErrNotFound signals no voucher matched a lookup.
	ErrNotFound = errors.New("voucher: not found")
)

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores vouchers in Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("voucher: db required")
	}
	return &Repository{db: db}
}

const voucherColumns = `id, code, amount, phone, email, used, used_at,
	used_by_booking, expiry_date, otp_verified, created_by, created_at`

// contactColumn picks the lookup column from the term's shape.
func contactColumn(term string) string {
	if strings.Contains(term, "@") {
		return "email"
	}
	return "phone"
}

// Insert persists a voucher, mapping a code collision to ErrDuplicateCode.
func (r *Repository) Insert(ctx context.Context, v *Voucher) error {
	query := `
		INSERT INTO vouchers (id, code, amount, phone, email, expiry_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.Code, v.Amount, nullable(v.Phone), nullable(v.Email), v.ExpiryDate, v.CreatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("voucher: insert: %w", err)
	}
	return nil
}

// ActiveByTerm returns unused, unexpired vouchers for one phone or email,
// newest first.
func (r *Repository) ActiveByTerm(ctx context.Context, term string) ([]Voucher, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM vouchers
		WHERE %s = $1 AND used = false AND expiry_date >= CURRENT_DATE
		ORDER BY created_at DESC`, voucherColumns, contactColumn(term))
	return r.list(ctx, query, term)
}

// ActiveByContact returns unused, unexpired vouchers matching the client's
// phone or email; either may be empty.
func (r *Repository) ActiveByContact(ctx context.Context, phone, email string) ([]Voucher, error) {
	if phone == "" && email == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM vouchers
		WHERE (($1 <> '' AND phone = $1) OR ($2 <> '' AND email = $2))
		  AND used = false AND expiry_date >= CURRENT_DATE
		ORDER BY created_at DESC`, voucherColumns)
	return r.list(ctx, query, phone, email)
}

// Search returns every voucher for a contact regardless of state, newest
// first.
func (r *Repository) Search(ctx context.Context, term string) ([]Voucher, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM vouchers WHERE %s = $1 ORDER BY created_at DESC`,
		voucherColumns, contactColumn(term))
	return r.list(ctx, query, term)
}

// FindByCode returns one voucher by its code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*Voucher, error) {
	query := fmt.Sprintf(`SELECT %s FROM vouchers WHERE code = $1`, voucherColumns)
	rows, err := r.list(ctx, query, code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// Transfer reassigns the voucher's contact to the recipient and marks the
// transfer OTP-verified. Exactly one of phone/email is set; the other is
// cleared.
func (r *Repository) Transfer(ctx context.Context, code, phone, email string) error {
	query := `
		UPDATE vouchers
		SET phone = $2, email = $3, otp_verified = true
		WHERE code = $1 AND used = false
	`
	tag, err := r.db.Exec(ctx, query, code, nullable(phone), nullable(email))
	if err != nil {
		return fmt.Errorf("voucher: transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkUsed consumes the voucher for a committed booking.
func (r *Repository) MarkUsed(ctx context.Context, code, bookingCode string) error {
	query := `
		UPDATE vouchers
		SET used = true, used_at = now(), used_by_booking = $2
		WHERE code = $1 AND used = false
	`
	tag, err := r.db.Exec(ctx, query, code, bookingCode)
	if err != nil {
		return fmt.Errorf("voucher: mark used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Voucher, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("voucher: select: %w", err)
	}
	defer rows.Close()

	var out []Voucher
	for rows.Next() {
		var v Voucher
		var phone, email, usedBy *string
		var usedAt *time.Time
		if err := rows.Scan(
			&v.ID, &v.Code, &v.Amount, &phone, &email, &v.Used, &usedAt,
			&usedBy, &v.ExpiryDate, &v.OTPVerified, &v.CreatedBy, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("voucher: scan: %w", err)
		}
		if phone != nil {
			v.Phone = *phone
		}
		if email != nil {
			v.Email = *email
		}
		if usedBy != nil {
			v.UsedByBooking = *usedBy
		}
		v.UsedAt = usedAt
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("voucher: rows: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
