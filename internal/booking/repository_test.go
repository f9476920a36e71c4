package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestInsertMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Insert(context.Background(), &Booking{ID: uuid.New(), Code: "DH26AAAAA0101"})
	if !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertOtherErrorsPropagate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err := repo.Insert(context.Background(), &Booking{ID: uuid.New(), Code: "DH26AAAAA0101"})
	if err == nil || errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected raw insert error, got %v", err)
	}
}

func bookingRows() *pgxmock.Rows {
	voucher := "DHVABCD2345"
	return pgxmock.NewRows([]string{
		"id", "booking_code", "client_name", "client_phone", "client_email",
		"trek_category", "trek_name", "trek_date", "group_size", "rate_per_person",
		"total", "advance_paid", "balance", "payment_mode", "sharing_type",
		"special_notes", "voucher_used", "status", "created_at",
	}).AddRow(
		uuid.New(), "DH26ABCDE1224", "Asha Verma", "+919876543210", "asha@example.com",
		"Trek", "Kedarkantha", "2026-12-24", 4, 1500,
		6000, 2000, 4000, "Online", "Double",
		"-", &voucher, "confirmed", time.Now(),
	)
}

func TestFindByCode(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM bookings WHERE booking_code").
		WithArgs("DH26ABCDE1224").
		WillReturnRows(bookingRows())

	b, err := repo.FindByCode(context.Background(), "DH26ABCDE1224")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if b.ClientName != "Asha Verma" || b.VoucherUsed != "DHVABCD2345" {
		t.Errorf("unexpected booking: %+v", b)
	}
}

func TestFindLatestByContactPicksColumn(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM bookings WHERE client_email").
		WithArgs("asha@example.com").
		WillReturnRows(bookingRows())

	if _, err := repo.FindLatestByContact(context.Background(), "asha@example.com"); err != nil {
		t.Fatalf("by email: %v", err)
	}

	mock.ExpectQuery("FROM bookings WHERE client_phone").
		WithArgs("+919876543210").
		WillReturnRows(bookingRows())

	if _, err := repo.FindLatestByContact(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("by phone: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindByCodeNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM bookings WHERE booking_code").
		WithArgs("DH26ZZZZZ0101").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "DH26ZZZZZ0101")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
