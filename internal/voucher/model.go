// Package voucher owns prepaid discount vouchers: their persistence and
// the operator-facing generate/search/share sub-flows, including the
// dual-party OTP transfer.
package voucher

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Voucher is a prepaid flat-discount credit bound to a phone and/or email,
// consumable once.
type Voucher struct {
	ID            uuid.UUID
	Code          string
	Amount        int
	Phone         string
	Email         string
	Used          bool
	UsedAt        *time.Time
	UsedByBooking string
	ExpiryDate    time.Time
	OTPVerified   bool
	CreatedBy     string
	CreatedAt     time.Time
}

// Active reports whether the voucher is still spendable at t.
func (v *Voucher) Active(t time.Time) bool {
	return !v.Used && !v.ExpiryDate.Before(t)
}

// codeAlphabet omits easily-confused characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode produces a DHV-prefixed voucher code. Uniqueness is
// enforced by the database.
func GenerateCode() string {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("voucher: rand failed: %v", err))
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return "DHV" + string(buf)
}

// GenerateOTP produces a random six-digit one-time code.
func GenerateOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		panic(fmt.Sprintf("voucher: rand failed: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}
