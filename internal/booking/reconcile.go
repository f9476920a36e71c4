// Package booking owns the money math, the booking record, its Postgres
// persistence, and the confirmation side effects of a committed booking.
package booking

// Reconciliation is the result of recomputing the payment split from
// current inputs. It is derived state: callers recompute it on every
// change to total, advance or voucher, never cache it.
type Reconciliation struct {
	CappedAdvance   int
	AdjustedAdvance int
	AdjustedBalance int
	PaymentMode     string
}

// Reconcile recomputes advance/balance/payment-mode with capping rules:
// the voucher is capped at the total, the advance at whatever the voucher
// leaves, and the balance never goes negative. selectedMode is the
// operator's choice ("Online"/"Onspot"), which stands when no voucher is
// in play.
func Reconcile(total, rawAdvance, voucherAmount int, selectedMode string) Reconciliation {
	cappedVoucher := min(voucherAmount, total)
	if cappedVoucher < 0 {
		cappedVoucher = 0
	}
	cappedAdvance := min(rawAdvance, max(total-cappedVoucher, 0))
	if cappedAdvance < 0 {
		cappedAdvance = 0
	}
	adjustedAdvance := cappedVoucher + cappedAdvance
	adjustedBalance := max(total-adjustedAdvance, 0)

	mode := selectedMode
	switch {
	case total > 0 && cappedVoucher >= total:
		mode = "Voucher"
	case cappedVoucher > 0 && cappedAdvance > 0:
		mode = "Advance+Voucher"
	case cappedVoucher > 0:
		mode = "Voucher+Onspot"
	}

	return Reconciliation{
		CappedAdvance:   cappedAdvance,
		AdjustedAdvance: adjustedAdvance,
		AdjustedBalance: adjustedBalance,
		PaymentMode:     mode,
	}
}
