package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Booking is the persisted record.
type Booking struct {
	ID            uuid.UUID
	Code          string
	ClientName    string
	ClientPhone   string
	ClientEmail   string
	TrekCategory  string
	TrekName      string
	TrekDate      string
	GroupSize     int
	RatePerPerson int
	Total         int
	AdvancePaid   int
	Balance       int
	PaymentMode   string
	SharingType   string
	SpecialNotes  string
	VoucherUsed   string
	Status        string
	CreatedAt     time.Time
}

// Details is everything a finished conversation hands over for commit:
// raw answers plus the applied voucher, before capping.
type Details struct {
	ClientName    string
	ClientPhone   string
	ClientEmail   string
	TrekCategory  string
	TrekName      string
	TrekDate      string
	GroupSize     int
	RatePerPerson int
	AdvancePaid   int
	PaymentMode   string
	SharingType   string
	SpecialNotes  string
	VoucherCode   string
	VoucherAmount int
}

// Total recomputes groupSize × ratePerPerson.
func (d Details) Total() int {
	return d.GroupSize * d.RatePerPerson
}

// Reconciled reruns the payment split from current values.
func (d Details) Reconciled() Reconciliation {
	return Reconcile(d.Total(), d.AdvancePaid, d.VoucherAmount, displayMode(d.PaymentMode))
}

func displayMode(mode string) string {
	switch strings.ToLower(mode) {
	case "online":
		return "Online"
	case "onspot":
		return "Onspot"
	}
	return mode
}

// Summary renders the WhatsApp confirmation summary. Money lines come out
// of Reconcile so they can never show stale derived values.
func Summary(d Details) string {
	rec := d.Reconciled()
	email := d.ClientEmail
	if email == "" {
		email = "N/A"
	}
	notes := d.SpecialNotes
	if notes == "" {
		notes = "-"
	}

	var b strings.Builder
	b.WriteString("🧾 *Booking Summary:*\n")
	fmt.Fprintf(&b, "• *Client Name:* %s\n", d.ClientName)
	fmt.Fprintf(&b, "• *Client WhatsApp:* %s\n", d.ClientPhone)
	fmt.Fprintf(&b, "• *Client Email:* %s\n", email)
	fmt.Fprintf(&b, "• *Trek:* %s (%s)\n", d.TrekName, d.TrekCategory)
	fmt.Fprintf(&b, "• *Date:* %s\n", d.TrekDate)
	fmt.Fprintf(&b, "• *Group Size:* %d\n", d.GroupSize)
	fmt.Fprintf(&b, "• *Rate/Person:* ₹%d\n", d.RatePerPerson)
	fmt.Fprintf(&b, "• *Total:* ₹%d\n", d.Total())
	fmt.Fprintf(&b, "• *Advance Paid:* ₹%d\n", rec.AdjustedAdvance)
	fmt.Fprintf(&b, "• *Balance:* ₹%d\n", rec.AdjustedBalance)
	fmt.Fprintf(&b, "• *Sharing:* %s\n", d.SharingType)
	fmt.Fprintf(&b, "• *Payment Mode:* %s\n", rec.PaymentMode)
	fmt.Fprintf(&b, "• *Notes:* %s", notes)
	if d.VoucherCode != "" {
		fmt.Fprintf(&b, "\n• *Voucher Used:* ₹%d (%s)", d.VoucherAmount, d.VoucherCode)
	}
	return b.String()
}

// RecordSummary renders a persisted booking for the search flow.
func RecordSummary(b *Booking) string {
	email := b.ClientEmail
	if email == "" {
		email = "N/A"
	}
	notes := b.SpecialNotes
	if notes == "" {
		notes = "-"
	}
	var sb strings.Builder
	sb.WriteString("📘 *Booking Summary*\n\n")
	fmt.Fprintf(&sb, "🆔 *Code:* %s\n", b.Code)
	fmt.Fprintf(&sb, "👤 *Name:* %s\n", b.ClientName)
	fmt.Fprintf(&sb, "📞 *Phone:* %s\n", b.ClientPhone)
	fmt.Fprintf(&sb, "📧 *Email:* %s\n\n", email)
	fmt.Fprintf(&sb, "🥾 *Trek:* %s (%s)\n", b.TrekName, b.TrekCategory)
	fmt.Fprintf(&sb, "🗓️ *Date:* %s\n", b.TrekDate)
	fmt.Fprintf(&sb, "👥 *Group:* %d x ₹%d\n", b.GroupSize, b.RatePerPerson)
	fmt.Fprintf(&sb, "💰 *Total:* ₹%d\n", b.Total)
	fmt.Fprintf(&sb, "💸 *Advance Paid:* ₹%d\n", b.AdvancePaid)
	fmt.Fprintf(&sb, "💳 *Payment Mode:* %s\n", b.PaymentMode)
	fmt.Fprintf(&sb, "📌 *Sharing:* %s\n", b.SharingType)
	fmt.Fprintf(&sb, "📝 *Notes:* %s\n", notes)
	fmt.Fprintf(&sb, "📦 *Status:* %s", b.Status)
	if b.VoucherUsed != "" {
		fmt.Fprintf(&sb, "\n🎟️ *Voucher Used:* %s", b.VoucherUsed)
	}
	return sb.String()
}
