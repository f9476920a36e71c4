// Package conversation tracks per-operator booking conversations: the
// ordered field sequence, edit re-entry, confirmation lock, and the
// voucher-selection suspension point.
package conversation

import (
	"strconv"
	"time"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
)

// Mode is the tagged state of a booking session. Illegal combinations
// (editing while awaiting confirmation) are unrepresentable.
type Mode string

const (
	// ModeNormal walks the field sequence in order.
	ModeNormal Mode = "normal"
	// ModeEditing re-collects exactly one field, then returns to the summary.
	ModeEditing Mode = "editing"
	// ModeAwaitingConfirmation accepts only confirm/cancel/edit actions.
	ModeAwaitingConfirmation Mode = "awaiting_confirmation"
)

// AppliedVoucher records the voucher attached to a booking session, or the
// operator's explicit choice to use none.
type AppliedVoucher struct {
	Code    string `json:"code"`
	Amount  int    `json:"amount"`
	Skipped bool   `json:"skipped"`
}

// VoucherOption is one candidate presented while voucher selection has the
// field sequence suspended.
type VoucherOption struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

// Session is one operator's in-progress booking conversation.
type Session struct {
	UserID string `json:"user_id"`

	// Fields holds collected answers; Order preserves insertion order so the
	// edit menu lists questions in the order they were asked.
	Fields map[string]string `json:"fields"`
	Order  []string          `json:"order"`

	// Cursor indexes the next unanswered field in the schema.
	Cursor int `json:"cursor"`

	Mode       Mode   `json:"mode"`
	EditingKey string `json:"editing_key,omitempty"`

	// LastInput suppresses redelivered button/list replies. The transport
	// delivers at-least-once; two genuinely different taps with the same ID
	// in a row are collapsed, a documented limitation.
	LastInput     string             `json:"last_input,omitempty"`
	LastInputKind whatsapp.InputKind `json:"last_input_kind,omitempty"`

	Voucher *AppliedVoucher `json:"voucher,omitempty"`

	// PendingVouchers is non-empty while the engine waits for the operator
	// to pick a voucher; field advancement is suspended until then.
	PendingVouchers []VoucherOption `json:"pending_vouchers,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession starts an empty session for a user.
func NewSession(userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:    userID,
		Fields:    make(map[string]string),
		Mode:      ModeNormal,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Set stores an answer, tracking first-answer order.
func (s *Session) Set(key, value string) {
	if _, seen := s.Fields[key]; !seen {
		s.Order = append(s.Order, key)
	}
	s.Fields[key] = value
}

// Get returns the stored answer for key, or "".
func (s *Session) Get(key string) string {
	return s.Fields[key]
}

// Answered reports whether the field has been collected.
func (s *Session) Answered(key string) bool {
	_, ok := s.Fields[key]
	return ok
}

// Int parses a numeric answer, returning 0 for absent or malformed values.
func (s *Session) Int(key string) int {
	n, _ := strconv.Atoi(s.Fields[key])
	return n
}

// Total recomputes groupSize × ratePerPerson from current answers. It is
// never cached: every caller sees the latest operands.
func (s *Session) Total() int {
	return s.Int(FieldGroupSize) * s.Int(FieldRatePerPerson)
}

// VoucherAmount returns the applied voucher's amount, 0 when none or skipped.
func (s *Session) VoucherAmount() int {
	if s.Voucher == nil || s.Voucher.Skipped {
		return 0
	}
	return s.Voucher.Amount
}

// VoucherCoversTotal reports whether the applied voucher fully covers the
// computed total. False until both money operands are known.
func (s *Session) VoucherCoversTotal() bool {
	total := s.Total()
	return total > 0 && s.VoucherAmount() >= total
}

// Touch refreshes the idle-expiry clock.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
