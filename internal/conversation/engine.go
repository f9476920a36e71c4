package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/booking"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/observability/metrics"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

// SubFlow is the voucher sub-flow delegation surface. Handle returns
// handled=false when the input belongs to the main flow.
type SubFlow interface {
	Handle(ctx context.Context, in whatsapp.Inbound) (bool, error)
	Cancel(ctx context.Context, userID string) error
}

// VoucherCandidate is an unused, unexpired voucher matched to the client's
// contact details.
type VoucherCandidate struct {
	Code   string
	Amount int
	Phone  string
	Email  string
}

// VoucherFinder looks up candidate vouchers for auto-application once the
// client's contact details are known.
type VoucherFinder interface {
	FindForContact(ctx context.Context, phone, email string) ([]VoucherCandidate, error)
}

// Bookings is the commit-and-search surface of the booking service.
type Bookings interface {
	Commit(ctx context.Context, operator string, d booking.Details) (string, error)
	Search(ctx context.Context, term string) (string, error)
}

const editPageSize = 9

var searchCodeRe = regexp.MustCompile(`^[A-Z0-9\-]{4,}$`)

// Engine dispatches one inbound message at a time through the booking
// conversation: duplicate suppression, emergency reset, sub-flow
// delegation, confirmation lock, edit re-entry, then the field sequence.
// It holds no cross-call locks; per-user serialization is the transport's
// job.
type Engine struct {
	schema    Schema
	store     Store
	sub       SubFlow
	vouchers  VoucherFinder
	bookings  Bookings
	messenger whatsapp.Messenger
	metrics   *metrics.Metrics
	logger    *logging.Logger

	// delivered remembers the last interactive reply per user for the
	// window where no session exists, so a redelivered confirm tap after
	// session teardown stays a no-op.
	mu        sync.Mutex
	delivered map[string]string
}

// NewEngine wires the conversation engine. vouchers may be nil when no
// voucher auto-application is configured.
func NewEngine(schema Schema, store Store, sub SubFlow, vouchers VoucherFinder, bookings Bookings, messenger whatsapp.Messenger, m *metrics.Metrics, logger *logging.Logger) *Engine {
	if len(schema) == 0 {
		panic("conversation: schema required")
	}
	if store == nil {
		panic("conversation: store required")
	}
	if sub == nil {
		panic("conversation: sub-flow required")
	}
	if bookings == nil {
		panic("conversation: booking service required")
	}
	if messenger == nil {
		panic("conversation: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		schema:    schema,
		store:     store,
		sub:       sub,
		vouchers:  vouchers,
		bookings:  bookings,
		messenger: messenger,
		metrics:   m,
		logger:    logger,
		delivered: make(map[string]string),
	}
}

// Handle processes exactly one inbound message.
func (e *Engine) Handle(ctx context.Context, in whatsapp.Inbound) error {
	input := strings.TrimSpace(in.Text)
	if input == "" {
		return e.messenger.SendText(ctx, in.From, "⚠️ Please enter a valid response.")
	}
	lower := strings.ToLower(input)

	s, err := e.store.Get(ctx, in.From)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	// Interactive replies are delivered at least once; an identical reply
	// in a row is a redelivery, not a new answer. Free text is never
	// suppressed: a repeated answer after an edit is legitimate.
	if in.Interactive() {
		if s != nil {
			if s.LastInput == input && s.LastInputKind == in.Kind {
				return nil
			}
		} else if e.redelivered(in.From, input) {
			return nil
		}
	}
	if s != nil {
		s.LastInput = input
		s.LastInputKind = in.Kind
	}

	if lower == "xxx" || lower == "kill" {
		if in.Interactive() {
			e.markDelivered(in.From, input)
		}
		if err := e.store.Delete(ctx, in.From); err != nil {
			return err
		}
		if err := e.sub.Cancel(ctx, in.From); err != nil {
			return err
		}
		e.logger.Info("emergency reset", "user", in.From)
		return e.messenger.SendText(ctx, in.From, "🔄 Session cleared. Type *Menu* to start fresh.")
	}

	handled, err := e.sub.Handle(ctx, in)
	if handled || err != nil {
		if s != nil {
			if perr := e.store.Put(ctx, s); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	}

	if s == nil {
		return e.handleIdle(ctx, in.From, input, lower)
	}
	return e.handleSession(ctx, s, input, lower)
}

// handleIdle dispatches inputs from users with no live session: greeting
// menu, flow starters, and booking search.
func (e *Engine) handleIdle(ctx context.Context, from, input, lower string) error {
	switch lower {
	case "hi", "hello", "menu":
		return e.messenger.SendButtons(ctx, from, "🙏 Welcome to *Discovery Hike Admin Panel*.", []whatsapp.Button{
			{ID: "start_booking", Title: "📌 New Booking"},
			{ID: "manual_voucher", Title: "🎟️ Manual Voucher"},
			{ID: "find_booking", Title: "🔍 Find Booking"},
		})
	case "start_booking":
		s := NewSession(from)
		s.Cursor = e.schema.NextAskable(s, 0)
		if err := e.store.Put(ctx, s); err != nil {
			return err
		}
		return e.ask(ctx, s)
	case "find_booking":
		return e.messenger.SendText(ctx, from, "🔍 Please enter *Booking Code*, *Phone*, or *Email* to search:")
	}

	if searchCodeRe.MatchString(input) || strings.Contains(input, "@") || strings.HasPrefix(input, "+") {
		summary, err := e.bookings.Search(ctx, input)
		if err != nil {
			e.logger.Error("booking search failed", "error", err, "user", from)
			return e.messenger.SendText(ctx, from, "⚠️ Search failed. Please try again.")
		}
		if summary == "" {
			return e.messenger.SendText(ctx, from, "❌ No bookings found.")
		}
		return e.messenger.SendText(ctx, from, summary)
	}

	return e.messenger.SendText(ctx, from, "⚠️ No active session. Please type *Menu* to get started.")
}

func (e *Engine) handleSession(ctx context.Context, s *Session, input, lower string) error {
	if len(s.PendingVouchers) > 0 {
		return e.handleVoucherChoice(ctx, s, input, lower)
	}

	if s.Mode == ModeAwaitingConfirmation {
		switch {
		case lower == "confirm_yes":
			return e.confirm(ctx, s)
		case lower == "confirm_no":
			e.rememberTeardownInput(s)
			if err := e.store.Delete(ctx, s.UserID); err != nil {
				return err
			}
			e.metrics.ObserveBookingCancelled()
			return e.messenger.SendText(ctx, s.UserID, "❌ Booking canceled. Type *Menu* to restart.")
		case lower == "edit_booking", lower == "edit_more", strings.HasPrefix(input, "edit__"):
			// fall through to the edit dispatch below
		default:
			if err := e.store.Put(ctx, s); err != nil {
				return err
			}
			return e.messenger.SendText(ctx, s.UserID, "⚠️ That action is not available right now. Please confirm, cancel or edit the booking.")
		}
	}

	switch {
	case lower == "edit_booking":
		return e.sendEditMenu(ctx, s, 0)
	case lower == "edit_more":
		return e.sendEditMenu(ctx, s, editPageSize)
	case strings.HasPrefix(input, "edit__"):
		return e.startEdit(ctx, s, strings.TrimPrefix(input, "edit__"))
	}

	return e.collectField(ctx, s, input)
}

// confirm hands the finished conversation to the booking service. The
// session survives a failed commit so the operator can retry.
func (e *Engine) confirm(ctx context.Context, s *Session) error {
	code, err := e.bookings.Commit(ctx, s.UserID, e.details(s))
	if err != nil {
		e.logger.Error("booking commit failed", "error", err, "user", s.UserID)
		if perr := e.store.Put(ctx, s); perr != nil {
			return perr
		}
		return e.messenger.SendText(ctx, s.UserID, "⚠️ Booking could not be saved. Please try again.")
	}
	e.logger.Info("conversation completed", "user", s.UserID, "code", code)
	e.rememberTeardownInput(s)
	return e.store.Delete(ctx, s.UserID)
}

// sendEditMenu lists answered fields as edit targets, nine per page with a
// More Options row when a second page exists.
func (e *Engine) sendEditMenu(ctx context.Context, s *Session, offset int) error {
	keys := s.Order
	if offset >= len(keys) {
		if err := e.store.Put(ctx, s); err != nil {
			return err
		}
		return e.messenger.SendText(ctx, s.UserID, "⚠️ Nothing more to edit.")
	}
	batch := keys[offset:]
	more := false
	if offset == 0 && len(batch) > editPageSize {
		batch = batch[:editPageSize]
		more = true
	}

	rows := make([]whatsapp.ListRow, 0, len(batch)+1)
	for _, key := range batch {
		rows = append(rows, whatsapp.ListRow{ID: "edit__" + key, Title: editTitle(key)})
	}
	if more {
		rows = append(rows, whatsapp.ListRow{ID: "edit_more", Title: "➡️ More Options"})
	}

	title := "Editable Fields"
	body := "Which field to edit?"
	if offset > 0 {
		title, body = "More Fields", "More fields to edit:"
	}
	if err := e.store.Put(ctx, s); err != nil {
		return err
	}
	return e.messenger.SendList(ctx, s.UserID, body, "✏️ Select", []whatsapp.ListSection{{Title: title, Rows: rows}})
}

// startEdit jumps the cursor to one previously answered field and
// re-prompts for it. Collected answers stay untouched.
func (e *Engine) startEdit(ctx context.Context, s *Session, key string) error {
	idx := e.schema.Index(key)
	if idx < 0 || !s.Answered(key) {
		if err := e.store.Put(ctx, s); err != nil {
			return err
		}
		return e.messenger.SendText(ctx, s.UserID, "⚠️ That field cannot be edited.")
	}
	s.Mode = ModeEditing
	s.EditingKey = key
	s.Cursor = idx
	if err := e.store.Put(ctx, s); err != nil {
		return err
	}
	return e.ask(ctx, s)
}

// collectField validates the input against the current field, stores it,
// and advances or returns to the summary depending on mode.
func (e *Engine) collectField(ctx context.Context, s *Session, input string) error {
	if s.Cursor >= len(e.schema) {
		return e.summarize(ctx, s)
	}
	field := e.schema[s.Cursor]

	value, err := field.Validate(s, input)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if perr := e.store.Put(ctx, s); perr != nil {
				return perr
			}
			return e.messenger.SendText(ctx, s.UserID, verr.Message)
		}
		return err
	}
	s.Set(field.Key, value)

	if field.Key == FieldPaymentMode && value == "onspot" {
		s.Set(FieldAdvancePaid, "0")
	}

	if s.Mode == ModeEditing {
		return e.finishEdit(ctx, s, field.Key, value)
	}

	// Contact details complete: look for vouchers before money questions.
	if field.Key == FieldClientEmail && s.Voucher == nil && e.vouchers != nil {
		suspended, err := e.applyVouchers(ctx, s, value)
		if err != nil || suspended {
			return err
		}
	}

	return e.advance(ctx, s)
}

// finishEdit closes an edit: one answer, then back to the summary. The
// only exception is a paymentMode flip to online, which still needs an
// advance amount before summarizing.
func (e *Engine) finishEdit(ctx context.Context, s *Session, key, value string) error {
	if key == FieldPaymentMode && value == "online" {
		s.EditingKey = FieldAdvancePaid
		s.Cursor = e.schema.Index(FieldAdvancePaid)
		if err := e.store.Put(ctx, s); err != nil {
			return err
		}
		return e.ask(ctx, s)
	}

	if key == FieldAdvancePaid && s.Int(FieldAdvancePaid) > 0 && s.Get(FieldPaymentMode) == "onspot" {
		s.Set(FieldPaymentMode, "online")
		if err := e.messenger.SendText(ctx, s.UserID, "ℹ️ Payment mode switched to *Online* since an advance was entered."); err != nil {
			return err
		}
	}

	s.Mode = ModeNormal
	s.EditingKey = ""
	s.Cursor = len(e.schema)
	return e.summarize(ctx, s)
}

// advance moves the cursor past skipped fields, prompting the next one or
// summarizing when the sequence is exhausted.
func (e *Engine) advance(ctx context.Context, s *Session) error {
	next := e.schema.NextAskable(s, s.Cursor+1)
	if next >= len(e.schema) {
		s.Cursor = len(e.schema)
		return e.summarize(ctx, s)
	}
	s.Cursor = next
	if err := e.store.Put(ctx, s); err != nil {
		return err
	}
	return e.ask(ctx, s)
}

func (e *Engine) ask(ctx context.Context, s *Session) error {
	return e.schema[s.Cursor].Ask(ctx, e.messenger, s.UserID, s)
}

// summarize renders the booking summary and locks the session into the
// confirmation step. Summary first, then buttons: the second message only
// makes sense after the first.
func (e *Engine) summarize(ctx context.Context, s *Session) error {
	s.Mode = ModeAwaitingConfirmation
	if err := e.store.Put(ctx, s); err != nil {
		return err
	}
	if err := e.messenger.SendText(ctx, s.UserID, booking.Summary(e.details(s))); err != nil {
		return err
	}
	return e.messenger.SendButtons(ctx, s.UserID, "👍 Confirm booking?", []whatsapp.Button{
		{ID: "confirm_yes", Title: "✅ Yes"},
		{ID: "confirm_no", Title: "❌ No"},
		{ID: "edit_booking", Title: "✏️ Edit"},
	})
}

// applyVouchers resolves voucher auto-application once phone and email are
// known. Returns suspended=true when the operator must pick from a list
// before the field sequence may continue.
func (e *Engine) applyVouchers(ctx context.Context, s *Session, email string) (bool, error) {
	phone := s.Get(FieldClientPhone)
	candidates, err := e.vouchers.FindForContact(ctx, phone, email)
	if err != nil {
		// Voucher lookup is an enrichment; the booking continues without it.
		e.logger.Error("voucher lookup failed", "error", err, "user", s.UserID)
		return false, nil
	}
	if len(candidates) == 0 {
		return false, nil
	}

	if len(candidates) == 1 && candidates[0].Phone == phone && email != "" && candidates[0].Email == email {
		c := candidates[0]
		s.Voucher = &AppliedVoucher{Code: c.Code, Amount: c.Amount}
		if err := e.messenger.SendText(ctx, s.UserID, fmt.Sprintf("🎟️ Voucher *%s* worth ₹%d applied to this booking.", c.Code, c.Amount)); err != nil {
			return false, err
		}
		return false, nil
	}

	rows := make([]whatsapp.ListRow, 0, len(candidates)+1)
	s.PendingVouchers = s.PendingVouchers[:0]
	for i, c := range candidates {
		s.PendingVouchers = append(s.PendingVouchers, VoucherOption{Code: c.Code, Amount: c.Amount})
		rows = append(rows, whatsapp.ListRow{
			ID:    fmt.Sprintf("voucher_%d", i+1),
			Title: fmt.Sprintf("₹%d — %s", c.Amount, c.Code),
		})
	}
	rows = append(rows, whatsapp.ListRow{ID: "voucher_none", Title: "🚫 Use none"})
	if err := e.store.Put(ctx, s); err != nil {
		return false, err
	}
	err = e.messenger.SendList(ctx, s.UserID, "🎟️ Vouchers found for this client. Apply one?", "Select", []whatsapp.ListSection{
		{Title: "Available Vouchers", Rows: rows},
	})
	return true, err
}

// handleVoucherChoice consumes the operator's answer to the voucher list.
// Field advancement stays suspended until a valid choice arrives.
func (e *Engine) handleVoucherChoice(ctx context.Context, s *Session, input, lower string) error {
	if lower == "voucher_none" || lower == "none" {
		s.Voucher = &AppliedVoucher{Skipped: true}
		s.PendingVouchers = nil
		return e.advance(ctx, s)
	}

	token := strings.TrimPrefix(lower, "voucher_")
	idx, err := strconv.Atoi(token)
	if err != nil || idx < 1 || idx > len(s.PendingVouchers) {
		if perr := e.store.Put(ctx, s); perr != nil {
			return perr
		}
		return e.messenger.SendText(ctx, s.UserID, fmt.Sprintf("❌ Invalid selection. Pick a voucher from the list or choose *Use none* (1-%d).", len(s.PendingVouchers)))
	}

	chosen := s.PendingVouchers[idx-1]
	s.Voucher = &AppliedVoucher{Code: chosen.Code, Amount: chosen.Amount}
	s.PendingVouchers = nil
	if err := e.messenger.SendText(ctx, s.UserID, fmt.Sprintf("🎟️ Voucher *%s* worth ₹%d applied.", chosen.Code, chosen.Amount)); err != nil {
		return err
	}
	return e.advance(ctx, s)
}

// details maps the session's answers to the commit handoff.
func (e *Engine) details(s *Session) booking.Details {
	d := booking.Details{
		ClientName:    s.Get(FieldClientName),
		ClientPhone:   s.Get(FieldClientPhone),
		ClientEmail:   s.Get(FieldClientEmail),
		TrekCategory:  s.Get(FieldTrekCategory),
		TrekName:      s.Get(FieldTrekName),
		TrekDate:      s.Get(FieldTrekDate),
		GroupSize:     s.Int(FieldGroupSize),
		RatePerPerson: s.Int(FieldRatePerPerson),
		AdvancePaid:   s.Int(FieldAdvancePaid),
		PaymentMode:   s.Get(FieldPaymentMode),
		SharingType:   s.Get(FieldSharingType),
		SpecialNotes:  s.Get(FieldSpecialNotes),
	}
	if s.Voucher != nil && !s.Voucher.Skipped {
		d.VoucherCode = s.Voucher.Code
		d.VoucherAmount = s.Voucher.Amount
	}
	return d
}

// redelivered reports (and remembers) the last interactive reply for a
// user with no session.
func (e *Engine) redelivered(userID, input string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.delivered[userID] == input {
		return true
	}
	e.delivered[userID] = input
	return false
}

func (e *Engine) markDelivered(userID, input string) {
	e.mu.Lock()
	e.delivered[userID] = input
	e.mu.Unlock()
}

// rememberTeardownInput seeds the sessionless dedup map with the
// interactive input that is about to destroy the session, so its
// at-least-once redelivery lands as a no-op instead of an idle prompt.
func (e *Engine) rememberTeardownInput(s *Session) {
	if s.LastInputKind == whatsapp.KindText {
		return
	}
	e.markDelivered(s.UserID, s.LastInput)
}
