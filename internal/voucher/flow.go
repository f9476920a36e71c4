package voucher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/observability/metrics"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

const (
	maxOTPAttempts  = 3
	maxAmount       = 99999
	maxCodeAttempts = 5
	lifetimeYears   = 150
)

var (
	phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Directory is the persistence surface the sub-flows need.
type Directory interface {
	Insert(ctx context.Context, v *Voucher) error
	ActiveByTerm(ctx context.Context, term string) ([]Voucher, error)
	Search(ctx context.Context, term string) ([]Voucher, error)
	Transfer(ctx context.Context, code, phone, email string) error
}

// OTPEmailer delivers a one-time code when a party's contact is an email
// address rather than a WhatsApp number.
type OTPEmailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

// Flow runs the voucher generate, search and share state machines. Each
// inbound input is dispatched by the user's sub-session step; the main
// booking conversation stays suspended while a sub-session exists.
type Flow struct {
	repo      Directory
	messenger whatsapp.Messenger
	sessions  SubStore
	emailer   OTPEmailer
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewFlow wires the voucher sub-flows. emailer may be nil when no email
// channel is configured; OTPs to email contacts then fail delivery and
// terminate the share flow.
func NewFlow(repo Directory, messenger whatsapp.Messenger, sessions SubStore, emailer OTPEmailer, m *metrics.Metrics, logger *logging.Logger) *Flow {
	if repo == nil {
		panic("voucher: repo required")
	}
	if messenger == nil {
		panic("voucher: messenger required")
	}
	if sessions == nil {
		panic("voucher: session store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		repo:      repo,
		messenger: messenger,
		sessions:  sessions,
		emailer:   emailer,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Cancel drops the user's sub-session, if any. The emergency reset path
// calls this alongside the booking session teardown.
func (f *Flow) Cancel(ctx context.Context, userID string) error {
	return f.sessions.Delete(ctx, userID)
}

// Handle processes one inbound input. It returns handled=false only when
// no sub-session exists and the input is not a voucher trigger, in which
// case the caller dispatches the input through the main flow.
func (f *Flow) Handle(ctx context.Context, in whatsapp.Inbound) (bool, error) {
	input := strings.TrimSpace(in.Text)

	switch strings.ToLower(input) {
	case "manual_voucher":
		_ = f.sessions.Delete(ctx, in.From)
		err := f.messenger.SendButtons(ctx, in.From, "🎟️ *Manual Voucher*", []whatsapp.Button{
			{ID: "voucher_generate", Title: "📄 Generate"},
			{ID: "voucher_search", Title: "🔍 Search"},
			{ID: "voucher_share", Title: "🔁 Share"},
		})
		return true, err
	case "voucher_generate":
		if err := f.start(ctx, in.From, KindGenerate, "contact_type"); err != nil {
			return true, err
		}
		err := f.messenger.SendButtons(ctx, in.From, "📄 Let's generate a new voucher.\nWho is it bound to?", []whatsapp.Button{
			{ID: "contact_phone", Title: "📱 Phone"},
			{ID: "contact_email", Title: "📧 Email"},
			{ID: "contact_both", Title: "📱📧 Both"},
		})
		return true, err
	case "voucher_search":
		if err := f.start(ctx, in.From, KindSearch, "lookup"); err != nil {
			return true, err
		}
		return true, f.messenger.SendText(ctx, in.From, "🔍 Enter phone number or email to search:")
	case "voucher_share":
		if err := f.start(ctx, in.From, KindShare, "holder_contact"); err != nil {
			return true, err
		}
		return true, f.messenger.SendText(ctx, in.From, "🔁 Enter current holder's WhatsApp No or email:")
	}

	s, err := f.sessions.Get(ctx, in.From)
	if errors.Is(err, ErrSubSessionNotFound) {
		return false, nil
	}
	if errors.Is(err, ErrExpired) {
		return true, f.messenger.SendText(ctx, in.From, "⌛ Voucher session expired. Please start again from the menu.")
	}
	if err != nil {
		return true, err
	}

	switch s.Flow {
	case KindGenerate:
		return true, f.handleGenerate(ctx, s, input)
	case KindSearch:
		return true, f.handleSearch(ctx, s, input)
	case KindShare:
		return true, f.handleShare(ctx, s, input)
	default:
		return true, f.abort(ctx, s, "⚠️ Something went wrong. Please start again from the menu.")
	}
}

func (f *Flow) start(ctx context.Context, userID string, flow Kind, step string) error {
	return f.sessions.Put(ctx, NewSubSession(userID, flow, step, f.now()))
}

// abort tears the sub-session down and tells the user why.
func (f *Flow) abort(ctx context.Context, s *SubSession, notice string) error {
	if err := f.sessions.Delete(ctx, s.UserID); err != nil {
		return err
	}
	return f.messenger.SendText(ctx, s.UserID, notice)
}

// --- GENERATE ---

func (f *Flow) handleGenerate(ctx context.Context, s *SubSession, input string) error {
	switch s.Step {
	case "contact_type":
		switch input {
		case "contact_phone", "contact_both":
			s.Data["contact_type"] = strings.TrimPrefix(input, "contact_")
			s.Step = "phone"
			if err := f.sessions.Put(ctx, s); err != nil {
				return err
			}
			return f.messenger.SendText(ctx, s.UserID, "📱 Enter *Phone Number* (with +91):")
		case "contact_email":
			s.Data["contact_type"] = "email"
			s.Step = "email"
			if err := f.sessions.Put(ctx, s); err != nil {
				return err
			}
			return f.messenger.SendText(ctx, s.UserID, "📧 Enter email address:")
		default:
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Please pick Phone, Email or Both.")
		}

	case "phone":
		cleaned := strings.NewReplacer(" ", "", "-", "").Replace(input)
		if !phonePattern.MatchString(cleaned) {
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Invalid phone. Format: +91 98765 43210")
		}
		s.Data["phone"] = cleaned
		if s.Data["contact_type"] == "both" {
			s.Step = "email"
			if err := f.sessions.Put(ctx, s); err != nil {
				return err
			}
			return f.messenger.SendText(ctx, s.UserID, "📧 Enter email address:")
		}
		s.Step = "amount"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, "💰 Enter flat discount amount (₹):")

	case "email":
		if !emailPattern.MatchString(input) {
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Invalid email format. Try again.")
		}
		s.Data["email"] = input
		s.Step = "amount"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, "💰 Enter flat discount amount (₹):")

	case "amount":
		amt, err := strconv.Atoi(input)
		if err != nil || amt <= 0 || amt > maxAmount {
			return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf("⚠️ Please enter an amount between 1 and %d.", maxAmount))
		}
		s.Data["amount"] = strconv.Itoa(amt)
		s.Step = "expiry_choice"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		return f.messenger.SendList(ctx, s.UserID, "📆 How long should the voucher stay valid?", "Pick validity", []whatsapp.ListSection{{
			Title: "Validity",
			Rows: []whatsapp.ListRow{
				{ID: "expiry_1", Title: "1 Year"},
				{ID: "expiry_2", Title: "2 Years"},
				{ID: "expiry_5", Title: "5 Years"},
				{ID: "expiry_10", Title: "10 Years"},
				{ID: "expiry_lifetime", Title: "Lifetime"},
			},
		}})

	case "expiry_choice":
		years, ok := expiryYears(input)
		if !ok {
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Please pick one of the validity options.")
		}
		amount, _ := strconv.Atoi(s.Data["amount"])
		v := &Voucher{
			ID:         uuid.New(),
			Amount:     amount,
			Phone:      s.Data["phone"],
			Email:      s.Data["email"],
			ExpiryDate: f.now().AddDate(years, 0, 0),
			CreatedBy:  s.UserID,
		}
		if err := f.persist(ctx, v); err != nil {
			f.logger.Error("voucher persist failed", "error", err, "operator", s.UserID)
			return f.abort(ctx, s, "❌ Error saving voucher. Try again.")
		}
		f.metrics.ObserveVoucherIssued()
		f.logger.Info("voucher issued", "code", v.Code, "amount", v.Amount, "operator", s.UserID)
		if err := f.sessions.Delete(ctx, s.UserID); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf(
			"✅ *Voucher created!*\n\n🎟️ Code: *%s*\n💰 Amount: ₹%d\n📅 Expiry: %s",
			v.Code, v.Amount, formatExpiry(v.ExpiryDate)))

	default:
		return f.abort(ctx, s, "⚠️ Something went wrong. Please start again from the menu.")
	}
}

// persist inserts with a fresh code, retrying on a code collision only.
func (f *Flow) persist(ctx context.Context, v *Voucher) error {
	for attempt := 1; ; attempt++ {
		v.Code = GenerateCode()
		err := f.repo.Insert(ctx, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return err
		}
		if attempt >= maxCodeAttempts {
			return fmt.Errorf("voucher: could not generate a unique code after %d attempts: %w", maxCodeAttempts, err)
		}
		f.logger.Warn("voucher code collision, retrying", "attempt", attempt)
	}
}

func expiryYears(input string) (int, bool) {
	switch input {
	case "expiry_1":
		return 1, true
	case "expiry_2":
		return 2, true
	case "expiry_5":
		return 5, true
	case "expiry_10":
		return 10, true
	case "expiry_lifetime":
		return lifetimeYears, true
	}
	return 0, false
}

func formatExpiry(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// --- SEARCH ---

func (f *Flow) handleSearch(ctx context.Context, s *SubSession, input string) error {
	if s.Step != "lookup" {
		return f.abort(ctx, s, "⚠️ Something went wrong. Please start again from the menu.")
	}
	if !phonePattern.MatchString(input) && !emailPattern.MatchString(input) {
		return f.messenger.SendText(ctx, s.UserID, "⚠️ Please enter a valid phone (with +) or email.")
	}

	vouchers, err := f.repo.Search(ctx, input)
	if err != nil {
		f.logger.Error("voucher search failed", "error", err, "operator", s.UserID)
		return f.abort(ctx, s, "❌ Search failed. Try again.")
	}
	if err := f.sessions.Delete(ctx, s.UserID); err != nil {
		return err
	}
	if len(vouchers) == 0 {
		return f.messenger.SendText(ctx, s.UserID, "❌ No voucher found for this contact.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎟️ *%d Voucher(s) Found*:\n\n", len(vouchers))
	for _, v := range vouchers {
		used := "❌ No"
		if v.Used {
			used = "✅ Yes"
		}
		fmt.Fprintf(&b, "• Code: %s\n  Amount: ₹%d\n  Expires: %s\n  Used: %s\n\n",
			v.Code, v.Amount, formatExpiry(v.ExpiryDate), used)
	}
	return f.messenger.SendText(ctx, s.UserID, strings.TrimSpace(b.String()))
}

// --- SHARE ---

func (f *Flow) handleShare(ctx context.Context, s *SubSession, input string) error {
	switch s.Step {
	case "holder_contact":
		if !phonePattern.MatchString(input) && !emailPattern.MatchString(input) {
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Invalid phone/email format.")
		}
		vouchers, err := f.repo.ActiveByTerm(ctx, input)
		if err != nil {
			f.logger.Error("holder lookup failed", "error", err, "operator", s.UserID)
			return f.abort(ctx, s, "❌ Lookup failed. Try again.")
		}
		if len(vouchers) == 0 {
			return f.abort(ctx, s, "❌ No valid voucher found for this holder.")
		}
		s.Data["holder"] = input
		if len(vouchers) == 1 {
			s.Data["voucher_code"] = vouchers[0].Code
			return f.challengeHolder(ctx, s)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "🎟️ *%d Vouchers Found for Holder*\n\n", len(vouchers))
		for i, v := range vouchers {
			fmt.Fprintf(&b, "🔹 *%d.* Code: %s\n   Amount: ₹%d\n   Expires: %s\n\n",
				i+1, v.Code, v.Amount, formatExpiry(v.ExpiryDate))
		}
		s.Choices = vouchers
		s.Step = "select_voucher"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		if err := f.messenger.SendText(ctx, s.UserID, strings.TrimSpace(b.String())); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, "✏️ Please reply with the number of the voucher you want to share (e.g. 1, 2, 3...)")

	case "select_voucher":
		idx, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || idx < 1 || idx > len(s.Choices) {
			return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf("❌ Invalid selection. Please enter a number between 1 and %d.", len(s.Choices)))
		}
		s.Data["voucher_code"] = s.Choices[idx-1].Code
		s.Choices = nil
		return f.challengeHolder(ctx, s)

	case "verify_holder_otp":
		if input != s.HolderOTP {
			s.HolderAttempts++
			f.metrics.ObserveOTPFailure()
			if s.HolderAttempts >= maxOTPAttempts {
				return f.abort(ctx, s, "❌ Too many incorrect OTP attempts. Voucher transfer cancelled.")
			}
			if err := f.sessions.Put(ctx, s); err != nil {
				return err
			}
			return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf("❌ Incorrect OTP. %d attempt(s) left.", maxOTPAttempts-s.HolderAttempts))
		}
		s.Step = "recipient_contact"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, "✅ Holder verified.\n📱 Now enter recipient's phone or email:")

	case "recipient_contact":
		if !phonePattern.MatchString(input) && !emailPattern.MatchString(input) {
			return f.messenger.SendText(ctx, s.UserID, "⚠️ Invalid phone/email format.")
		}
		existing, err := f.repo.ActiveByTerm(ctx, input)
		if err != nil {
			f.logger.Error("recipient lookup failed", "error", err, "operator", s.UserID)
			return f.abort(ctx, s, "❌ Lookup failed. Try again.")
		}
		if len(existing) > 0 {
			return f.abort(ctx, s, "❌ Recipient already has a valid voucher.")
		}
		s.Data["recipient"] = input
		otp := GenerateOTP()
		s.RecipientOTP = otp
		s.Step = "verify_recipient_otp"
		if err := f.sessions.Put(ctx, s); err != nil {
			return err
		}
		if err := f.deliverOTP(ctx, input, otp); err != nil {
			f.logger.Error("recipient OTP delivery failed", "error", err, "operator", s.UserID)
			return f.abort(ctx, s, "❌ Could not reach the recipient. Voucher transfer cancelled.")
		}
		return f.messenger.SendText(ctx, s.UserID, "📨 OTP sent to recipient. Please enter it here:")

	case "verify_recipient_otp":
		if input != s.RecipientOTP {
			s.RecipientAttempts++
			f.metrics.ObserveOTPFailure()
			if s.RecipientAttempts >= maxOTPAttempts {
				return f.abort(ctx, s, "❌ Too many incorrect OTP attempts. Voucher transfer cancelled.")
			}
			if err := f.sessions.Put(ctx, s); err != nil {
				return err
			}
			return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf("❌ Incorrect OTP. %d attempt(s) left.", maxOTPAttempts-s.RecipientAttempts))
		}
		recipient := s.Data["recipient"]
		phone, email := "", ""
		if strings.Contains(recipient, "@") {
			email = recipient
		} else {
			phone = recipient
		}
		if err := f.repo.Transfer(ctx, s.Data["voucher_code"], phone, email); err != nil {
			f.logger.Error("voucher transfer failed", "error", err, "voucher", s.Data["voucher_code"])
			return f.abort(ctx, s, "❌ Failed to transfer voucher.")
		}
		f.metrics.ObserveVoucherTransferred()
		f.logger.Info("voucher transferred", "voucher", s.Data["voucher_code"], "operator", s.UserID)
		if err := f.sessions.Delete(ctx, s.UserID); err != nil {
			return err
		}
		return f.messenger.SendText(ctx, s.UserID, fmt.Sprintf("✅ Voucher successfully transferred to %s", recipient))

	default:
		return f.abort(ctx, s, "⚠️ Something went wrong. Please start again from the menu.")
	}
}

// challengeHolder sends a fresh OTP to the holder's own channel and moves
// the flow to holder verification.
func (f *Flow) challengeHolder(ctx context.Context, s *SubSession) error {
	otp := GenerateOTP()
	s.HolderOTP = otp
	s.Step = "verify_holder_otp"
	if err := f.sessions.Put(ctx, s); err != nil {
		return err
	}
	if err := f.deliverOTP(ctx, s.Data["holder"], otp); err != nil {
		f.logger.Error("holder OTP delivery failed", "error", err, "operator", s.UserID)
		return f.abort(ctx, s, "❌ Could not reach the holder. Voucher transfer cancelled.")
	}
	return f.messenger.SendText(ctx, s.UserID, "📨 OTP sent to holder. Please enter it here:")
}

// deliverOTP routes the code to the party's own channel: WhatsApp for a
// phone contact, email otherwise.
func (f *Flow) deliverOTP(ctx context.Context, contact, otp string) error {
	if strings.Contains(contact, "@") {
		if f.emailer == nil {
			return errors.New("voucher: no email channel configured")
		}
		return f.emailer.SendOTP(ctx, contact, otp)
	}
	return f.messenger.SendText(ctx, contact, fmt.Sprintf("🔐 Your OTP is: *%s*", otp))
}
