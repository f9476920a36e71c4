package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
)

// Field keys, stable identifiers for answers and edit tokens.
const (
	FieldClientName    = "clientName"
	FieldClientPhone   = "clientPhone"
	FieldClientEmail   = "clientEmail"
	FieldTrekCategory  = "trekCategory"
	FieldTrekName      = "trekName"
	FieldTrekDate      = "trekDate"
	FieldGroupSize     = "groupSize"
	FieldRatePerPerson = "ratePerPerson"
	FieldPaymentMode   = "paymentMode"
	FieldAdvancePaid   = "advancePaid"
	FieldSharingType   = "sharingType"
	FieldSpecialNotes  = "specialNotes"
)

// ValidationError carries the corrective message shown to the operator.
// The field is re-asked; nothing else about the session changes.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Field is one question in the booking sequence.
type Field struct {
	Key string
	// Ask sends the field's prompt (text, buttons or a list).
	Ask func(ctx context.Context, m whatsapp.Messenger, userID string, s *Session) error
	// Validate normalizes raw input or returns a *ValidationError.
	Validate func(s *Session, input string) (string, error)
	// SkipIf removes the field from the remaining sequence for this session.
	SkipIf func(s *Session) bool
}

// Schema is the ordered booking-field sequence.
type Schema []Field

// Index returns the position of key, or -1.
func (sc Schema) Index(key string) int {
	for i, f := range sc {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Field returns the schema entry for key.
func (sc Schema) Field(key string) (Field, bool) {
	if i := sc.Index(key); i >= 0 {
		return sc[i], true
	}
	return Field{}, false
}

// NextAskable returns the first index ≥ from whose skip rule is false,
// or len(sc) when the sequence is exhausted.
func (sc Schema) NextAskable(s *Session, from int) int {
	for i := from; i < len(sc); i++ {
		if sc[i].SkipIf == nil || !sc[i].SkipIf(s) {
			return i
		}
	}
	return len(sc)
}

// TrekCatalog maps a category to its selectable treks.
var TrekCatalog = map[string][]whatsapp.ListRow{
	"Trek": {
		{ID: "Kedarkantha", Title: "Kedarkantha Trek"},
		{ID: "Brahmatal", Title: "Brahmatal Trek"},
		{ID: "BaliPass", Title: "Bali Pass Trek"},
		{ID: "BorasuPass", Title: "Borasu Pass Trek"},
		{ID: "HarKiDun", Title: "Har Ki Dun Trek"},
	},
	"Expedition": {
		{ID: "BlackPeak", Title: "Black Peak Expedition"},
		{ID: "DumdarkandiPass", Title: "Dumdarkandi Pass Trek"},
	},
}

var (
	nameRe  = regexp.MustCompile(`^[a-zA-Z\s]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+\d{8,15}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// DefaultSchema builds the booking-field sequence. now is injected so date
// validation is testable.
func DefaultSchema(now func() time.Time) Schema {
	if now == nil {
		now = time.Now
	}
	return Schema{
		{
			Key: FieldClientName,
			Ask: askText("👤 Enter Client's Full Name:"),
			Validate: func(_ *Session, input string) (string, error) {
				if !nameRe.MatchString(input) {
					return "", invalid("❗ Please enter a valid name (letters only).")
				}
				return input, nil
			},
		},
		{
			Key: FieldClientPhone,
			Ask: askText("📞 Enter Client's WhatsApp number with country code (e.g. +919458118063):"),
			Validate: func(_ *Session, input string) (string, error) {
				cleaned := strings.NewReplacer(" ", "", "-", "").Replace(input)
				if !phoneRe.MatchString(cleaned) {
					return "", invalid("❗ Please enter a valid phone number with country code. Format: +919458118063")
				}
				return cleaned, nil
			},
		},
		{
			Key: FieldClientEmail,
			Ask: askText("📧 Enter Client's Email ID (or type *skip*):"),
			Validate: func(_ *Session, input string) (string, error) {
				if strings.EqualFold(input, "skip") {
					return "", nil
				}
				if !emailRe.MatchString(input) {
					return "", invalid("❗ Please enter a valid email address (or type *skip*).")
				}
				return input, nil
			},
		},
		{
			Key: FieldTrekCategory,
			Ask: func(ctx context.Context, m whatsapp.Messenger, userID string, _ *Session) error {
				return m.SendButtons(ctx, userID, "🧭 Choose Trek/Expedition:", []whatsapp.Button{
					{ID: "category_trek", Title: "🥾 Trek"},
					{ID: "category_expedition", Title: "🏔️ Expedition"},
				})
			},
			Validate: func(_ *Session, input string) (string, error) {
				switch strings.ToLower(input) {
				case "category_trek", "trek":
					return "Trek", nil
				case "category_expedition", "expedition":
					return "Expedition", nil
				}
				return "", invalid("❗ Please choose Trek or Expedition from the buttons.")
			},
		},
		{
			Key: FieldTrekName,
			Ask: func(ctx context.Context, m whatsapp.Messenger, userID string, s *Session) error {
				category := s.Get(FieldTrekCategory)
				rows, ok := TrekCatalog[category]
				if !ok {
					category, rows = "Trek", TrekCatalog["Trek"]
				}
				return m.SendList(ctx, userID, fmt.Sprintf("Choose a %s:", category), "🌄 Select", []whatsapp.ListSection{
					{Title: fmt.Sprintf("%s Options", category), Rows: rows},
				})
			},
			Validate: func(s *Session, input string) (string, error) {
				category := s.Get(FieldTrekCategory)
				for _, row := range TrekCatalog[category] {
					if strings.EqualFold(input, row.ID) {
						return row.ID, nil
					}
				}
				return "", invalid("❗ Please pick a trek from the list.")
			},
		},
		{
			Key: FieldTrekDate,
			Ask: func(ctx context.Context, m whatsapp.Messenger, userID string, _ *Session) error {
				return m.SendButtons(ctx, userID, "📅 Choose a date:", []whatsapp.Button{
					{ID: "today", Title: "Today"},
					{ID: "tomorrow", Title: "Tomorrow"},
					{ID: "manual", Title: "Enter Manually"},
				})
			},
			Validate: func(_ *Session, input string) (string, error) {
				return validateTrekDate(input, now())
			},
		},
		{
			Key:      FieldGroupSize,
			Ask:      askText("👥 Enter Group Size (number):"),
			Validate: positiveNumber("❗ Please enter a numeric group size."),
		},
		{
			Key:      FieldRatePerPerson,
			Ask:      askText("💵 Enter Rate per Person (₹):"),
			Validate: positiveNumber("❗ Please enter a numeric rate."),
		},
		{
			Key: FieldPaymentMode,
			Ask: func(ctx context.Context, m whatsapp.Messenger, userID string, _ *Session) error {
				return m.SendButtons(ctx, userID, "💳 Payment mode?", []whatsapp.Button{
					{ID: "online", Title: "Online"},
					{ID: "onspot", Title: "On-spot"},
				})
			},
			Validate: func(_ *Session, input string) (string, error) {
				switch strings.ToLower(input) {
				case "online":
					return "online", nil
				case "onspot", "on-spot":
					return "onspot", nil
				}
				return "", invalid("❗ Please choose Online or On-spot.")
			},
			// A voucher that fully covers the total settles the payment; the
			// question disappears from the sequence.
			SkipIf: func(s *Session) bool { return s.VoucherCoversTotal() },
		},
		{
			Key: FieldAdvancePaid,
			Ask: askText("💰 Enter Advance Paid (₹):"),
			Validate: func(s *Session, input string) (string, error) {
				advance, err := strconv.Atoi(strings.TrimSpace(input))
				if err != nil || advance < 0 {
					return "", invalid("❗ Please enter a valid number for advance paid.")
				}
				total := s.Total()
				if advance+s.VoucherAmount() > total {
					return "", invalid(fmt.Sprintf("⚠️ Advance + Voucher exceeds total (₹%d).", total))
				}
				return strconv.Itoa(advance), nil
			},
			SkipIf: func(s *Session) bool {
				return s.VoucherCoversTotal() || s.Get(FieldPaymentMode) == "onspot"
			},
		},
		{
			Key: FieldSharingType,
			Ask: func(ctx context.Context, m whatsapp.Messenger, userID string, _ *Session) error {
				return m.SendButtons(ctx, userID, "🏕️ Select Sharing type:", []whatsapp.Button{
					{ID: "Single", Title: "Single"},
					{ID: "Double", Title: "Double"},
					{ID: "Triple", Title: "Triple"},
				})
			},
			Validate: func(_ *Session, input string) (string, error) {
				switch strings.ToLower(input) {
				case "single":
					return "Single", nil
				case "double":
					return "Double", nil
				case "triple":
					return "Triple", nil
				}
				return "", invalid("❗ Please choose Single, Double or Triple.")
			},
		},
		{
			Key: FieldSpecialNotes,
			Ask: askText("📝 Any Special Notes? (type *-* for none)"),
			Validate: func(_ *Session, input string) (string, error) {
				return input, nil
			},
		},
	}
}

func askText(prompt string) func(context.Context, whatsapp.Messenger, string, *Session) error {
	return func(ctx context.Context, m whatsapp.Messenger, userID string, _ *Session) error {
		return m.SendText(ctx, userID, prompt)
	}
}

func positiveNumber(msg string) func(*Session, string) (string, error) {
	return func(_ *Session, input string) (string, error) {
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || n <= 0 {
			return "", invalid(msg)
		}
		return strconv.Itoa(n), nil
	}
}

// validateTrekDate resolves today/tomorrow tokens and validates manual
// entry for calendar validity (time.Parse rejects impossible dates) and
// for not being in the past.
func validateTrekDate(input string, now time.Time) (string, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(input) {
	case "today":
		return today.Format("2006-01-02"), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format("2006-01-02"), nil
	case "manual":
		return "", invalid("📅 Please enter the date as YYYY-MM-DD or DD/MM/YYYY.")
	}

	var parsed time.Time
	var err error
	if strings.Contains(input, "/") {
		parsed, err = time.Parse("02/01/2006", input)
	} else {
		parsed, err = time.Parse("2006-01-02", input)
	}
	if err != nil {
		return "", invalid("❗ Invalid date. Use YYYY-MM-DD or DD/MM/YYYY (e.g. 2025-12-24).")
	}
	if parsed.Before(today) {
		return "", invalid("❗ The trek date cannot be in the past.")
	}
	return parsed.Format("2006-01-02"), nil
}

// editTitle renders a field key as a human label for the edit menu,
// e.g. "ratePerPerson" → "Rate Per Person".
func editTitle(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i == 0 {
			b.WriteRune(r - 'a' + 'A')
			continue
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
