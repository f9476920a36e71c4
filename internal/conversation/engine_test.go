package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/booking"
	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/internal/whatsapp"
)

type sentMessage struct {
	To       string
	Body     string
	Kind     string // "text", "buttons", "list"
	Buttons  []whatsapp.Button
	Sections []whatsapp.ListSection
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, to, body string) error {
	f.sent = append(f.sent, sentMessage{To: to, Body: body, Kind: "text"})
	return nil
}

func (f *fakeMessenger) SendButtons(_ context.Context, to, body string, buttons []whatsapp.Button) error {
	f.sent = append(f.sent, sentMessage{To: to, Body: body, Kind: "buttons", Buttons: buttons})
	return nil
}

func (f *fakeMessenger) SendList(_ context.Context, to, body, _ string, sections []whatsapp.ListSection) error {
	f.sent = append(f.sent, sentMessage{To: to, Body: body, Kind: "list", Sections: sections})
	return nil
}

func (f *fakeMessenger) last(t *testing.T) sentMessage {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) reset() { f.sent = nil }

type fakeSubFlow struct {
	handled   bool
	cancelled []string
}

func (f *fakeSubFlow) Handle(context.Context, whatsapp.Inbound) (bool, error) {
	return f.handled, nil
}

func (f *fakeSubFlow) Cancel(_ context.Context, userID string) error {
	f.cancelled = append(f.cancelled, userID)
	return nil
}

type fakeBookings struct {
	commits   []booking.Details
	commitErr error
	code      string
	searches  []string
	summary   string
}

func (f *fakeBookings) Commit(_ context.Context, _ string, d booking.Details) (string, error) {
	f.commits = append(f.commits, d)
	if f.commitErr != nil {
		return "", f.commitErr
	}
	if f.code == "" {
		f.code = "DH26ABCDE1224"
	}
	return f.code, nil
}

func (f *fakeBookings) Search(_ context.Context, term string) (string, error) {
	f.searches = append(f.searches, term)
	return f.summary, nil
}

type fakeFinder struct {
	candidates []VoucherCandidate
	err        error
}

func (f *fakeFinder) FindForContact(context.Context, string, string) ([]VoucherCandidate, error) {
	return f.candidates, f.err
}

type engineFixture struct {
	engine    *Engine
	store     Store
	messenger *fakeMessenger
	sub       *fakeSubFlow
	bookings  *fakeBookings
	finder    *fakeFinder
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureWithStore(NewMemoryStore(0))
}

// newRedisEngineFixture backs the engine with a real serializing store, for
// behavior that must survive a Get/Put round trip.
func newRedisEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, _ := newRedisStore(t, 0)
	return newEngineFixtureWithStore(store)
}

func newEngineFixtureWithStore(store Store) *engineFixture {
	f := &engineFixture{
		store:     store,
		messenger: &fakeMessenger{},
		sub:       &fakeSubFlow{},
		bookings:  &fakeBookings{},
		finder:    &fakeFinder{},
	}
	f.engine = NewEngine(DefaultSchema(fixedNow), f.store, f.sub, f.finder, f.bookings, f.messenger, nil, nil)
	return f
}

func (f *engineFixture) text(t *testing.T, from, text string) {
	t.Helper()
	if err := f.engine.Handle(context.Background(), whatsapp.Inbound{From: from, Text: text, Kind: whatsapp.KindText}); err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
}

func (f *engineFixture) tap(t *testing.T, from, id string) {
	t.Helper()
	if err := f.engine.Handle(context.Background(), whatsapp.Inbound{From: from, Text: id, Kind: whatsapp.KindButton}); err != nil {
		t.Fatalf("Handle(tap %q): %v", id, err)
	}
}

func (f *engineFixture) pick(t *testing.T, from, id string) {
	t.Helper()
	if err := f.engine.Handle(context.Background(), whatsapp.Inbound{From: from, Text: id, Kind: whatsapp.KindList}); err != nil {
		t.Fatalf("Handle(pick %q): %v", id, err)
	}
}

const operator = "+911111111111"

// runToAdvance walks the conversation up to and including the advance-paid
// answer, leaving the session at the sharing-type question.
func runToPayment(t *testing.T, f *engineFixture) {
	t.Helper()
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "skip")
	f.tap(t, operator, "category_trek")
	f.pick(t, operator, "Kedarkantha")
	f.tap(t, operator, "today")
	f.text(t, operator, "4")
	f.text(t, operator, "1500")
}

func TestGreetingShowsMenu(t *testing.T) {
	f := newEngineFixture(t)
	f.text(t, operator, "hi")

	msg := f.messenger.last(t)
	if msg.Kind != "buttons" || len(msg.Buttons) != 3 {
		t.Fatalf("expected 3-button menu, got %+v", msg)
	}
	ids := []string{msg.Buttons[0].ID, msg.Buttons[1].ID, msg.Buttons[2].ID}
	want := []string{"start_booking", "manual_voucher", "find_booking"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("button %d = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestEmptyInputRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.text(t, operator, "   ")

	if got := f.messenger.last(t).Body; got != "⚠️ Please enter a valid response." {
		t.Errorf("got %q", got)
	}
}

func TestIdleUnknownTextPrompt(t *testing.T) {
	f := newEngineFixture(t)
	f.text(t, operator, "what do I do")

	if !strings.Contains(f.messenger.last(t).Body, "No active session") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
}

func TestFullBookingHappyPath(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.messenger.reset()
	f.text(t, operator, "-")

	// Summary text then confirmation buttons.
	if len(f.messenger.sent) != 2 {
		t.Fatalf("expected summary + buttons, got %d messages", len(f.messenger.sent))
	}
	summary := f.messenger.sent[0]
	if summary.Kind != "text" || !strings.Contains(summary.Body, "₹6000") || !strings.Contains(summary.Body, "Kedarkantha") {
		t.Errorf("summary wrong:\n%s", summary.Body)
	}
	confirm := f.messenger.sent[1]
	if confirm.Kind != "buttons" || confirm.Buttons[0].ID != "confirm_yes" {
		t.Errorf("confirmation buttons wrong: %+v", confirm)
	}

	f.tap(t, operator, "confirm_yes")
	if len(f.bookings.commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(f.bookings.commits))
	}
	d := f.bookings.commits[0]
	if d.ClientName != "Asha Verma" || d.GroupSize != 4 || d.AdvancePaid != 2000 || d.TrekDate != "2026-03-07" {
		t.Errorf("commit details wrong: %+v", d)
	}
	if _, err := f.store.Get(context.Background(), operator); !errors.Is(err, ErrSessionNotFound) {
		t.Error("session survived a successful commit")
	}
}

func TestOnspotSkipsAdvance(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "onspot")

	// Advance is auto-zeroed; next question is sharing type.
	s, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if s.Get(FieldAdvancePaid) != "0" {
		t.Errorf("advance = %q, want 0", s.Get(FieldAdvancePaid))
	}
	msg := f.messenger.last(t)
	if msg.Kind != "buttons" || !strings.Contains(msg.Body, "Sharing") {
		t.Errorf("expected sharing prompt, got %+v", msg)
	}
}

func TestValidationErrorReasksField(t *testing.T) {
	f := newEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "42")

	if !strings.Contains(f.messenger.last(t).Body, "valid name") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}

	// The field is still current; a good answer proceeds.
	f.text(t, operator, "Asha Verma")
	if !strings.Contains(f.messenger.last(t).Body, "WhatsApp number") {
		t.Errorf("did not advance to phone: %q", f.messenger.last(t).Body)
	}
}

func TestConfirmationLockRejectsOtherInput(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.text(t, operator, "actually change the name")
	if !strings.Contains(f.messenger.last(t).Body, "confirm, cancel or edit") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}

	// The lock survives; confirm still works.
	f.tap(t, operator, "confirm_yes")
	if len(f.bookings.commits) != 1 {
		t.Errorf("confirm after lock rejection failed")
	}
}

func TestConfirmNoCancelsBooking(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.tap(t, operator, "confirm_no")
	if !strings.Contains(f.messenger.last(t).Body, "Booking canceled") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
	if len(f.bookings.commits) != 0 {
		t.Error("cancelled booking was committed")
	}
	if _, err := f.store.Get(context.Background(), operator); !errors.Is(err, ErrSessionNotFound) {
		t.Error("session survived cancellation")
	}
}

func TestFailedCommitKeepsSession(t *testing.T) {
	f := newEngineFixture(t)
	f.bookings.commitErr = errors.New("db down")
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.tap(t, operator, "confirm_yes")
	if !strings.Contains(f.messenger.last(t).Body, "could not be saved") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
	if _, err := f.store.Get(context.Background(), operator); err != nil {
		t.Error("session lost after failed commit; retry impossible")
	}

	// Retry succeeds once the backend recovers. The confirm tap must differ
	// in the dedup window, so cycle through a rejected input first.
	f.bookings.commitErr = nil
	f.text(t, operator, "retry please")
	f.tap(t, operator, "confirm_yes")
	if len(f.bookings.commits) != 2 {
		t.Errorf("expected retry commit, got %d", len(f.bookings.commits))
	}
}

func TestEmergencyReset(t *testing.T) {
	f := newEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")

	f.text(t, operator, "xxx")
	if !strings.Contains(f.messenger.last(t).Body, "Session cleared") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
	if _, err := f.store.Get(context.Background(), operator); !errors.Is(err, ErrSessionNotFound) {
		t.Error("session survived reset")
	}
	if len(f.sub.cancelled) != 1 || f.sub.cancelled[0] != operator {
		t.Errorf("sub-flow not cancelled: %v", f.sub.cancelled)
	}
}

func TestInteractiveDuplicateSuppressed(t *testing.T) {
	f := newEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "skip")
	f.tap(t, operator, "category_trek")

	before := len(f.messenger.sent)
	f.tap(t, operator, "category_trek")
	if len(f.messenger.sent) != before {
		t.Error("redelivered button reply was processed")
	}
}

func TestRepeatedFreeTextNotSuppressed(t *testing.T) {
	f := newEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "bad1")

	before := len(f.messenger.sent)
	// Same invalid text again must still produce a validation reply.
	f.text(t, operator, "bad1")
	if len(f.messenger.sent) != before+1 {
		t.Error("repeated free text was suppressed")
	}
}

func TestSessionlessInteractiveDuplicateSuppressed(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")
	f.tap(t, operator, "confirm_yes")

	// The session is gone; the redelivered confirm tap must be a full
	// no-op, not a double commit and not an idle prompt on the heels of
	// the confirmation.
	before := len(f.bookings.commits)
	msgs := len(f.messenger.sent)
	f.tap(t, operator, "confirm_yes")
	if len(f.bookings.commits) != before {
		t.Error("redelivered confirm after teardown double-committed")
	}
	if len(f.messenger.sent) != msgs {
		t.Errorf("redelivered confirm after teardown produced output: %+v", f.messenger.sent[msgs:])
	}

	// Further redeliveries stay silent too.
	f.tap(t, operator, "confirm_yes")
	if len(f.messenger.sent) != msgs {
		t.Error("second redelivery produced output")
	}
}

func TestRedeliveredCancelAfterTeardownSilent(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")
	f.tap(t, operator, "confirm_no")

	msgs := len(f.messenger.sent)
	f.tap(t, operator, "confirm_no")
	if len(f.messenger.sent) != msgs {
		t.Errorf("redelivered cancel after teardown produced output: %+v", f.messenger.sent[msgs:])
	}
}

func TestLockNoticeDedupSurvivesSerializingStore(t *testing.T) {
	f := newRedisEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	// A button the confirmation lock rejects still updates the persisted
	// dedup state, so its redelivery stays silent.
	f.tap(t, operator, "start_booking")
	if !strings.Contains(f.messenger.last(t).Body, "confirm, cancel or edit") {
		t.Fatalf("got %q", f.messenger.last(t).Body)
	}
	before := len(f.messenger.sent)
	f.tap(t, operator, "start_booking")
	if len(f.messenger.sent) != before {
		t.Error("redelivered rejected button re-sent the lock notice")
	}
}

func TestInvalidEditDedupSurvivesSerializingStore(t *testing.T) {
	f := newRedisEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")

	f.pick(t, operator, "edit__groupSize")
	if !strings.Contains(f.messenger.last(t).Body, "cannot be edited") {
		t.Fatalf("got %q", f.messenger.last(t).Body)
	}
	before := len(f.messenger.sent)
	f.pick(t, operator, "edit__groupSize")
	if len(f.messenger.sent) != before {
		t.Error("redelivered invalid edit pick re-sent the rejection")
	}
}

func TestIdleSearchByCode(t *testing.T) {
	f := newEngineFixture(t)
	f.bookings.summary = "📋 Booking Details"
	f.text(t, operator, "DH26ABCDE1224")

	if len(f.bookings.searches) != 1 || f.bookings.searches[0] != "DH26ABCDE1224" {
		t.Fatalf("searches = %v", f.bookings.searches)
	}
	if f.messenger.last(t).Body != "📋 Booking Details" {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
}

func TestIdleSearchNoMatch(t *testing.T) {
	f := newEngineFixture(t)
	f.text(t, operator, "+919999999999")

	if f.messenger.last(t).Body != "❌ No bookings found." {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
}

func TestSubFlowDelegation(t *testing.T) {
	f := newEngineFixture(t)
	f.sub.handled = true
	f.text(t, operator, "anything at all")

	if len(f.messenger.sent) != 0 {
		t.Error("engine responded to a sub-flow-handled input")
	}
	if len(f.bookings.searches) != 0 {
		t.Error("handled input leaked into search")
	}
}

func TestVoucherAutoApply(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.candidates = []VoucherCandidate{
		{Code: "DHVABCD2345", Amount: 1000, Phone: "+919876543210", Email: "asha@example.com"},
	}
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "asha@example.com")

	s, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if s.Voucher == nil || s.Voucher.Code != "DHVABCD2345" {
		t.Fatalf("voucher not auto-applied: %+v", s.Voucher)
	}
	// Flow continued to the category question, no suspension.
	if len(s.PendingVouchers) != 0 {
		t.Error("auto-apply left pending vouchers")
	}
}

func TestVoucherChoiceSuspension(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.candidates = []VoucherCandidate{
		{Code: "DHVAAAA2345", Amount: 1000, Phone: "+919876543210"},
		{Code: "DHVBBBB2345", Amount: 2000, Phone: "+919876543210"},
	}
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "skip")

	msg := f.messenger.last(t)
	if msg.Kind != "list" {
		t.Fatalf("expected voucher list, got %+v", msg)
	}
	rows := msg.Sections[0].Rows
	if len(rows) != 3 || rows[2].ID != "voucher_none" {
		t.Fatalf("rows = %+v", rows)
	}

	// The sequence is suspended: field input is treated as a choice.
	f.text(t, operator, "kedarkantha")
	if !strings.Contains(f.messenger.last(t).Body, "Invalid selection") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}

	f.pick(t, operator, "voucher_2")
	s, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if s.Voucher == nil || s.Voucher.Code != "DHVBBBB2345" || s.Voucher.Amount != 2000 {
		t.Fatalf("chosen voucher wrong: %+v", s.Voucher)
	}
	if len(s.PendingVouchers) != 0 {
		t.Error("suspension not lifted")
	}
}

func TestVoucherChoiceBareNumber(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.candidates = []VoucherCandidate{
		{Code: "DHVAAAA2345", Amount: 1000, Phone: "+919876543210"},
		{Code: "DHVBBBB2345", Amount: 2000, Phone: "+919876543210"},
	}
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "skip")

	f.text(t, operator, "1")
	s, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if s.Voucher == nil || s.Voucher.Code != "DHVAAAA2345" {
		t.Fatalf("bare number did not pick voucher 1: %+v", s.Voucher)
	}
}

func TestVoucherNoneSkips(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.candidates = []VoucherCandidate{
		{Code: "DHVAAAA2345", Amount: 1000, Phone: "+919876543210"},
		{Code: "DHVBBBB2345", Amount: 2000, Phone: "+919876543210"},
	}
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "skip")

	f.pick(t, operator, "voucher_none")
	s, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if s.Voucher == nil || !s.Voucher.Skipped {
		t.Fatalf("expected skipped voucher marker: %+v", s.Voucher)
	}
}

func TestCoveringVoucherSkipsPaymentQuestions(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.candidates = []VoucherCandidate{
		{Code: "DHVFULL2345", Amount: 6000, Phone: "+919876543210", Email: "asha@example.com"},
	}
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "asha@example.com")
	f.tap(t, operator, "category_trek")
	f.pick(t, operator, "Kedarkantha")
	f.tap(t, operator, "today")
	f.text(t, operator, "4")
	f.messenger.reset()
	f.text(t, operator, "1500")

	// Voucher ≥ total: payment mode and advance vanish; next is sharing.
	msg := f.messenger.last(t)
	if msg.Kind != "buttons" || !strings.Contains(msg.Body, "Sharing") {
		t.Fatalf("expected sharing prompt, got %+v", msg)
	}

	f.tap(t, operator, "Double")
	f.text(t, operator, "-")
	summary := f.messenger.sent[len(f.messenger.sent)-2]
	if !strings.Contains(summary.Body, "Voucher") || !strings.Contains(summary.Body, "₹0") {
		t.Errorf("summary should show voucher settlement:\n%s", summary.Body)
	}
}

func TestVoucherLookupFailureContinues(t *testing.T) {
	f := newEngineFixture(t)
	f.finder.err = errors.New("db down")
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")
	f.text(t, operator, "+919876543210")
	f.text(t, operator, "asha@example.com")

	// Lookup failure is non-fatal: the category question still arrives.
	msg := f.messenger.last(t)
	if msg.Kind != "buttons" || !strings.Contains(msg.Body, "Trek/Expedition") {
		t.Errorf("flow did not continue past lookup failure: %+v", msg)
	}
}

func TestEditMenuAndEdit(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "online")
	f.text(t, operator, "2000")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.tap(t, operator, "edit_booking")
	menu := f.messenger.last(t)
	if menu.Kind != "list" {
		t.Fatalf("expected edit list, got %+v", menu)
	}
	rows := menu.Sections[0].Rows
	if len(rows) != 10 || rows[editPageSize].ID != "edit_more" {
		t.Fatalf("expected 9 fields + more row, got %d rows", len(rows))
	}
	if rows[0].ID != "edit__clientName" || rows[0].Title != "Client Name" {
		t.Errorf("first row = %+v", rows[0])
	}

	f.pick(t, operator, "edit_more")
	more := f.messenger.last(t)
	if more.Sections[0].Title != "More Fields" || len(more.Sections[0].Rows) != 3 {
		t.Errorf("second page wrong: %+v", more.Sections[0])
	}

	f.pick(t, operator, "edit__groupSize")
	if !strings.Contains(f.messenger.last(t).Body, "Group Size") {
		t.Errorf("edit did not re-ask: %q", f.messenger.last(t).Body)
	}

	f.messenger.reset()
	f.text(t, operator, "6")
	// Back to summary with recomputed money: 6 × 1500 = 9000.
	if len(f.messenger.sent) != 2 || !strings.Contains(f.messenger.sent[0].Body, "₹9000") {
		t.Errorf("edited summary wrong:\n%s", f.messenger.sent[0].Body)
	}
}

func TestEditPaymentModeToOnlineAsksAdvance(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "onspot")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.tap(t, operator, "edit_booking")
	f.pick(t, operator, "edit__paymentMode")
	f.tap(t, operator, "online")

	// The flip to online chains into the advance question.
	if !strings.Contains(f.messenger.last(t).Body, "Advance Paid") {
		t.Fatalf("got %q", f.messenger.last(t).Body)
	}
	f.messenger.reset()
	f.text(t, operator, "3000")
	if len(f.messenger.sent) != 2 || !strings.Contains(f.messenger.sent[0].Body, "₹3000") {
		t.Errorf("summary after chained edit wrong:\n%s", f.messenger.sent[0].Body)
	}
}

func TestEditAdvanceWhileOnspotSwitchesMode(t *testing.T) {
	f := newEngineFixture(t)
	runToPayment(t, f)
	f.tap(t, operator, "onspot")
	f.tap(t, operator, "Double")
	f.text(t, operator, "-")

	f.tap(t, operator, "edit_booking")
	f.pick(t, operator, "edit__advancePaid")
	f.messenger.reset()
	f.text(t, operator, "2500")

	if !strings.Contains(f.messenger.sent[0].Body, "switched to *Online*") {
		t.Errorf("missing mode-switch notice: %q", f.messenger.sent[0].Body)
	}
	sess, err := f.store.Get(context.Background(), operator)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Get(FieldPaymentMode) != "online" {
		t.Errorf("payment mode = %q", sess.Get(FieldPaymentMode))
	}
}

func TestEditUnansweredFieldRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.tap(t, operator, "start_booking")
	f.text(t, operator, "Asha Verma")

	f.pick(t, operator, "edit__groupSize")
	if !strings.Contains(f.messenger.last(t).Body, "cannot be edited") {
		t.Errorf("got %q", f.messenger.last(t).Body)
	}
}
