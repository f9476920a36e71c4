// Package whatsapp wraps the WhatsApp Cloud API: outbound text, button and
// list messages, and inbound webhook envelope parsing.
package whatsapp

import "context"

// Button is a single interactive reply button. The Cloud API allows at most
// three per message.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row in a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// Messenger is the outbound surface the conversation engine talks to.
// Implementations can be swapped (Cloud API, test double) without changing
// callers.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) error
}

// InputKind classifies how the operator produced an inbound value.
type InputKind string

const (
	// KindText is a free-text message.
	KindText InputKind = "text"
	// KindButton is a button-reply identifier.
	KindButton InputKind = "button"
	// KindList is a list-reply identifier.
	KindList InputKind = "list"
)

// Inbound is the normalized shape of one inbound message: the Cloud API's
// three reply shapes collapse into a single input string plus its kind.
type Inbound struct {
	From string
	Text string
	Kind InputKind
}

// Interactive reports whether the input came from a button or list reply.
// The transport documents at-least-once delivery for these, so duplicate
// suppression applies to them only.
func (in Inbound) Interactive() bool {
	return in.Kind == KindButton || in.Kind == KindList
}
