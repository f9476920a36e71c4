package whatsapp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrNoMessage is returned when a webhook delivery carries no processable
// message (status updates, read receipts, and similar events).
var ErrNoMessage = errors.New("whatsapp: envelope contains no message")

// webhookEnvelope mirrors the subset of the Cloud API webhook payload the
// bot cares about.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive struct {
						Type        string `json:"type"`
						ButtonReply struct {
							ID string `json:"id"`
						} `json:"button_reply"`
						ListReply struct {
							ID string `json:"id"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook normalizes a webhook delivery into a single Inbound value.
// Free text, button replies and list replies all collapse to one input
// string; everything else yields ErrNoMessage.
func ParseWebhook(r *http.Request) (Inbound, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return Inbound{}, err
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Inbound{}, err
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.From == "" {
					continue
				}
				if id := msg.Interactive.ButtonReply.ID; id != "" {
					return Inbound{From: msg.From, Text: id, Kind: KindButton}, nil
				}
				if id := msg.Interactive.ListReply.ID; id != "" {
					return Inbound{From: msg.From, Text: id, Kind: KindList}, nil
				}
				if text := strings.TrimSpace(msg.Text.Body); text != "" {
					return Inbound{From: msg.From, Text: text, Kind: KindText}, nil
				}
			}
		}
	}
	return Inbound{}, ErrNoMessage
}

// VerifyChallenge handles the Cloud API subscription handshake: echo
// hub.challenge when hub.verify_token matches. Returns false when the
// token does not match.
func VerifyChallenge(r *http.Request, verifyToken string) (string, bool) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" {
		return "", false
	}
	if verifyToken == "" || q.Get("hub.verify_token") != verifyToken {
		return "", false
	}
	return q.Get("hub.challenge"), true
}
