package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teamdiscoveryhike/discovery-hike-booking-bot/pkg/logging"
)

var sendTracer = otel.Tracer("discoveryhike.internal.whatsapp.send")

const maxSendAttempts = 3

// Client posts messages using the WhatsApp Cloud (Graph) API.
type Client struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
	logger        *logging.Logger
}

// NewClient builds a sender for the Cloud API. baseURL is the Graph API
// root, e.g. https://graph.facebook.com/v18.0.
func NewClient(accessToken, phoneNumberID, baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Messenger = (*Client)(nil)

// SendText dispatches a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("whatsapp: body required")
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return c.post(ctx, "text", to, payload)
}

// SendButtons dispatches an interactive reply-button message. The Cloud API
// caps buttons at three per message.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) == 0 || len(buttons) > 3 {
		return fmt.Errorf("whatsapp: button count must be 1..3, got %d", len(buttons))
	}
	actions := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": actions},
		},
	}
	return c.post(ctx, "buttons", to, payload)
}

// SendList dispatches an interactive list message.
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) error {
	if len(sections) == 0 {
		return errors.New("whatsapp: at least one list section required")
	}
	if buttonLabel == "" {
		buttonLabel = "Choose"
	}
	secs := make([]map[string]any, 0, len(sections))
	for _, s := range sections {
		rows := make([]map[string]any, 0, len(s.Rows))
		for _, r := range s.Rows {
			row := map[string]any{"id": r.ID, "title": r.Title}
			if r.Description != "" {
				row["description"] = r.Description
			}
			rows = append(rows, row)
		}
		secs = append(secs, map[string]any{"title": s.Title, "rows": rows})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"button": buttonLabel, "sections": secs},
		},
	}
	return c.post(ctx, "list", to, payload)
}

// post sends one payload to the messages endpoint, retrying transient
// failures (network errors, 429, 5xx) up to maxSendAttempts.
func (c *Client) post(ctx context.Context, kind, to string, payload map[string]any) error {
	if c.accessToken == "" {
		return errors.New("whatsapp: access token missing")
	}
	if to == "" {
		return errors.New("whatsapp: to required")
	}

	ctx, span := sendTracer.Start(ctx, "whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("discoveryhike.message_kind", kind),
		attribute.String("discoveryhike.to", to),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("whatsapp: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				c.logger.Info("whatsapp message sent", "kind", kind, "to", to)
				return nil
			}
			lastErr = fmt.Errorf("whatsapp: send returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				span.RecordError(lastErr)
				return lastErr
			}
		}
		if attempt < maxSendAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	span.RecordError(lastErr)
	c.logger.Error("whatsapp send failed", "kind", kind, "to", to, "error", lastErr)
	return fmt.Errorf("whatsapp: send failed after %d attempts: %w", maxSendAttempts, lastErr)
}
