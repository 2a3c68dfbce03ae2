// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	if headers, ok := cfg.Params["headers"].(map[string]string); ok {
		w.headers = headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

// payload is the JSON body posted for each record.
type payload struct {
	Type       string      `json:"type"`
	ID         string      `json:"id"`
	Pair       string      `json:"pair"`
	Signal     core.Signal `json:"signal"`
	Label      string      `json:"label"`
	Price      string      `json:"price"`
	RSI        string      `json:"rsi"`
	Time       string      `json:"time"`
	RecordedAt string      `json:"recorded_at"`
}

func (w *Webhook) Send(ctx context.Context, rec core.SignalRecord) error {
	return w.post(ctx, payload{
		Type:       "signal",
		ID:         rec.ID,
		Pair:       rec.Pair,
		Signal:     rec.Signal,
		Label:      rec.Signal.Label(),
		Price:      rec.Price,
		RSI:        rec.RSI,
		Time:       rec.Time,
		RecordedAt: rec.RecordedAt.Format(time.RFC3339),
	})
}

// SendText posts an alert payload carrying free-form text.
func (w *Webhook) SendText(ctx context.Context, text string) error {
	return w.post(ctx, alertPayload{
		Type: "alert",
		Text: text,
		Time: time.Now().UTC().Format(time.RFC3339),
	})
}

type alertPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Time string `json:"time"`
}

func (w *Webhook) post(ctx context.Context, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
