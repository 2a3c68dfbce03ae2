// Package email implements an SMTP-based email notifier
package email

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/notifier"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email implements the Notifier interface for SMTP email
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     sendFunc
}

// New creates a new Email notifier
func New(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Init(cfg notifier.Config) error {
	if host, ok := cfg.Params["host"].(string); ok {
		e.host = host
	}
	if port, ok := cfg.Params["port"].(int); ok {
		e.port = port
	}
	if username, ok := cfg.Params["username"].(string); ok {
		e.username = username
	}
	if password, ok := cfg.Params["password"].(string); ok {
		e.password = password
	}
	if from, ok := cfg.Params["from"].(string); ok {
		e.from = from
	}
	if to, ok := cfg.Params["to"].([]string); ok {
		e.to = to
	}
	if e.port == 0 {
		e.port = 587
	}
	if e.send == nil {
		e.send = smtp.SendMail
	}

	if e.host == "" || e.from == "" || len(e.to) == 0 {
		return fmt.Errorf("email: host, from, and to are required")
	}
	return nil
}

// Send mails one record. SMTP has no context support; ctx is checked before dialing.
func (e *Email) Send(ctx context.Context, rec core.SignalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("Scalper: %s %s @ %s", rec.Pair, rec.Signal.Label(), rec.Price)
	return e.sendEmail(subject, e.formatRecordHTML(rec))
}

// SendText mails free-form text with the first line as the subject.
func (e *Email) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, _, _ := strings.Cut(text, "\n")
	body := "<html><body><pre>" + html.EscapeString(text) + "</pre></body></html>"
	return e.sendEmail("Scalper alert: "+subject, body)
}

func (e *Email) formatRecordHTML(rec core.SignalRecord) string {
	color := "#28a745" // green for buy
	if rec.Signal == core.SignalSell {
		color = "#dc3545" // red for sell
	}

	return fmt.Sprintf(`<html><body>
<div style="margin: 10px 0;">
  <h3 style="color: %s;">%s - %s</h3>
  <p><strong>Price:</strong> %s</p>
  <p><strong>RSI:</strong> %s</p>
  <p><small>%s</small></p>
</div>
</body></html>`,
		color,
		rec.Pair,
		rec.Signal.Label(),
		rec.Price,
		rec.RSI,
		rec.Time,
	)
}

func (e *Email) sendEmail(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		e.from,
		strings.Join(e.to, ","),
		subject,
		body,
	)

	if err := e.send(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("email: send failed: %w", err)
	}
	return nil
}
