// Package mail provides the SMTP transport and the durable fallback outbox
// used by the notification dispatcher.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrNotConfigured is returned by an unconfigured sender; callers degrade to
// the outbox rather than failing the triggering action.
var ErrNotConfigured = errors.New("mail transport not configured")

// Sender delivers a single email message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig configures the gomail transport.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether enough settings are present to attempt delivery.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPSender sends mail through gomail. A nil or unconfigured sender returns
// ErrNotConfigured from Send.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{cfg: cfg}
	if cfg.Configured() {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	}
	return s
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	if s == nil || s.dialer == nil {
		return ErrNotConfigured
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// OutboxEntry is one durably recorded undeliverable message.
type OutboxEntry struct {
	QueuedAt time.Time `json:"queued_at"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Reason   string    `json:"reason"`
}

// Outbox appends undeliverable messages as JSON lines to a size-rotated
// file. Append never fails the caller's primary action; rotation is handled
// by lumberjack.
type Outbox struct {
	mu sync.Mutex
	w  *lumberjack.Logger
}

func NewOutbox(path string) *Outbox {
	return &Outbox{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			Compress:   true,
		},
	}
}

// Append writes one entry as a single JSON line.
func (o *Outbox) Append(entry OutboxEntry) error {
	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = time.Now()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append outbox entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Close()
}
