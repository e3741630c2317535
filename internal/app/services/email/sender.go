// Package email delivers transactional e-mail.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"sync"

	"github.com/resend/resend-go/v2"

	"github.com/seanotes/seanotes/internal/logging"
)

// Message is a rendered e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
	CheckConfiguration(ctx context.Context) error
}

// ResendConfig configures the Resend adapter.
type ResendConfig struct {
	APIKey string
	From   string
	// BaseURL overrides the API endpoint, used against test servers.
	BaseURL string
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	log    *logging.Logger
}

// NewResendSender validates cfg and builds a client.
func NewResendSender(cfg ResendConfig, log *logging.Logger) (*ResendSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("resend api key is not configured")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", cfg.From, err)
	}
	if log == nil {
		log = logging.NewDefault("email")
	}
	client := resend.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = base
	}
	return &ResendSender{client: client, from: cfg.From, log: log}, nil
}

func (s *ResendSender) Enabled() bool { return true }

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}
	resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.log.WithFields(map[string]interface{}{
		"email_id": resp.Id,
		"subject":  msg.Subject,
	}).Info("Email sent")
	return nil
}

// CheckConfiguration only validates local settings; sending keys may not read account data.
func (s *ResendSender) CheckConfiguration(context.Context) error {
	if s.from == "" {
		return fmt.Errorf("sender address is not configured")
	}
	return nil
}

// DisabledSender logs and drops every message.
type DisabledSender struct {
	log *logging.Logger
}

// NewDisabledSender returns a sender used when e-mail integration is off.
func NewDisabledSender(log *logging.Logger) *DisabledSender {
	if log == nil {
		log = logging.NewDefault("email")
	}
	return &DisabledSender{log: log}
}

func (s *DisabledSender) Enabled() bool { return false }

func (s *DisabledSender) Send(_ context.Context, msg Message) error {
	s.log.WithField("subject", msg.Subject).Debug("Email integration disabled; message dropped")
	return nil
}

func (s *DisabledSender) CheckConfiguration(context.Context) error {
	return fmt.Errorf("email integration is disabled")
}

// MemorySender keeps messages in memory. Used for local development and tests.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by Send.
	Err error
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Enabled() bool { return true }

func (s *MemorySender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *MemorySender) CheckConfiguration(context.Context) error { return nil }

// Messages returns the messages sent so far.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Last returns the most recent message.
func (s *MemorySender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
