package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/barber-booking/internal/events"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// EmailSender delivers a single rendered message. SendGrid and SES both
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is provider-neutral. HTML is optional; Body is plain text.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// MemoryMailer records messages instead of delivering them. It backs the
// email channel in development and in tests.
type MemoryMailer struct {
	logger *logging.Logger

	mu     sync.Mutex
	outbox []EmailMessage
}

func NewMemoryMailer(logger *logging.Logger) *MemoryMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryMailer{logger: logger.Component("notify.mailer")}
}

func (m *MemoryMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()
	m.logger.Info("email captured", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Sent returns a snapshot of captured messages in send order.
func (m *MemoryMailer) Sent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailMessage, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// EmailChannel renders booking events into e-mails for the recipient.
type EmailChannel struct {
	mailer    EmailSender
	directory Directory
	logger    *logging.Logger
}

func NewEmailChannel(mailer EmailSender, directory Directory, logger *logging.Logger) *EmailChannel {
	if mailer == nil || directory == nil {
		panic("notify: mailer and directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailChannel{mailer: mailer, directory: directory, logger: logger}
}

func (c *EmailChannel) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	subject, body, ok := renderEmail(evt)
	if !ok {
		return nil
	}
	contact, err := c.directory.Lookup(ctx, userID)
	switch {
	case errors.Is(err, ErrNoContact):
		c.logger.Debug("no email contact, skipping", "user_id", userID, "event_type", evt.EventType())
		return nil
	case err != nil:
		return fmt.Errorf("notify: lookup contact: %w", err)
	}
	return c.mailer.Send(ctx, EmailMessage{To: contact.Email, ToName: contact.Name, Subject: subject, Body: body})
}

func renderEmail(evt events.CanonicalEvent) (subject, body string, ok bool) {
	switch e := evt.(type) {
	case events.BookingCreatedV1:
		body = fmt.Sprintf("Your appointment on %s at %s is booked.", e.LocalDate, e.LocalTime)
		if e.PointsDebited > 0 {
			body += fmt.Sprintf(" %d points were used.", e.PointsDebited)
		}
		return "Appointment booked", body, true
	case events.BookingCanceledV1:
		body = fmt.Sprintf("The appointment on %s at %s was canceled.", e.LocalDate, e.LocalTime)
		if e.PointsRefunded > 0 {
			body += fmt.Sprintf(" %d points were returned to the client.", e.PointsRefunded)
		}
		return "Appointment canceled", body, true
	case events.BookingStatusChangedV1:
		return "Appointment updated", fmt.Sprintf("Your appointment is now %s.", strings.ToLower(e.To)), true
	}
	return "", "", false
}

var (
	_ EmailSender = (*MemoryMailer)(nil)
	_ Sender      = (*EmailChannel)(nil)
)
