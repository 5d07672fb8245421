package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/barber-booking/pkg/logging"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers booking e-mails through the SendGrid v3 API.
type SendGridSender struct {
	api    sendgridAPI
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key so the caller can fall
// back to the memory mailer.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSenderWithAPI(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSenderWithAPI(api sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = "Barber Booking"
	}
	return &SendGridSender{
		api:    api,
		from:   mail.NewEmail(name, cfg.FromEmail),
		logger: logger.Component("notify.sendgrid"),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.api == nil {
		return fmt.Errorf("notify: sendgrid: not configured")
	}
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	resp, err := s.api.SendWithContext(ctx, mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html))
	if err != nil {
		s.logger.Error("sendgrid request failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected message", "status", resp.StatusCode, "to", msg.To, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)
