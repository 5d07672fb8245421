package bootstrap

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/internal/notify"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// NotifierDeps are the optional collaborators of the notification channels.
type NotifierDeps struct {
	SQS       *sqs.Client
	SES       *sesv2.Client
	Directory notify.Directory
	Metrics   *metrics.BookingMetrics

	// Mailer overrides the configured e-mail provider.
	Mailer notify.EmailSender
}

// Notifications is the running dispatcher plus the channels behind it.
type Notifications struct {
	Dispatcher *notify.Dispatcher
	Channels   []string
	amqp       *notify.AMQPSender
}

// Close drains queued notifications, then closes the broker connection.
func (n *Notifications) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	var errs []error
	if n.Dispatcher != nil {
		errs = append(errs, n.Dispatcher.Close(ctx))
	}
	if n.amqp != nil {
		errs = append(errs, n.amqp.Close())
	}
	return errors.Join(errs...)
}

// BuildNotifier assembles the fan-out sender from the configured channels
// and starts the dispatcher. Channels that fail to connect are logged and
// skipped; the log channel is always present.
func BuildNotifier(cfg *appconfig.Config, deps NotifierDeps, logger *logging.Logger) (*Notifications, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	out := &Notifications{}
	senders := notify.MultiSender{notify.NewLogSender(logger)}
	out.Channels = append(out.Channels, "log")

	if cfg.RabbitMQURL != "" {
		sender, err := notify.NewAMQPSender(cfg.RabbitMQURL, cfg.NotifyExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq not available, broker notifications disabled", "error", err)
		} else {
			out.amqp = sender
			senders = append(senders, sender)
			out.Channels = append(out.Channels, "amqp")
		}
	}

	if cfg.NotifyQueueURL != "" && deps.SQS != nil {
		senders = append(senders, notify.NewSQSSender(deps.SQS, cfg.NotifyQueueURL))
		out.Channels = append(out.Channels, "sqs")
	}

	if mailer, name := buildMailer(cfg, deps, logger); mailer != nil {
		if deps.Directory == nil {
			logger.Warn("email provider configured without a contact directory, email disabled", "provider", name)
		} else {
			senders = append(senders, notify.NewEmailChannel(mailer, deps.Directory, logger))
			out.Channels = append(out.Channels, "email:"+name)
		}
	}

	out.Dispatcher = notify.NewDispatcher(senders, cfg.NotifyWorkers, cfg.NotifyQueueSize, logger).
		WithMetrics(deps.Metrics)
	out.Dispatcher.Start()
	logger.Info("notifications configured", "channels", out.Channels)
	return out, nil
}

func buildMailer(cfg *appconfig.Config, deps NotifierDeps, logger *logging.Logger) (notify.EmailSender, string) {
	if deps.Mailer != nil {
		return deps.Mailer, "custom"
	}
	switch cfg.EmailProvider {
	case "ses":
		if sender := notify.NewSESSender(deps.SES, notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.SESFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger); sender != nil {
			return sender, "ses"
		}
		logger.Warn("EMAIL_PROVIDER=ses without an SES client")
	case "", "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender, "sendgrid"
		}
	default:
		logger.Warn("unknown EMAIL_PROVIDER", "provider", cfg.EmailProvider)
	}
	if cfg.Env == "development" {
		return notify.NewMemoryMailer(logger), "memory"
	}
	return nil, ""
}
