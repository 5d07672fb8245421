package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/barber-booking/internal/config"
)

// NeedsAWS reports whether any notification channel talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg != nil && (strings.TrimSpace(cfg.NotifyQueueURL) != "" || cfg.EmailProvider == "ses")
}

// LoadAWSConfig resolves region and credentials. Static keys win over the
// default chain when both are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}

// Clients holds the AWS service clients used by notification channels.
type Clients struct {
	SQS *sqs.Client
	SES *sesv2.Client
}

// NewClients builds the SQS and SES clients. A non-empty endpoint (LocalStack)
// replaces the service endpoint on both.
func NewClients(awsCfg aws.Config, endpoint string) Clients {
	endpoint = strings.TrimSpace(endpoint)
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return Clients{
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = base }),
		SES: sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) { o.BaseEndpoint = base }),
	}
}
