package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/barber-booking/internal/events"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender pushes event envelopes onto an SQS queue for downstream consumers.
type SQSSender struct {
	client   sqsAPI
	queueURL string
}

func NewSQSSender(client *sqs.Client, queueURL string) *SQSSender {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	return newSQSSenderWithClient(client, queueURL)
}

func newSQSSenderWithClient(client sqsAPI, queueURL string) *SQSSender {
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSSender{client: client, queueURL: queueURL}
}

func (s *SQSSender) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	env, err := events.NewEnvelope(events.AggregateFor(evt), evt, events.WithRecipient(userID))
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

var _ Sender = (*SQSSender)(nil)
