package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barber-booking/internal/events"
)

type fakeSendGrid struct {
	msgs   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.msgs = append(f.msgs, m)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSenderNeedsAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Barber Booking", sender.from.Name)
}

func TestSendGridSenderSend(t *testing.T) {
	api := &fakeSendGrid{status: 202}
	sender := newSendGridSenderWithAPI(api, SendGridConfig{FromEmail: "noreply@barber.test", FromName: "Shop"}, nil)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com", ToName: "Ana", Subject: "Hi", Body: "plain"}))
	require.Len(t, api.msgs, 1)
	msg := api.msgs[0]
	assert.Equal(t, "Shop", msg.From.Name)
	assert.Equal(t, "Hi", msg.Subject)
	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "ana@example.com", msg.Personalizations[0].To[0].Address)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "plain", msg.Content[1].Value)

	api.status = 401
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}), "status 401")

	api.err = errors.New("dial tcp: timeout")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}))
}

func TestSendGridSenderUnconfigured(t *testing.T) {
	var sender *SendGridSender
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}))
}

func TestMemoryMailerRecords(t *testing.T) {
	mailer := NewMemoryMailer(nil)
	require.NoError(t, mailer.Send(context.Background(), EmailMessage{To: "recipient@example.com", Subject: "Test"}))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	sent[0].To = "mutated"
	assert.Equal(t, "recipient@example.com", mailer.Sent()[0].To)
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := newSESSenderWithClient(client, SESConfig{FromEmail: "noreply@barber.test"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "Hi", Body: "plain"})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, `"Barber Booking" <noreply@barber.test>`, aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ana@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "plain", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Nil(t, in.Content.Simple.Body.Html)
	assert.Nil(t, in.ConfigurationSetName)

	client.err = errors.New("throttled")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com"}))
	assert.Error(t, sender.Send(context.Background(), EmailMessage{}))
}

func TestSESSenderNamedRecipientAndConfigSet(t *testing.T) {
	client := &fakeSES{}
	sender := newSESSenderWithClient(client, SESConfig{FromEmail: "noreply@barber.test", FromName: "Shop", ConfigurationSet: "bookings"}, nil)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "ana@example.com", ToName: "Ana", Subject: "Hi", HTML: "<p>hi</p>"}))
	in := client.inputs[0]
	assert.Equal(t, []string{`"Ana" <ana@example.com>`}, in.Destination.ToAddresses)
	assert.Equal(t, "bookings", aws.ToString(in.ConfigurationSetName))
	assert.Nil(t, in.Content.Simple.Body.Text)
	assert.Equal(t, "<p>hi</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestEmailChannelRendersBookingEvents(t *testing.T) {
	stub := NewMemoryMailer(nil)
	dir := NewMemoryDirectory()
	dir.Put("client-1", Contact{Email: "ana@example.com", Name: "Ana"})
	channel := NewEmailChannel(stub, dir, nil)
	ctx := context.Background()

	require.NoError(t, channel.Send(ctx, "client-1", events.BookingCreatedV1{
		AppointmentID: "appt-1", LocalDate: "2026-03-02", LocalTime: "09:00", PointsDebited: 10,
	}))
	require.NoError(t, channel.Send(ctx, "client-1", events.BookingCanceledV1{
		AppointmentID: "appt-1", LocalDate: "2026-03-02", LocalTime: "09:00",
	}))
	require.NoError(t, channel.Send(ctx, "client-1", events.BookingStatusChangedV1{AppointmentID: "appt-1", To: "CONFIRMED"}))

	sent := stub.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Equal(t, "Ana", sent[0].ToName)
	assert.Equal(t, "Appointment booked", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "2026-03-02 at 09:00")
	assert.Contains(t, sent[0].Body, "10 points")
	assert.Equal(t, "Appointment canceled", sent[1].Subject)
	assert.NotContains(t, sent[1].Body, "points")
	assert.Contains(t, sent[2].Body, "confirmed")
}

func TestEmailChannelSkipsUnknownContacts(t *testing.T) {
	stub := NewMemoryMailer(nil)
	channel := NewEmailChannel(stub, NewMemoryDirectory(), nil)

	require.NoError(t, channel.Send(context.Background(), "ghost", events.BookingCreatedV1{AppointmentID: "appt-1"}))
	assert.Empty(t, stub.Sent())
}
