package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/barber-booking/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestNewClientsEndpointOverride(t *testing.T) {
	awsCfg := aws.Config{Region: "us-east-1"}

	local := NewClients(awsCfg, " http://localhost:4566 ")
	require.NotNil(t, local.SQS)
	require.NotNil(t, local.SES)
	assert.Equal(t, "http://localhost:4566", aws.ToString(local.SQS.Options().BaseEndpoint))
	assert.Equal(t, "http://localhost:4566", aws.ToString(local.SES.Options().BaseEndpoint))

	prod := NewClients(awsCfg, "")
	assert.Nil(t, prod.SQS.Options().BaseEndpoint)
	assert.Nil(t, prod.SES.Options().BaseEndpoint)
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, NeedsAWS(nil))
	assert.False(t, NeedsAWS(&appconfig.Config{EmailProvider: "sendgrid"}))
	assert.True(t, NeedsAWS(&appconfig.Config{EmailProvider: "ses"}))
	assert.True(t, NeedsAWS(&appconfig.Config{NotifyQueueURL: "https://sqs.example/q"}))
}
