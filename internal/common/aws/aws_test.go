package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
)

func TestSMSInput(t *testing.T) {
	topic := SMSInput("arn:aws:sns:us-east-1:123:alerts", "+15550100", "hello")
	assert.Equal(t, "arn:aws:sns:us-east-1:123:alerts", aws.ToString(topic.TopicArn))
	assert.Nil(t, topic.PhoneNumber)

	direct := SMSInput("", "+15550100", "hello")
	assert.Equal(t, "+15550100", aws.ToString(direct.PhoneNumber))
	assert.Nil(t, direct.TopicArn)
	assert.Equal(t, "hello", aws.ToString(direct.Message))
}

func TestEmailInput(t *testing.T) {
	in := EmailInput("alerts@example.com", []string{"ops@example.com"}, "subj", "body")

	assert.Equal(t, "alerts@example.com", aws.ToString(in.Source))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "subj", aws.ToString(in.Message.Subject.Data))
	assert.Equal(t, "body", aws.ToString(in.Message.Body.Text.Data))
}
