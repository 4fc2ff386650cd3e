package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSService is the subset of *sns.Client used for SMS alerts.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func loadConfig(ctx context.Context, region string) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(region))
}

func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(cfg), nil
}

// SMSInput targets a topic when topicARN is set, otherwise a single phone number.
func SMSInput(topicARN, phone, message string) *sns.PublishInput {
	in := &sns.PublishInput{Message: aws.String(message)}
	if topicARN != "" {
		in.TopicArn = aws.String(topicARN)
	} else {
		in.PhoneNumber = aws.String(phone)
	}
	return in
}
