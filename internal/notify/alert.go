package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"membership-billing/internal/common/logger"
)

// snsAPI is the slice of the SNS client the alerter needs.
type snsAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSAlerter publishes an ops summary when a delivery run finishes with
// failures. Alerting failures are logged, never propagated.
type SNSAlerter struct {
	client   snsAPI
	topicARN string
	logger   logger.Logger
}

func NewSNSAlerter(client snsAPI, topicARN string, log logger.Logger) *SNSAlerter {
	return &SNSAlerter{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "sns-alerter"}),
	}
}

// AlertRunDegraded publishes a summary of a partially failed delivery run.
func (a *SNSAlerter) AlertRunDegraded(ctx context.Context, period string, total, failed int) {
	message := fmt.Sprintf(
		"payment link delivery for period %s finished degraded: %d of %d sends failed",
		period, failed, total)

	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String("payment link delivery degraded"),
		Message:  aws.String(message),
	})
	if err != nil {
		a.logger.Error("failed to publish ops alert", map[string]interface{}{
			"period": period,
			"error":  err.Error(),
		})
		return
	}
	a.logger.Warn("ops alert published", map[string]interface{}{
		"period": period,
		"failed": failed,
	})
}
