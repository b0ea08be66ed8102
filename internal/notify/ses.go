package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

// sesAPI is the slice of the SES client used by the sender; tests provide
// a mock.
type sesAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SESSender delivers messages through Amazon SES.
type SESSender struct {
	client sesAPI
	logger logger.Logger
}

func NewSESSender(client sesAPI, log logger.Logger) *SESSender {
	return &SESSender{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "ses-sender"}),
	}
}

func (s *SESSender) Send(ctx context.Context, msg *Message) (string, error) {
	if !isValidEmail(msg.To) {
		return "", errors.NewArgumentMismatchError(fmt.Sprintf("invalid 'to' email address: %s", msg.To))
	}

	body := &types.Body{}
	if msg.IsHTML {
		body.Html = &types.Content{Data: aws.String(msg.Body)}
	} else {
		body.Text = &types.Content{Data: aws.String(msg.Body)}
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body:    body,
		},
		Source: aws.String(msg.From),
	})
	if err != nil {
		return "", errors.NewNotificationSendFailedError(msg.To, err)
	}

	messageID := aws.ToString(out.MessageId)
	s.logger.Info("email sent", map[string]interface{}{
		"to":        msg.To,
		"messageId": messageID,
	})
	return messageID, nil
}
