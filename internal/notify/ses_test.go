package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

type mockSES struct {
	SendEmailFunc func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
	calls         []*ses.SendEmailInput
}

func (m *mockSES) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	m.calls = append(m.calls, input)
	return m.SendEmailFunc(ctx, input)
}

func TestSESSender_Send(t *testing.T) {
	mock := &mockSES{
		SendEmailFunc: func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
			return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
		},
	}
	sender := NewSESSender(mock, logger.NewTestLogger(t))

	messageID, err := sender.Send(context.Background(), &Message{
		To:      "member@example.com",
		From:    "billing@example.com",
		Subject: "Your payment link",
		Body:    "https://pay.example.com/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", messageID)

	require.Len(t, mock.calls, 1)
	input := mock.calls[0]
	assert.Equal(t, []string{"member@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "billing@example.com", aws.ToString(input.Source))
	assert.Equal(t, "Your payment link", aws.ToString(input.Message.Subject.Data))
	// plain text message must not carry an HTML part
	require.NotNil(t, input.Message.Body.Text)
	assert.Nil(t, input.Message.Body.Html)
}

func TestSESSender_SendHTML(t *testing.T) {
	mock := &mockSES{
		SendEmailFunc: func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
			return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-2")}, nil
		},
	}
	sender := NewSESSender(mock, logger.NewNoOpLogger())

	_, err := sender.Send(context.Background(), &Message{
		To:     "member@example.com",
		From:   "billing@example.com",
		Body:   "<p>pay here</p>",
		IsHTML: true,
	})
	require.NoError(t, err)

	input := mock.calls[0]
	require.NotNil(t, input.Message.Body.Html)
	assert.Nil(t, input.Message.Body.Text)
}

func TestSESSender_SendFailure(t *testing.T) {
	mock := &mockSES{
		SendEmailFunc: func(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
			return nil, fmt.Errorf("throttled")
		},
	}
	sender := NewSESSender(mock, logger.NewNoOpLogger())

	_, err := sender.Send(context.Background(), &Message{
		To:   "member@example.com",
		From: "billing@example.com",
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotificationSendFailed))
	assert.True(t, errors.AsStandard(err).Retryable)
}

func TestSESSender_InvalidRecipient(t *testing.T) {
	sender := NewSESSender(&mockSES{}, logger.NewNoOpLogger())

	_, err := sender.Send(context.Background(), &Message{To: "not-an-email", From: "billing@example.com"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeArgumentMismatch))
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "member.42@mail.example.com", " padded@example.com "}
	for _, e := range valid {
		assert.True(t, isValidEmail(e), e)
	}
	invalid := []string{"", "plain", "@example.com", "a@", "a@nodot", "a@b@c.com"}
	for _, e := range invalid {
		assert.False(t, isValidEmail(e), e)
	}
}
