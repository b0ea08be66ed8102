// Package notify delivers payment links to members and raises ops alerts
// when a delivery run degrades.
package notify

import (
	"context"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
	IsHTML  bool
}

// Sender delivers a single message and returns a provider message id.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
