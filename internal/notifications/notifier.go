// Package notifications delivers onboarding messages to external channels.
// Delivery failure is never fatal to the caller's flow.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// Notification is a single message to one recipient.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over one channel type.
type Sender interface {
	// Send delivers a notification to a single recipient.
	Send(ctx context.Context, notification Notification) error

	// Type names the channel, e.g. "email".
	Type() string
}

const verificationTemplate = `Hi {{.Name}},

Welcome to Carify. Please confirm your email address to continue
registration:

{{.ConfirmURL}}

If you did not start a registration, you can ignore this message.
`

// Mailer renders and sends registration verification messages.
type Mailer struct {
	sender  Sender
	baseURL string
	tmpl    *template.Template
}

// NewMailer creates a mailer. baseURL is the public address used to build
// confirmation links.
func NewMailer(sender Sender, baseURL string) (*Mailer, error) {
	tmpl, err := template.New("verification").Parse(verificationTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse verification template: %w", err)
	}
	return &Mailer{
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tmpl:    tmpl,
	}, nil
}

// SendVerification sends the confirm-your-email message for a registration
// flow.
func (m *Mailer) SendVerification(ctx context.Context, name, email, flowID string) error {
	var body strings.Builder
	err := m.tmpl.Execute(&body, struct {
		Name       string
		ConfirmURL string
	}{
		Name:       name,
		ConfirmURL: fmt.Sprintf("%s/api/v1/auth/register/%s/confirm", m.baseURL, flowID),
	})
	if err != nil {
		return fmt.Errorf("render verification message: %w", err)
	}

	return m.sender.Send(ctx, Notification{
		To:      email,
		Subject: "Confirm your Carify registration",
		Body:    body.String(),
	})
}
