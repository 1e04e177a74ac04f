package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSettings configure delivery through the SendGrid v3 API.
type SendGridSettings struct {
	APIKey   string
	From     string
	FromName string
	Sandbox  bool
}

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

type sendGridMailer struct {
	cfg    SendGridSettings
	client sendGridClient
}

// NewSendGridMailer returns a Mailer backed by the SendGrid API.
func NewSendGridMailer(cfg SendGridSettings) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	return &sendGridMailer{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	env, err := prepareEnvelope("sendgrid", m.cfg.From, msg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := m.client.SendWithContext(ctx, m.build(env, msg))
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if resp == nil {
		return errors.New("sendgrid: empty response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

func (m *sendGridMailer) build(env envelope, msg Message) *sgmail.SGMailV3 {
	out := sgmail.NewV3Mail()
	out.SetFrom(sgmail.NewEmail(m.cfg.FromName, env.from))
	out.Subject = escapeHeader(msg.Subject)

	personalization := sgmail.NewPersonalization()
	for _, rcpt := range env.recipients {
		personalization.AddTos(sgmail.NewEmail("", rcpt))
	}
	out.AddPersonalizations(personalization)
	out.AddContent(sgmail.NewContent("text/plain", msg.Body))

	if m.cfg.Sandbox {
		settings := sgmail.NewMailSettings()
		settings.SetSandboxMode(sgmail.NewSetting(true))
		out.SetMailSettings(settings)
	}
	return out
}
