package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/examcell/smartboard/pkg/mail"
)

const (
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
)

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	Provider      string         `mapstructure:"provider"`
	From          string         `mapstructure:"from"`
	TestRecipient string         `mapstructure:"test_recipient"`
	SMTP          SMTPConfig     `mapstructure:"smtp"`
	SendGrid      SendGridConfig `mapstructure:"sendgrid"`
	Breaker       BreakerConfig  `mapstructure:"breaker"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SendGridConfig holds SendGrid API credentials.
type SendGridConfig struct {
	APIKey   string `mapstructure:"api_key"`
	FromName string `mapstructure:"from_name"`
	Sandbox  bool   `mapstructure:"sandbox"`
}

// BreakerConfig tunes the circuit breaker around the mail transport.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
}

// Sender returns the From address, falling back to the SMTP username.
func (c EmailConfig) Sender() string {
	if from := strings.TrimSpace(c.From); from != "" {
		return from
	}
	return strings.TrimSpace(c.SMTP.Username)
}

// Recipient returns the address that receives configuration test messages.
func (c EmailConfig) Recipient() string {
	if to := strings.TrimSpace(c.TestRecipient); to != "" {
		return to
	}
	return c.Sender()
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.Sender(),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// SendGridSettings converts EmailConfig to the SendGrid transport settings.
func (c EmailConfig) SendGridSettings() mail.SendGridSettings {
	return mail.SendGridSettings{
		APIKey:   c.SendGrid.APIKey,
		From:     c.Sender(),
		FromName: c.SendGrid.FromName,
		Sandbox:  c.SendGrid.Sandbox,
	}
}

// BuildMailer constructs the configured transport, wrapped in a circuit
// breaker when enabled. onStateChange observes breaker transitions.
func (c EmailConfig) BuildMailer(onStateChange func(name, from, to string)) (mail.Mailer, error) {
	var (
		transport mail.Mailer
		err       error
	)

	switch provider := strings.ToLower(strings.TrimSpace(c.Provider)); provider {
	case "", MailProviderSMTP:
		transport, err = mail.NewSMTPMailer(c.SMTPSettings())
	case MailProviderSendGrid:
		transport, err = mail.NewSendGridMailer(c.SendGridSettings())
	default:
		return nil, fmt.Errorf("email: unsupported provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	if !c.Breaker.Enabled {
		return transport, nil
	}
	return mail.WithCircuitBreaker(transport, mail.BreakerSettings{
		Name:                "mail-" + strings.ToLower(strings.TrimSpace(c.Provider)),
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
		OpenTimeout:         c.Breaker.OpenTimeout,
		HalfOpenRequests:    c.Breaker.HalfOpenRequests,
		OnStateChange:       onStateChange,
	}), nil
}
