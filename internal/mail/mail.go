// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package mail delivers verification email over SMTP.
package mail

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net/url"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/turnstile-auth/turnstile/internal/auth"
)

// Config holds SMTP and message settings.
type Config struct {
	Host        string `koanf:"host" yaml:"host" json:"host"`
	Port        int    `koanf:"port" yaml:"port" json:"port" jsonschema:"minimum=0,maximum=65535"`
	Username    string `koanf:"username" yaml:"username" json:"username"`
	Password    string `koanf:"password" yaml:"password" json:"password"`
	SSL         bool   `koanf:"ssl" yaml:"ssl" json:"ssl"`
	FromName    string `koanf:"from_name" yaml:"from_name" json:"from_name"`
	FromAddress string `koanf:"from_address" yaml:"from_address" json:"from_address"`
	Subject     string `koanf:"subject" yaml:"subject" json:"subject"`
	VerifyURL   string `koanf:"verify_url" yaml:"verify_url" json:"verify_url"`
}

// DefaultConfig returns mail defaults. An empty Host selects the log mailer.
func DefaultConfig() Config {
	return Config{
		Port:        587,
		FromName:    "Turnstile",
		FromAddress: "no-reply@turnstile.local",
		Subject:     "Email Verification",
		VerifyURL:   "http://localhost:3000/verify-email",
	}
}

// Validate checks the settings needed to build links and, when SMTP is
// enabled, to reach the server.
func (c Config) Validate() error {
	u, err := url.Parse(c.VerifyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return oops.Code("MAIL_INVALID_CONFIG").With("verify_url", c.VerifyURL).Errorf("verify_url must be an absolute URL")
	}
	if c.Host == "" {
		return nil
	}
	if c.Port <= 0 {
		return oops.Code("MAIL_INVALID_CONFIG").With("port", c.Port).Errorf("smtp port must be positive")
	}
	if c.FromAddress == "" {
		return oops.Code("MAIL_INVALID_CONFIG").Errorf("from_address is required")
	}
	return nil
}

// VerifyLink returns the link a user follows to verify their email.
func (c Config) VerifyLink(token string) string {
	u, err := url.Parse(c.VerifyURL)
	if err != nil {
		return c.VerifyURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Sender sends composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer implements auth.Mailer with gomail.
type SMTPMailer struct {
	cfg    Config
	sender Sender
	now    func() time.Time
}

// Option configures an SMTPMailer.
type Option func(*SMTPMailer)

// WithSender replaces the SMTP dialer.
func WithSender(s Sender) Option {
	return func(m *SMTPMailer) { m.sender = s }
}

// NewSMTPMailer creates a mailer that dials cfg.Host for every message.
func NewSMTPMailer(cfg Config, opts ...Option) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	m := &SMTPMailer{cfg: cfg, sender: d, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendVerification composes and sends the verification message.
func (m *SMTPMailer) SendVerification(ctx context.Context, mail auth.VerificationMail) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("operation", "send verification").Wrap(err)
	}

	msg, err := m.compose(mail)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSend(msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send verification").
			With("host", m.cfg.Host).
			Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) compose(mail auth.VerificationMail) (*gomail.Message, error) {
	data := verificationData{
		Name:    mail.Name,
		Link:    m.cfg.VerifyLink(mail.Token),
		Expires: mail.ExpiresAt.UTC().Format(time.RFC1123),
	}
	var text, html bytes.Buffer
	if err := verificationText.Execute(&text, data); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").With("format", "text").Wrap(err)
	}
	if err := verificationHTML.Execute(&html, data); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").With("format", "html").Wrap(err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	msg.SetAddressHeader("To", mail.To, mail.Name)
	msg.SetHeader("Subject", m.cfg.Subject)
	msg.SetDateHeader("Date", m.now())
	msg.SetBody("text/plain", text.String())
	msg.AddAlternative("text/html", html.String())
	return msg, nil
}

type verificationData struct {
	Name    string
	Link    string
	Expires string
}

var verificationText = texttemplate.Must(texttemplate.New("text").Parse(
	`Hi {{.Name}},

Please verify your email address by opening the link below:

{{.Link}}

The link expires at {{.Expires}}.
`))

var verificationHTML = template.Must(template.New("html").Parse(
	`<p>Hi {{.Name}},</p>
<p>Please verify your email address by clicking the link below:</p>
<p><a href="{{.Link}}">Verify Email</a></p>
<p>The link expires at {{.Expires}}.</p>
`))

// LogMailer writes the verification link to the log instead of sending it.
// Used when no SMTP host is configured.
type LogMailer struct {
	cfg    Config
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(cfg Config, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{cfg: cfg, logger: logger}
}

// SendVerification logs the link.
func (m *LogMailer) SendVerification(ctx context.Context, mail auth.VerificationMail) error {
	m.logger.InfoContext(ctx, "verification mail not sent, smtp disabled",
		"to", mail.To,
		"link", m.cfg.VerifyLink(mail.Token),
		"expires_at", mail.ExpiresAt)
	return nil
}

// New returns an SMTPMailer, or a LogMailer when cfg.Host is empty.
func New(cfg Config, logger *slog.Logger) auth.Mailer {
	if cfg.Host == "" {
		return NewLogMailer(cfg, logger)
	}
	return NewSMTPMailer(cfg)
}

var (
	_ auth.Mailer = (*SMTPMailer)(nil)
	_ auth.Mailer = (*LogMailer)(nil)
)
