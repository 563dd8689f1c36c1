package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/portunus-id/portunus/account"
	"github.com/portunus-id/portunus/mfa"
)

//go:embed templates/*
var templateFS embed.FS

const (
	TemplateResetPassword = "reset_password"
	TemplateNewAccount    = "new_account"
	TemplateLockout       = "lockout"
	TemplateChangeEmail   = "change_email"
	TemplateMfaCode       = "mfa_code"
	TemplateAccountNotice = "account_notice"
)

var templateNames = []string{
	TemplateResetPassword,
	TemplateNewAccount,
	TemplateLockout,
	TemplateChangeEmail,
	TemplateMfaCode,
	TemplateAccountNotice,
}

// Data is the template context.
type Data struct {
	Email        string
	URL          string
	Code         string
	Notice       string
	ValidFor     string
	SupportEmail string
}

// Config sets sender identity.
type Config struct {
	From         string
	SupportEmail string
}

// Mailer renders named templates and hands them to a Transport.
type Mailer struct {
	cfg       Config
	transport Transport
	text      map[string]*texttemplate.Template
	html      map[string]*htmltemplate.Template
}

// New parses every embedded template up front.
func New(cfg Config, transport Transport) (*Mailer, error) {
	if transport == nil {
		return nil, fmt.Errorf("mailer: transport required")
	}
	m := &Mailer{
		cfg:       cfg,
		transport: transport,
		text:      make(map[string]*texttemplate.Template, len(templateNames)),
		html:      make(map[string]*htmltemplate.Template, len(templateNames)),
	}
	for _, name := range templateNames {
		tt, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt", "templates/footer.txt")
		if err != nil {
			return nil, fmt.Errorf("mailer: parse %s.txt: %w", name, err)
		}
		ht, err := htmltemplate.ParseFS(templateFS, "templates/"+name+".html", "templates/footer.html")
		if err != nil {
			return nil, fmt.Errorf("mailer: parse %s.html: %w", name, err)
		}
		m.text[name], m.html[name] = tt, ht
	}
	return m, nil
}

// Send renders template with data and delivers it to the recipients.
func (m *Mailer) Send(ctx context.Context, to []string, subject, template string, data Data) error {
	tt, ok := m.text[template]
	if !ok {
		return fmt.Errorf("mailer: unknown template %q", template)
	}
	if data.SupportEmail == "" {
		data.SupportEmail = m.cfg.SupportEmail
	}

	var text, html bytes.Buffer
	if err := tt.ExecuteTemplate(&text, template+".txt", data); err != nil {
		return fmt.Errorf("mailer: render %s: %w", template, err)
	}
	if err := m.html[template].ExecuteTemplate(&html, template+".html", data); err != nil {
		return fmt.Errorf("mailer: render %s: %w", template, err)
	}

	return m.transport.Deliver(ctx, Message{
		From:    m.cfg.From,
		To:      to,
		Subject: subject,
		Text:    strings.TrimSpace(text.String()) + "\n",
		HTML:    html.String(),
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, url string, validFor time.Duration) error {
	return m.Send(ctx, []string{to}, "Password Reset Request", TemplateResetPassword,
		Data{Email: to, URL: url, ValidFor: humanize(validFor)})
}

func (m *Mailer) SendAccountCreated(ctx context.Context, to, url string) error {
	return m.Send(ctx, []string{to}, "Account Created", TemplateNewAccount, Data{Email: to, URL: url})
}

func (m *Mailer) SendLockout(ctx context.Context, to, url string) error {
	return m.Send(ctx, []string{to}, "Account Locked", TemplateLockout, Data{Email: to, URL: url})
}

// SendChangeEmail goes to the new address.
func (m *Mailer) SendChangeEmail(ctx context.Context, newEmail, url string, validFor time.Duration) error {
	return m.Send(ctx, []string{newEmail}, "Confirm Email Change", TemplateChangeEmail,
		Data{Email: newEmail, URL: url, ValidFor: humanize(validFor)})
}

func (m *Mailer) SendMfaCode(ctx context.Context, to, code string, validFor time.Duration) error {
	return m.Send(ctx, []string{to}, "Your Security Code", TemplateMfaCode,
		Data{Email: to, Code: code, ValidFor: humanize(validFor)})
}

func (m *Mailer) SendAccountNotice(ctx context.Context, to, subject, notice string) error {
	return m.Send(ctx, []string{to}, "Account Notice: "+subject, TemplateAccountNotice,
		Data{Email: to, Notice: notice})
}

// MfaSender delivers security codes by email.
func (m *Mailer) MfaSender(validFor time.Duration) mfa.Sender {
	return mfa.SenderFunc(func(ctx context.Context, user account.User, code string) error {
		return m.SendMfaCode(ctx, user.Email, code, validFor)
	})
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d.Round(time.Second)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
