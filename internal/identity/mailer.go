package identity

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer delivers password-reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes the link to the log instead of sending mail. For
// development only: the link grants a password change.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	log.Printf("[mail] password reset for %s: %s", to, link)
	return nil
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	Addr     string // host:port
	User     string
	Password string
	From     string
}

func (m SMTPMailer) SendPasswordReset(_ context.Context, to, link string) error {
	var a smtp.Auth
	if m.User != "" {
		host := m.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		a = smtp.PlainAuth("", m.User, m.Password, host)
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: Reset your password",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"A password reset was requested for your account.",
		"Open the link below to choose a new password:",
		"",
		link,
		"",
		"If you did not request this, ignore this message.",
	}, "\r\n")
	if err := smtp.SendMail(m.Addr, a, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}
