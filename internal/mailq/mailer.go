// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package mailq

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Message is a fully rendered outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages. The worker retries on error, so
// implementations should return transient failures rather than swallow them.
type Mailer interface {
	Send(message Message) error
}

// BuildMessage renders the template for a job.
func BuildMessage(job Job) (Message, error) {
	switch job.Type {
	case JobVerifyEmail:
		return Message{
			To:      job.Email,
			Subject: "Verify your Sentra account",
			Body: fmt.Sprintf(
				"Hi %s,\n\nWelcome to Sentra! Please confirm your email address by opening the link below:\n\n%s\n\nIf you did not create this account, you can ignore this message.\n",
				job.Username, job.Link),
		}, nil
	case JobForgotPassword:
		return Message{
			To:      job.Email,
			Subject: "Reset your Sentra password",
			Body: fmt.Sprintf(
				"Hi %s,\n\nA password reset was requested for your account. The link below is valid for 10 minutes and works exactly once:\n\n%s\n\nIf you did not request this, your password is still safe and no action is needed.\n",
				job.Username, job.Link),
		}, nil
	default:
		return Message{}, fmt.Errorf("mailq: unknown job type %q", job.Type)
	}
}

// # SMTP Mailer

// SMTPMailer delivers messages over plain SMTP with optional AUTH.
type SMTPMailer struct {
	host string
	port int
	auth smtp.Auth
	from string
}

// NewSMTPMailer creates an SMTPMailer. Username may be empty for
// unauthenticated relays (local development against a catch-all).
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	return &SMTPMailer{host: host, port: port, auth: auth, from: from}
}

// Send delivers one message.
func (mailer *SMTPMailer) Send(message Message) error {
	var payload strings.Builder
	payload.WriteString("From: " + mailer.from + "\r\n")
	payload.WriteString("To: " + message.To + "\r\n")
	payload.WriteString("Subject: " + message.Subject + "\r\n")
	payload.WriteString("MIME-Version: 1.0\r\n")
	payload.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	payload.WriteString("\r\n")
	payload.WriteString(message.Body)

	address := fmt.Sprintf("%s:%d", mailer.host, mailer.port)
	if err := smtp.SendMail(address, mailer.auth, mailer.from, []string{message.To}, []byte(payload.String())); err != nil {
		return fmt.Errorf("mailq_smtp_send_failed: %w", err)
	}

	return nil
}
