package mailer

import (
	"context"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(host string, port int, user, pass, from, fromName string) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(strings.TrimSpace(host), port, strings.TrimSpace(user), strings.TrimSpace(pass)),
		from:     strings.TrimSpace(from),
		fromName: fromName,
	}
}

// Send ignores ctx; gomail dials synchronously without cancellation.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	m := s.build(msg)
	return s.dialer.DialAndSend(m)
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.ToEmail, msg.ToName)
	} else {
		m.SetHeader("To", msg.ToEmail)
	}
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
		if msg.Text != "" {
			m.AddAlternative("text/plain", msg.Text)
		}
	} else {
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
