package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/logger"
)

// Message is a rendered email ready for any Sender.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SessionDetails describes a booked session from the recipient's point of view.
type SessionDetails struct {
	WithName     string
	Date         string
	Time         string
	TZOffset     string
	CalendarLink string
}

type Service interface {
	SendOTP(ctx context.Context, toEmail, toName, code string, expiresAt time.Time) error
	SendSessionBooked(ctx context.Context, toEmail, toName string, s SessionDetails) error
}

type Mailer struct {
	sender Sender
}

func NewMailer(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// New picks a sender from cfg: dev logging, MailerSend API, or SMTP.
func New(cfg config.EmailConfig) *Mailer {
	switch {
	case cfg.DevMode:
		logger.Info("Using development mailer")
		return NewMailer(NewDevSender())
	case cfg.MailerSendKey != "":
		logger.Info("Using MailerSend for email delivery")
		return NewMailer(NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom))
	default:
		logger.Info("Using SMTP for email delivery", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return NewMailer(NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FromName))
	}
}

func (m *Mailer) SendOTP(ctx context.Context, toEmail, toName, code string, expiresAt time.Time) error {
	return m.send(ctx, OTPMessage(toEmail, toName, code, expiresAt))
}

func (m *Mailer) SendSessionBooked(ctx context.Context, toEmail, toName string, s SessionDetails) error {
	return m.send(ctx, SessionBookedMessage(toEmail, toName, s))
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return fmt.Errorf("empty recipient email")
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}
	return nil
}

func OTPMessage(toEmail, toName, code string, expiresAt time.Time) Message {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	text := fmt.Sprintf("Hi %s,\n\nYour SpeakerHub verification code is %s.\nIt expires in %d minutes.", toName, code, minutes)
	html := fmt.Sprintf(`
		<h2>Verify your SpeakerHub account</h2>
		<p>Hi %s,</p>
		<p>Your verification code is: <strong style="font-size: 24px;">%s</strong></p>
		<p>This code will expire in %d minutes.</p>
		<p>If you didn't create an account with us, please ignore this email.</p>
	`, toName, code, minutes)

	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Your SpeakerHub verification code",
		Text:    text,
		HTML:    html,
	}
}

func SessionBookedMessage(toEmail, toName string, s SessionDetails) Message {
	when := fmt.Sprintf("%s at %s (UTC%s)", s.Date, s.Time, s.TZOffset)

	text := fmt.Sprintf("Hi %s,\n\nYour session with %s is booked for %s.", toName, s.WithName, when)
	link := ""
	if s.CalendarLink != "" {
		text += "\nCalendar event: " + s.CalendarLink
		link = fmt.Sprintf(`<p><a href="%s">Open in calendar</a></p>`, s.CalendarLink)
	}
	html := fmt.Sprintf(`
		<h2>Session booked</h2>
		<p>Hi %s,</p>
		<p>Your session with <strong>%s</strong> is booked for %s.</p>
		%s
	`, toName, s.WithName, when, link)

	return Message{
		ToEmail: toEmail,
		ToName:  toName,
		Subject: "Session booked with " + s.WithName,
		Text:    text,
		HTML:    html,
	}
}
