// Package consumer turns domain events into notification emails.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/mailer"
	"golang.org/x/sync/errgroup"
)

const (
	QueueGroup = "notify"

	KindOTP           = "otp"
	KindSessionBooked = "session_booked"
)

type EmailRecorder interface {
	RecordEmailSent(kind string, ok bool)
}

type Consumer struct {
	mailer      mailer.Service
	metrics     EmailRecorder
	sendTimeout time.Duration
}

func New(m mailer.Service, rec EmailRecorder, sendTimeout time.Duration) *Consumer {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Consumer{mailer: m, metrics: rec, sendTimeout: sendTimeout}
}

// Register subscribes every handler in the shared queue group so replicas split the work.
func (c *Consumer) Register(sub events.Subscriber) error {
	handlers := map[string]func(*events.Message){
		events.UserRegistered: c.HandleOTP,
		events.OTPIssued:      c.HandleOTP,
		events.SessionBooked:  c.HandleSessionBooked,
	}
	for subject, h := range handlers {
		if err := sub.QueueSubscribe(subject, QueueGroup, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		logger.Info("Subscribed", "subject", subject, "queue", QueueGroup)
	}
	return nil
}

// HandleOTP mails the passcode and acks the outcome so the auth service
// can fall back to mailing it itself.
func (c *Consumer) HandleOTP(msg *events.Message) {
	err := c.sendOTP(msg)
	if ackErr := msg.Ack(err); ackErr != nil {
		logger.Warn("Failed to ack otp event", "error", ackErr, "event_id", msg.ID)
	}
}

func (c *Consumer) sendOTP(msg *events.Message) error {
	var evt events.OTPEvent
	if err := msg.Decode(&evt); err != nil {
		logger.Error("Dropping malformed otp event", "error", err, "event_id", msg.ID)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	err := c.mailer.SendOTP(ctx, evt.Email, evt.FirstName, evt.Code, evt.ExpiresAt)
	c.metrics.RecordEmailSent(KindOTP, err == nil)
	if err != nil {
		logger.Error("Failed to send otp email", "error", err, "user_id", evt.UserID, "event_id", msg.ID)
		return err
	}
	logger.Info("OTP email sent", "user_id", evt.UserID, "subject", msg.Subject)
	return nil
}

// HandleSessionBooked mails both participants; each copy names the other party.
func (c *Consumer) HandleSessionBooked(msg *events.Message) {
	var evt events.SessionBookedEvent
	if err := msg.Decode(&evt); err != nil {
		logger.Error("Dropping malformed session event", "error", err, "event_id", msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	details := func(with string) mailer.SessionDetails {
		return mailer.SessionDetails{
			WithName:     with,
			Date:         evt.Date,
			Time:         evt.Time,
			TZOffset:     evt.TZOffset,
			CalendarLink: evt.CalendarLink,
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		err := c.mailer.SendSessionBooked(ctx, evt.UserEmail, evt.UserName, details(evt.SpeakerName))
		c.metrics.RecordEmailSent(KindSessionBooked, err == nil)
		return err
	})
	g.Go(func() error {
		err := c.mailer.SendSessionBooked(ctx, evt.SpeakerEmail, evt.SpeakerName, details(evt.UserName))
		c.metrics.RecordEmailSent(KindSessionBooked, err == nil)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("Failed to send session confirmation", "error", err, "session_id", evt.SessionID)
		return
	}
	logger.Info("Session confirmations sent", "session_id", evt.SessionID)
}
