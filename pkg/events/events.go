package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

// Requester delivers a message to one subscriber and waits for its Ack.
// A nil error means a handler received the message and reported success.
type Requester interface {
	Request(ctx context.Context, subject string, data interface{}) error
}

type EventBus interface {
	Publisher
	Requester
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string

	// Respond is set when the sender is waiting for a reply.
	Respond func(data []byte) error
}

// Ack is the reply to a Request.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Ack reports the outcome to a waiting requester. Plain published
// messages have no one to answer and Ack does nothing.
func (m *Message) Ack(handlerErr error) error {
	if m.Respond == nil {
		return nil
	}
	ack := Ack{OK: handlerErr == nil}
	if handlerErr != nil {
		ack.Error = handlerErr.Error()
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	return m.Respond(payload)
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Subject, err)
	}
	return nil
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	msg, err := newMsg(ctx, subject, data)
	if err != nil {
		return err
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)
	return n.conn.PublishMsg(msg)
}

// Request fails with nats.ErrNoResponders when nobody is subscribed and with
// the context error when no reply arrives in time.
func (n *NATSEventBus) Request(ctx context.Context, subject string, data interface{}) error {
	msg, err := newMsg(ctx, subject, data)
	if err != nil {
		return err
	}

	logger.DebugContext(ctx, "Requesting event delivery", "subject", subject)
	reply, err := n.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}

	var ack Ack
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return fmt.Errorf("decode ack for %s: %w", subject, err)
	}
	if !ack.OK {
		return fmt.Errorf("%s not handled: %s", subject, ack.Error)
	}
	return nil
}

func newMsg(ctx context.Context, subject string, data interface{}) (*nats.Msg, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, uuid.New().String())
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		msg.Header.Set("X-Request-ID", rid)
	}
	return msg, nil
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

// Close drains pending messages before closing the connection.
func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func toMessage(msg *nats.Msg) *Message {
	id := ""
	if msg.Header != nil {
		id = msg.Header.Get(nats.MsgIdHdr)
	}
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	m := &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
	if msg.Reply != "" {
		m.Respond = msg.Respond
	}
	return m
}

// NopPublisher drops every event. Services fall back to it when NATS is unreachable.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error { return nil }

const (
	UserRegistered        = "user.registered"
	OTPIssued             = "otp.issued"
	SpeakerProfileCreated = "speaker.profile_created"
	SessionBooked         = "session.booked"
)

// OTPEvent carries the plain code to the notify service; it is never persisted.
type OTPEvent struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SpeakerProfileCreatedEvent struct {
	SpeakerID       int64     `json:"speaker_id"`
	Expertise       string    `json:"expertise"`
	PricePerSession int64     `json:"price_per_session"`
	CreatedAt       time.Time `json:"created_at"`
}

type SessionBookedEvent struct {
	SessionID       int64     `json:"session_id"`
	UserID          int64     `json:"user_id"`
	UserEmail       string    `json:"user_email"`
	UserName        string    `json:"user_name"`
	SpeakerID       int64     `json:"speaker_id"`
	SpeakerEmail    string    `json:"speaker_email"`
	SpeakerName     string    `json:"speaker_name"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	TZOffset        string    `json:"tz_offset"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	CalendarEventID string    `json:"calendar_event_id"`
	CalendarLink    string    `json:"calendar_link,omitempty"`
}
