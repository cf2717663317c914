package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/mailer"
)

type sentMail struct {
	to, name, code string
	details        mailer.SessionDetails
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo string
}

func (m *fakeMailer) SendOTP(ctx context.Context, toEmail, toName, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if toEmail == m.failTo {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, sentMail{to: toEmail, name: toName, code: code})
	return nil
}

func (m *fakeMailer) SendSessionBooked(ctx context.Context, toEmail, toName string, s mailer.SessionDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if toEmail == m.failTo {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, sentMail{to: toEmail, name: toName, details: s})
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *fakeRecorder) RecordEmailSent(kind string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := kind + ":ok"
	if !ok {
		key = kind + ":failed"
	}
	r.counts[key]++
}

type fakeSubscriber struct {
	subs map[string]string
}

func (s *fakeSubscriber) Subscribe(subject string, handler func(msg *events.Message)) error {
	return errors.New("plain subscribe not expected")
}

func (s *fakeSubscriber) QueueSubscribe(subject, queue string, handler func(msg *events.Message)) error {
	s.subs[subject] = queue
	return nil
}

func (s *fakeSubscriber) Close() error { return nil }

func message(t *testing.T, subject string, v interface{}) *events.Message {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &events.Message{Subject: subject, Data: data, ID: "evt-1", Timestamp: time.Now()}
}

func newConsumer() (*Consumer, *fakeMailer, *fakeRecorder) {
	m := &fakeMailer{}
	rec := &fakeRecorder{counts: map[string]int{}}
	return New(m, rec, time.Second), m, rec
}

func TestRegister_SubscribesInQueueGroup(t *testing.T) {
	c, _, _ := newConsumer()
	sub := &fakeSubscriber{subs: map[string]string{}}

	if err := c.Register(sub); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, subject := range []string{events.UserRegistered, events.OTPIssued, events.SessionBooked} {
		if sub.subs[subject] != QueueGroup {
			t.Errorf("%s: queue = %q", subject, sub.subs[subject])
		}
	}
}

func TestHandleOTP(t *testing.T) {
	c, m, rec := newConsumer()

	c.HandleOTP(message(t, events.UserRegistered, events.OTPEvent{
		UserID: 1, Email: "ada@example.com", FirstName: "Ada", Code: "123456", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	if len(m.sent) != 1 || m.sent[0].code != "123456" || m.sent[0].to != "ada@example.com" {
		t.Fatalf("sent = %+v", m.sent)
	}
	if rec.counts["otp:ok"] != 1 {
		t.Fatalf("counts = %v", rec.counts)
	}
}

func TestHandleOTP_MalformedAndFailure(t *testing.T) {
	c, m, rec := newConsumer()

	c.HandleOTP(&events.Message{Subject: events.OTPIssued, Data: []byte("{not json")})
	if len(m.sent) != 0 || len(rec.counts) != 0 {
		t.Fatal("malformed event should be dropped")
	}

	m.failTo = "ada@example.com"
	c.HandleOTP(message(t, events.OTPIssued, events.OTPEvent{Email: "ada@example.com", Code: "654321"}))
	if rec.counts["otp:failed"] != 1 {
		t.Fatalf("counts = %v", rec.counts)
	}
}

func TestHandleOTP_AcksRequester(t *testing.T) {
	c, m, _ := newConsumer()

	var acks []events.Ack
	withReply := func(msg *events.Message) *events.Message {
		msg.Respond = func(data []byte) error {
			var ack events.Ack
			if err := json.Unmarshal(data, &ack); err != nil {
				t.Fatalf("bad ack %s", data)
			}
			acks = append(acks, ack)
			return nil
		}
		return msg
	}

	c.HandleOTP(withReply(message(t, events.OTPIssued, events.OTPEvent{Email: "ada@example.com", Code: "111111"})))
	m.failTo = "grace@example.com"
	c.HandleOTP(withReply(message(t, events.OTPIssued, events.OTPEvent{Email: "grace@example.com", Code: "222222"})))
	c.HandleOTP(withReply(&events.Message{Subject: events.OTPIssued, Data: []byte("{not json")}))

	if len(acks) != 3 {
		t.Fatalf("acks = %+v", acks)
	}
	if !acks[0].OK || acks[1].OK || acks[2].OK {
		t.Fatalf("acks = %+v, want ok, failed, failed", acks)
	}
}

func TestHandleSessionBooked_MailsBothParties(t *testing.T) {
	c, m, rec := newConsumer()

	c.HandleSessionBooked(message(t, events.SessionBooked, events.SessionBookedEvent{
		SessionID:    7,
		UserEmail:    "user@example.com",
		UserName:     "Uma User",
		SpeakerEmail: "speaker@example.com",
		SpeakerName:  "Sam Speaker",
		Date:         "2030-01-15",
		Time:         "10:00",
		TZOffset:     "+05:30",
		CalendarLink: "https://calendar.example/e/1",
	}))

	if len(m.sent) != 2 {
		t.Fatalf("sent %d mails, want 2", len(m.sent))
	}
	sort.Slice(m.sent, func(i, j int) bool { return m.sent[i].to < m.sent[j].to })

	speakerMail, userMail := m.sent[0], m.sent[1]
	if speakerMail.to != "speaker@example.com" || speakerMail.details.WithName != "Uma User" {
		t.Fatalf("speaker mail = %+v", speakerMail)
	}
	if userMail.to != "user@example.com" || userMail.details.WithName != "Sam Speaker" {
		t.Fatalf("user mail = %+v", userMail)
	}
	if userMail.details.Date != "2030-01-15" || userMail.details.TZOffset != "+05:30" || userMail.details.CalendarLink == "" {
		t.Fatalf("details = %+v", userMail.details)
	}
	if rec.counts["session_booked:ok"] != 2 {
		t.Fatalf("counts = %v", rec.counts)
	}
}

func TestHandleSessionBooked_OneRecipientFails(t *testing.T) {
	c, m, rec := newConsumer()
	m.failTo = "speaker@example.com"

	c.HandleSessionBooked(message(t, events.SessionBooked, events.SessionBookedEvent{
		SessionID: 8, UserEmail: "user@example.com", SpeakerEmail: "speaker@example.com",
	}))

	if len(m.sent) != 1 || m.sent[0].to != "user@example.com" {
		t.Fatalf("sent = %+v", m.sent)
	}
	if rec.counts["session_booked:ok"] != 1 || rec.counts["session_booked:failed"] != 1 {
		t.Fatalf("counts = %v", rec.counts)
	}
}
