package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/services/bookings/internal/calendar"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/diagnosis/speakerhub/services/bookings/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		Booking:  config.BookingConfig{TZOffset: "+05:30"},
		Calendar: config.CalendarConfig{Timeout: time.Second},
	}
}

type fakeUsers struct {
	users map[int64]*domain.User
	err   error
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// fakeSessions mimics the transactional store: writes made inside
// WithSpeakerLock become visible only when fn and the commit succeed.
type fakeSessions struct {
	mu        sync.Mutex
	committed []domain.Session
	nextID    int64

	insertErr error
	commitErr error
	// commitLands makes commitErr a lost acknowledgement: rows are stored anyway.
	commitLands bool
	lookupErr   error
}

func (f *fakeSessions) WithSpeakerLock(ctx context.Context, speakerID int64, fn func(ctx context.Context, tx repository.SessionWriter) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWriter{parent: f}
	if err := fn(ctx, w); err != nil {
		return err
	}
	if f.commitErr != nil {
		if f.commitLands {
			f.committed = append(f.committed, w.staged...)
		}
		return f.commitErr
	}
	f.committed = append(f.committed, w.staged...)
	return nil
}

func (f *fakeSessions) FindByCalendarEventID(ctx context.Context, eventID string) (*domain.Session, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, s := range f.rows() {
		if s.CalendarEventID == eventID {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) rows() []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Session(nil), f.committed...)
}

func (f *fakeSessions) seed(s domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.committed = append(f.committed, s)
}

func (f *fakeSessions) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range f.rows() {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListBySpeaker(ctx context.Context, speakerID int64, limit, offset int) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range f.rows() {
		if s.SpeakerID == speakerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) ListBySpeakerAndDate(ctx context.Context, speakerID int64, date string) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range f.rows() {
		if s.SpeakerID == speakerID && s.Date == date {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeWriter struct {
	parent *fakeSessions
	staged []domain.Session
}

func (w *fakeWriter) HasOverlap(ctx context.Context, speakerID int64, start, end time.Time) (bool, error) {
	all := append(append([]domain.Session(nil), w.parent.committed...), w.staged...)
	for _, s := range all {
		if s.SpeakerID == speakerID && domain.Overlaps(start, end, s.StartAt, s.EndAt) {
			return true, nil
		}
	}
	return false, nil
}

func (w *fakeWriter) Insert(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	if w.parent.insertErr != nil {
		return nil, w.parent.insertErr
	}
	w.parent.nextID++
	cp := *s
	cp.ID = w.parent.nextID
	cp.CreatedAt = time.Now()
	w.staged = append(w.staged, cp)
	return &cp, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	requests []calendar.EventRequest
	deleted  []string
	err      error
	nilConf  bool
	delay    time.Duration
	n        int
}

func (f *fakeNotifier) CreateEvent(ctx context.Context, req calendar.EventRequest) (*calendar.EventConfirmation, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.nilConf {
		return nil, nil
	}
	f.n++
	return &calendar.EventConfirmation{
		ID:       fmt.Sprintf("evt-%d", f.n),
		HTMLLink: "https://calendar.example/evt",
		Summary:  req.Summary,
		Start:    req.Start,
		End:      req.End,
	}, nil
}

func (f *fakeNotifier) DeleteEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeNotifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) RecordBooking(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeRecorder) RecordCalendarLatency(time.Duration) {}
func (f *fakeRecorder) RecordHTTPRequest(string, int, time.Duration) {}
func (f *fakeRecorder) RecordEventPublished(string, bool) {}

type fakeSpeakers struct {
	mu       sync.Mutex
	profiles map[int64]*domain.SpeakerProfile
	listing  []domain.SpeakerListing
}

func (f *fakeSpeakers) Create(ctx context.Context, p *domain.SpeakerProfile) (*domain.SpeakerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.UserID]; ok {
		return nil, errors.New("duplicate key value violates unique constraint")
	}
	cp := *p
	cp.CreatedAt = time.Now()
	f.profiles[p.UserID] = &cp
	return &cp, nil
}

func (f *fakeSpeakers) FindByUserID(ctx context.Context, userID int64) (*domain.SpeakerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[userID], nil
}

func (f *fakeSpeakers) List(ctx context.Context, limit, offset int) ([]domain.SpeakerListing, error) {
	return f.listing, nil
}
