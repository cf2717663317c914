package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/metrics"
	"github.com/diagnosis/speakerhub/services/bookings/internal/calendar"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/diagnosis/speakerhub/services/bookings/internal/repository"
	"golang.org/x/sync/errgroup"
)

const (
	eventSummary  = "Session Booking"
	eventLocation = "Online Meeting"
)

type BookingResult struct {
	Session *domain.Session             `json:"session"`
	Event   *calendar.EventConfirmation `json:"event"`
}

type BookingService interface {
	BookSession(ctx context.Context, requesterID int64, req domain.BookSessionRequest) (*BookingResult, error)
	ListUserSessions(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error)
	ListSpeakerSessions(ctx context.Context, speakerID int64, limit, offset int) ([]domain.Session, error)
}

type bookingService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	notifier calendar.Notifier
	events   events.Publisher
	metrics  metrics.Recorder

	loc             *time.Location
	tzOffset        string
	allowSelf       bool
	calendarTimeout time.Duration
}

func NewBookingService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	notifier calendar.Notifier,
	publisher events.Publisher,
	rec metrics.Recorder,
	cfg *config.Config,
) BookingService {
	timeout := cfg.Calendar.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &bookingService{
		users:           users,
		sessions:        sessions,
		notifier:        notifier,
		events:          publisher,
		metrics:         rec,
		loc:             cfg.Booking.Location(),
		tzOffset:        cfg.Booking.TZOffset,
		allowSelf:       cfg.Booking.AllowSelfBook,
		calendarTimeout: timeout,
	}
}

// BookSession validates the slot, then under the speaker's lock checks for
// overlaps, creates the calendar event and stores the session. Nothing is
// stored unless the calendar event exists, and an event whose session could
// not be stored is deleted again.
func (s *bookingService) BookSession(ctx context.Context, requesterID int64, req domain.BookSessionRequest) (*BookingResult, error) {
	result, err := s.bookSession(ctx, requesterID, req)
	s.metrics.RecordBooking(outcome(err))
	return result, err
}

func (s *bookingService) bookSession(ctx context.Context, requesterID int64, req domain.BookSessionRequest) (*BookingResult, error) {
	if req.SpeakerID <= 0 {
		return nil, fmt.Errorf("%w: speakerId is required", domain.ErrInvalidInput)
	}
	slot, err := domain.ParseSlot(req.Date, req.Time, s.loc)
	if err != nil {
		return nil, err
	}

	requester, speaker, err := s.loadParticipants(ctx, requesterID, req.SpeakerID)
	if err != nil {
		return nil, err
	}
	if !s.allowSelf && requester.ID == speaker.ID {
		return nil, fmt.Errorf("%w: cannot book a session with yourself", domain.ErrInvalidInput)
	}

	var confirmation *calendar.EventConfirmation
	var created *domain.Session

	err = s.sessions.WithSpeakerLock(ctx, speaker.ID, func(ctx context.Context, tx repository.SessionWriter) error {
		busy, err := tx.HasOverlap(ctx, speaker.ID, slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if busy {
			return fmt.Errorf("%w: speaker not available at this time", domain.ErrConflict)
		}

		confirmation, err = s.createEvent(ctx, requester, speaker, slot)
		if err != nil {
			return err
		}

		created, err = tx.Insert(ctx, &domain.Session{
			UserID:          requester.ID,
			SpeakerID:       speaker.ID,
			Date:            slot.Date,
			Time:            slot.Time,
			StartAt:         slot.Start,
			EndAt:           slot.End,
			CalendarEventID: confirmation.ID,
			CalendarLink:    confirmation.HTMLLink,
		})
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		if confirmation == nil {
			return nil, err
		}
		stored := s.settleFailedBooking(ctx, confirmation.ID, err)
		if stored == nil {
			return nil, err
		}
		created = stored
	}

	logger.InfoContext(ctx, "Session booked",
		"session_id", created.ID,
		"speaker_id", speaker.ID,
		"user_id", requester.ID,
		"date", created.Date,
		"time", created.Time,
	)
	s.publishBooked(ctx, created, requester, speaker)

	return &BookingResult{Session: created, Event: confirmation}, nil
}

// loadParticipants fetches both users concurrently.
func (s *bookingService) loadParticipants(ctx context.Context, requesterID, speakerID int64) (*domain.User, *domain.User, error) {
	var requester, speaker *domain.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.FindByID(gctx, requesterID)
		if err != nil {
			return fmt.Errorf("load requester: %w", err)
		}
		requester = u
		return nil
	})
	g.Go(func() error {
		u, err := s.users.FindByID(gctx, speakerID)
		if err != nil {
			return fmt.Errorf("load speaker: %w", err)
		}
		speaker = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if speaker == nil || !speaker.IsSpeaker() {
		return nil, nil, fmt.Errorf("%w: speaker not found", domain.ErrNotFound)
	}
	if requester == nil {
		return nil, nil, fmt.Errorf("%w: user not found", domain.ErrNotFound)
	}
	return requester, speaker, nil
}

func (s *bookingService) createEvent(ctx context.Context, requester, speaker *domain.User, slot domain.Slot) (*calendar.EventConfirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.calendarTimeout)
	defer cancel()

	start := time.Now()
	conf, err := s.notifier.CreateEvent(ctx, calendar.EventRequest{
		Summary:     eventSummary,
		Location:    eventLocation,
		Description: fmt.Sprintf("Session booked with %s.", speaker.FullName()),
		Start:       slot.Start,
		End:         slot.End,
		Attendees:   []string{requester.Email, speaker.Email},
	})
	s.metrics.RecordCalendarLatency(time.Since(start))

	if err != nil {
		logger.ErrorContext(ctx, "Calendar event creation failed", "error", err, "speaker_id", speaker.ID)
		return nil, fmt.Errorf("%w: calendar event could not be created: %v", domain.ErrUpstreamFailure, err)
	}
	if conf == nil || conf.ID == "" {
		return nil, fmt.Errorf("%w: calendar returned no confirmation", domain.ErrUpstreamFailure)
	}
	return conf, nil
}

// settleFailedBooking handles an event whose transaction reported failure.
// A commit error can hide a commit that landed, so the event is deleted only
// when no session carries it. It returns the session if one does.
func (s *bookingService) settleFailedBooking(ctx context.Context, eventID string, cause error) *domain.Session {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.calendarTimeout)
	defer cancel()

	stored, err := s.sessions.FindByCalendarEventID(ctx, eventID)
	if err != nil {
		logger.ErrorContext(ctx, "Cannot tell whether session was stored, keeping calendar event",
			"error", err, "cause", cause, "event_id", eventID)
		return nil
	}
	if stored != nil {
		logger.WarnContext(ctx, "Session stored despite transaction error",
			"error", cause, "session_id", stored.ID, "event_id", eventID)
		return stored
	}
	s.compensate(ctx, eventID)
	return nil
}

// compensate removes a calendar event whose session row was never committed.
func (s *bookingService) compensate(ctx context.Context, eventID string) {
	if err := s.notifier.DeleteEvent(ctx, eventID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete orphaned calendar event", "error", err, "event_id", eventID)
		return
	}
	logger.WarnContext(ctx, "Deleted calendar event after failed booking", "event_id", eventID)
}

func (s *bookingService) publishBooked(ctx context.Context, sess *domain.Session, requester, speaker *domain.User) {
	evt := events.SessionBookedEvent{
		SessionID:       sess.ID,
		UserID:          requester.ID,
		UserEmail:       requester.Email,
		UserName:        requester.FullName(),
		SpeakerID:       speaker.ID,
		SpeakerEmail:    speaker.Email,
		SpeakerName:     speaker.FullName(),
		Date:            sess.Date,
		Time:            sess.Time,
		TZOffset:        s.tzOffset,
		StartAt:         sess.StartAt,
		EndAt:           sess.EndAt,
		CalendarEventID: sess.CalendarEventID,
		CalendarLink:    sess.CalendarLink,
	}
	err := s.events.Publish(ctx, events.SessionBooked, evt)
	s.metrics.RecordEventPublished(events.SessionBooked, err == nil)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish session booked event", "error", err, "session_id", sess.ID)
	}
}

func (s *bookingService) ListUserSessions(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, userID, limit, offset)
}

func (s *bookingService) ListSpeakerSessions(ctx context.Context, speakerID int64, limit, offset int) ([]domain.Session, error) {
	return s.sessions.ListBySpeaker(ctx, speakerID, limit, offset)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, domain.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return metrics.OutcomeInvalid
	case errors.Is(err, domain.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrUpstreamFailure):
		return metrics.OutcomeUpstream
	default:
		return metrics.OutcomeError
	}
}
