package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/diagnosis/speakerhub/services/bookings/internal/repository"
)

type SpeakerService interface {
	SetupProfile(ctx context.Context, userID int64, req domain.SetupProfileRequest) (*domain.SpeakerProfile, error)
	ListSpeakers(ctx context.Context, limit, offset int) ([]domain.SpeakerListing, error)
	// Availability returns the hourly start times on date not overlapped by a booked session.
	Availability(ctx context.Context, speakerID int64, date string) ([]string, error)
}

type speakerService struct {
	users    repository.UserRepository
	speakers repository.SpeakerRepository
	sessions repository.SessionRepository
	events   events.Publisher
	config   *config.Config
}

func NewSpeakerService(
	users repository.UserRepository,
	speakers repository.SpeakerRepository,
	sessions repository.SessionRepository,
	publisher events.Publisher,
	cfg *config.Config,
) SpeakerService {
	return &speakerService{
		users:    users,
		speakers: speakers,
		sessions: sessions,
		events:   publisher,
		config:   cfg,
	}
}

func (s *speakerService) SetupProfile(ctx context.Context, userID int64, req domain.SetupProfileRequest) (*domain.SpeakerProfile, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", domain.ErrNotFound)
	}
	if !user.IsSpeaker() {
		return nil, fmt.Errorf("%w: only speakers can set up a profile", domain.ErrForbidden)
	}

	existing, err := s.speakers.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: speaker profile already exists", domain.ErrConflict)
	}

	profile, err := s.speakers.Create(ctx, &domain.SpeakerProfile{
		UserID:          userID,
		Expertise:       req.Expertise,
		PricePerSession: req.PricePerSession,
	})
	if err != nil {
		return nil, err
	}

	evt := events.SpeakerProfileCreatedEvent{
		SpeakerID:       profile.UserID,
		Expertise:       profile.Expertise,
		PricePerSession: profile.PricePerSession,
		CreatedAt:       profile.CreatedAt,
	}
	if err := s.events.Publish(ctx, events.SpeakerProfileCreated, evt); err != nil {
		logger.ErrorContext(ctx, "Failed to publish speaker profile event", "error", err, "speaker_id", userID)
	}

	return profile, nil
}

func (s *speakerService) ListSpeakers(ctx context.Context, limit, offset int) ([]domain.SpeakerListing, error) {
	return s.speakers.List(ctx, limit, offset)
}

func (s *speakerService) Availability(ctx context.Context, speakerID int64, date string) ([]string, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return nil, err
	}
	day := d.Format(domain.DateLayout)

	speaker, err := s.users.FindByID(ctx, speakerID)
	if err != nil {
		return nil, fmt.Errorf("load speaker: %w", err)
	}
	if speaker == nil || !speaker.IsSpeaker() {
		return nil, fmt.Errorf("%w: speaker not found", domain.ErrNotFound)
	}

	booked, err := s.sessions.ListBySpeakerAndDate(ctx, speakerID, day)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	loc := s.config.Booking.Location()
	free := make([]string, 0, domain.CloseHour-domain.OpenHour)
	for _, start := range domain.HourlyStarts() {
		slot, err := domain.ParseSlot(day, start, loc)
		if err != nil {
			return nil, err
		}
		taken := false
		for _, b := range booked {
			if domain.Overlaps(slot.Start, slot.End, b.StartAt, b.EndAt) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, start)
		}
	}
	return free, nil
}
