package calendar

import (
	"context"

	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/google/uuid"
)

// DevNotifier logs events instead of calling a provider.
type DevNotifier struct{}

func NewDevNotifier() *DevNotifier {
	return &DevNotifier{}
}

func (d *DevNotifier) CreateEvent(ctx context.Context, req EventRequest) (*EventConfirmation, error) {
	id := "dev-" + uuid.NewString()
	logger.InfoContext(ctx, "[DEV CALENDAR] event created",
		"event_id", id,
		"summary", req.Summary,
		"start", req.Start,
		"attendees", req.Attendees,
	)
	return &EventConfirmation{
		ID:      id,
		Status:  "confirmed",
		Summary: req.Summary,
		Start:   req.Start,
		End:     req.End,
	}, nil
}

func (d *DevNotifier) DeleteEvent(ctx context.Context, eventID string) error {
	logger.InfoContext(ctx, "[DEV CALENDAR] event deleted", "event_id", eventID)
	return nil
}
