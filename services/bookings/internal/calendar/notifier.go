// Package calendar creates the external calendar events that back every booked session.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected means no OAuth token has been granted yet (visit /google).
var ErrNotConnected = errors.New("calendar account not connected")

type EventRequest struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// EventConfirmation is what the provider returned for a created event.
type EventConfirmation struct {
	ID       string    `json:"id"`
	HTMLLink string    `json:"htmlLink,omitempty"`
	Status   string    `json:"status,omitempty"`
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type Notifier interface {
	CreateEvent(ctx context.Context, req EventRequest) (*EventConfirmation, error)
	DeleteEvent(ctx context.Context, eventID string) error
}
