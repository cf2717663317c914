package domain

import "time"

// Session is an immutable booking of one speaker by one user.
type Session struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	SpeakerID       int64     `json:"speakerId"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	StartAt         time.Time `json:"startAt"`
	EndAt           time.Time `json:"endAt"`
	CalendarEventID string    `json:"calendarEventId,omitempty"`
	CalendarLink    string    `json:"calendarLink,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type BookSessionRequest struct {
	SpeakerID int64  `json:"speakerId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}
