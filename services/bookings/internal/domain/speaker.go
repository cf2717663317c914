package domain

import (
	"fmt"
	"strings"
	"time"
)

type SpeakerProfile struct {
	UserID          int64     `json:"userId"`
	Expertise       string    `json:"expertise"`
	PricePerSession int64     `json:"pricePerSession"`
	CreatedAt       time.Time `json:"createdAt"`
}

type SetupProfileRequest struct {
	Expertise       string `json:"expertise"`
	PricePerSession int64  `json:"pricePerSession"`
}

func (r *SetupProfileRequest) Normalize() error {
	r.Expertise = strings.TrimSpace(r.Expertise)
	if r.Expertise == "" {
		return fmt.Errorf("%w: expertise is required", ErrInvalidInput)
	}
	if len(r.Expertise) > 500 {
		return fmt.Errorf("%w: expertise is too long", ErrInvalidInput)
	}
	if r.PricePerSession < 0 {
		return fmt.Errorf("%w: pricePerSession must not be negative", ErrInvalidInput)
	}
	return nil
}

// SpeakerListing is the public view of a speaker.
type SpeakerListing struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Expertise       string `json:"expertise"`
	PricePerSession int64  `json:"pricePerSession"`
}
