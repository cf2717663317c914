package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const OTPLength = 6

// OneTimePasscode is stored hashed; only the newest row per user counts.
type OneTimePasscode struct {
	ID        int64
	UserID    int64
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (o *OneTimePasscode) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// NewOTPCode returns a uniformly random code of OTPLength ASCII digits.
func NewOTPCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
