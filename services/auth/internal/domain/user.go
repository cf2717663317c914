package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/speakerhub/pkg/utils"
)

type User struct {
	ID                int64     `json:"id"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Role              string    `json:"userType"`
	IsVerified        bool      `json:"isVerified"`
	IsProfileComplete bool      `json:"isProfileComplete"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type SignupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserType  string `json:"userType"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         *UserInfo `json:"user"`
}

type UserInfo struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	UserType          string `json:"userType"`
	IsVerified        bool   `json:"isVerified"`
	IsProfileComplete bool   `json:"isProfileComplete"`
}

const (
	RoleUser    = "user"
	RoleSpeaker = "speaker"
)

const minPasswordLength = 8

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleSpeaker
}

func (r *SignupRequest) Normalize() {
	r.FirstName = utils.NormalizeString(r.FirstName)
	r.LastName = utils.NormalizeString(r.LastName)
	r.Email = utils.NormalizeEmail(r.Email)
	r.UserType = strings.ToLower(utils.NormalizeString(r.UserType))
	if r.UserType == "" {
		r.UserType = RoleUser
	}
}

func (r *SignupRequest) Validate() error {
	if r.FirstName == "" {
		return fmt.Errorf("%w: firstName is required", ErrInvalidInput)
	}
	if r.LastName == "" {
		return fmt.Errorf("%w: lastName is required", ErrInvalidInput)
	}
	if !utils.IsValidEmail(r.Email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if len(r.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if !IsValidRole(r.UserType) {
		return fmt.Errorf("%w: userType must be user or speaker", ErrInvalidInput)
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	return nil
}

func (r *VerifyOTPRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.OTP = utils.NormalizeString(r.OTP)
}

func (r *VerifyOTPRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(r.OTP) != OTPLength || !utils.IsDigits(r.OTP) {
		return fmt.Errorf("%w: otp must be %d digits", ErrInvalidInput, OTPLength)
	}
	return nil
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ToUserInfo drops the password hash and timestamps.
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:                u.ID,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Email:             u.Email,
		UserType:          u.Role,
		IsVerified:        u.IsVerified,
		IsProfileComplete: u.IsProfileComplete,
	}
}
