package domain

import "time"

type Role string

const (
	RoleUser    Role = "user"
	RoleSpeaker Role = "speaker"
)

type User struct {
	ID                int64     `json:"id"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	IsVerified        bool      `json:"isVerified"`
	IsProfileComplete bool      `json:"isProfileComplete"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (u *User) FullName() string {
	switch {
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) IsSpeaker() bool {
	return u.Role == RoleSpeaker
}
