package auth

import (
	"strings"
	"time"
)

// Role is the closed set of application roles. Authorization compares
// against these values only; anything unknown degrades to RoleGuest.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMentor Role = "mentor"
	RoleIntern Role = "intern"
	RoleGuest  Role = "guest"
)

// ParseRole normalizes a raw role string. Unknown or empty input maps to
// RoleGuest, the lowest privilege; a profile never carries a null role.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleMentor:
		return RoleMentor
	case RoleIntern:
		return RoleIntern
	default:
		return RoleGuest
	}
}

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMentor, RoleIntern, RoleGuest:
		return true
	}
	return false
}

// Profile is the application-level identity record stored in the users
// relation. Exactly one profile exists per identity user id.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      Role   `json:"role"`

	// Professional metadata, all optional. Crefito is the Brazilian
	// physiotherapy board registration number.
	Crefito    string `json:"crefito,omitempty"`
	Specialty  string `json:"specialty,omitempty"`
	University string `json:"university,omitempty"`
	Semester   *int   `json:"semester,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session represents a live authentication grant. The access token is the
// credential handed to clients; the rest is server-side bookkeeping.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ProfileSeed carries the optional profile fields supplied at sign-up.
// The role is deliberately absent: new accounts always start as guest.
type ProfileSeed struct {
	FullName   string `json:"full_name"`
	Crefito    string `json:"crefito,omitempty"`
	Specialty  string `json:"specialty,omitempty"`
	University string `json:"university,omitempty"`
	Semester   *int   `json:"semester,omitempty"`
}
