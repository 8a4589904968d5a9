package domain

import "time"

// DefaultSessionDuration is how long an elevated session lasts when the
// caller does not configure it.
const DefaultSessionDuration = 30 * time.Minute

// Identity is a verified staff member.
type Identity struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"name,omitempty"`
	Roles RoleSet `json:"-"`
}

// DiscountAuthorization is a temporary elevated privilege granted after a
// manager verified their credentials.
type DiscountAuthorization struct {
	AuthorizedBy    Identity
	AuthorizedAt    time.Time
	SessionDuration time.Duration
}

// ExpiresAt is the first instant at which the authorization is no longer valid.
func (a DiscountAuthorization) ExpiresAt() time.Time {
	return a.AuthorizedAt.Add(a.SessionDuration)
}

// ValidAt is true iff now < AuthorizedAt + SessionDuration.
func (a DiscountAuthorization) ValidAt(now time.Time) bool {
	return now.Before(a.ExpiresAt())
}

// Clock is the time source used by anything that compares against the wall clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)
