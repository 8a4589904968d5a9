// Package authz holds the per-terminal manager authorization session that
// gates discretionary discounts.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

// CredentialVerifier checks staff credentials against the user directory.
// It returns domain.ErrInvalidCredentials when the credentials are wrong;
// any other error means the directory could not answer.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (domain.Identity, error)
}

// Options configures a Session.
type Options struct {
	AllowedRoles    domain.RoleSet
	SessionDuration time.Duration
	Clock           domain.Clock
}

// DefaultAllowedRoles are the roles that may approve manual discounts.
func DefaultAllowedRoles() domain.RoleSet {
	return domain.NewRoleSet(domain.RoleManager, domain.RoleAdmin)
}

// Session is the authorization state of one terminal. It is either
// unauthorized or holds a DiscountAuthorization whose validity is checked
// against the clock on every read.
type Session struct {
	mu       sync.RWMutex
	verifier CredentialVerifier
	allowed  domain.RoleSet
	duration time.Duration
	clock    domain.Clock
	current  *domain.DiscountAuthorization
}

// NewSession creates an unauthorized session.
func NewSession(verifier CredentialVerifier, opts Options) *Session {
	if opts.AllowedRoles.IsEmpty() {
		opts.AllowedRoles = DefaultAllowedRoles()
	}
	if opts.SessionDuration <= 0 {
		opts.SessionDuration = domain.DefaultSessionDuration
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock
	}
	return &Session{
		verifier: verifier,
		allowed:  opts.AllowedRoles,
		duration: opts.SessionDuration,
		clock:    opts.Clock,
	}
}

// Authorize verifies the credentials and, when the identity holds an
// allowed role, starts a new elevated session. A failed attempt leaves the
// current authorization as it was.
func (s *Session) Authorize(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Identity{}, domain.NewValidationError("email and password are required")
	}

	identity, err := s.verifier.VerifyCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, &domain.Error{
			Kind:   domain.KindVerifierUnavailable,
			Detail: "credential check failed",
			Err:    err,
		}
	}
	if !identity.Roles.Intersects(s.allowed) {
		return identity, &domain.Error{
			Kind:   domain.KindRoleNotAllowed,
			Detail: fmt.Sprintf("roles %q cannot authorize discounts", identity.Roles.String()),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &domain.DiscountAuthorization{
		AuthorizedBy:    identity,
		AuthorizedAt:    s.clock.Now(),
		SessionDuration: s.duration,
	}
	return identity, nil
}

// IsAuthorized reports whether an authorization exists and has not expired.
func (s *Session) IsAuthorized() bool {
	_, ok := s.Current()
	return ok
}

// Current returns the live authorization, if any.
func (s *Session) Current() (domain.DiscountAuthorization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil || !s.current.ValidAt(s.clock.Now()) {
		return domain.DiscountAuthorization{}, false
	}
	return *s.current, true
}

// Clear revokes the authorization. It is a no-op when none is held.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
}

// SessionDuration is how long an authorization stays valid.
func (s *Session) SessionDuration() time.Duration {
	return s.duration
}

// AllowedRoles are the roles that may authorize.
func (s *Session) AllowedRoles() domain.RoleSet {
	return s.allowed
}
