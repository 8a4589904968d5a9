package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a checkout error.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindAuthorizationRequired  ErrorKind = "authorization_required"
	KindInvalidCredentials     ErrorKind = "invalid_credentials"
	KindRoleNotAllowed         ErrorKind = "role_not_allowed"
	KindBelowMinimumRedemption ErrorKind = "below_minimum_redemption"
	KindExceedsBalance         ErrorKind = "exceeds_balance"
	KindExceedsCap             ErrorKind = "exceeds_cap"
	KindVerifierUnavailable    ErrorKind = "verifier_unavailable"
	KindNotFound               ErrorKind = "not_found"
)

// IsRedemptionPolicy reports whether the kind is one of the loyalty redemption violations.
func (k ErrorKind) IsRedemptionPolicy() bool {
	return k == KindBelowMinimumRedemption || k == KindExceedsBalance || k == KindExceedsCap
}

func (k ErrorKind) String() string {
	return string(k)
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation             = &Error{Kind: KindValidation, Detail: "invalid input"}
	ErrAuthorizationRequired  = &Error{Kind: KindAuthorizationRequired, Detail: "manager authorization required"}
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Detail: "invalid email or password"}
	ErrRoleNotAllowed         = &Error{Kind: KindRoleNotAllowed, Detail: "role is not allowed to authorize discounts"}
	ErrBelowMinimumRedemption = &Error{Kind: KindBelowMinimumRedemption, Detail: "points below minimum redemption"}
	ErrExceedsBalance         = &Error{Kind: KindExceedsBalance, Detail: "points exceed customer balance"}
	ErrExceedsCap             = &Error{Kind: KindExceedsCap, Detail: "points exceed redemption cap"}
	ErrVerifierUnavailable    = &Error{Kind: KindVerifierUnavailable, Detail: "credential verifier unavailable"}
	ErrNotFound               = &Error{Kind: KindNotFound, Detail: "not found"}
)

// Error carries a kind, a human readable detail and, for redemption
// violations, the bound that was crossed.
type Error struct {
	Kind   ErrorKind
	Detail string
	Bound  int64
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can use the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

func NewBoundError(kind ErrorKind, bound int64, format string, args ...any) *Error {
	return &Error{Kind: kind, Bound: bound, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
