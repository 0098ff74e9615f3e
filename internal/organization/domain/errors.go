package domain

import "errors"

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindInvalid      Kind = "invalid_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindExpired      Kind = "expired"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

// Error is a classified membership error. Code is stable and safe to expose.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

var (
	ErrInvalidName           = newError(KindInvalid, "invalid_name")
	ErrInvalidOrganization   = newError(KindInvalid, "invalid_organization")
	ErrInvalidEmail          = newError(KindInvalid, "invalid_email")
	ErrInvalidRole           = newError(KindInvalid, "invalid_role")
	ErrInvalidSeats          = newError(KindInvalid, "invalid_seats")
	ErrInvalidToken          = newError(KindInvalid, "invalid_token")
	ErrInvalidTransferTarget = newError(KindInvalid, "invalid_transfer_target")

	ErrUnauthorized  = newError(KindUnauthorized, "unauthorized")
	ErrForbidden     = newError(KindForbidden, "forbidden")
	ErrEmailMismatch = newError(KindForbidden, "email_mismatch")

	ErrOrganizationNotFound = newError(KindNotFound, "organization_not_found")
	ErrMemberNotFound       = newError(KindNotFound, "member_not_found")
	ErrInviteNotFound       = newError(KindNotFound, "invite_not_found")

	ErrSeatsExhausted  = newError(KindConflict, "seats_exhausted")
	ErrSeatsBelowUsage = newError(KindConflict, "seats_below_usage")
	ErrDuplicateInvite = newError(KindConflict, "duplicate_invite")
	ErrAlreadyMember   = newError(KindConflict, "already_member")
	ErrAlreadyAccepted = newError(KindConflict, "already_accepted")
	ErrLastOwner       = newError(KindConflict, "last_owner")

	ErrInviteExpired = newError(KindExpired, "invite_expired")

	ErrRateLimited = newError(KindRateLimited, "rate_limited")
)

// KindOf returns the classification of err, KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, "internal_error" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
