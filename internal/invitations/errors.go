package invitations

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("invitation not found")
	ErrExpired             = errors.New("invitation has expired")
	ErrAlreadyUsed         = errors.New("invitation is no longer pending")
	ErrAlreadyAccepted     = errors.New("cannot revoke an accepted invitation")
	ErrEmailMismatch       = errors.New("invitation is for a different email address")
	ErrAccessDenied        = errors.New("insufficient role for this operation")
	ErrDuplicatePending    = errors.New("active invitation already exists for this email")
	ErrAlreadyCollaborator = errors.New("recipient is already a collaborator")
)

// ValidationError reports malformed create input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError reports that one of the two issuance caps was exceeded.
// RetryAfter is a hint for when the caller may try again.
type RateLimitedError struct {
	Scope      string // "inviter" or "recipient"
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("invitation rate limit exceeded (%s); retry in %s", e.Scope, e.RetryAfter.Round(time.Second))
}
