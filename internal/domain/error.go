package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Request errors
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTierRequired = errors.New("brand training requires a business plan")
	ErrRateLimited  = errors.New("too many requests")

	// Credit ledger errors
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDailyLimitExceeded  = errors.New("daily generation limit reached")
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrNotTeamMember       = errors.New("user is not a member of the team")
	ErrAlreadyDebited      = errors.New("job already debited")

	// ErrInsufficientTeamCredits is the team-pool form of ErrInsufficientCredits
	// and matches it with errors.Is.
	ErrInsufficientTeamCredits = fmt.Errorf("insufficient team credits: %w", ErrInsufficientCredits)

	// Job record errors
	ErrConflict          = errors.New("job status changed concurrently")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrBackend           = errors.New("model backend failure")
	ErrLockNotAcquired   = errors.New("lock is held by another process")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// PublicMessage flattens err into the single-line text stored on failed jobs.
func PublicMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if msg == "" {
		return "unknown error"
	}
	const max = 500
	if len(msg) > max {
		msg = msg[:max]
	}
	return msg
}
