package scheduling

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError names the missing, deleted or inactive entity.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConflictError means the provider already has an occupying schedule
// overlapping the requested window.
type ConflictError struct {
	ProviderID int64
	Start      time.Time
	End        time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provider %d is not available between %s and %s",
		e.ProviderID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

var ErrForbidden = errors.New("no access to tenant")

func notFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
