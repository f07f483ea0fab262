package service

import "errors"

var (
	// ErrNotFound is returned when an exam, attempt, section or question
	// does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when the attempt does not belong to the
	// requesting student.
	ErrUnauthorized = errors.New("attempt does not belong to caller")
	// ErrNotAvailable is returned when the exam is unpublished or outside
	// its scheduled window.
	ErrNotAvailable = errors.New("exam is not available")
	// ErrAlreadyCompleted is returned when an operation requires an open
	// attempt but the attempt is terminal, or when retakes are forbidden
	// after a passing attempt.
	ErrAlreadyCompleted = errors.New("attempt already completed")
	// ErrAttemptFrozen is returned for answer writes against a completed,
	// fully graded attempt.
	ErrAttemptFrozen = errors.New("attempt is frozen")
	// ErrValidation is returned for malformed input such as an unknown
	// security event type or an answer value that does not match the
	// question type.
	ErrValidation = errors.New("validation failed")
)
