package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition matches every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrTransientStore matches every TransientStoreError.
	ErrTransientStore = errors.New("document store unavailable")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = &NotFoundError{Kind: "quiz"}
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = &NotFoundError{Kind: "player"}
	// ErrNotHost is returned when a host-only action comes from someone else.
	ErrNotHost = errors.New("caller is not the game host")
	// ErrAlreadyAnswered is returned for a second submission to the same question.
	ErrAlreadyAnswered = errors.New("answer already recorded for this question")
)

// ValidationError reports malformed input. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports a phase-guarded operation called from the wrong phase.
type InvalidTransitionError struct {
	Op   string
	From Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while game is in phase %q", e.Op, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotFoundError reports a referenced entity that no longer exists.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is matches ErrNotFound, and any other NotFoundError of the same kind
// whose ID is empty (so errors.Is(err, ErrQuizNotFound) works for every quiz).
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	var other *NotFoundError
	if errors.As(target, &other) {
		return other.Kind == e.Kind && (other.ID == "" || other.ID == e.ID)
	}
	return false
}

// NotFound is shorthand for building a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransientStoreError wraps a store/network failure the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

func (e *TransientStoreError) Is(target error) bool { return target == ErrTransientStore }
