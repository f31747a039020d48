package models

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors below match them through errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// ValidationError reports bad input to order construction.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an operation on an id the store does not know.
// Kind defaults to "order".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "order"
	}
	return fmt.Sprintf("%s %s not found", kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a lifecycle move outside the forward chain.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ForbiddenError reports an actor that may not advance order status.
type ForbiddenError struct {
	Actor string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %q is not permitted", e.Actor)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// StoreUnavailableError wraps a failed or timed out Order Store call.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }
