package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSourceURL         = errors.New("no supported link in message")
	ErrNoCandidates        = errors.New("provider returned no candidates")
	ErrFetchFailed         = errors.New("every candidate download failed")
	ErrAllOversize         = errors.New("all candidates exceeded the size limit")
	ErrNoRecognizableMedia = errors.New("no recognizable media found")
	ErrNoProviderSucceeded = errors.New("no provider succeeded")
	ErrUserNotFound        = errors.New("user not found")
)

// ProviderError is a failed provider call. The orchestrator recovers from it
// by moving on to the next provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DeliveryError is a failure of the delivery gateway after a selection was made.
type DeliveryError struct {
	Kind MediaKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
