package service

import "errors"

// Error kinds returned by the engine. Callers match with errors.Is; every
// failure leaves the bet and its timeline unchanged.
var (
	// ErrNotFound indicates the bet or participant does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidActor indicates the caller is not a participant of the bet
	// and the operation requires membership
	ErrInvalidActor = errors.New("invalid actor")

	// ErrInvalidTransition indicates the operation is not legal from the
	// bet's current status
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrProtocolBusy indicates a conflicting sub-protocol is already in
	// progress, e.g. an outstanding doubling proposal
	ErrProtocolBusy = errors.New("protocol busy")

	// ErrValidation indicates a malformed stake, type or participant
	// combination
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentUpdate indicates the bet changed under the caller; the
	// first committed writer won the race
	ErrConcurrentUpdate = errors.New("concurrent update")
)
