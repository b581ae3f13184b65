// Package services defines the business logic for conversations, accounts
// and feedback. This file centralizes service-level error values so that they
// can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Conversation errors.
var (
	// ErrEmptyPrompt is returned when a submitted message is blank after
	// normalization. No state transition happens.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a submitted message exceeds the configured
	// maximum rune length.
	ErrTooLong = errors.New("prompt too long")

	// ErrSendInFlight is returned when a connection submits a message while
	// its previous one is still waiting for a reply.
	ErrSendInFlight = errors.New("a message is already being answered")

	// ErrUnknownModel is returned when a model outside the configured list
	// is selected.
	ErrUnknownModel = errors.New("unknown model")

	// ErrInvalidSessionID is returned when a conversation id to load is
	// blank or oversized.
	ErrInvalidSessionID = errors.New("invalid conversation id")

	// ErrLoginRequired is returned when an operation needs a logged-in
	// connection.
	ErrLoginRequired = errors.New("login required")
)

// Account errors.
var (
	// ErrInvalidSignup is returned when signup input is unusable (malformed
	// email, empty password, missing names).
	ErrInvalidSignup = errors.New("invalid signup data")

	// ErrInvalidToken is returned when a connection token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
)

// Feedback errors.
var (
	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbiddenFeedback is returned when a user attempts to rate a turn
	// that is not a bot reply.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")

	// ErrDuplicateFeedback is returned when a user attempts to leave feedback
	// on a message that they have already rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)
