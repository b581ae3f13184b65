// Package handlers defines the error codes carried in ErrorResponse.Code.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror the HTTP status, the rest name a chat-specific condition.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Conversation
	ErrCodeEmptyPrompt  = "empty_prompt"
	ErrCodePromptTooBig = "prompt_too_long"
	ErrCodeSendInFlight = "send_in_flight"
	ErrCodeUnknownModel = "unknown_model"
	ErrCodeLoginNeeded  = "login_required"
)
