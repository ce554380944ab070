package apierr

import (
	"errors"
	"fmt"
)

// Code is a typed error code enum for consistent API error identification.
type Code string

const (
	// ─── Authentication ────────────────────────────────────────────────
	CodeTokenRequired Code = "TOKEN_REQUIRED"
	CodeTokenInvalid  Code = "TOKEN_INVALID"
	CodeForbidden     Code = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeInvalidID      Code = "INVALID_ID"
	CodeInvalidPayload Code = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	CodeExamNotAvailable  Code = "EXAM_NOT_AVAILABLE"
	CodeInvalidEntryToken Code = "INVALID_ENTRY_TOKEN"
	CodeAlreadySubmitted  Code = "ALREADY_SUBMITTED"
	// CodeTimeExpired means the server-side deadline (including its grace
	// period) has passed. It is the single terminal submission failure:
	// the client must not retry past it.
	CodeTimeExpired Code = "TIME_EXPIRED"

	// ─── Server ────────────────────────────────────────────────────────
	CodeInternal Code = "INTERNAL_ERROR"
)

// Message returns a human-readable message for a given error code.
func Message(code Code) string {
	switch code {
	case CodeTokenRequired:
		return "Authentication token is required."
	case CodeTokenInvalid:
		return "Authentication token is invalid."
	case CodeForbidden:
		return "You do not have permission to access this resource."
	case CodeValidation:
		return "Validation failed. Please check your input."
	case CodeInvalidID:
		return "Invalid ID format."
	case CodeInvalidPayload:
		return "Invalid request payload."
	case CodeNotFound:
		return "Resource not found."
	case CodeConflict:
		return "Resource already exists."
	case CodeExamNotAvailable:
		return "This exam is currently not available."
	case CodeInvalidEntryToken:
		return "The exam entry token is not valid."
	case CodeAlreadySubmitted:
		return "This exam has already been submitted."
	case CodeTimeExpired:
		return "The exam time window has closed. Your submission can no longer be accepted."
	case CodeInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

// Error is a structured API error carrying the backend's error code, its
// human-readable message and the HTTP status it arrived with.
type Error struct {
	Code    Code
	Message string
	Status  int
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.Status, e.Message)
}

// New builds an Error with the canonical message for the code.
func New(code Code, status int) *Error {
	return &Error{Code: code, Message: Message(code), Status: status}
}

// CodeOf extracts the structured code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsTimeExpired reports whether err is the terminal time-expired condition.
// Detection is by structured code, never by message substring.
func IsTimeExpired(err error) bool {
	return CodeOf(err) == CodeTimeExpired
}
