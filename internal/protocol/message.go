package protocol

import (
	"encoding/json"

	"messer/internal/apperror"
)

// Request is an inbound envelope. ID is echoed back verbatim, so any JSON
// value the client picks works as a correlation token.
type Request struct {
	ID       json.RawMessage `json:"id"`
	Endpoint string          `json:"endpoint"`
	Content  json.RawMessage `json:"content"`
}

// Response answers exactly one Request. Errors is empty on success.
type Response struct {
	Endpoint string          `json:"endpoint"`
	ID       json.RawMessage `json:"id"`
	Content  any             `json:"content"`
	Errors   []ErrorEntry    `json:"errors"`
}

// ErrorEntry carries a wire code of the form KIND or KIND/LOCAL.
type ErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Content any    `json:"content"`
}

// Notification is a server push. It has no id.
type Notification struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// FieldError describes one failed schema rule.
type FieldError = apperror.FieldError

// ReferenceError names the request field a lookup failed on.
type ReferenceError struct {
	Field string `json:"field"`
}
