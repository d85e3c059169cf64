// Package api holds the JSON envelope shared by every HTTP handler: one
// success shape and one error shape carrying a machine-readable code plus
// the request id for correlation.
package api

import "net/http"

// ErrorResponse is the wire form of every non-2xx JSON response.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError carries a stable code for programmatic handling and a human
// message. Details is for field-level validation notes.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, e APIError) {
	WriteJSON(w, status, ErrorResponse{Error: e})
}

func BadRequest(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	writeError(w, http.StatusBadRequest, APIError{Code: code, Message: message, Details: details, RequestID: requestID})
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	writeError(w, http.StatusUnauthorized, APIError{Code: code, Message: message, RequestID: requestID})
}

func Forbidden(w http.ResponseWriter, code, message, requestID string) {
	writeError(w, http.StatusForbidden, APIError{Code: code, Message: message, RequestID: requestID})
}

func NotFound(w http.ResponseWriter, code, message, requestID string) {
	writeError(w, http.StatusNotFound, APIError{Code: code, Message: message, RequestID: requestID})
}

func RateLimited(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	writeError(w, http.StatusTooManyRequests, APIError{Code: code, Message: message, Details: details, RequestID: requestID})
}

// Internal deliberately hides the underlying error from the client; the
// handler logs it with the same request id.
func Internal(w http.ResponseWriter, requestID string) {
	writeError(w, http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: "Internal server error", RequestID: requestID})
}
