// Package response writes JSON bodies and error envelopes for the HTTP API.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as a JSON response with the given status code. A nil
// data writes headers only.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	// Headers are already sent; an encoding failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	ErrorWithDetails(w, statusCode, code, message, nil, requestID)
}

// ErrorWithDetails writes an error envelope carrying extra fields.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]any, requestID string) {
	if requestID == "" {
		requestID = "unknown"
	}
	JSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}
