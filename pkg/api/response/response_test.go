package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		data       any
		wantBody   string
	}{
		{"ok", http.StatusOK, map[string]string{"status": "ok"}, `{"status":"ok"}`},
		{"created", http.StatusCreated, map[string]int{"count": 2}, `{"count":2}`},
		{"no content", http.StatusNoContent, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.statusCode, tt.data)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if tt.wantBody == "" {
				if w.Body.Len() != 0 {
					t.Errorf("expected empty body, got %q", w.Body.String())
				}
				return
			}

			var got, want any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.wantBody), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("body = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, "missing inputs",
		map[string]any{"missing": []string{"a"}}, "")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Error.Code != ErrCodeValidationFailed || resp.Error.Message != "missing inputs" {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
	if resp.Error.RequestID != "unknown" {
		t.Errorf("RequestID = %q, want unknown", resp.Error.RequestID)
	}
	if resp.Error.Details["missing"] == nil {
		t.Error("expected details to be written")
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("workflow x: %w", ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("inputs: %w", ErrValidationFailed), http.StatusBadRequest, ErrCodeValidationFailed},
		{ErrRateLimited, http.StatusTooManyRequests, ErrCodeTooManyRequests},
		{ErrServiceUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternalServer},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		HandleError(w, tt.err, "req-1")
		if w.Code != tt.wantStatus {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.wantStatus)
		}
		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error.Code != tt.wantCode || resp.Error.RequestID != "req-1" {
			t.Errorf("%v: unexpected body %+v", tt.err, resp.Error)
		}
	}
}
