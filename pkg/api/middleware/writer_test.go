package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)

	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)
	_, _ = rec.Write([]byte("abc"))
	rec.Flush()

	if rec.status != http.StatusCreated || rec.size != 3 {
		t.Errorf("status=%d size=%d", rec.status, rec.size)
	}
	if !w.Flushed {
		t.Error("expected Flush to reach the underlying writer")
	}
	if newStatusRecorder(rec) != rec {
		t.Error("expected an existing recorder to be reused")
	}
	if rec.Unwrap() != w {
		t.Error("Unwrap() should return the wrapped writer")
	}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("expected Hijack to fail on a recorder")
	}
}
