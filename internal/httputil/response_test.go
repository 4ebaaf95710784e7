package httputil

import (
	"net/http"
	"testing"

	"github.com/crankcase-data/power.report/internal/testutil"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := testutil.NewTestRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	testutil.AssertJSONHeader(t, rec)

	var resp map[string]string
	testutil.DecodeBody(t, rec, &resp)
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := testutil.NewTestRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var resp map[string]string
	testutil.DecodeBody(t, rec, &resp)
	if resp["message"] != "hello" {
		t.Errorf("message = %s, want 'hello'", resp["message"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := testutil.NewTestRecorder()
	WriteJSONOK(rec, map[string]int{"count": 42})

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp map[string]int
	testutil.DecodeBody(t, rec, &resp)
	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		want  int
	}{
		{"method not allowed", func(w http.ResponseWriter) { MethodNotAllowed(w) }, http.StatusMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid input") }, http.StatusBadRequest},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "already running") }, http.StatusConflict},
		{"internal error", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewTestRecorder()
			tt.write(rec)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
			testutil.AssertJSONHeader(t, rec)
		})
	}
}
