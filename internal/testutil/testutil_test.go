package testutil

import (
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusConflict, http.StatusConflict)
}

func TestRecorderHelpers(t *testing.T) {
	t.Parallel()

	rec := NewTestRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusAccepted)
	if _, err := rec.WriteString(`{"ready":true}`); err != nil {
		t.Fatalf("write body: %v", err)
	}

	AssertStatusCode(t, rec.Code, http.StatusAccepted)
	AssertJSONHeader(t, rec)

	var body struct {
		Ready bool `json:"ready"`
	}
	DecodeBody(t, rec, &body)
	if !body.Ready {
		t.Error("decoded body lost the ready flag")
	}
}
