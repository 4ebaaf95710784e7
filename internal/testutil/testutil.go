// Package testutil carries the handful of helpers the HTTP tests share.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode fails the test when an HTTP status differs from want.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertJSONHeader checks that the recorded response advertises a JSON body.
func AssertJSONHeader(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
}

// DecodeBody unmarshals the recorded response body into out.
func DecodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

// NewTestRecorder creates a response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
