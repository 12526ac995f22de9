package accesslog

import (
	"net/http/httptest"
	"testing"
)

func TestStatusRecorderDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	if sr.Status() != 200 {
		t.Fatalf("got %d, want 200 before any write", sr.Status())
	}
}

func TestStatusRecorderCapturesExplicitWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	sr.WriteHeader(404)
	if sr.Status() != 404 {
		t.Fatalf("got %d, want 404", sr.Status())
	}
}

func TestStatusRecorderWriteImpliesStatusOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	if _, err := sr.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr.Status() != 200 {
		t.Fatalf("got %d, want 200", sr.Status())
	}
}

func TestStatusRecorderFirstWriteHeaderWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	sr.WriteHeader(500)
	sr.WriteHeader(200)
	if sr.Status() != 500 {
		t.Fatalf("got %d, want 500 (first WriteHeader call should stick)", sr.Status())
	}
}
