package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
)

func segment(size int) models.AudioSegment {
	return models.AudioSegment{
		Data:      make([]byte, size),
		MimeType:  "audio/webm;codecs=opus",
		Sequence:  0,
		Timestamp: time.Now(),
	}
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "auto" {
			t.Errorf("expected language hint 'auto', got %q", got)
		}
		if got := r.FormValue("mode"); got != "fast" {
			t.Errorf("expected mode 'fast', got %q", got)
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("missing audio part: %v", err)
		}
		defer f.Close()
		if !strings.HasSuffix(hdr.Filename, ".webm") {
			t.Errorf("expected .webm filename from mime type, got %q", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/webm;codecs=opus" {
			t.Errorf("expected audio part content type from codec, got %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " hello doctor ", "language": "en", "segments": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Transcribe(context.Background(), segment(2048), "auto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "hello doctor" {
		t.Errorf("expected trimmed text 'hello doctor', got %q", res.Text)
	}
	if res.Language != "en" {
		t.Errorf("expected language 'en', got %q", res.Language)
	}
	if !res.IsFinal {
		t.Error("expected batch result to be final")
	}
}

func TestTranscribe_SmallInputNeverHitsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := New(srv.URL)

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"one byte", 1},
		{"just under minimum", MinSegmentBytes - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Transcribe(context.Background(), segment(tt.size), "auto")
			if !fault.IsInvalidInput(err) {
				t.Errorf("expected InvalidInputError, got %v", err)
			}
		})
	}

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected zero network calls for undersized input, got %d", n)
	}
}

func TestTranscribe_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Model not loaded"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Transcribe(context.Background(), segment(2048), "auto")

	if !fault.IsService(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Model not loaded") {
		t.Errorf("expected server message in error, got %q", err.Error())
	}
}

func TestTranscribe_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(srv.URL)
	_, err := c.Transcribe(context.Background(), segment(2048), "auto")

	if !fault.IsUnavailable(err) {
		t.Errorf("expected UnavailableError, got %v", err)
	}
}

func TestCheckAvailable(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer healthy.Close()

	if err := New(healthy.URL).CheckAvailable(context.Background()); err != nil {
		t.Errorf("expected healthy probe to succeed, got %v", err)
	}

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sick.Close()

	if err := New(sick.URL).CheckAvailable(context.Background()); !fault.IsService(err) {
		t.Errorf("expected ServiceError from failing probe, got %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/webm;codecs=opus", ".webm"},
		{"audio/webm", ".webm"},
		{"audio/mp4", ".mp4"},
		{"audio/wav", ".wav"},
		{"audio/ogg;codecs=opus", ".ogg"},
		{"application/octet-stream", ".webm"},
	}

	for _, tt := range tests {
		if got := extensionFor(tt.mime); got != tt.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
