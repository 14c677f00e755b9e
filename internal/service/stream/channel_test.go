package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
)

// sseServer emits the given payloads as data events and then blocks
// until the client goes away.
func sseServer(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			fl.Flush()
		}
		<-r.Context().Done()
	}))
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	srv := sseServer(t, []string{
		`{"text": "hello", "sequence": 0, "isPartial": true}`,
		`not json at all`,
		`{"text": "hello doctor", "sequence": 0, "isFinal": true}`,
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []models.TranscriptionResult

	ch := New(srv.URL, WithReconnectDelay(10*time.Millisecond), WithMaxReconnects(1))
	err := ch.Subscribe(context.Background(), func(r models.TranscriptionResult) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer ch.Unsubscribe()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0].Text != "hello" || !got[0].IsPartial {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[1].Text != "hello doctor" || !got[1].IsFinal {
		t.Errorf("unexpected second event: %+v", got[1])
	}
}

func TestSubscribe_ReconnectBound(t *testing.T) {
	var connects int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&connects, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	const maxReconnects = 2
	errs := make(chan error, 4)

	ch := New(srv.URL, WithReconnectDelay(5*time.Millisecond), WithMaxReconnects(maxReconnects))
	if err := ch.Subscribe(context.Background(), nil, func(err error) {
		errs <- err
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case err := <-errs:
		if !fault.IsUnavailable(err) {
			t.Errorf("expected terminal UnavailableError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal error")
	}

	// Exactly one terminal error.
	select {
	case err := <-errs:
		t.Errorf("expected exactly one terminal error, got another: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Initial connect plus the bounded reconnections.
	if n := atomic.LoadInt32(&connects); n != maxReconnects+1 {
		t.Errorf("expected %d connection attempts, got %d", maxReconnects+1, n)
	}

	ch.Unsubscribe()
}

func TestSubscribe_AlreadySubscribed(t *testing.T) {
	srv := sseServer(t, nil)
	defer srv.Close()

	ch := New(srv.URL, WithReconnectDelay(10*time.Millisecond))
	if err := ch.Subscribe(context.Background(), nil, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer ch.Unsubscribe()

	if err := ch.Subscribe(context.Background(), nil, nil); err == nil {
		t.Error("expected second Subscribe to fail")
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	srv := sseServer(t, nil)
	defer srv.Close()

	ch := New(srv.URL, WithReconnectDelay(10*time.Millisecond))
	if err := ch.Subscribe(context.Background(), nil, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ch.Unsubscribe()
	ch.Unsubscribe() // second call is a no-op
	ch.Unsubscribe()
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("since"); got == "" {
			t.Error("expected since parameter")
		}
		w.Write([]byte(`{"transcriptions": [{"text": "a", "sequence": 0, "isFinal": true}, {"text": "b", "sequence": 1, "isFinal": true}]}`))
	}))
	defer srv.Close()

	results, err := New(srv.URL).Poll(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(results) != 2 || results[0].Text != "a" || results[1].Text != "b" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestRemoteControl(t *testing.T) {
	var started, stopped int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			atomic.AddInt32(&started, 1)
		case "/stop":
			atomic.AddInt32(&stopped, 1)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ch := New(srv.URL)
	if err := ch.StartRemote(context.Background()); err != nil {
		t.Errorf("start: %v", err)
	}
	if err := ch.StopRemote(context.Background()); err != nil {
		t.Errorf("stop: %v", err)
	}
	if started != 1 || stopped != 1 {
		t.Errorf("expected one start and one stop, got %d/%d", started, stopped)
	}
}
