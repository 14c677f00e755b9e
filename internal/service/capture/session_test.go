package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
)

// fakeDevice is a scripted device for session tests.
type fakeDevice struct {
	supported []string
	chunks    [][]byte
	startErr  error
	termErr   error

	mu      sync.Mutex
	out     chan []byte
	stopped bool
}

func (d *fakeDevice) Supports(mimeType string) bool {
	for _, s := range d.supported {
		if s == mimeType {
			return true
		}
	}
	return false
}

func (d *fakeDevice) Start(ctx context.Context, mimeType string, flushInterval time.Duration) (<-chan []byte, error) {
	if d.startErr != nil {
		return nil, d.startErr
	}
	d.mu.Lock()
	d.out = make(chan []byte, len(d.chunks)+1)
	for _, c := range d.chunks {
		d.out <- c
	}
	out := d.out
	d.mu.Unlock()
	if d.termErr != nil {
		// A failing device closes its stream on its own.
		close(out)
	}
	return out, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		close(d.out)
	}
	return nil
}

func (d *fakeDevice) Err() error { return d.termErr }

func collectSegments() (EmitFunc, func() []models.AudioSegment) {
	var mu sync.Mutex
	var segs []models.AudioSegment
	emit := func(seg models.AudioSegment) {
		mu.Lock()
		segs = append(segs, seg)
		mu.Unlock()
	}
	get := func() []models.AudioSegment {
		mu.Lock()
		defer mu.Unlock()
		out := make([]models.AudioSegment, len(segs))
		copy(out, segs)
		return out
	}
	return emit, get
}

func TestSession_NegotiatesPreferredEncoding(t *testing.T) {
	tests := []struct {
		name      string
		supported []string
		want      string
	}{
		{"first choice", []string{"audio/webm;codecs=opus", "audio/wav"}, "audio/webm;codecs=opus"},
		{"fallback to mp4", []string{"audio/mp4", "audio/wav"}, "audio/mp4"},
		{"last resort wav", []string{"audio/wav"}, "audio/wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{supported: tt.supported}
			emit, _ := collectSegments()
			s := NewSession(dev, emit)

			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			defer s.Stop()

			if got := s.MimeType(); got != tt.want {
				t.Errorf("negotiated %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSession_NoSupportedEncoding(t *testing.T) {
	dev := &fakeDevice{supported: []string{"audio/flac"}}
	emit, _ := collectSegments()
	s := NewSession(dev, emit)

	err := s.Start(context.Background())
	if !fault.IsDevice(err) {
		t.Errorf("expected DeviceError, got %v", err)
	}
}

func TestSession_DeviceAcquisitionFailure(t *testing.T) {
	dev := &fakeDevice{
		supported: []string{"audio/wav"},
		startErr:  errors.New("permission denied"),
	}
	emit, _ := collectSegments()
	s := NewSession(dev, emit)

	err := s.Start(context.Background())
	if !fault.IsDevice(err) {
		t.Errorf("expected DeviceError, got %v", err)
	}
	if s.Running() {
		t.Error("expected session not running after failed start")
	}
}

func TestSession_EmitsSequencedSegments(t *testing.T) {
	dev := &fakeDevice{
		supported: []string{"audio/wav"},
		chunks:    [][]byte{[]byte("chunk0"), []byte("chunk1"), []byte("chunk2")},
	}
	emit, get := collectSegments()
	s := NewSession(dev, emit)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	segs := get()
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, seg := range segs {
		if seg.Sequence != int64(i) {
			t.Errorf("segment %d has sequence %d", i, seg.Sequence)
		}
		if seg.MimeType != "audio/wav" {
			t.Errorf("segment %d has mime type %q", i, seg.MimeType)
		}
		if seg.Timestamp.IsZero() {
			t.Errorf("segment %d has zero timestamp", i)
		}
	}
}

func TestSession_StopIdempotent(t *testing.T) {
	dev := &fakeDevice{
		supported: []string{"audio/wav"},
		chunks:    [][]byte{[]byte("chunk0")},
	}
	emit, get := collectSegments()
	s := NewSession(dev, emit)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if got := len(get()); got != 1 {
		t.Errorf("expected 1 segment after double stop, got %d", got)
	}
	// A stop with no prior start is also a no-op.
	idle := NewSession(&fakeDevice{supported: []string{"audio/wav"}}, emit)
	if err := idle.Stop(); err != nil {
		t.Errorf("stop on idle session: %v", err)
	}
}

func TestSession_StartWhileRunning(t *testing.T) {
	dev := &fakeDevice{supported: []string{"audio/wav"}}
	emit, _ := collectSegments()
	s := NewSession(dev, emit)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error starting a running session")
	}
}

func TestSession_DeviceLostMidSession(t *testing.T) {
	dev := &fakeDevice{
		supported: []string{"audio/wav"},
		chunks:    [][]byte{[]byte("chunk0")},
		termErr:   errors.New("device unplugged"),
	}
	emit, _ := collectSegments()

	failures := make(chan error, 1)
	s := NewSession(dev, emit, WithFailureHandler(func(err error) {
		failures <- err
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case err := <-failures:
		if !fault.IsDevice(err) {
			t.Errorf("expected DeviceError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure callback")
	}
}

func TestFileDevice_ReplaysFileInChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.wav")
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	dev := NewFileDevice(path, 400)
	if !dev.Supports("audio/wav") {
		t.Fatal("expected wav support from .wav file")
	}
	if dev.Supports("audio/webm") {
		t.Error("expected no webm support from .wav file")
	}

	chunks, err := dev.Start(context.Background(), "audio/wav", time.Millisecond)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var total []byte
	for c := range chunks {
		total = append(total, c...)
	}

	if len(total) != len(content) {
		t.Fatalf("expected %d bytes replayed, got %d", len(content), len(total))
	}
	if dev.Err() != nil {
		t.Errorf("unexpected device error: %v", dev.Err())
	}
}

func TestFileDevice_StopFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.wav")
	content := make([]byte, 10_000)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Huge interval: nothing flushes until Stop forces the remainder out.
	dev := NewFileDevice(path, 100)
	chunks, err := dev.Start(context.Background(), "audio/wav", time.Hour)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	go dev.Stop()

	var total []byte
	for c := range chunks {
		total = append(total, c...)
	}
	if len(total) != len(content) {
		t.Errorf("expected full remainder flushed on stop, got %d of %d bytes", len(total), len(content))
	}
}
