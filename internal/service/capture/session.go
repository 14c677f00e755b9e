package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/observability/metrics"
)

// EmitFunc receives each completed segment from the session.
type EmitFunc func(models.AudioSegment)

// FailureFunc is notified when the device is lost mid-session.
type FailureFunc func(error)

// Session records from a Device and emits AudioSegments with strictly
// increasing sequence numbers. One session per device; Start while
// recording is an error (the controller treats it as a no-op upstream).
type Session struct {
	dev           Device
	emit          EmitFunc
	onFailure     FailureFunc
	flushInterval time.Duration
	prefs         []string
	metrics       *metrics.Metrics
	logger        zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopping bool
	mimeType string
	sequence int64
	done     chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFlushInterval sets the chunk flush cadence.
func WithFlushInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.flushInterval = d }
}

// WithMimePreferences overrides the encoding probe order.
func WithMimePreferences(prefs []string) SessionOption {
	return func(s *Session) { s.prefs = prefs }
}

// WithFailureHandler sets the mid-session device loss callback.
func WithFailureHandler(fn FailureFunc) SessionOption {
	return func(s *Session) { s.onFailure = fn }
}

// NewSession creates a capture session over the given device. Each
// completed segment is handed to emit.
func NewSession(dev Device, emit EmitFunc, opts ...SessionOption) *Session {
	s := &Session{
		dev:           dev,
		emit:          emit,
		flushInterval: 2 * time.Second,
		prefs:         DefaultMimePreferences,
		metrics:       metrics.DefaultMetrics,
		logger:        logging.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start negotiates an encoding and begins recording. Returns a
// DeviceError if the device cannot be acquired or no preferred encoding
// is supported.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture session already running")
	}

	mimeType, err := s.negotiate()
	if err != nil {
		return err
	}

	chunks, err := s.dev.Start(ctx, mimeType, s.flushInterval)
	if err != nil {
		return &fault.DeviceError{Reason: "failed to acquire audio input", Err: err}
	}

	s.running = true
	s.stopping = false
	s.mimeType = mimeType
	s.done = make(chan struct{})

	s.logger.Info().
		Str("mimeType", mimeType).
		Dur("flushInterval", s.flushInterval).
		Msg("Capture started")

	go s.pump(chunks, s.done)
	return nil
}

// negotiate probes the preference list in order. Caller holds s.mu.
func (s *Session) negotiate() (string, error) {
	for _, mt := range s.prefs {
		if s.dev.Supports(mt) {
			return mt, nil
		}
	}
	return "", &fault.DeviceError{Reason: "no supported audio encoding"}
}

func (s *Session) pump(chunks <-chan []byte, done chan struct{}) {
	defer close(done)

	for data := range chunks {
		if len(data) == 0 {
			continue
		}
		seg := models.AudioSegment{
			Data:      data,
			MimeType:  s.mimeType,
			Sequence:  s.nextSequence(),
			Timestamp: time.Now(),
		}
		s.metrics.RecordSegmentCaptured(len(data))
		s.emit(seg)
	}

	// Channel closed: distinguish device loss from a requested stop.
	if err := s.dev.Err(); err != nil {
		s.mu.Lock()
		wasStopping := s.stopping
		s.running = false
		s.mu.Unlock()

		if !wasStopping {
			s.logger.Error().Err(err).Msg("Audio device lost mid-session")
			if s.onFailure != nil {
				s.onFailure(&fault.DeviceError{Reason: "device lost", Err: err})
			}
		}
		return
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop ends recording. The device flushes any buffered audio as a final
// chunk before the segment stream closes; Stop returns after that last
// segment has been emitted. Idempotent: stopping a session that is not
// running is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	done := s.done
	s.mu.Unlock()

	if err := s.dev.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Device stop reported error")
	}
	<-done

	s.logger.Info().Int64("segments", s.Sequence()).Msg("Capture stopped")
	return nil
}

// Running reports whether the session is currently recording.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// MimeType returns the negotiated encoding, empty before Start.
func (s *Session) MimeType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mimeType
}

// Sequence returns the number of segments emitted so far.
func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

func (s *Session) nextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sequence
	s.sequence++
	return n
}
