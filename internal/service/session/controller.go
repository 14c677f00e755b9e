// Package session provides the externally-facing controller for a
// capture-and-transcription session: the state machine, the segment
// submission strategies and the health prober. It is the only surface
// the UI layer talks to; raw audio buffers and network response bodies
// never cross this boundary.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/events"
	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/observability/metrics"
	"consult-speech-pipeline/internal/service/capture"
	"consult-speech-pipeline/internal/service/langid"
	"consult-speech-pipeline/internal/service/stream"
	"consult-speech-pipeline/internal/service/transcript"
)

// Transcriber converts one audio segment to text.
type Transcriber interface {
	Transcribe(ctx context.Context, seg models.AudioSegment, languageHint string) (*models.TranscriptionResult, error)
	HealthChecker
}

// Translator converts text between languages. Optional: when it fails,
// the pipeline keeps the untranslated text.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	HealthChecker
}

// Streamer is the push result channel plus its remote session controls.
type Streamer interface {
	Subscribe(ctx context.Context, onResult stream.ResultFunc, onError stream.ErrorFunc) error
	Unsubscribe()
	StartRemote(ctx context.Context) error
	StopRemote(ctx context.Context) error
	HealthChecker
}

// ResultFunc receives every reconciled result, partial and final.
type ResultFunc func(models.TranscriptionResult)

// Modes for segment submission.
const (
	ModeLive  = "live"  // submit each segment as it is captured
	ModeBatch = "batch" // buffer everything, submit once at stop
)

// Config assembles a Controller. Device and Transcriber are required;
// everything else degrades gracefully when absent.
type Config struct {
	Device      capture.Device
	Transcriber Transcriber
	Translator  Translator
	Streamer    Streamer
	Publisher   *events.Publisher
	OnResult    ResultFunc

	Mode           string
	LanguageHint   string  // "auto" requests source-language detection
	TargetLanguage string
	Threshold      float64 // language heuristic threshold; 0 picks the mode default
	FlushInterval  time.Duration
	MaxBacklog     int
	StopTimeout    time.Duration
	ProbePeriod    time.Duration
}

// Controller is the session state machine.
//
// State transitions:
//
//	IDLE → CAPTURING → STOPPING → IDLE
//	         │
//	         └── device lost ──→ ERROR (transcript preserved)
type Controller struct {
	cfg        Config
	classifier *langid.Classifier
	rec        *transcript.Reconciler
	prober     *Prober
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu        sync.Mutex
	state     models.SessionState
	starting  bool
	sessionID string
	started   time.Time
	capture   *capture.Session
	sink      SegmentSink
}

// New creates a controller and begins background health probing for the
// controller's lifetime. Call Close to release it.
func New(cfg Config) (*Controller, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("session: device is required")
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("session: transcriber is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLive
	}
	if cfg.Mode != ModeLive && cfg.Mode != ModeBatch {
		return nil, fmt.Errorf("session: unknown mode %q", cfg.Mode)
	}
	if cfg.LanguageHint == "" {
		cfg.LanguageHint = "auto"
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "en"
	}
	if cfg.Threshold == 0 {
		if cfg.Mode == ModeBatch {
			cfg.Threshold = langid.ThresholdBatch
		} else {
			cfg.Threshold = langid.ThresholdLive
		}
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = 3
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	var streamHealth HealthChecker
	if cfg.Streamer != nil {
		streamHealth = cfg.Streamer
	}
	var translateHealth HealthChecker
	if cfg.Translator != nil {
		translateHealth = cfg.Translator
	}

	c := &Controller{
		cfg:        cfg,
		classifier: langid.New(cfg.Threshold),
		rec:        transcript.New(),
		prober:     NewProber(cfg.Transcriber, translateHealth, streamHealth, cfg.ProbePeriod),
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("session"),
		state:      models.StateIdle,
	}
	c.prober.Start(context.Background())
	return c, nil
}

// Start acquires the audio device and begins capturing. A start while
// already capturing is logged and ignored. A transcription health probe
// failure does not block start: capture is local, and the availability
// flag in Status reflects the degradation.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case models.StateCapturing:
		c.mu.Unlock()
		c.logger.Warn().Msg("Start ignored: already capturing")
		return nil
	case models.StateStopping:
		c.mu.Unlock()
		return fmt.Errorf("session is stopping")
	case models.StateError:
		c.mu.Unlock()
		return fmt.Errorf("session is in error state, stop it first")
	}
	if c.starting {
		c.mu.Unlock()
		c.logger.Warn().Msg("Start ignored: start already in progress")
		return nil
	}
	c.starting = true
	sessionID := uuid.NewString()
	c.sessionID = sessionID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	// On-demand availability snapshot; runs aside so a slow dependency
	// cannot delay the device.
	go c.prober.Refresh(context.Background())

	var sink SegmentSink
	if c.cfg.Mode == ModeBatch {
		sink = newBatchSink(c.process)
	} else {
		sink = newLiveSink(c.process, c.cfg.MaxBacklog)
	}

	cap := capture.NewSession(c.cfg.Device, sink.Accept,
		capture.WithFlushInterval(c.cfg.FlushInterval),
		capture.WithFailureHandler(c.onDeviceLost),
	)
	if err := cap.Start(ctx); err != nil {
		// The sink's worker is already running; drain it so a failed
		// start leaves nothing behind.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sink.Flush(releaseCtx)
		c.logger.Error().Err(err).Msg("Failed to start capture")
		return err
	}

	if c.cfg.Streamer != nil {
		if err := c.cfg.Streamer.StartRemote(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Remote stream session start failed")
			c.prober.MarkStreaming(false)
		} else {
			c.prober.MarkStreaming(true)
		}
		if err := c.cfg.Streamer.Subscribe(context.Background(), c.onStreamResult, c.onStreamError); err != nil {
			c.logger.Warn().Err(err).Msg("Stream subscription failed")
		}
	}

	c.mu.Lock()
	c.capture = cap
	c.sink = sink
	// The device may already have been lost between capture start and
	// here; do not clobber the error state if so.
	if c.state != models.StateError {
		c.state = models.StateCapturing
	}
	c.started = time.Now()
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	logger := logging.WithSession(sessionID)
	logger.Info().
		Str("mode", c.cfg.Mode).
		Str("mimeType", cap.MimeType()).
		Msg("Session started")
	return nil
}

// Stop ends capture, drains outstanding submissions and returns to
// idle. Idempotent: stopping an idle session is a no-op. The last
// submitted segment is awaited within the configured stop timeout;
// responses for anything superseded by the stop are discarded.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case models.StateIdle, models.StateStopping:
		c.mu.Unlock()
		return nil
	case models.StateError:
		// Capture is already gone; release the stream, drain the sink
		// so its worker exits, and reset.
		sink := c.sink
		started := c.started
		c.state = models.StateIdle
		c.mu.Unlock()

		c.releaseStream(ctx)
		if sink != nil {
			flushCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
			defer cancel()
			if err := sink.Flush(flushCtx); err != nil {
				c.logger.Warn().Err(err).Msg("Drain after device loss timed out")
			}
		}
		c.metrics.RecordSessionEnd(time.Since(started).Seconds())
		return nil
	}
	c.state = models.StateStopping
	cap, sink := c.capture, c.sink
	started := c.started
	c.mu.Unlock()

	// Stop flushes buffered audio as a final segment into the sink.
	if err := cap.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("Capture stop reported error")
	}

	c.releaseStream(ctx)

	flushCtx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
	defer cancel()
	if err := sink.Flush(flushCtx); err != nil {
		c.logger.Warn().Err(err).Msg("Stop timed out awaiting last submission")
	}

	c.mu.Lock()
	c.state = models.StateIdle
	c.mu.Unlock()

	c.metrics.RecordSessionEnd(time.Since(started).Seconds())
	c.logger.Info().Msg("Session stopped")
	return nil
}

func (c *Controller) releaseStream(ctx context.Context) {
	if c.cfg.Streamer == nil {
		return
	}
	if err := c.cfg.Streamer.StopRemote(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Remote stream session stop failed")
	}
	c.cfg.Streamer.Unsubscribe()
}

// GetTranscript returns the reconciled transcript so far. Valid in any
// state; after a device loss the transcript up to the failure is
// preserved, not discarded.
func (c *Controller) GetTranscript() string {
	return c.rec.Current()
}

// Clear discards the accumulated transcript.
func (c *Controller) Clear() {
	c.rec.Clear()
}

// Status reports the session state and dependency availability flags.
func (c *Controller) Status() models.Status {
	transcription, translation, streaming := c.prober.Flags()
	c.mu.Lock()
	state, id := c.state, c.sessionID
	c.mu.Unlock()
	return models.Status{
		SessionID:     id,
		State:         state,
		Transcription: transcription,
		Translation:   translation,
		Streaming:     streaming,
	}
}

// Close releases the controller's background resources. The session
// must be stopped first.
func (c *Controller) Close() {
	c.prober.Stop()
}

// process runs one segment through transcribe → language heuristic →
// translate → reconcile. Called from a sink worker; errors degrade the
// result rather than the session.
func (c *Controller) process(ctx context.Context, seg models.AudioSegment) {
	res, err := c.cfg.Transcriber.Transcribe(ctx, seg, c.cfg.LanguageHint)
	if err != nil {
		switch {
		case fault.IsInvalidInput(err):
			c.logger.Debug().Int64("sequence", seg.Sequence).Err(err).Msg("Segment skipped")
		case fault.IsUnavailable(err):
			c.prober.MarkTranscription(false)
			c.logger.Warn().Int64("sequence", seg.Sequence).Err(err).Msg("Transcription unavailable, segment skipped")
		default:
			c.logger.Warn().Int64("sequence", seg.Sequence).Err(err).Msg("Transcription failed, segment skipped")
		}
		return
	}
	c.prober.MarkTranscription(true)

	out := *res
	out.OriginalText = res.Text
	out.Text = c.maybeTranslate(ctx, res.Text, res.Language)

	c.deliver(out)
}

// maybeTranslate runs the heuristic and, when the text does not look
// like the target language, the translation call. On any failure the
// original text is kept: translation is an enhancement, never a reason
// to drop recognized speech.
func (c *Controller) maybeTranslate(ctx context.Context, text, sourceLang string) string {
	if c.cfg.Translator == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if c.classifier.IsTarget(text) {
		c.metrics.RecordTranslationSkipped()
		return text
	}

	translated, err := c.cfg.Translator.Translate(ctx, text, sourceLang, c.cfg.TargetLanguage)
	if err != nil {
		if fault.IsUnavailable(err) {
			c.prober.MarkTranslation(false)
		}
		c.metrics.RecordTranslationFallback()
		c.logger.Warn().Err(err).Msg("Translation failed, keeping original text")
		return text
	}
	c.prober.MarkTranslation(true)
	if strings.TrimSpace(translated) == "" {
		return text
	}
	return translated
}

func (c *Controller) deliver(res models.TranscriptionResult) {
	c.rec.Append(res.Sequence, res.Text, res.IsFinal)
	c.metrics.RecordResult(res.IsFinal)

	if c.cfg.OnResult != nil {
		c.cfg.OnResult(res)
	}

	if c.cfg.Publisher != nil {
		c.mu.Lock()
		sessionID := c.sessionID
		c.mu.Unlock()

		ev := models.NewTranscriptEvent(sessionID, res)
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if res.IsFinal {
			_ = c.cfg.Publisher.PublishFinal(pubCtx, sessionID, ev)
		} else {
			_ = c.cfg.Publisher.PublishPartial(pubCtx, sessionID, ev)
		}
	}
}

// onStreamResult feeds push-channel results into the reconciler. The
// capture path and this path interleave freely; ordering comes from
// sequence numbers, not arrival. Results landing after the session left
// the capturing state are stale and dropped.
func (c *Controller) onStreamResult(res models.TranscriptionResult) {
	c.mu.Lock()
	capturing := c.state == models.StateCapturing
	c.mu.Unlock()
	if !capturing {
		c.logger.Debug().Int64("sequence", res.Sequence).Msg("Dropping stale stream result")
		return
	}
	c.prober.MarkStreaming(true)
	c.deliver(res)
}

func (c *Controller) onStreamError(err error) {
	c.prober.MarkStreaming(false)
	c.logger.Error().Err(err).Msg("Stream channel terminally failed")
}

// onDeviceLost handles an unrecoverable capture failure mid-session:
// the session moves to ERROR with the transcript so far preserved.
func (c *Controller) onDeviceLost(err error) {
	c.mu.Lock()
	if c.state != models.StateCapturing && !c.starting {
		c.mu.Unlock()
		return
	}
	c.state = models.StateError
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("Audio device lost, session in error state")
	c.releaseStream(context.Background())
}
