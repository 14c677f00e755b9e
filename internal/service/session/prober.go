package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/observability/logging"
)

// HealthChecker is the probe surface every remote dependency exposes.
type HealthChecker interface {
	CheckAvailable(ctx context.Context) error
}

// Prober tracks per-dependency availability flags. Flags start false
// and only turn true after a successful probe or a successful real
// call. Probing runs on its own slow cadence and never blocks segment
// submission: if a probe round is already in flight, Refresh is a no-op.
type Prober struct {
	transcription HealthChecker
	translation   HealthChecker
	streaming     HealthChecker
	period        time.Duration
	probeTimeout  time.Duration
	logger        zerolog.Logger

	mu              sync.Mutex
	inFlight        bool
	transcriptionOK bool
	translationOK   bool
	streamingOK     bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewProber creates a prober over the given dependencies. Nil checkers
// are allowed; their flag simply stays false.
func NewProber(transcription, translation, streaming HealthChecker, period time.Duration) *Prober {
	if period <= 0 {
		period = 30 * time.Second
	}
	return &Prober{
		transcription: transcription,
		translation:   translation,
		streaming:     streaming,
		period:        period,
		probeTimeout:  5 * time.Second,
		logger:        logging.WithComponent("prober"),
		stopCh:        make(chan struct{}),
	}
}

// Refresh probes all dependencies once, concurrently. Returns without
// doing anything if a round is already running.
func (p *Prober) Refresh(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	probe := func(name string, hc HealthChecker, set func(bool)) {
		defer wg.Done()
		if hc == nil {
			return
		}
		err := hc.CheckAvailable(probeCtx)
		if err != nil {
			p.logger.Debug().Err(err).Str("service", name).Msg("Health probe failed")
		}
		set(err == nil)
	}

	wg.Add(3)
	go probe("transcription", p.transcription, p.MarkTranscription)
	go probe("translation", p.translation, p.MarkTranslation)
	go probe("streaming", p.streaming, p.MarkStreaming)
	wg.Wait()
}

// Start begins periodic background probing until Stop or ctx ends.
func (p *Prober) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.Refresh(ctx)
			}
		}
	}()
}

// Stop ends periodic probing. Idempotent.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Flags returns the current availability of transcription, translation
// and streaming, in that order.
func (p *Prober) Flags() (transcription, translation, streaming bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcriptionOK, p.translationOK, p.streamingOK
}

// MarkTranscription records the outcome of a real transcription call.
func (p *Prober) MarkTranscription(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcriptionOK = ok
}

// MarkTranslation records the outcome of a real translation call.
func (p *Prober) MarkTranslation(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.translationOK = ok
}

// MarkStreaming records the outcome of a real streaming interaction.
func (p *Prober) MarkStreaming(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamingOK = ok
}
