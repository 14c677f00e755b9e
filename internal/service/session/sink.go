package session

import (
	"context"
	"sync"

	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/observability/metrics"
)

// SegmentSink is where the capture session hands completed segments.
// Two strategies exist: live (per-segment submission as audio arrives)
// and batch (one combined submission at stop). The strategy is chosen
// at session construction.
type SegmentSink interface {
	// Accept takes ownership of a segment. Must not block the capture
	// loop on network I/O.
	Accept(seg models.AudioSegment)

	// Flush drains outstanding work within the bounds of ctx. Called
	// once at stop; the sink accepts no segments afterwards.
	Flush(ctx context.Context) error
}

// processFunc runs the transcribe/translate/reconcile path for one
// segment. Errors are handled inside; the sink only sequences calls.
type processFunc func(ctx context.Context, seg models.AudioSegment)

// liveSink submits each segment as it arrives. Submission is serialized
// on one worker so a slow remote call never stalls capture: segments
// queue up behind it, and when the backlog exceeds the bound the queue
// collapses to the most recent segment. Live captions should reflect
// now, not an ever-growing unprocessed queue.
type liveSink struct {
	process    processFunc
	maxBacklog int
	m          *metrics.Metrics

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.AudioSegment
	busy   bool
	closed bool

	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newLiveSink(process processFunc, maxBacklog int) *liveSink {
	if maxBacklog < 1 {
		maxBacklog = 1
	}
	s := &liveSink{
		process:    process,
		maxBacklog: maxBacklog,
		m:          metrics.DefaultMetrics,
		done:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	go s.worker()
	return s
}

func (s *liveSink) Accept(seg models.AudioSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, seg)
	if len(s.queue) > s.maxBacklog {
		dropped := len(s.queue) - 1
		s.queue = s.queue[len(s.queue)-1:]
		for i := 0; i < dropped; i++ {
			s.m.RecordSegmentCoalesced()
		}
	}
	s.cond.Broadcast()
}

func (s *liveSink) worker() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed && s.runCtx.Err() == nil {
			s.cond.Wait()
		}
		if s.runCtx.Err() != nil {
			s.queue = nil
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			// closed and drained
			s.mu.Unlock()
			return
		}
		seg := s.queue[0]
		s.queue = s.queue[1:]
		s.busy = true
		s.mu.Unlock()

		s.process(s.runCtx, seg)

		s.mu.Lock()
		s.busy = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Flush stops accepting segments, collapses any remaining backlog to
// the newest segment (the one that carries the freshest speech), and
// waits for it within ctx. On timeout the in-flight submission is
// cancelled and its late response discarded.
func (s *liveSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if len(s.queue) > 1 {
		dropped := len(s.queue) - 1
		s.queue = s.queue[len(s.queue)-1:]
		for i := 0; i < dropped; i++ {
			s.m.RecordSegmentCoalesced()
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.mu.Lock()
		for len(s.queue) > 0 || s.busy {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(drained)
	}()

	select {
	case <-drained:
		<-s.done
		return nil
	case <-ctx.Done():
		s.cancel()
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
		<-s.done
		return ctx.Err()
	}
}

// batchSink buffers the whole session and submits one combined blob at
// stop. Chunks after the first are continuation data of one recording,
// so concatenation yields a single self-contained container.
type batchSink struct {
	process processFunc

	mu       sync.Mutex
	segments []models.AudioSegment
	flushed  bool
}

func newBatchSink(process processFunc) *batchSink {
	return &batchSink{process: process}
}

func (s *batchSink) Accept(seg models.AudioSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return
	}
	s.segments = append(s.segments, seg)
}

func (s *batchSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return nil
	}
	s.flushed = true
	segments := s.segments
	s.segments = nil
	s.mu.Unlock()

	if len(segments) == 0 {
		return nil
	}

	size := 0
	for _, seg := range segments {
		size += len(seg.Data)
	}
	combined := models.AudioSegment{
		Data:      make([]byte, 0, size),
		MimeType:  segments[0].MimeType,
		Sequence:  segments[0].Sequence,
		Timestamp: segments[0].Timestamp,
	}
	for _, seg := range segments {
		combined.Data = append(combined.Data, seg.Data...)
	}

	s.process(ctx, combined)
	return ctx.Err()
}
