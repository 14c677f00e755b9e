package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckAvailable(ctx context.Context) error { return f(ctx) }

func TestProber_FlagsStartFalse(t *testing.T) {
	p := NewProber(nil, nil, nil, time.Hour)
	defer p.Stop()

	transcription, translation, streaming := p.Flags()
	if transcription || translation || streaming {
		t.Error("flags must start false until a probe succeeds")
	}
}

func TestProber_Refresh(t *testing.T) {
	ok := checkerFunc(func(ctx context.Context) error { return nil })
	down := checkerFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	p := NewProber(ok, down, nil, time.Hour)
	defer p.Stop()

	p.Refresh(context.Background())

	transcription, translation, streaming := p.Flags()
	if !transcription {
		t.Error("transcription should be available")
	}
	if translation {
		t.Error("translation should be unavailable")
	}
	if streaming {
		t.Error("nil streaming checker should leave the flag false")
	}
}

func TestProber_RefreshSkipsWhenInFlight(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	slow := checkerFunc(func(ctx context.Context) error {
		calls.Add(1)
		<-block
		return nil
	})

	p := NewProber(slow, nil, nil, time.Hour)
	defer p.Stop()

	go p.Refresh(context.Background())
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 }, "first refresh never started")

	// A second refresh while one is running must not stack up.
	p.Refresh(context.Background())
	if got := calls.Load(); got != 1 {
		t.Errorf("overlapping refresh probed again: %d calls", got)
	}
	close(block)
}

func TestProber_MarkOverridesProbe(t *testing.T) {
	down := checkerFunc(func(ctx context.Context) error { return errors.New("unreachable") })
	p := NewProber(down, nil, nil, time.Hour)
	defer p.Stop()

	p.Refresh(context.Background())
	if tr, _, _ := p.Flags(); tr {
		t.Fatal("expected transcription down after failed probe")
	}

	// A successful real call is fresher evidence than the last probe.
	p.MarkTranscription(true)
	if tr, _, _ := p.Flags(); !tr {
		t.Error("mark after successful call should flip the flag")
	}
}

func TestProber_StopIdempotent(t *testing.T) {
	p := NewProber(nil, nil, nil, 10*time.Millisecond)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
