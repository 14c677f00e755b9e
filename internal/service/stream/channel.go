// Package stream provides the push-based result channel: a server-sent
// events subscription delivering transcription results produced by the
// server-side capture process, with bounded reconnect on failure.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/observability/metrics"
)

const serviceName = "streaming"

// ResultFunc receives each parsed event from the channel.
type ResultFunc func(models.TranscriptionResult)

// ErrorFunc receives the single terminal error after the reconnect
// budget is exhausted.
type ErrorFunc func(error)

// Channel is a persistent subscription to the streaming endpoint.
// Lifecycle is tied to the capture session: open only while capturing,
// closed by Unsubscribe before stop returns.
type Channel struct {
	baseURL        string
	hc             *http.Client // no client timeout; the stream is long-lived
	ctl            *http.Client // bounded timeout for control calls
	reconnectDelay time.Duration
	maxReconnects  int
	metrics        *metrics.Metrics
	logger         zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.reconnectDelay = d }
}

// WithMaxReconnects sets the bounded reconnect attempt count.
func WithMaxReconnects(n int) Option {
	return func(c *Channel) { c.maxReconnects = n }
}

// WithHTTPClient overrides the streaming HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Channel) { c.hc = hc }
}

// New creates a channel for the given streaming service base URL.
func New(baseURL string, opts ...Option) *Channel {
	c := &Channel{
		baseURL:        strings.TrimRight(baseURL, "/"),
		hc:             &http.Client{},
		ctl:            &http.Client{Timeout: 10 * time.Second},
		reconnectDelay: 5 * time.Second,
		maxReconnects:  5,
		metrics:        metrics.DefaultMetrics,
		logger:         logging.WithComponent("stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe opens the push connection and forwards each inbound event to
// onResult. Malformed events are logged and dropped. On connection
// failure the channel waits a fixed delay and retries; after
// maxReconnects failed reconnections it calls onError exactly once with
// a terminal error and stops. A successful connect resets the budget.
//
// Subscribe returns immediately; delivery happens on a background
// goroutine. Calling Subscribe while already subscribed is an error.
func (c *Channel) Subscribe(ctx context.Context, onResult ResultFunc, onError ErrorFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("already subscribed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, done, onResult, onError)
	return nil
}

// Unsubscribe closes the connection and waits for delivery to stop.
// Idempotent.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Channel) run(ctx context.Context, done chan struct{}, onResult ResultFunc, onError ErrorFunc) {
	defer close(done)

	reconnects := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.consume(ctx, onResult)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// The link was up and then dropped; start a fresh budget.
			reconnects = 0
			c.logger.Warn().Err(err).Msg("Stream disconnected, reconnecting")
		}

		reconnects++
		c.metrics.RecordStreamReconnect()
		if reconnects > c.maxReconnects {
			c.logger.Error().
				Int("attempts", c.maxReconnects).
				Msg("Stream reconnect budget exhausted")
			if onError != nil {
				onError(&fault.UnavailableError{Service: serviceName, Err: fault.ErrStreamDisconnected})
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume holds one connection open and dispatches its events. The
// returned bool reports whether the connection was ever established.
func (c *Channel) consume(ctx context.Context, onResult ResultFunc) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}

	c.logger.Info().Msg("Stream connected")

	var data bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if data.Len() > 0 {
				c.dispatch(data.Bytes(), onResult)
				data.Reset()
			}
		default:
			// comment or field we do not handle (event:, id:, retry:)
		}
	}

	if err := scanner.Err(); err != nil {
		return true, err
	}
	return true, fault.ErrStreamDisconnected
}

func (c *Channel) dispatch(raw []byte, onResult ResultFunc) {
	c.metrics.RecordStreamEvent()

	var res models.TranscriptionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.metrics.RecordStreamEventDropped()
		c.logger.Warn().Err(err).Str("payload", string(raw)).Msg("Dropping malformed stream event")
		return
	}
	if onResult != nil {
		onResult(res)
	}
}

// StartRemote asks the streaming service to begin its server-side
// capture session.
func (c *Channel) StartRemote(ctx context.Context) error {
	return c.control(ctx, "/start")
}

// StopRemote asks the streaming service to end its server-side capture
// session.
func (c *Channel) StopRemote(ctx context.Context) error {
	return c.control(ctx, "/stop")
}

func (c *Channel) control(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.ctl.Do(req)
	if err != nil {
		return &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}
	return nil
}

// Poll fetches the accumulated result log, the fallback when the push
// channel is unavailable. A zero since returns the full log.
func (c *Channel) Poll(ctx context.Context, since time.Time) ([]models.TranscriptionResult, error) {
	url := c.baseURL + "/transcriptions"
	if !since.IsZero() {
		url += "?since=" + strconv.FormatInt(since.UnixMilli(), 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.ctl.Do(req)
	if err != nil {
		return nil, &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}

	var out struct {
		Transcriptions []models.TranscriptionResult `json:"transcriptions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode, Message: "malformed response body"}
	}
	return out.Transcriptions, nil
}

// CheckAvailable probes the streaming service's health endpoint.
func (c *Channel) CheckAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.ctl.Do(req)
	if err != nil {
		return &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}
	return nil
}
