// Package transcribe provides the HTTP client for the remote
// transcription service.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/observability/metrics"
)

const serviceName = "transcription"

// MinSegmentBytes is the smallest segment worth submitting. The remote
// service rejects anything under 100 bytes, and near-empty containers
// tend to hang the decoder, so they are filtered locally.
const MinSegmentBytes = 100

// Result is the transcription service's response payload.
type apiResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Client submits audio segments to the transcription endpoint.
type Client struct {
	baseURL string
	hc      *http.Client
	mode    string // "fast" or "accurate", forwarded to the service
	minSize int
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithMode sets the transcription mode forwarded to the service.
func WithMode(mode string) Option {
	return func(c *Client) { c.mode = mode }
}

// WithMinSegmentBytes overrides the local minimum-size threshold.
func WithMinSegmentBytes(n int) Option {
	return func(c *Client) { c.minSize = n }
}

// New creates a transcription client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 60 * time.Second},
		mode:    "fast",
		minSize: MinSegmentBytes,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("transcribe"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe submits one segment and returns the recognized text. The
// language hint "auto" requests source-language detection; the service
// translates to the target language on decode, so Text may already be
// target-language while Language reports the detected source.
func (c *Client) Transcribe(ctx context.Context, seg models.AudioSegment, languageHint string) (*models.TranscriptionResult, error) {
	if len(seg.Data) == 0 {
		c.metrics.RecordSegmentRejected("empty")
		return nil, &fault.InvalidInputError{Reason: "empty audio segment"}
	}
	if len(seg.Data) < c.minSize {
		c.metrics.RecordSegmentRejected("too_small")
		return nil, &fault.InvalidInputError{
			Reason: fmt.Sprintf("audio segment too small: %d bytes (minimum %d)", len(seg.Data), c.minSize),
		}
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	// The audio part must carry the MIME type of the codec actually
	// negotiated; the service picks its decoder from it.
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{
		fmt.Sprintf(`form-data; name="audio"; filename="segment%s"`, extensionFor(seg.MimeType)),
	}
	hdr["Content-Type"] = []string{seg.MimeType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(seg.Data); err != nil {
		return nil, fmt.Errorf("writing audio part: %w", err)
	}

	if err := mw.WriteField("language", languageHint); err != nil {
		return nil, fmt.Errorf("writing language field: %w", err)
	}
	if err := mw.WriteField("mode", c.mode); err != nil {
		return nil, fmt.Errorf("writing mode field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.hc.Do(req)
	c.metrics.RecordRemoteCall(serviceName, err, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordRemoteError(serviceName, "unavailable")
		return nil, &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fault.UnavailableError{Service: serviceName, Err: err}
	}

	var payload apiResponse
	if resp.StatusCode != http.StatusOK {
		// Server errors carry a JSON {error} body when available.
		_ = json.Unmarshal(raw, &payload)
		c.metrics.RecordRemoteError(serviceName, "status")
		return nil, &fault.ServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    payload.Error,
		}
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &fault.ServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
		}
	}

	c.logger.Debug().
		Int64("sequence", seg.Sequence).
		Str("language", payload.Language).
		Int("textLength", len(payload.Text)).
		Msg("Segment transcribed")

	return &models.TranscriptionResult{
		Text:         strings.TrimSpace(payload.Text),
		OriginalText: strings.TrimSpace(payload.Text),
		Language:     payload.Language,
		Confidence:   1.0, // advisory; the service does not score batch results
		Sequence:     seg.Sequence,
		Timestamp:    seg.Timestamp,
		IsFinal:      true,
	}, nil
}

// CheckAvailable probes the service's health endpoint. Used at session
// start and by the background prober, never per-segment.
func (c *Client) CheckAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}
	return nil
}

// extensionFor maps a negotiated MIME type to the file extension the
// service uses to select a decoder.
func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	default:
		return ".webm"
	}
}
