// Package translate provides the HTTP client for the remote translation
// service. Translation is a quality enhancement, not a hard dependency:
// callers fall back to the original text when it fails.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"consult-speech-pipeline/internal/fault"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/observability/metrics"
)

const serviceName = "translation"

type apiRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type apiResponse struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Error          string `json:"error"`
}

// Language is one entry of the service's supported language list.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Client submits text to the translation endpoint.
type Client struct {
	baseURL string
	hc      *http.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a translation client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("translate"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Translate converts text from sourceLang to targetLang.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &fault.InvalidInputError{Reason: "empty text"}
	}

	payload, err := json.Marshal(apiRequest{
		Text:           text,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	c.metrics.RecordRemoteCall(serviceName, err, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordRemoteError(serviceName, "unavailable")
		return "", &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &fault.UnavailableError{Service: serviceName, Err: err}
	}

	var out apiResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(raw, &out)
		c.metrics.RecordRemoteError(serviceName, "status")
		return "", &fault.ServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    out.Error,
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &fault.ServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
		}
	}

	c.logger.Debug().
		Str("sourceLang", sourceLang).
		Str("targetLang", targetLang).
		Int("textLength", len(text)).
		Msg("Text translated")

	return out.TranslatedText, nil
}

// Languages returns the service's supported language list.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &fault.UnavailableError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode}
	}

	var out struct {
		SupportedLanguages []Language `json:"supported_languages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &fault.ServiceError{Service: serviceName, StatusCode: resp.StatusCode, Message: "malformed response body"}
	}
	return out.SupportedLanguages, nil
}

// CheckAvailable probes the service's health endpoint.
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
