// Package capture owns the audio input and turns it into a sequence of
// encoded segments with timestamps and sequence numbers.
package capture

import (
	"context"
	"time"
)

// DefaultMimePreferences is the ordered encoding probe list: highest-
// fidelity compressed container first, progressively falling back.
var DefaultMimePreferences = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/ogg;codecs=opus",
	"audio/wav",
}

// Device is an exclusive audio input that records encoded audio and
// flushes it periodically as discrete chunks.
type Device interface {
	// Supports reports whether the device can encode the given MIME type.
	// Used for capability probing before recording starts.
	Supports(mimeType string) bool

	// Start acquires the device and begins recording in the given
	// encoding, flushing buffered audio on the given interval. The
	// returned channel is closed when recording ends; any audio still
	// buffered at stop time is flushed as a last chunk first.
	Start(ctx context.Context, mimeType string, flushInterval time.Duration) (<-chan []byte, error)

	// Stop ends recording and releases the device. Idempotent.
	Stop() error

	// Err returns the terminal device error after the chunk channel has
	// closed, or nil if recording ended by Stop.
	Err() error
}
