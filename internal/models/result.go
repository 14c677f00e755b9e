// Package models defines the data structures exchanged between the
// capture, transcription and reconciliation stages of the pipeline.
package models

import "time"

// AudioSegment is one bounded slice of encoded audio produced by a
// capture-buffer flush. Sequence numbers are assigned at capture time,
// strictly increasing within a session, and are the ordering authority
// for everything downstream.
type AudioSegment struct {
	Data      []byte    `json:"-"`
	MimeType  string    `json:"mimeType"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Size returns the number of encoded bytes in the segment.
func (s AudioSegment) Size() int {
	return len(s.Data)
}

// TranscriptionResult is a recognized piece of speech. Results are
// immutable once created; a partial result may later be superseded by a
// final result for the same sequence, a final result is never retracted.
type TranscriptionResult struct {
	Text         string    `json:"text"`
	OriginalText string    `json:"originalText,omitempty"`
	Language     string    `json:"language"`
	Confidence   float64   `json:"confidence"`
	Sequence     int64     `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	IsPartial    bool      `json:"isPartial"`
	IsFinal      bool      `json:"isFinal"`
}

// SessionState is the lifecycle state of a capture session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateCapturing
	StateStopping
	StateError
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCapturing:
		return "CAPTURING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so the state renders as
// its name in JSON status payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the composite view exposed to the caller: session state plus
// per-dependency availability flags. Flags are only true after a
// successful probe or a successful prior call.
type Status struct {
	SessionID     string       `json:"sessionId"`
	State         SessionState `json:"state"`
	Transcription bool         `json:"transcription"`
	Translation   bool         `json:"translation"`
	Streaming     bool         `json:"streaming"`
}
