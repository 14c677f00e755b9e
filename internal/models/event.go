package models

// Event types published to the transcript topics.
const (
	EventTranscriptPartial = "consult.transcript.partial"
	EventTranscriptFinal   = "consult.transcript.final"
)

// TranscriptEvent is the payload published for each reconciled result.
type TranscriptEvent struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	Sequence   int64   `json:"sequence"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// NewTranscriptEvent builds the event for a transcription result.
func NewTranscriptEvent(sessionID string, res TranscriptionResult) TranscriptEvent {
	eventType := EventTranscriptPartial
	if res.IsFinal {
		eventType = EventTranscriptFinal
	}
	return TranscriptEvent{
		EventType:  eventType,
		SessionID:  sessionID,
		Sequence:   res.Sequence,
		Text:       res.Text,
		Language:   res.Language,
		Confidence: res.Confidence,
		Timestamp:  res.Timestamp.UnixMilli(),
	}
}
