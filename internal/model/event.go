package model

// EventKind represents the kind of inbound chat-platform event.
type EventKind string

const (
	EventKindText  EventKind = "text"
	EventKindVoice EventKind = "voice"
	// EventKindSystem covers non-actionable platform events (joins,
	// edits, service notices). The orchestrator ignores these.
	EventKindSystem EventKind = "system"
)

// InboundEvent is one event from the chat-platform transport. It is a
// tagged variant: Text is set for text events, Audio/AudioFormat for
// voice events. Downstream of resolution everything is plain text.
type InboundEvent struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Kind        EventKind `json:"kind"`
	Text        string    `json:"text,omitempty"`
	Audio       []byte    `json:"audio,omitempty"`
	AudioFormat string    `json:"audio_format,omitempty"`
}

// Actionable reports whether the orchestrator should process the event
// at all. Unknown kinds are treated like system events and dropped
// silently.
func (e *InboundEvent) Actionable() bool {
	return e.Kind == EventKindText || e.Kind == EventKindVoice
}
