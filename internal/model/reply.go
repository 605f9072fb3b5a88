package model

import (
	"time"
)

// ReplyOutcome classifies how a reply was produced.
type ReplyOutcome string

const (
	// OutcomeCompleted means the reply came from a successful completion.
	OutcomeCompleted ReplyOutcome = "completed"
	// OutcomeDegraded means a fixed apology was sent instead.
	OutcomeDegraded ReplyOutcome = "degraded"
	// OutcomeBroadcast marks admin broadcast messages.
	OutcomeBroadcast ReplyOutcome = "broadcast"
)

// OutboundReply is the payload published to the delivery transport.
type OutboundReply struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Text      string       `json:"text"`
	Outcome   ReplyOutcome `json:"outcome"`
	CreatedAt time.Time    `json:"created_at"`
}

// BroadcastRequest is the admin request to message every known user.
type BroadcastRequest struct {
	Text string `json:"text"`
}

// BroadcastResult reports how many outbound messages were published.
type BroadcastResult struct {
	Recipients int      `json:"recipients"`
	Failed     []string `json:"failed,omitempty"`
}
