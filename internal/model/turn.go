// Package model defines data structures for the assistant pipeline.
package model

import (
	"time"
)

// Role represents the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a user's conversation log. Turns are
// append-only: once written they are never mutated, and for a given
// user they are totally ordered by creation time.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats holds aggregate Turn Store counts for the admin stats command.
type Stats struct {
	TotalUsers  int `json:"total_users"`
	TotalTurns  int `json:"total_turns"`
	UserTurns   int `json:"user_turns"`
	ActiveToday int `json:"active_today"`
}
