package types

import (
	"encoding/json"
	"time"
)

// Permission is a transient approval request attached to a session while the
// agent waits for the user to allow or deny a tool action.
type Permission struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID"`
	Title     string          `json:"title,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Question is a transient free-form prompt from the agent to the user.
type Question struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionID"`
	Text      string    `json:"text,omitempty"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
