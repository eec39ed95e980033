package types

import "time"

type SessionStatus string

const (
	SessionStatusBusy  SessionStatus = "busy"
	SessionStatusIdle  SessionStatus = "idle"
	SessionStatusRetry SessionStatus = "retry"
)

type Session struct {
	ID           string        `json:"id"`
	ParentID     string        `json:"parentID,omitempty"`
	Directory    string        `json:"directory,omitempty"`
	Title        string        `json:"title,omitempty"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	LastError    string        `json:"lastError,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	InputTokens  int64         `json:"inputTokens,omitempty"`
	OutputTokens int64         `json:"outputTokens,omitempty"`
}

func (s *Session) Busy() bool {
	if s == nil {
		return false
	}
	return s.Status == SessionStatusBusy || s.Status == SessionStatusRetry
}
