package types

import "time"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Message struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionID"`
	Role        MessageRole `json:"role"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (m *Message) Completed() bool {
	return m != nil && m.CompletedAt != nil
}

// MessageWithParts is the hydration payload shape returned by the
// session/messages endpoint.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}
