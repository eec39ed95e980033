package types

import "encoding/json"

// Event is one frame of the global server event stream. A single stream
// multiplexes every session the server knows about; Scope carries the
// project directory the event belongs to.
type Event struct {
	Scope   string       `json:"scope"`
	Payload EventPayload `json:"payload"`
}

type EventPayload struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

const (
	EventMessagePartUpdated = "message.part.updated"
	EventMessageUpdated     = "message.updated"
	EventSessionStatus      = "session.status"
	EventSessionCreated     = "session.created"
	EventSessionUpdated     = "session.updated"
	EventSessionDeleted     = "session.deleted"
	EventSessionError       = "session.error"
	EventPermissionUpdated  = "permission.updated"
	EventPermissionReplied  = "permission.replied"
	EventQuestionAsked      = "question.asked"
	EventQuestionReplied    = "question.replied"
	EventQuestionRejected   = "question.rejected"
)

type PartUpdatedProps struct {
	Part Part `json:"part"`
}

type MessageUpdatedProps struct {
	Info Message `json:"info"`
}

type SessionStatusProps struct {
	SessionID string        `json:"sessionID"`
	Status    SessionStatus `json:"status"`
}

type SessionInfoProps struct {
	Info Session `json:"info"`
}

type SessionDeletedProps struct {
	SessionID string `json:"sessionID"`
}

type SessionErrorProps struct {
	SessionID string `json:"sessionID"`
	Error     string `json:"error"`
}

type PermissionUpdatedProps struct {
	Permission Permission `json:"permission"`
}

type PermissionResolvedProps struct {
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
}

type QuestionAskedProps struct {
	Question Question `json:"question"`
}

type QuestionResolvedProps struct {
	SessionID  string `json:"sessionID"`
	QuestionID string `json:"questionID"`
}

// Decode unmarshals the payload properties into the typed struct for the
// payload's event type. Unrecognized types decode to (nil, nil) so callers
// can skip them without treating extension events as errors.
func (p EventPayload) Decode() (any, error) {
	decode := func(out any) (any, error) {
		if err := json.Unmarshal(p.Properties, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	switch p.Type {
	case EventMessagePartUpdated:
		return decode(&PartUpdatedProps{})
	case EventMessageUpdated:
		return decode(&MessageUpdatedProps{})
	case EventSessionStatus:
		return decode(&SessionStatusProps{})
	case EventSessionCreated, EventSessionUpdated:
		return decode(&SessionInfoProps{})
	case EventSessionDeleted:
		return decode(&SessionDeletedProps{})
	case EventSessionError:
		return decode(&SessionErrorProps{})
	case EventPermissionUpdated:
		return decode(&PermissionUpdatedProps{})
	case EventPermissionReplied:
		return decode(&PermissionResolvedProps{})
	case EventQuestionAsked:
		return decode(&QuestionAskedProps{})
	case EventQuestionReplied, EventQuestionRejected:
		return decode(&QuestionResolvedProps{})
	default:
		return nil, nil
	}
}
