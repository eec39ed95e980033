package types

import "encoding/json"

type PartType string

const (
	PartTypeText      PartType = "text"
	PartTypeReasoning PartType = "reasoning"
	PartTypeToolCall  PartType = "tool-call"
	PartTypeFile      PartType = "file"
)

// ToolState is the lifecycle of a tool-call part. Terminal states never
// transition back to an earlier state.
type ToolState string

const (
	ToolStateInputStreaming  ToolState = "input-streaming"
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
	ToolStateOutputError     ToolState = "output-error"
)

func (s ToolState) Terminal() bool {
	return s == ToolStateOutputAvailable || s == ToolStateOutputError
}

func toolStateRank(s ToolState) int {
	switch s {
	case ToolStateInputStreaming:
		return 0
	case ToolStateInputAvailable:
		return 1
	case ToolStateOutputAvailable, ToolStateOutputError:
		return 2
	default:
		return -1
	}
}

// NextToolState resolves an incoming state transition against the current
// state, keeping the machine forward-only.
func NextToolState(current, incoming ToolState) ToolState {
	if incoming == "" {
		return current
	}
	if current == "" {
		return incoming
	}
	if toolStateRank(incoming) < toolStateRank(current) {
		return current
	}
	if current.Terminal() {
		return current
	}
	return incoming
}

type Part struct {
	ID        string   `json:"id"`
	MessageID string   `json:"messageID"`
	SessionID string   `json:"sessionID"`
	Type      PartType `json:"type"`

	Text string `json:"text,omitempty"`

	Tool       string          `json:"tool,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolOutput json.RawMessage `json:"toolOutput,omitempty"`
	ToolState  ToolState       `json:"toolState,omitempty"`
	ToolError  string          `json:"toolError,omitempty"`

	FileName string `json:"fileName,omitempty"`
	FileMime string `json:"fileMime,omitempty"`
	FileURL  string `json:"fileURL,omitempty"`

	// Revision increases with every server-side mutation of the part and is
	// used to reject stale writes after reconnects.
	Revision int64 `json:"revision,omitempty"`
}

// Streaming reports whether the part mutates at token rate while the agent
// is producing output.
func (p *Part) Streaming() bool {
	if p == nil {
		return false
	}
	return p.Type == PartTypeText || p.Type == PartTypeReasoning
}
