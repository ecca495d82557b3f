package domain

import "encoding/json"

// EventType identifies a chat stream or trace event.
type EventType string

const (
	EventTypeDelta          EventType = "delta"
	EventTypeToolCallStart  EventType = "tool_call_start"
	EventTypeToolCallResult EventType = "tool_call_result"
	EventTypeActionProposed EventType = "action_proposed"
	EventTypeActionUpdate   EventType = "action_update"
	EventTypeDone           EventType = "done"
	EventTypeError          EventType = "error"

	// Trace-only events
	EventTypeTurnStarted EventType = "turn_started"
	EventTypeTurnDone    EventType = "turn_done"
)

// ChatStreamEvent is one event in the ordered, one-way, non-restartable
// sequence emitted while streaming a turn. Only the fields relevant to the
// event's type are set. A non-fatal error event is scoped to the tool call
// named by CallID; a fatal one terminates the turn.
type ChatStreamEvent struct {
	Type     EventType       `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	CallID   string          `json:"call_id,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Proposal *ActionProposal `json:"proposal,omitempty"`
	Error    string          `json:"error,omitempty"`
	Fatal    bool            `json:"fatal,omitempty"`
}

// Event is a persisted trace event for a conversation.
type Event struct {
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"conversation_id"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// ActionUpdatePayload is the payload for an action_update trace event.
type ActionUpdatePayload struct {
	ProposalID string          `json:"proposal_id"`
	ToolName   string          `json:"tool_name"`
	State      ActionState     `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// TurnPayload is the payload for turn_started and turn_done trace events.
type TurnPayload struct {
	MessageID string `json:"message_id"`
}
