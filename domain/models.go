package domain

import (
	"encoding/json"
	"time"
)

// Conversation represents one chat conversation.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user, assistant
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// PreviewField is one labeled before/after value shown to a human to explain
// what a proposed action will change.
type PreviewField struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value"`
}

// ActionProposal is a persisted record of one write action awaiting or having
// received a disposition. Arguments and Preview are fixed at creation: a retry
// re-executes with the same arguments, and the preview is never recomputed.
type ActionProposal struct {
	ProposalID     string          `json:"proposal_id"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	ToolName       string          `json:"tool_name"`
	Arguments      json.RawMessage `json:"arguments"`
	Description    string          `json:"description"`
	Preview        []PreviewField  `json:"preview,omitempty"`
	State          ActionState     `json:"state"`
	IdempotencyKey string          `json:"idempotency_key"`
	Result         json.RawMessage `json:"result,omitempty"`
	ResultURL      string          `json:"result_url,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
