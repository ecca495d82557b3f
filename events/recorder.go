// Package events records trace events for conversations. The recorder is the
// "notify of an action update" side of the composition: the approval manager
// reports lifecycle changes here, independent of any open chat stream.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/store"
)

// Recorder persists trace events.
type Recorder struct {
	store store.Store
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record persists one event. Recording failures are logged, never surfaced:
// tracing must not break the operation being traced.
func (r *Recorder) Record(ctx context.Context, conversationID string, eventType domain.EventType, payload interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("WARN: failed to marshal %s payload: %v", eventType, err)
		return
	}

	event := &domain.Event{
		EventID:        "evt_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Ts:             time.Now().UnixMilli(),
		Type:           eventType,
		Payload:        payloadJSON,
	}

	if err := r.store.CreateEvent(ctx, event); err != nil {
		log.Printf("WARN: failed to record %s event: %v", eventType, err)
	}
}

// ActionUpdate records an action_update event for a proposal mutation.
func (r *Recorder) ActionUpdate(ctx context.Context, p *domain.ActionProposal) {
	r.Record(ctx, p.ConversationID, domain.EventTypeActionUpdate, domain.ActionUpdatePayload{
		ProposalID: p.ProposalID,
		ToolName:   p.ToolName,
		State:      p.State,
		Result:     p.Result,
		Error:      p.Error,
	})
}
