// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"encoding/json"

	"github.com/signoffhq/signoff/domain"
)

// Store defines the interface for data persistence. It is the single source of
// truth for proposals; state changes go through the compare-and-set
// TransitionProposal so the at-most-once execution guard holds under real
// concurrency.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	GetOrCreateConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *domain.ChatMessage) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error)

	// Proposal operations
	CreateProposal(ctx context.Context, p *domain.ActionProposal) error
	GetProposal(ctx context.Context, proposalID string) (*domain.ActionProposal, error)
	GetProposalByIdempotencyKey(ctx context.Context, key string) (*domain.ActionProposal, error)
	ListProposals(ctx context.Context, conversationID string) ([]domain.ActionProposal, error)
	// TransitionProposal atomically moves a proposal from one state to
	// another. It reports false, without error, when the stored state no
	// longer matches from.
	TransitionProposal(ctx context.Context, proposalID string, from, to domain.ActionState) (bool, error)
	// FinishProposal records the outcome of an execution attempt.
	FinishProposal(ctx context.Context, proposalID string, state domain.ActionState, result json.RawMessage, resultURL, errMsg string) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
