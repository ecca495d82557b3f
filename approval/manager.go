// Package approval implements the write-side lifecycle controller for action
// proposals: creation, approve-and-execute, decline, retry and sequential
// batches.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/store"
	"github.com/signoffhq/signoff/tools"
)

// Notifier receives action lifecycle updates. Updates are emitted for every
// mutation, independent of whether a chat stream is currently open.
type Notifier interface {
	ActionUpdate(ctx context.Context, p *domain.ActionProposal)
}

// Manager controls the proposal lifecycle. All state changes are validated
// against the transition table and committed through the store's
// compare-and-set update.
type Manager struct {
	store    store.Store
	registry *tools.Registry
	notifier Notifier
	exec     singleflight.Group
}

// NewManager creates a manager.
func NewManager(st store.Store, registry *tools.Registry, notifier Notifier) *Manager {
	return &Manager{store: st, registry: registry, notifier: notifier}
}

// CreateProposal intercepts a write tool call and persists it in state
// proposed. Arguments, description and preview are fixed here and never
// recomputed. A duplicate submission within the same turn (same idempotency
// key) returns the existing record.
func (m *Manager) CreateProposal(ctx context.Context, conversationID, messageID, toolName string, args json.RawMessage) (*domain.ActionProposal, error) {
	def, ok := m.registry.Get(toolName)
	if !ok {
		return nil, fmt.Errorf("unknown tool %s", toolName)
	}
	if def.ReadOnly {
		return nil, fmt.Errorf("tool %s is read-only and needs no approval", toolName)
	}

	key := domain.IdempotencyKey(conversationID, messageID, toolName, args)
	existing, err := m.store.GetProposalByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	p := &domain.ActionProposal{
		ProposalID:     "prop_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		MessageID:      messageID,
		ToolName:       toolName,
		Arguments:      args,
		Description:    def.Description,
		Preview:        m.registry.GeneratePreview(toolName, args),
		State:          domain.ActionStateProposed,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist proposal: %w", err)
	}
	m.notifier.ActionUpdate(ctx, p)
	return p, nil
}

// Approve validates proposed -> approved and immediately executes. Approval
// and execution are one user-facing operation; a duplicated approval of a
// proposal already executing or succeeded is a no-op returning the current
// record.
func (m *Manager) Approve(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	p, err := m.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	switch p.State {
	case domain.ActionStateExecuting, domain.ActionStateSucceeded:
		return p, nil
	case domain.ActionStateApproved:
		// Approved but not yet executed (interrupted earlier); resume.
	case domain.ActionStateProposed:
		ok, err := m.transition(ctx, p, domain.ActionStateApproved)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost a race with a concurrent approval; fall through to the
			// executing-idempotency guard.
			return m.Execute(ctx, proposalID)
		}
	default:
		return nil, &domain.InvalidTransitionError{From: p.State, To: domain.ActionStateApproved}
	}

	return m.Execute(ctx, proposalID)
}

// Decline validates proposed -> declined. Terminal; the action never executes.
func (m *Manager) Decline(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	p, err := m.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	ok, err := m.transition(ctx, p, domain.ActionStateDeclined)
	if err != nil {
		return nil, err
	}
	if !ok {
		p2, err := m.get(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		return nil, &domain.InvalidTransitionError{From: p2.State, To: domain.ActionStateDeclined}
	}
	return p, nil
}

// Retry re-executes a failed proposal with its original stored arguments:
// no new preview, no re-approval.
func (m *Manager) Retry(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	p, err := m.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	switch p.State {
	case domain.ActionStateExecuting, domain.ActionStateSucceeded:
		return p, nil
	case domain.ActionStateFailed:
		return m.Execute(ctx, proposalID)
	default:
		return nil, &domain.InvalidTransitionError{From: p.State, To: domain.ActionStateExecuting}
	}
}

// ApproveAll processes ids strictly in the given order, one at a time. A
// failed execution (or a rejected approval) halts the batch immediately;
// every later id is left untouched so a human can still inspect and decide
// on the remainder. The returned slice holds the proposals actually touched.
func (m *Manager) ApproveAll(ctx context.Context, proposalIDs []string) ([]domain.ActionProposal, error) {
	results := make([]domain.ActionProposal, 0, len(proposalIDs))
	for _, id := range proposalIDs {
		p, err := m.Approve(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, *p)
		if p.State == domain.ActionStateFailed {
			return results, fmt.Errorf("action %s failed: %s", id, p.Error)
		}
	}
	return results, nil
}

// Execute enters the executing state and runs the tool handler with the
// proposal's stored arguments. Concurrent calls for the same proposal id
// collapse to one handler invocation; every caller observes the same final
// record. Handler failures are resolved into the record (state failed), never
// returned as errors.
func (m *Manager) Execute(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	v, err, _ := m.exec.Do(proposalID, func() (interface{}, error) {
		return m.executeOnce(ctx, proposalID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ActionProposal), nil
}

func (m *Manager) executeOnce(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	p, err := m.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	switch p.State {
	case domain.ActionStateExecuting, domain.ActionStateSucceeded:
		// Duplicated approval request; return the record unchanged.
		return p, nil
	case domain.ActionStateApproved, domain.ActionStateFailed:
		// Valid entry points for execution.
	default:
		return nil, &domain.InvalidTransitionError{From: p.State, To: domain.ActionStateExecuting}
	}

	ok, err := m.transition(ctx, p, domain.ActionStateExecuting)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another process won the compare-and-set; re-read and apply the guard.
		p2, err := m.get(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		if p2.State == domain.ActionStateExecuting || p2.State == domain.ActionStateSucceeded {
			return p2, nil
		}
		return nil, &domain.InvalidTransitionError{From: p2.State, To: domain.ActionStateExecuting}
	}

	var result json.RawMessage
	var resultURL string
	var execErr error
	def, found := m.registry.Get(p.ToolName)
	if !found {
		execErr = fmt.Errorf("no handler registered for tool %s", p.ToolName)
	} else {
		result, resultURL, execErr = def.Run(ctx, p.Arguments)
	}

	if execErr != nil {
		if err := m.store.FinishProposal(ctx, p.ProposalID, domain.ActionStateFailed, nil, "", execErr.Error()); err != nil {
			return nil, fmt.Errorf("failed to record execution failure: %w", err)
		}
		p.State = domain.ActionStateFailed
		p.Result = nil
		p.ResultURL = ""
		p.Error = execErr.Error()
	} else {
		if err := m.store.FinishProposal(ctx, p.ProposalID, domain.ActionStateSucceeded, result, resultURL, ""); err != nil {
			return nil, fmt.Errorf("failed to record execution result: %w", err)
		}
		p.State = domain.ActionStateSucceeded
		p.Result = result
		p.ResultURL = resultURL
		p.Error = ""
	}
	p.UpdatedAt = time.Now()
	m.notifier.ActionUpdate(ctx, p)
	return p, nil
}

// List returns all proposals for a conversation, oldest first.
func (m *Manager) List(ctx context.Context, conversationID string) ([]domain.ActionProposal, error) {
	return m.store.ListProposals(ctx, conversationID)
}

// Get returns the current record for a proposal id.
func (m *Manager) Get(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	return m.get(ctx, proposalID)
}

func (m *Manager) get(ctx context.Context, proposalID string) (*domain.ActionProposal, error) {
	p, err := m.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProposalNotFound
	}
	return p, nil
}

// transition validates against the table and commits via compare-and-set.
// It reports false when the stored state no longer matches; the in-memory
// record is updated and the notifier fired only on success.
func (m *Manager) transition(ctx context.Context, p *domain.ActionProposal, to domain.ActionState) (bool, error) {
	if err := domain.ValidateTransition(p.State, to); err != nil {
		return false, err
	}
	ok, err := m.store.TransitionProposal(ctx, p.ProposalID, p.State, to)
	if err != nil {
		return false, fmt.Errorf("failed to update proposal state: %w", err)
	}
	if !ok {
		return false, nil
	}
	p.State = to
	p.UpdatedAt = time.Now()
	m.notifier.ActionUpdate(ctx, p)
	return true, nil
}
