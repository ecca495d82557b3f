package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/llm"
	"github.com/signoffhq/signoff/policy"
	"github.com/signoffhq/signoff/tools"
)

// CompletionClient is the completion transport consumed by the orchestrator.
type CompletionClient interface {
	Stream(ctx context.Context, req *llm.ChatCompletionRequest, fn llm.StreamCallback) error
}

// Proposer intercepts a write tool call and turns it into a pending proposal.
// The approval manager implements it; the two are wired together at the
// composition root.
type Proposer interface {
	CreateProposal(ctx context.Context, conversationID, messageID, toolName string, args json.RawMessage) (*domain.ActionProposal, error)
}

// EventSink consumes the ordered, one-way event sequence of one streaming
// turn. A sink error stops event production for the turn; work already
// dispatched still runs to completion.
type EventSink func(ev domain.ChatStreamEvent) error

// Orchestrator drives one model turn to completion: it consumes model output
// incrementally, assembles tool calls, executes read tools inline and routes
// write tools through the proposer.
type Orchestrator struct {
	client    CompletionClient
	registry  *tools.Registry
	policy    *policy.Engine
	proposer  Proposer
	model     string
	maxRounds int
}

// NewOrchestrator creates an orchestrator. maxRounds bounds the number of
// completion rounds in one turn; each tool round feeds results back to the
// model and requires a further completion call.
func NewOrchestrator(client CompletionClient, registry *tools.Registry, pol *policy.Engine, proposer Proposer, model string, maxRounds int) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = 8
	}
	return &Orchestrator{
		client:    client,
		registry:  registry,
		policy:    pol,
		proposer:  proposer,
		model:     model,
		maxRounds: maxRounds,
	}
}

// StreamTurn runs completion rounds until the model stops asking for tools,
// emitting events to the sink in causal order, and returns the assistant text
// of the final round. A transport failure terminates the turn with a fatal
// error event; per-call failures are scoped events and the turn continues.
func (o *Orchestrator) StreamTurn(ctx context.Context, conversationID, messageID string, history []llm.ChatMessage, sink EventSink) (string, error) {
	msgs := append([]llm.ChatMessage(nil), history...)
	specs := o.registry.Specs()

	for round := 0; round < o.maxRounds; round++ {
		acc := NewAccumulator()
		var text strings.Builder
		finish := ""
		var sinkErr error

		req := &llm.ChatCompletionRequest{
			Model:    o.model,
			Messages: msgs,
			Tools:    specs,
		}
		err := o.client.Stream(ctx, req, func(chunk *llm.StreamChunk) error {
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeDelta, Delta: choice.Delta.Content}); err != nil {
						sinkErr = err
						return err
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					if err := acc.Add(tc); err != nil {
						return err
					}
				}
				if choice.FinishReason != "" {
					finish = choice.FinishReason
				}
			}
			return nil
		})
		if sinkErr != nil {
			// The consumer went away; stop producing events.
			return text.String(), sinkErr
		}
		if err != nil {
			sink(domain.ChatStreamEvent{Type: domain.EventTypeError, Error: err.Error(), Fatal: true})
			return text.String(), err
		}

		if finish != llm.FinishReasonToolCalls || acc.Empty() {
			if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeDone}); err != nil {
				return text.String(), err
			}
			return text.String(), nil
		}

		invocations := acc.Finalize()
		msgs = append(msgs, assistantToolCallMessage(text.String(), invocations))

		for _, inv := range invocations {
			if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeToolCallStart, CallID: inv.CallID, ToolName: inv.Name}); err != nil {
				return text.String(), err
			}
			toolMsg, err := o.dispatch(ctx, conversationID, messageID, inv, sink)
			if err != nil {
				return text.String(), err
			}
			msgs = append(msgs, toolMsg)
		}
	}

	// Round budget exhausted; end the turn cleanly rather than looping forever.
	if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeDone}); err != nil {
		return "", err
	}
	return "", nil
}

// dispatch routes one finalized invocation. Read tools execute inline; write
// tools become proposals with a synthetic pending-approval result fed back to
// the model so it can acknowledge the pending action without blocking on a
// human. The returned message is the tool result injected into the model
// context; the returned error is only ever a sink failure.
func (o *Orchestrator) dispatch(ctx context.Context, conversationID, messageID string, inv Invocation, sink EventSink) (llm.ChatMessage, error) {
	if inv.Err != nil {
		if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeError, CallID: inv.CallID, ToolName: inv.Name, Error: inv.Err.Error()}); err != nil {
			return llm.ChatMessage{}, err
		}
		return toolMessage(inv.CallID, errorPayload("malformed_arguments", inv.Err.Error())), nil
	}

	argsMap, err := o.registry.ValidateArgs(inv.Name, inv.Arguments)
	if err != nil {
		if serr := sink(domain.ChatStreamEvent{Type: domain.EventTypeError, CallID: inv.CallID, ToolName: inv.Name, Error: err.Error()}); serr != nil {
			return llm.ChatMessage{}, serr
		}
		return toolMessage(inv.CallID, errorPayload("invalid_arguments", err.Error())), nil
	}

	isWrite := o.registry.IsWriteTool(inv.Name)
	decision, reason, err := o.policy.Evaluate(ctx, policy.Input{
		ToolName: inv.Name,
		ReadOnly: !isWrite,
		Args:     argsMap,
	})
	if err != nil {
		// A broken policy must never let a call through.
		decision, reason = policy.DecisionBlock, fmt.Sprintf("policy evaluation failed: %v", err)
	}
	if isWrite && decision == policy.DecisionAllow {
		// The registry classification is authoritative; policy may escalate
		// but never downgrade a write tool to auto-execute.
		decision = policy.DecisionRequireApproval
	}

	switch decision {
	case policy.DecisionBlock:
		if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeError, CallID: inv.CallID, ToolName: inv.Name, Error: reason}); err != nil {
			return llm.ChatMessage{}, err
		}
		return toolMessage(inv.CallID, errorPayload("blocked", reason)), nil

	case policy.DecisionRequireApproval:
		p, err := o.proposer.CreateProposal(ctx, conversationID, messageID, inv.Name, inv.Arguments)
		if err != nil {
			if serr := sink(domain.ChatStreamEvent{Type: domain.EventTypeError, CallID: inv.CallID, ToolName: inv.Name, Error: err.Error()}); serr != nil {
				return llm.ChatMessage{}, serr
			}
			return toolMessage(inv.CallID, errorPayload("proposal_failed", err.Error())), nil
		}
		if err := sink(domain.ChatStreamEvent{Type: domain.EventTypeActionProposed, CallID: inv.CallID, ToolName: inv.Name, Proposal: p}); err != nil {
			return llm.ChatMessage{}, err
		}
		synthetic, _ := json.Marshal(map[string]string{
			"status":      "pending_approval",
			"proposal_id": p.ProposalID,
			"description": p.Description,
			"note":        "the action has been proposed to the user and will only run if they approve it",
		})
		return toolMessage(inv.CallID, synthetic), nil

	default: // read tool, allowed: execute inline
		def, _ := o.registry.Get(inv.Name)
		result, _, err := def.Run(ctx, inv.Arguments)
		if err != nil {
			execErr := &domain.ToolExecutionError{ToolName: inv.Name, Err: err}
			if serr := sink(domain.ChatStreamEvent{Type: domain.EventTypeError, CallID: inv.CallID, ToolName: inv.Name, Error: execErr.Error()}); serr != nil {
				return llm.ChatMessage{}, serr
			}
			return toolMessage(inv.CallID, errorPayload("execution_failed", err.Error())), nil
		}
		if serr := sink(domain.ChatStreamEvent{Type: domain.EventTypeToolCallResult, CallID: inv.CallID, ToolName: inv.Name, Result: result}); serr != nil {
			return llm.ChatMessage{}, serr
		}
		return toolMessage(inv.CallID, result), nil
	}
}

// assistantToolCallMessage rebuilds the assistant message carrying the tool
// calls, as the function-calling protocol requires before tool results.
func assistantToolCallMessage(text string, invocations []Invocation) llm.ChatMessage {
	msg := llm.ChatMessage{Role: "assistant", Content: text}
	for _, inv := range invocations {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   inv.CallID,
			Type: "function",
			Function: llm.ToolCallFunction{
				Name:      inv.Name,
				Arguments: inv.RawArguments,
			},
		})
	}
	return msg
}

func toolMessage(callID string, content json.RawMessage) llm.ChatMessage {
	return llm.ChatMessage{Role: "tool", ToolCallID: callID, Content: string(content)}
}

func errorPayload(code, message string) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"error": code, "message": message})
	return out
}
