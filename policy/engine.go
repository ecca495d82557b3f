// Package policy evaluates the action policy for tool invocations.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decision is the policy outcome for one tool invocation.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionRequireApproval Decision = "require_approval"
	DecisionBlock           Decision = "block"
)

// Input is the evaluation input for one invocation. ReadOnly carries the
// registry's classification; the policy may escalate it but never downgrade a
// write tool to auto-execute.
type Input struct {
	ToolName string         `json:"tool_name"`
	ReadOnly bool           `json:"read_only"`
	Args     map[string]any `json:"args"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given rego policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.action_policy.result"),
		rego.Module("action_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision and reason for an invocation. A policy that
// produces no result defaults to allow.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "no policy result", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return "", "", fmt.Errorf("policy result is not an object: %T", results[0].Expressions[0].Value)
	}

	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)

	switch Decision(decision) {
	case DecisionAllow, DecisionRequireApproval, DecisionBlock:
		return Decision(decision), reason, nil
	default:
		return "", "", fmt.Errorf("policy returned unknown decision %q", decision)
	}
}

// DefaultPolicy is the default policy content: read-only tools execute
// immediately, side-effecting tools pause for approval, and tools on the
// blocklist never run.
const DefaultPolicy = `
package action_policy

blocked := {"demo_delete_project"}

default result := {"decision": "allow", "reason": "read-only tool"}

result := {"decision": "block", "reason": "tool disabled by policy"} if {
	blocked[input.tool_name]
}

result := {"decision": "require_approval", "reason": "side-effecting tool"} if {
	not input.read_only
	not blocked[input.tool_name]
}
`
