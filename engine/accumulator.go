// Package engine drives a single chat turn: it assembles fragmented tool
// calls from the completion stream and dispatches each one for inline
// execution or human approval.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/llm"
)

// Invocation is one complete tool call assembled from stream fragments.
type Invocation struct {
	Index  int
	CallID string
	Name   string
	// Arguments is the parsed argument object; nil when Err is set.
	Arguments json.RawMessage
	// RawArguments is the concatenated argument text exactly as streamed.
	RawArguments string
	// Err is a *domain.MalformedArgumentsError when the argument text did not
	// parse. The failure is scoped to this call only.
	Err error
}

// Accumulator assembles tool-call fragments keyed by their stream-assigned
// index. Fragments for one index arrive in order but interleave with other
// indices; argument text concatenates across fragments, never replaces. The
// arena lives for one streaming turn and is discarded at turn end.
type Accumulator struct {
	frags map[int]*fragment
}

type fragment struct {
	callID string
	name   string
	args   strings.Builder
}

// NewAccumulator creates an empty accumulator for one turn.
func NewAccumulator() *Accumulator {
	return &Accumulator{frags: make(map[int]*fragment)}
}

// Add folds one fragment into the arena. The first fragment seen for an index
// must carry the call id and tool name.
func (a *Accumulator) Add(d llm.ToolCallDelta) error {
	f, ok := a.frags[d.Index]
	if !ok {
		if d.ID == "" || d.Function.Name == "" {
			return fmt.Errorf("tool call fragment for new index %d is missing call id or tool name", d.Index)
		}
		f = &fragment{callID: d.ID, name: d.Function.Name}
		a.frags[d.Index] = f
	}
	f.args.WriteString(d.Function.Arguments)
	return nil
}

// Empty reports whether no fragments were accumulated this turn.
func (a *Accumulator) Empty() bool {
	return len(a.frags) == 0
}

// Finalize returns the assembled invocations in ascending index order;
// chunk delivery across interleaved indices is not index-monotonic, so
// arrival order cannot be used. A call whose argument text does not parse
// carries a scoped error instead of failing the whole turn.
func (a *Accumulator) Finalize() []Invocation {
	indices := make([]int, 0, len(a.frags))
	for i := range a.frags {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]Invocation, 0, len(indices))
	for _, i := range indices {
		f := a.frags[i]
		inv := Invocation{Index: i, CallID: f.callID, Name: f.name, RawArguments: f.args.String()}

		raw := strings.TrimSpace(inv.RawArguments)
		if raw == "" {
			raw = "{}"
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			inv.Err = &domain.MalformedArgumentsError{CallID: f.callID, ToolName: f.name, Err: err}
		} else {
			inv.Arguments = json.RawMessage(raw)
		}
		out = append(out, inv)
	}
	return out
}
