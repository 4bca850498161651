package flow

import (
	"fmt"
	"strings"
)

// Event is one incident lifecycle event offered to the matcher. Fields
// holds the dotted-path lookup context (incident attributes plus alert
// metadata under "metadata.").
type Event struct {
	Type     string
	NewState string // set for incident.state_changed
	Fields   map[string]any
}

// Matches reports whether the definition's trigger fires for the
// event: the event type must equal the trigger's, all trigger
// conditions must hold (AND), and for state-change events the
// transition target must match when the trigger names one.
func Matches(def *Definition, ev Event) bool {
	t := def.Trigger()
	if t == nil || t.TriggerEvent != ev.Type {
		return false
	}
	if t.StateTransition != "" && t.StateTransition != ev.NewState {
		return false
	}
	for _, c := range t.Conditions {
		got, ok := Lookup(ev.Fields, c.Field)
		if !ok || fmt.Sprintf("%v", got) != c.Value {
			return false
		}
	}
	return true
}

// Lookup resolves a dotted path ("incident.priority",
// "metadata.region") against nested maps.
func Lookup(fields map[string]any, path string) (any, bool) {
	cur := any(fields)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// AllowedInChain reports whether workflowID may be scheduled given the
// chain of workflow ids that led here. Scheduling is rejected when the
// id already appears in the chain (cycle) or the chain is at depth.
func AllowedInChain(chain []string, workflowID string) bool {
	if len(chain) >= MaxChainDepth {
		return false
	}
	for _, id := range chain {
		if id == workflowID {
			return false
		}
	}
	return true
}
