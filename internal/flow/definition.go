// Package flow holds the user-facing workflow DAG: definition types
// and validation, trigger matching, and template interpolation. All
// functions are pure so the Temporal executor can call them
// deterministically against a definition snapshot.
package flow

import (
	"encoding/json"
	"fmt"
)

// Node types.
const (
	NodeTrigger   = "trigger"
	NodeAction    = "action"
	NodeCondition = "condition"
)

// Action types. Unknown action types fail the node with UnknownAction.
const (
	ActionWebhook     = "webhook"
	ActionTicketJira  = "ticket.jira"
	ActionTicketLinear = "ticket.linear"
	ActionNotifySlack = "notify.slack"
	ActionNotifyTeams = "notify.teams"
	ActionRunbook     = "runbook" // deferred; always fails with UnknownAction
)

// On-failure modes for action nodes.
const (
	OnFailureStop     = "stop"
	OnFailureContinue = "continue"
)

// MaxChainDepth bounds chained workflow invocations.
const MaxChainDepth = 3

// Definition is the DAG a workflow executes: one trigger node, action
// and condition nodes, directed edges.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Condition is one equals-comparison against a dotted context path.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"` // only "equals"
	Value string `json:"value"`
}

// RetryConfig controls action retries inside an execution.
type RetryConfig struct {
	Attempts       int `json:"attempts"`
	BackoffSeconds int `json:"backoff_seconds"`
}

// Node is one vertex of the DAG. Which fields apply depends on Type.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// Trigger fields.
	TriggerEvent    string      `json:"trigger_event,omitempty"`
	Conditions      []Condition `json:"conditions,omitempty"`
	StateTransition string      `json:"state_transition_to,omitempty"` // for incident.state_changed

	// Condition fields.
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value string `json:"value,omitempty"`

	// Action fields.
	ActionType     string          `json:"action_type,omitempty"`
	ActionConfig   json.RawMessage `json:"action_config,omitempty"`
	Retry          *RetryConfig    `json:"retry,omitempty"`
	OnFailure      string          `json:"on_failure,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

// Edge connects From to To. When is the condition branch it follows
// ("true"/"false" out of condition nodes, empty otherwise).
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	When string `json:"when,omitempty"`
}

// Trigger returns the definition's trigger node, or nil.
func (d *Definition) Trigger() *Node {
	for i := range d.Nodes {
		if d.Nodes[i].Type == NodeTrigger {
			return &d.Nodes[i]
		}
	}
	return nil
}

// NodeByID returns the node with the given id, or nil.
func (d *Definition) NodeByID(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Next returns the ids of nodes reachable from the given node along
// the branch. An empty branch matches unconditional edges; condition
// nodes emit "true"/"false" branches.
func (d *Definition) Next(fromID, branch string) []string {
	var out []string
	for _, e := range d.Edges {
		if e.From != fromID {
			continue
		}
		if e.When == "" || e.When == branch {
			out = append(out, e.To)
		}
	}
	return out
}

// Validate checks structural invariants: exactly one trigger, known
// node types, edges referencing existing nodes, and acyclicity.
func (d *Definition) Validate() error {
	ids := make(map[string]bool, len(d.Nodes))
	triggers := 0
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true

		switch n.Type {
		case NodeTrigger:
			triggers++
			if n.TriggerEvent == "" {
				return fmt.Errorf("trigger node %q has no event", n.ID)
			}
		case NodeAction:
			if n.ActionType == "" {
				return fmt.Errorf("action node %q has no action type", n.ID)
			}
		case NodeCondition:
			if n.Field == "" {
				return fmt.Errorf("condition node %q has no field", n.ID)
			}
			if n.Op != "" && n.Op != "equals" {
				return fmt.Errorf("condition node %q: unsupported op %q", n.ID, n.Op)
			}
		default:
			return fmt.Errorf("node %q has unknown type %q", n.ID, n.Type)
		}
	}
	if triggers != 1 {
		return fmt.Errorf("definition must have exactly one trigger node, has %d", triggers)
	}

	adj := make(map[string][]string)
	for _, e := range d.Edges {
		if !ids[e.From] || !ids[e.To] {
			return fmt.Errorf("edge %s -> %s references unknown node", e.From, e.To)
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	// Cycle detection by DFS coloring.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.Nodes))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return fmt.Errorf("definition contains a cycle through %q", next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range d.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
