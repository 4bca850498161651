package core

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
)

func TestExecutionService_Create_SnapshotsDefinition(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	w := &model.Workflow{ID: "wf-1", Version: 4, Definition: validDefinition()}
	incID := "inc-1"
	exec, err := svc.Create(ctx, w, &incID, model.TriggeredByEvent, "incident.created", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, exec.WorkflowVersion)
	assert.Equal(t, model.ExecutionPending, exec.Status)
	assert.Equal(t, []string{"wf-1"}, exec.ExecutionChain)
	assert.Len(t, exec.DefinitionSnapshot.Nodes, len(w.Definition.Nodes))
	db.AssertExpectations(t)
}

func TestExecutionService_Create_RejectsCyclicChain(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	w := &model.Workflow{ID: "wf-1", Version: 1, Definition: validDefinition()}
	_, err := svc.Create(ctx, w, nil, model.TriggeredByEvent, "incident.created", []string{"wf-2", "wf-1"})
	require.ErrorIs(t, err, ErrValidation)
	db.AssertNotCalled(t, "Exec")
}

func TestExecutionService_Create_RejectsDeepChain(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	w := &model.Workflow{ID: "wf-4", Version: 1, Definition: validDefinition()}
	chain := []string{"wf-1", "wf-2", "wf-3"}
	require.Len(t, chain, flow.MaxChainDepth)

	_, err := svc.Create(ctx, w, nil, model.TriggeredByEvent, "incident.created", chain)
	require.ErrorIs(t, err, ErrValidation)
	db.AssertNotCalled(t, "Exec")
}

func TestExecutionService_MarkRunning_OnlyFromPending(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	ok, err := svc.MarkRunning(ctx, "exec-1")
	require.NoError(t, err)
	assert.False(t, ok)
	db.AssertExpectations(t)
}

func TestExecutionService_MarkCancelled_TerminalStatesKept(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	// Completed run: cancel matches nothing.
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	ok, err := svc.MarkCancelled(ctx, "exec-1")
	require.NoError(t, err)
	assert.False(t, ok)
	db.AssertExpectations(t)
}

func TestExecutionService_AppendCompletedNode(t *testing.T) {
	db := &mockDB{}
	svc := NewExecutionService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	err := svc.AppendCompletedNode(ctx, "exec-1", model.CompletedNode{
		NodeID: "a",
		Status: "completed",
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestExecutionService_MatchWorkflows(t *testing.T) {
	db := &mockDB{}
	executions := NewExecutionService(db)
	workflows := NewWorkflowService(db, newMockPool(db), testSecretKey())
	ctx := context.Background()

	matching := validDefinition()
	other := flow.Definition{
		Nodes: []flow.Node{
			{ID: "t", Type: flow.NodeTrigger, TriggerEvent: "incident.resolved"},
		},
	}

	scanWorkflow := func(id string, def flow.Definition) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "wf " + id
			*(dest[2].(*string)) = ""
			*(dest[3].(*string)) = model.ScopeGlobal
			*(dest[5].(*bool)) = true
			*(dest[6].(*int)) = 1
			*(dest[7].(*flow.Definition)) = def
			return nil
		}
	}
	rows := newMockRows(scanWorkflow("wf-1", matching), scanWorkflow("wf-2", other))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	matched, err := executions.MatchWorkflows(ctx, workflows, "team-1", flow.Event{
		Type:   "incident.created",
		Fields: map[string]any{},
	})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "wf-1", matched[0].ID)
	db.AssertExpectations(t)
}
