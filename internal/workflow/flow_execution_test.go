package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/flow"
	"github.com/pagebell/pagebell/internal/model"
)

type FlowExecutionTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *FlowExecutionTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerWorkflows(s.env)
}

func (s *FlowExecutionTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

// snapshotExecution builds a pending execution whose snapshot is
// trigger -> condition(incident.priority == high) -> true: webhook.
func snapshotExecution() *model.WorkflowExecution {
	incID := "inc-1"
	return &model.WorkflowExecution{
		ID:              "exec-1",
		WorkflowID:      "wf-1",
		WorkflowVersion: 3,
		IncidentID:      &incID,
		TriggeredBy:     model.TriggeredByEvent,
		TriggerEvent:    model.EventIncidentCreated,
		Status:          model.ExecutionPending,
		DefinitionSnapshot: flow.Definition{
			Nodes: []flow.Node{
				{ID: "t", Type: flow.NodeTrigger, TriggerEvent: model.EventIncidentCreated},
				{ID: "c", Type: flow.NodeCondition, Field: "incident.priority", Op: "equals", Value: "high"},
				{ID: "a", Type: flow.NodeAction, ActionType: flow.ActionWebhook, ActionConfig: json.RawMessage(`{"url":"https://example.com"}`)},
			},
			Edges: []flow.Edge{
				{From: "t", To: "c"},
				{From: "c", To: "a", When: "true"},
			},
		},
	}
}

func highPriorityContext() *activity.FlowContext {
	return &activity.FlowContext{
		Fields: map[string]any{
			"incident": map[string]any{"id": "inc-1", "priority": "high"},
		},
	}
}

func (s *FlowExecutionTestSuite) TestRunsSnapshotToCompletion() {
	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(snapshotExecution(), nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, activity.FlowContextParams{
		IncidentID: "inc-1", WorkflowID: "wf-1",
	}).Return(highPriorityContext(), nil)

	s.env.OnActivity("AppendCompletedNode", mock.Anything, activity.AppendCompletedNodeParams{
		ExecutionID: "exec-1",
		Node:        model.CompletedNode{NodeID: "c", Status: "completed", Result: json.RawMessage(`{"branch":"true"}`)},
	}).Return(nil).Once()

	s.env.OnActivity("ExecuteAction", mock.Anything, mock.MatchedBy(func(p activity.ExecuteActionParams) bool {
		return p.ExecutionID == "exec-1" && p.NodeID == "a" && p.ActionType == flow.ActionWebhook
	})).Return(json.RawMessage(`{"ok":true}`), nil).Once()
	s.env.OnActivity("AppendCompletedNode", mock.Anything, activity.AppendCompletedNodeParams{
		ExecutionID: "exec-1",
		Node:        model.CompletedNode{NodeID: "a", Status: "completed", Result: json.RawMessage(`{"ok":true}`)},
	}).Return(nil).Once()

	s.env.OnActivity("MarkExecutionCompleted", mock.Anything, "exec-1").Return(true, nil).Once()

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// The false branch has no edges: the condition completes and the
// execution finishes without running the action.
func (s *FlowExecutionTestSuite) TestConditionFalseBranchEndsRun() {
	exec := snapshotExecution()
	fctx := highPriorityContext()
	fctx.Fields["incident"].(map[string]any)["priority"] = "low"

	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(exec, nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, mock.Anything).Return(fctx, nil)
	s.env.OnActivity("AppendCompletedNode", mock.Anything, activity.AppendCompletedNodeParams{
		ExecutionID: "exec-1",
		Node:        model.CompletedNode{NodeID: "c", Status: "completed", Result: json.RawMessage(`{"branch":"false"}`)},
	}).Return(nil).Once()
	s.env.OnActivity("MarkExecutionCompleted", mock.Anything, "exec-1").Return(true, nil).Once()

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "ExecuteAction", mock.Anything, mock.Anything)
}

// A second start of the same execution loses the pending->running guard
// and does nothing.
func (s *FlowExecutionTestSuite) TestDuplicateStartSkips() {
	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(snapshotExecution(), nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(false, nil)

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "GetFlowContext", mock.Anything, mock.Anything)
}

// An action failing with on_failure=stop marks the execution failed
// and notifies the workflow's owners. The workflow itself completes;
// the failure lives on the row.
func (s *FlowExecutionTestSuite) TestActionFailureStops() {
	exec := snapshotExecution()
	exec.DefinitionSnapshot.Nodes[2].OnFailure = flow.OnFailureStop

	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(exec, nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, mock.Anything).Return(highPriorityContext(), nil)
	s.env.OnActivity("AppendCompletedNode", mock.Anything, mock.MatchedBy(func(p activity.AppendCompletedNodeParams) bool {
		return p.Node.NodeID == "c"
	})).Return(nil).Once()

	actionErr := temporal.NewNonRetryableApplicationError("action endpoint returned 404", "CLIENT_ERROR", nil)
	s.env.OnActivity("ExecuteAction", mock.Anything, mock.Anything).Return(nil, actionErr).Once()
	s.env.OnActivity("AppendCompletedNode", mock.Anything, mock.MatchedBy(func(p activity.AppendCompletedNodeParams) bool {
		return p.Node.NodeID == "a" && p.Node.Status == "failed" && p.Node.Error != ""
	})).Return(nil).Once()
	s.env.OnActivity("MarkExecutionFailed", mock.Anything, mock.MatchedBy(func(p activity.MarkExecutionFailedParams) bool {
		return p.ExecutionID == "exec-1" && p.Error != ""
	})).Return(true, nil).Once()
	s.env.OnActivity("NotifyExecutionFailed", mock.Anything, mock.MatchedBy(func(p activity.NotifyExecutionFailedParams) bool {
		return p.ExecutionID == "exec-1" && p.WorkflowID == "wf-1" && p.Error != ""
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "MarkExecutionCompleted", mock.Anything, mock.Anything)
}

// A notification failure on the failure path is swallowed: the run is
// already failed and the row has the error.
func (s *FlowExecutionTestSuite) TestFailureNotificationErrorIgnored() {
	exec := snapshotExecution()
	exec.DefinitionSnapshot.Nodes[2].OnFailure = flow.OnFailureStop

	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(exec, nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, mock.Anything).Return(highPriorityContext(), nil)
	s.env.OnActivity("AppendCompletedNode", mock.Anything, mock.Anything).Return(nil).Times(2)

	actionErr := temporal.NewNonRetryableApplicationError("action endpoint returned 404", "CLIENT_ERROR", nil)
	s.env.OnActivity("ExecuteAction", mock.Anything, mock.Anything).Return(nil, actionErr).Once()
	s.env.OnActivity("MarkExecutionFailed", mock.Anything, mock.Anything).Return(true, nil).Once()
	s.env.OnActivity("NotifyExecutionFailed", mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("chat provider down", "ALL_PROVIDERS_FAILED", nil)).Once()

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// on_failure=continue records the failed node and keeps walking the DAG.
func (s *FlowExecutionTestSuite) TestActionFailureContinues() {
	exec := snapshotExecution()
	exec.DefinitionSnapshot.Nodes[2].OnFailure = flow.OnFailureContinue
	exec.DefinitionSnapshot.Nodes = append(exec.DefinitionSnapshot.Nodes, flow.Node{
		ID: "a2", Type: flow.NodeAction, ActionType: flow.ActionNotifySlack,
		ActionConfig: json.RawMessage(`{"webhook_url":"https://hooks.example.com","message":"hi"}`),
	})
	exec.DefinitionSnapshot.Edges = append(exec.DefinitionSnapshot.Edges, flow.Edge{From: "a", To: "a2"})

	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(exec, nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, mock.Anything).Return(highPriorityContext(), nil)
	s.env.OnActivity("AppendCompletedNode", mock.Anything, mock.Anything).Return(nil).Times(3)

	actionErr := temporal.NewNonRetryableApplicationError("action endpoint returned 500", "SERVER_ERROR", nil)
	s.env.OnActivity("ExecuteAction", mock.Anything, mock.MatchedBy(func(p activity.ExecuteActionParams) bool {
		return p.NodeID == "a"
	})).Return(nil, actionErr).Once()
	s.env.OnActivity("ExecuteAction", mock.Anything, mock.MatchedBy(func(p activity.ExecuteActionParams) bool {
		return p.NodeID == "a2"
	})).Return(json.RawMessage(`"ok"`), nil).Once()
	s.env.OnActivity("MarkExecutionCompleted", mock.Anything, "exec-1").Return(true, nil).Once()

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// A cancel signal delivered before the first node is honored.
func (s *FlowExecutionTestSuite) TestCancelSignal() {
	s.env.OnActivity("GetExecution", mock.Anything, "exec-1").Return(snapshotExecution(), nil)
	s.env.OnActivity("MarkExecutionRunning", mock.Anything, "exec-1").Return(true, nil)
	s.env.OnActivity("GetFlowContext", mock.Anything, mock.Anything).Return(highPriorityContext(), nil)
	s.env.OnActivity("MarkExecutionCancelled", mock.Anything, "exec-1").Return(true, nil).Once()

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCancel, nil)
	}, 0)

	s.env.ExecuteWorkflow(FlowExecutionWorkflow, FlowExecutionParams{ExecutionID: "exec-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "ExecuteAction", mock.Anything, mock.Anything)
}

func TestFlowExecutionTestSuite(t *testing.T) {
	suite.Run(t, new(FlowExecutionTestSuite))
}
