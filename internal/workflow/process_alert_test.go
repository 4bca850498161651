package workflow

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/model"
)

type ProcessAlertTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ProcessAlertTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerWorkflows(s.env)
}

func (s *ProcessAlertTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

// A duplicate alert merges and the pipeline stops: the incident's
// escalation is already running.
func (s *ProcessAlertTestSuite) TestDuplicateMergesAndStops() {
	s.env.OnActivity("DeduplicateAlert", mock.Anything, "alr-1").
		Return(&core.DedupeResult{IncidentID: "inc-1", IsDuplicate: true}, nil)

	s.env.ExecuteWorkflow(ProcessAlertWorkflow, ProcessAlertParams{AlertID: "alr-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "MatchAndScheduleWorkflows", mock.Anything, mock.Anything)
}

// A new incident starts its escalation and schedules every workflow the
// creation event matched.
func (s *ProcessAlertTestSuite) TestNewIncidentStartsEscalationAndFlows() {
	s.env.OnActivity("DeduplicateAlert", mock.Anything, "alr-1").
		Return(&core.DedupeResult{IncidentID: "inc-1", IsDuplicate: false}, nil)
	s.env.OnWorkflow(IncidentEscalationWorkflow, mock.Anything, EscalationParams{IncidentID: "inc-1"}).
		Return(nil).Once()
	s.env.OnActivity("MatchAndScheduleWorkflows", mock.Anything, activity.MatchWorkflowsParams{
		IncidentID: "inc-1", EventType: model.EventIncidentCreated,
	}).Return([]activity.MatchedExecution{
		{ExecutionID: "exec-1", WorkflowID: "wf-1"},
	}, nil).Once()
	s.env.OnWorkflow(FlowExecutionWorkflow, mock.Anything, FlowExecutionParams{ExecutionID: "exec-1"}).
		Return(nil).Once()

	s.env.ExecuteWorkflow(ProcessAlertWorkflow, ProcessAlertParams{AlertID: "alr-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// No matches means no children, not an error.
func (s *ProcessAlertTestSuite) TestNewIncidentNoMatches() {
	s.env.OnActivity("DeduplicateAlert", mock.Anything, "alr-1").
		Return(&core.DedupeResult{IncidentID: "inc-1", IsDuplicate: false}, nil)
	s.env.OnWorkflow(IncidentEscalationWorkflow, mock.Anything, mock.Anything).Return(nil).Once()
	s.env.OnActivity("MatchAndScheduleWorkflows", mock.Anything, mock.Anything).Return(nil, nil).Once()

	s.env.ExecuteWorkflow(ProcessAlertWorkflow, ProcessAlertParams{AlertID: "alr-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestProcessAlertTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessAlertTestSuite))
}
