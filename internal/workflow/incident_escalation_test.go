package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/model"
)

type IncidentEscalationTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *IncidentEscalationTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerWorkflows(s.env)
}

func (s *IncidentEscalationTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func openIncident() *model.Incident {
	return &model.Incident{
		ID:                 "inc-1",
		Status:             model.IncidentOpen,
		Priority:           "high",
		TeamID:             "team-1",
		EscalationPolicyID: "ep-1",
		Title:              "db down",
		CurrentLevel:       1,
		CurrentRepeat:      1,
	}
}

func twoLevelPolicy() *model.EscalationPolicy {
	return &model.EscalationPolicy{
		ID:          "ep-1",
		TeamID:      "team-1",
		Name:        "default",
		RepeatCount: 1,
		Levels: []model.EscalationLevel{
			{PolicyID: "ep-1", LevelNumber: 1, TargetType: model.TargetUser, TimeoutMinutes: 5},
			{PolicyID: "ep-1", LevelNumber: 2, TargetType: model.TargetUser, TimeoutMinutes: 10},
		},
	}
}

// Level 1 pages at t=0 and times out at t=5m; level 2 pages and the ack
// arrives at t=7m, before its timer. Exactly one advance happens and
// the workflow stops without exhausting the policy.
func (s *IncidentEscalationTestSuite) TestAckDuringSecondLevel() {
	s.env.OnActivity("GetIncident", mock.Anything, "inc-1").Return(openIncident(), nil)
	s.env.OnActivity("GetEscalationPolicy", mock.Anything, "ep-1").Return(twoLevelPolicy(), nil)
	s.env.OnActivity("ResolveLevelTarget", mock.Anything, mock.Anything).Return("usr-1", nil).Times(2)
	s.env.OnWorkflow(NotificationDispatchWorkflow, mock.Anything, mock.Anything).Return(nil).Times(2)
	s.env.OnActivity("AdvanceEscalation", mock.Anything, activity.AdvanceEscalationParams{
		IncidentID: "inc-1", FromLevel: 1, FromRepeat: 1, ToLevel: 2, ToRepeat: 1,
	}).Return(true, nil).Once()

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalAcknowledged, nil)
	}, 7*time.Minute)

	s.env.ExecuteWorkflow(IncidentEscalationWorkflow, EscalationParams{IncidentID: "inc-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// A timer that loses the cursor guard stops paging: someone else moved
// the incident while the timer was in flight.
func (s *IncidentEscalationTestSuite) TestStaleTimerStops() {
	s.env.OnActivity("GetIncident", mock.Anything, "inc-1").Return(openIncident(), nil)
	s.env.OnActivity("GetEscalationPolicy", mock.Anything, "ep-1").Return(twoLevelPolicy(), nil)
	s.env.OnActivity("ResolveLevelTarget", mock.Anything, mock.Anything).Return("usr-1", nil).Once()
	s.env.OnWorkflow(NotificationDispatchWorkflow, mock.Anything, mock.Anything).Return(nil).Once()
	s.env.OnActivity("AdvanceEscalation", mock.Anything, mock.Anything).Return(false, nil).Once()

	s.env.ExecuteWorkflow(IncidentEscalationWorkflow, EscalationParams{IncidentID: "inc-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// Exhausting every repeat of every level records the exhaustion and
// offers the event to the workflow matcher.
func (s *IncidentEscalationTestSuite) TestExhaustion() {
	policy := &model.EscalationPolicy{
		ID: "ep-1", TeamID: "team-1", Name: "single", RepeatCount: 2,
		Levels: []model.EscalationLevel{
			{PolicyID: "ep-1", LevelNumber: 1, TargetType: model.TargetUser, TimeoutMinutes: 5},
		},
	}

	s.env.OnActivity("GetIncident", mock.Anything, "inc-1").Return(openIncident(), nil)
	s.env.OnActivity("GetEscalationPolicy", mock.Anything, "ep-1").Return(policy, nil)
	s.env.OnActivity("ResolveLevelTarget", mock.Anything, mock.Anything).Return("usr-1", nil).Times(2)
	s.env.OnWorkflow(NotificationDispatchWorkflow, mock.Anything, mock.Anything).Return(nil).Times(2)
	s.env.OnActivity("AdvanceEscalation", mock.Anything, activity.AdvanceEscalationParams{
		IncidentID: "inc-1", FromLevel: 1, FromRepeat: 1, ToLevel: 1, ToRepeat: 2,
	}).Return(true, nil).Once()
	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.IncidentID == "inc-1" && p.Action == "escalation_exhausted"
	})).Return(nil).Once()
	s.env.OnActivity("MatchAndScheduleWorkflows", mock.Anything, activity.MatchWorkflowsParams{
		IncidentID: "inc-1", EventType: model.EventEscalationExhausted,
	}).Return(nil, nil).Once()

	s.env.ExecuteWorkflow(IncidentEscalationWorkflow, EscalationParams{IncidentID: "inc-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// A level with nobody on call is recorded and skipped, not paged.
func (s *IncidentEscalationTestSuite) TestNobodyOnCallSkipsLevel() {
	s.env.OnActivity("GetIncident", mock.Anything, "inc-1").Return(openIncident(), nil)
	s.env.OnActivity("GetEscalationPolicy", mock.Anything, "ep-1").Return(twoLevelPolicy(), nil)
	s.env.OnActivity("ResolveLevelTarget", mock.Anything, mock.MatchedBy(func(p activity.ResolveLevelTargetParams) bool {
		return p.LevelNumber == 1
	})).Return("", nil).Once()
	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.Action == "level_skipped"
	})).Return(nil).Once()
	s.env.OnActivity("ResolveLevelTarget", mock.Anything, mock.MatchedBy(func(p activity.ResolveLevelTargetParams) bool {
		return p.LevelNumber == 2
	})).Return("usr-2", nil).Once()
	s.env.OnWorkflow(NotificationDispatchWorkflow, mock.Anything, mock.Anything).Return(nil).Once()
	s.env.OnActivity("AdvanceEscalation", mock.Anything, mock.Anything).Return(true, nil).Once()

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalResolved, nil)
	}, 6*time.Minute)

	s.env.ExecuteWorkflow(IncidentEscalationWorkflow, EscalationParams{IncidentID: "inc-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// An incident that was acknowledged before the workflow got scheduled
// never pages at all.
func (s *IncidentEscalationTestSuite) TestAlreadyHandledIncident() {
	inc := openIncident()
	inc.Status = model.IncidentAcknowledged
	s.env.OnActivity("GetIncident", mock.Anything, "inc-1").Return(inc, nil)

	s.env.ExecuteWorkflow(IncidentEscalationWorkflow, EscalationParams{IncidentID: "inc-1"})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "ResolveLevelTarget", mock.Anything, mock.Anything)
}

func TestIncidentEscalationTestSuite(t *testing.T) {
	suite.Run(t, new(IncidentEscalationTestSuite))
}
