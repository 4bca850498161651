package workflow

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
)

type CronsTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CronsTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerWorkflows(s.env)
}

func (s *CronsTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *CronsTestSuite) TestAutoResolve() {
	s.env.OnActivity("ResolveStaleAlerts", mock.Anything, 24).Return(3, nil).Once()

	s.env.ExecuteWorkflow(AutoResolveWorkflow, AutoResolveParams{CutoffHours: 24})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CronsTestSuite) TestArchiveNotifications() {
	s.env.OnActivity("ArchiveNotificationLogs", mock.Anything, 90).
		Return(&activity.ArchiveResult{Archived: 1200, Key: "notification-logs/2026/08/24/ntf-1.jsonl"}, nil).Once()
	s.env.OnActivity("ArchiveWebhookDeliveries", mock.Anything, 90).
		Return(&activity.ArchiveResult{Archived: 340, Key: "webhook-deliveries/2026/08/24/d-1.jsonl"}, nil).Once()

	s.env.ExecuteWorkflow(ArchiveNotificationsWorkflow, ArchiveParams{RetentionDays: 90})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestCronsTestSuite(t *testing.T) {
	suite.Run(t, new(CronsTestSuite))
}
