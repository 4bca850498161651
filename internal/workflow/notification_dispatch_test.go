package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/model"
)

type NotificationDispatchTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *NotificationDispatchTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	registerWorkflows(s.env)
}

func (s *NotificationDispatchTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func dispatchParams() DispatchParams {
	return DispatchParams{
		IncidentID:    "inc-1",
		IncidentTitle: "db down",
		Priority:      "high",
		UserID:        "usr-1",
		Level:         1,
	}
}

// All primary channels deliver: no fall-through to SMS or voice.
func (s *NotificationDispatchTestSuite) TestPrimaryTierDelivers() {
	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierPrimary],
	}).Return([]activity.ContactTarget{
		{Channel: model.ChannelEmail, Address: "a@example.com", UserName: "Ada"},
		{Channel: model.ChannelPush, Address: "device-1", UserName: "Ada"},
	}, nil).Once()
	s.env.OnActivity("CreateNotificationLog", mock.Anything, mock.Anything).Return("ntf-1", nil).Times(2)
	s.env.OnActivity("SendNotification", mock.Anything, mock.Anything).Return("smtp-1", nil).Times(2)

	s.env.ExecuteWorkflow(NotificationDispatchWorkflow, dispatchParams())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// A transient provider error on the first attempt is retried inside
// the tier: the retry delivers, the log is never terminally failed and
// no escalation happens.
func (s *NotificationDispatchTestSuite) TestTransientSendFailureRetriesWithinTier() {
	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierPrimary],
	}).Return([]activity.ContactTarget{
		{Channel: model.ChannelEmail, Address: "a@example.com", UserName: "Ada"},
	}, nil).Once()
	s.env.OnActivity("CreateNotificationLog", mock.Anything, mock.Anything).Return("ntf-1", nil).Once()

	s.env.OnActivity("SendNotification", mock.Anything, mock.Anything).
		Return("", errors.New("upstream 500")).Once()
	s.env.OnActivity("SendNotification", mock.Anything, mock.Anything).
		Return("smtp-1", nil).Once()

	s.env.ExecuteWorkflow(NotificationDispatchWorkflow, dispatchParams())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	s.env.AssertNotCalled(s.T(), "FailNotification", mock.Anything, mock.Anything)
}

// Two failed primary channels escalate to the secondary tier.
func (s *NotificationDispatchTestSuite) TestTwoFailuresEscalateTier() {
	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierPrimary],
	}).Return([]activity.ContactTarget{
		{Channel: model.ChannelEmail, Address: "a@example.com", UserName: "Ada"},
		{Channel: model.ChannelChat, Address: "#oncall", UserName: "Ada"},
		{Channel: model.ChannelPush, Address: "device-1", UserName: "Ada"},
	}, nil).Once()
	s.env.OnActivity("CreateNotificationLog", mock.Anything, mock.Anything).Return("ntf-1", nil).Times(4)

	sendErr := temporal.NewNonRetryableApplicationError("no provider available", "ALL_PROVIDERS_FAILED", nil)
	s.env.OnActivity("SendNotification", mock.Anything, mock.MatchedBy(func(p activity.SendNotificationParams) bool {
		return p.Channel == model.ChannelEmail || p.Channel == model.ChannelChat
	})).Return("", sendErr).Times(2)
	s.env.OnActivity("FailNotification", mock.Anything, mock.MatchedBy(func(p activity.FailNotificationParams) bool {
		return p.NotificationID == "ntf-1" && p.Error != ""
	})).Return(nil).Times(2)
	s.env.OnActivity("SendNotification", mock.Anything, mock.MatchedBy(func(p activity.SendNotificationParams) bool {
		return p.Channel == model.ChannelPush
	})).Return("fcm-1", nil).Once()

	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.Action == "tier_escalated"
	})).Return(nil).Once()

	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierSecondary],
	}).Return([]activity.ContactTarget{
		{Channel: model.ChannelSMS, Address: "+15550100", UserName: "Ada"},
	}, nil).Once()
	s.env.OnActivity("SendNotification", mock.Anything, mock.MatchedBy(func(p activity.SendNotificationParams) bool {
		return p.Channel == model.ChannelSMS
	})).Return("twilio-1", nil).Once()

	s.env.ExecuteWorkflow(NotificationDispatchWorkflow, dispatchParams())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// A tier with no verified contact methods is skipped without sending.
func (s *NotificationDispatchTestSuite) TestEmptyTierSkipped() {
	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierPrimary],
	}).Return(nil, nil).Once()
	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.Action == "tier_skipped"
	})).Return(nil).Once()

	s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
		UserID: "usr-1", Channels: model.TierChannels[model.TierSecondary],
	}).Return([]activity.ContactTarget{
		{Channel: model.ChannelSMS, Address: "+15550100", UserName: "Ada"},
	}, nil).Once()
	s.env.OnActivity("CreateNotificationLog", mock.Anything, mock.Anything).Return("ntf-1", nil).Once()
	s.env.OnActivity("SendNotification", mock.Anything, mock.Anything).Return("twilio-1", nil).Once()

	s.env.ExecuteWorkflow(NotificationDispatchWorkflow, dispatchParams())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

// Every tier failing ends the dispatch with an exhaustion event, not a
// workflow error: the escalation timer is the real safety net.
func (s *NotificationDispatchTestSuite) TestAllTiersExhausted() {
	sendErr := temporal.NewNonRetryableApplicationError("no provider available", "ALL_PROVIDERS_FAILED", nil)
	for _, tier := range []string{model.TierPrimary, model.TierSecondary, model.TierTertiary} {
		channels := model.TierChannels[tier]
		s.env.OnActivity("ListContactTargets", mock.Anything, activity.ListContactTargetsParams{
			UserID: "usr-1", Channels: channels,
		}).Return([]activity.ContactTarget{
			{Channel: channels[0], Address: "addr", UserName: "Ada"},
		}, nil).Once()
	}
	s.env.OnActivity("CreateNotificationLog", mock.Anything, mock.Anything).Return("ntf-1", nil).Times(3)
	s.env.OnActivity("SendNotification", mock.Anything, mock.Anything).Return("", sendErr).Times(3)
	s.env.OnActivity("FailNotification", mock.Anything, mock.Anything).Return(nil).Times(3)
	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.Action == "tier_escalated"
	})).Return(nil).Times(3)
	s.env.OnActivity("RecordIncidentEvent", mock.Anything, mock.MatchedBy(func(p activity.RecordIncidentEventParams) bool {
		return p.Action == "notification_exhausted"
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(NotificationDispatchWorkflow, dispatchParams())

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func TestNotificationDispatchTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationDispatchTestSuite))
}
