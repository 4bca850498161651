package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/pagebell/pagebell/internal/activity"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types deserialize correctly.
// Tests mock every call via OnActivity, but the framework still needs
// the type information.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.CoreDB{})
	env.RegisterActivity(&activity.Notify{})
	env.RegisterActivity(&activity.FlowActions{})
	env.RegisterActivity(&activity.Archive{})
}

// registerWorkflows registers every workflow so child workflow types
// resolve in tests that mock them with OnWorkflow.
func registerWorkflows(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterWorkflow(ProcessAlertWorkflow)
	env.RegisterWorkflow(IncidentEscalationWorkflow)
	env.RegisterWorkflow(NotificationDispatchWorkflow)
	env.RegisterWorkflow(FlowExecutionWorkflow)
	env.RegisterWorkflow(IncidentEventWorkflow)
	env.RegisterWorkflow(AutoResolveWorkflow)
	env.RegisterWorkflow(ArchiveNotificationsWorkflow)
}
