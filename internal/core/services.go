package core

// Services bundles the core service layer over one pool, the way the
// API server and the worker activities consume it.
type Services struct {
	Incidents     *IncidentService
	Alerts        *AlertService
	Integrations  *IntegrationService
	Users         *UserService
	Teams         *TeamService
	ServiceCat    *ServiceService
	Schedules     *ScheduleService
	Policies      *PolicyService
	OnCall        *OnCallService
	Notifications *NotificationLogService
	Workflows     *WorkflowService
	Executions    *ExecutionService
}

// New wires every service against the same DB. The pool must also
// implement TxBeginner for the dedupe and workflow-version
// transactions.
func New(db DB, pool TxBeginner, secretKey *[32]byte) *Services {
	return &Services{
		Incidents:     NewIncidentService(db, pool),
		Alerts:        NewAlertService(db),
		Integrations:  NewIntegrationService(db),
		Users:         NewUserService(db),
		Teams:         NewTeamService(db),
		ServiceCat:    NewServiceService(db),
		Schedules:     NewScheduleService(db),
		Policies:      NewPolicyService(db),
		OnCall:        NewOnCallService(db),
		Notifications: NewNotificationLogService(db),
		Workflows:     NewWorkflowService(db, pool, secretKey),
		Executions:    NewExecutionService(db),
	}
}
