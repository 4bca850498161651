package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline and delivery counters.
var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebell_webhooks_received_total",
		Help: "Webhook deliveries received, by provider and outcome",
	}, []string{"provider", "outcome"})

	AlertsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebell_alerts_deduplicated_total",
		Help: "Dedupe decisions, by result (created|merged)",
	}, []string{"result"})

	EscalationsAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagebell_escalations_advanced_total",
		Help: "Escalation level advances across all incidents",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebell_notifications_sent_total",
		Help: "Notification send attempts, by channel and outcome",
	}, []string{"channel", "outcome"})

	ProviderCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagebell_provider_circuit_open",
		Help: "1 when a provider's circuit breaker is open",
	}, []string{"channel", "provider"})

	WorkflowExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagebell_workflow_executions_total",
		Help: "Workflow executions, by terminal status",
	}, []string{"status"})
)
