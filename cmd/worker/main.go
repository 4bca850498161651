package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/pagebell/pagebell/internal/activity"
	"github.com/pagebell/pagebell/internal/config"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/db"
	"github.com/pagebell/pagebell/internal/logging"
	"github.com/pagebell/pagebell/internal/metrics"
	"github.com/pagebell/pagebell/internal/notify"
	"github.com/pagebell/pagebell/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	secretKey, err := cfg.SecretKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid flow secret key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	services := core.New(corePool, corePool, secretKey)

	poolCfg, err := notify.LoadPoolConfig(cfg.ProvidersConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load provider pool config")
	}
	registry := notify.NewRegistry(poolCfg, logger)
	go registry.RunHealthProber(ctx)

	var s3Client *s3.Client
	if cfg.ArchiveS3Bucket != "" {
		s3Client = s3.New(s3.Options{
			BaseEndpoint: aws.String(cfg.ArchiveS3Endpoint),
			Region:       "us-east-1",
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.ArchiveS3AccessKey, cfg.ArchiveS3SecretKey, ""),
			UsePathStyle: true,
		})
	}

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	coreDB := activity.NewCoreDB(corePool, services)
	notifyActs := activity.NewNotify(registry, services, cfg.DashboardBaseURL)
	flowActs := activity.NewFlowActions()
	archiveActs := activity.NewArchive(s3Client, cfg.ArchiveS3Bucket, services)

	interceptors := []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}}

	// Pipeline: alert processing, escalations, incident events, crons.
	pipelineWorker := worker.New(tc, workflow.TaskQueuePipeline, worker.Options{
		Interceptors: interceptors,
	})
	pipelineWorker.RegisterActivity(coreDB)
	pipelineWorker.RegisterActivity(archiveActs)
	pipelineWorker.RegisterWorkflow(workflow.ProcessAlertWorkflow)
	pipelineWorker.RegisterWorkflow(workflow.IncidentEscalationWorkflow)
	pipelineWorker.RegisterWorkflow(workflow.IncidentEventWorkflow)
	pipelineWorker.RegisterWorkflow(workflow.AutoResolveWorkflow)
	pipelineWorker.RegisterWorkflow(workflow.ArchiveNotificationsWorkflow)

	// Notifications: provider-facing sends, bounded so a paging storm
	// cannot exhaust provider rate limits.
	notificationWorker := worker.New(tc, workflow.TaskQueueNotifications, worker.Options{
		Interceptors:                       interceptors,
		MaxConcurrentActivityExecutionSize: 10,
	})
	notificationWorker.RegisterActivity(coreDB)
	notificationWorker.RegisterActivity(notifyActs)
	notificationWorker.RegisterWorkflow(workflow.NotificationDispatchWorkflow)

	// Flows: user-authored automation, throttled independently to 100
	// action executions per minute.
	flowWorker := worker.New(tc, workflow.TaskQueueFlows, worker.Options{
		Interceptors:                       interceptors,
		MaxConcurrentActivityExecutionSize: 5,
		WorkerActivitiesPerSecond:          100.0 / 60,
	})
	flowWorker.RegisterActivity(coreDB)
	flowWorker.RegisterActivity(notifyActs)
	flowWorker.RegisterActivity(flowActs)
	flowWorker.RegisterWorkflow(workflow.FlowExecutionWorkflow)

	if err := registerCronSchedules(ctx, tc, cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to register cron schedules")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metrics.NewServer(cfg.MetricsAddr).ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	var g errgroup.Group
	for name, w := range map[string]worker.Worker{
		workflow.TaskQueuePipeline:      pipelineWorker,
		workflow.TaskQueueNotifications: notificationWorker,
		workflow.TaskQueueFlows:         flowWorker,
	} {
		g.Go(func() error {
			logger.Info().Str("task_queue", name).Msg("starting worker")
			if err := w.Run(worker.InterruptCh()); err != nil {
				return fmt.Errorf("worker %s: %w", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
	logger.Info().Msg("workers stopped")
}

// registerCronSchedules installs the periodic maintenance schedules,
// tolerating ones created by a previous worker instance.
func registerCronSchedules(ctx context.Context, tc temporalclient.Client, cfg *config.Config) error {
	sc := tc.ScheduleClient()

	_, err := sc.Create(ctx, temporalclient.ScheduleOptions{
		ID: "auto-resolve-stale-alerts",
		Spec: temporalclient.ScheduleSpec{
			CronExpressions: []string{"*/30 * * * *"},
		},
		Action: &temporalclient.ScheduleWorkflowAction{
			ID:        "auto-resolve-stale-alerts-run",
			Workflow:  workflow.AutoResolveWorkflow,
			Args:      []interface{}{workflow.AutoResolveParams{CutoffHours: cfg.AlertAutoResolveHours}},
			TaskQueue: workflow.TaskQueuePipeline,
		},
	})
	if err != nil && !scheduleExists(err) {
		return fmt.Errorf("create auto-resolve schedule: %w", err)
	}

	if cfg.ArchiveS3Bucket != "" {
		_, err = sc.Create(ctx, temporalclient.ScheduleOptions{
			ID: "archive-notification-logs",
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{"0 3 * * *"},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        "archive-notification-logs-run",
				Workflow:  workflow.ArchiveNotificationsWorkflow,
				Args:      []interface{}{workflow.ArchiveParams{RetentionDays: cfg.DeliveryLogRetentionDays}},
				TaskQueue: workflow.TaskQueuePipeline,
			},
		})
		if err != nil && !scheduleExists(err) {
			return fmt.Errorf("create archive schedule: %w", err)
		}
	}

	return nil
}

func scheduleExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "AlreadyExists") ||
		strings.Contains(msg, "already registered")
}
