package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/handler"
	mw "github.com/pagebell/pagebell/internal/api/middleware"
	"github.com/pagebell/pagebell/internal/cache"
	"github.com/pagebell/pagebell/internal/config"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/events"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	corePool       *pgxpool.Pool
	rdb            *redis.Client
	temporalClient temporalclient.Client
	cfg            *config.Config
	auditLogger    *mw.AuditLogger
	hub            *events.Hub
}

func NewServer(logger zerolog.Logger, corePool *pgxpool.Pool, rdb *redis.Client, temporalClient temporalclient.Client, cfg *config.Config, secretKey *[32]byte) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       core.New(corePool, corePool, secretKey),
		corePool:       corePool,
		rdb:            rdb,
		temporalClient: temporalClient,
		cfg:            cfg,
		auditLogger:    mw.NewAuditLogger(corePool, logger),
		hub:            events.NewHub(logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	limiter := cache.NewLimiter(s.rdb, s.logger)
	idempotency := cache.NewIdempotencyStore(s.rdb)

	// Alert ingestion: authenticated by the per-integration HMAC, rate
	// limited per source IP.
	webhook := handler.NewWebhook(s.services.Integrations, s.services.Alerts, idempotency, s.temporalClient, s.logger)
	s.router.Group(func(r chi.Router) {
		r.Use(mw.RateLimitByIP(limiter, "webhook", mw.WebhookRateLimit))
		r.Post("/webhooks/alerts/{integrationName}", webhook.Receive)
	})

	// Channel replies and delivery receipts: authenticated by provider
	// signatures, rate limited at the public tier.
	inbound := handler.NewInbound(s.services.Users, s.services.Teams, s.services.Incidents, s.temporalClient, s.hub, s.cfg, s.logger)
	callback := handler.NewCallback(s.services.Notifications, s.temporalClient, s.hub, s.cfg, s.logger)
	s.router.Group(func(r chi.Router) {
		r.Use(mw.RateLimitByIP(limiter, "public", mw.PublicRateLimit))
		r.Post("/webhooks/twilio/sms", inbound.TwilioSMS)
		r.Post("/webhooks/twilio/voice", inbound.TwilioVoice)
		r.Post("/webhooks/slack/interactions", inbound.Slack)
		r.Post("/callbacks/notifications/{id}", callback.Delivery)
		r.Post("/callbacks/twilio/{id}", callback.TwilioStatus)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.corePool))
		r.Use(mw.RateLimitByKey(limiter, mw.APIRateLimit))
		r.Use(s.auditLogger.Middleware)

		// Live incident event stream
		r.Get("/events", s.hub.ServeHTTP)

		// Incidents
		incident := handler.NewIncident(s.services.Incidents, s.services.Notifications, s.temporalClient, s.hub, s.logger)
		r.Get("/incidents", incident.List)
		r.Get("/incidents/{id}", incident.Get)
		r.Get("/incidents/{id}/events", incident.Events)
		r.Get("/incidents/{id}/notifications", incident.Notifications)
		r.Post("/incidents/{id}/acknowledge", incident.Acknowledge)
		r.Post("/incidents/{id}/resolve", incident.Resolve)
		r.Post("/incidents/{id}/close", incident.Close)
		r.Post("/incidents/{id}/notes", incident.AddNote)

		// Teams
		team := handler.NewTeam(s.services.Teams)
		r.Post("/teams", team.Create)
		r.Get("/teams/{id}", team.Get)
		r.Get("/teams/{id}/members", team.Members)
		r.Post("/teams/{id}/members", team.AddMember)
		r.Put("/teams/{id}/technical-tags", team.SetTechnicalTag)

		// Users and contact methods
		user := handler.NewUser(s.services.Users)
		r.Post("/users", user.Create)
		r.Get("/users/{id}", user.Get)
		r.Post("/users/{id}/contact-methods", user.AddContactMethod)
		r.Post("/users/{id}/contact-methods/{contactMethodID}/verify", user.VerifyContactMethod)

		// Services
		service := handler.NewService(s.services.ServiceCat)
		r.Post("/services", service.Create)
		r.Get("/services/{id}", service.Get)
		r.Put("/services/{id}/status", service.SetStatus)
		r.Get("/teams/{teamID}/services", service.ListByTeam)

		// Escalation policies
		policy := handler.NewPolicy(s.services.Policies)
		r.Post("/escalation-policies", policy.Create)
		r.Get("/escalation-policies/{id}", policy.Get)
		r.Get("/teams/{teamID}/escalation-policies", policy.ListByTeam)

		// Schedules and on-call resolution
		schedule := handler.NewSchedule(s.services.Schedules, s.services.OnCall)
		r.Post("/schedules", schedule.Create)
		r.Get("/schedules/{id}", schedule.Get)
		r.Post("/schedules/{id}/layers", schedule.AddLayer)
		r.Post("/schedules/{id}/overrides", schedule.AddOverride)
		r.Get("/schedules/{id}/oncall", schedule.OnCall)
		r.Get("/teams/{teamID}/schedules", schedule.ListByTeam)
		r.Get("/teams/{teamID}/oncall", schedule.TeamOnCall)

		// Integrations
		integration := handler.NewIntegration(s.services.Integrations)
		r.Get("/integrations", integration.List)
		r.Post("/integrations", integration.Create)
		r.Get("/integrations/{id}", integration.Get)
		r.Post("/integrations/{id}/enable", integration.Enable)
		r.Post("/integrations/{id}/disable", integration.Disable)

		// Workflows and executions
		workflow := handler.NewWorkflow(s.services.Workflows, s.services.Executions, s.temporalClient, s.logger)
		r.Get("/workflows", workflow.List)
		r.Post("/workflows", workflow.Create)
		r.Post("/workflows/import", workflow.Import)
		r.Get("/workflows/{id}", workflow.Get)
		r.Put("/workflows/{id}", workflow.Update)
		r.Delete("/workflows/{id}", workflow.Delete)
		r.Put("/workflows/{id}/enabled", workflow.SetEnabled)
		r.Get("/workflows/{id}/versions", workflow.ListVersions)
		r.Post("/workflows/{id}/rollback", workflow.Rollback)
		r.Get("/workflows/{id}/export", workflow.Export)
		r.Put("/workflows/{id}/secrets", workflow.SetSecret)
		r.Post("/workflows/{id}/execute", workflow.Execute)
		r.Get("/workflows/{id}/executions", workflow.ListExecutions)
		r.Get("/executions/{id}", workflow.GetExecution)
		r.Post("/executions/{id}/cancel", workflow.CancelExecution)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		// Redis degrades open; report but stay ready.
		checks["redis"] = err.Error()
	} else {
		checks["redis"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

// Close flushes the async audit buffer.
func (s *Server) Close() {
	s.auditLogger.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
