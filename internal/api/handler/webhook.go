package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/cache"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/ingest"
	"github.com/pagebell/pagebell/internal/metrics"
	"github.com/pagebell/pagebell/internal/model"
	"github.com/pagebell/pagebell/internal/platform"
	"github.com/pagebell/pagebell/internal/workflow"
)

// maxWebhookBody caps inbound payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type Webhook struct {
	integrations *core.IntegrationService
	alerts       *core.AlertService
	idempotency  *cache.IdempotencyStore
	tc           temporalclient.Client
	logger       zerolog.Logger
}

func NewWebhook(integrations *core.IntegrationService, alerts *core.AlertService, idempotency *cache.IdempotencyStore, tc temporalclient.Client, logger zerolog.Logger) *Webhook {
	return &Webhook{
		integrations: integrations,
		alerts:       alerts,
		idempotency:  idempotency,
		tc:           tc,
		logger:       logger,
	}
}

type webhookResponse struct {
	AlertID     string    `json:"alert_id"`
	Severity    string    `json:"severity,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	Status      string    `json:"status"`
	Idempotent  bool      `json:"idempotent,omitempty"`
}

// Receive godoc
//
//	@Summary		Receive a monitoring webhook
//	@Description	Verifies the signature, normalizes the payload and enqueues the alert pipeline.
//	@Tags			Webhooks
//	@Param			integrationName	path		string	true	"Integration name"
//	@Success		201				{object}	webhookResponse
//	@Success		200				{object}	webhookResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		401				{object}	response.ErrorResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Router			/webhooks/alerts/{integrationName} [post]
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	delivery := model.WebhookDelivery{StatusCode: http.StatusInternalServerError}
	defer func() {
		delivery.LatencyMs = int(time.Since(start).Milliseconds())
		h.alerts.RecordDelivery(ctx, &delivery)
	}()

	fail := func(status int, msg string) {
		delivery.StatusCode = status
		delivery.Error = &msg
		response.WriteError(w, status, msg)
	}

	integ, err := h.integrations.GetByName(ctx, chi.URLParam(r, "integrationName"))
	if err != nil || !integ.IsActive {
		fail(http.StatusNotFound, "unknown integration")
		return
	}
	delivery.IntegrationID = &integ.ID

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		fail(http.StatusBadRequest, "payload too large")
		return
	}
	delivery.BodyBytes = len(body)

	if err := ingest.VerifySignature(integ, body, r.Header.Get(integ.SignatureHeader)); err != nil {
		metrics.WebhooksReceived.WithLabelValues(integ.Provider, "rejected").Inc()
		fail(http.StatusUnauthorized, "invalid signature")
		return
	}

	adapter, err := ingest.AdapterFor(integ.Provider)
	if err != nil {
		fail(http.StatusInternalServerError, err.Error())
		return
	}
	norm, err := adapter.Normalize(body)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(integ.Provider, "invalid").Inc()
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			delivery.StatusCode = http.StatusBadRequest
			msg := ve.Error()
			delivery.Error = &msg
			response.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": ve.Fields,
			})
			return
		}
		fail(http.StatusBadRequest, err.Error())
		return
	}

	externalID := norm.ExternalID
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		externalID = key
	}

	// Fast path: a re-delivered (integration, external id) pair answers
	// from the cache without touching the pipeline. The alerts table's
	// unique index backs this up when the key has expired.
	alertID := platform.NewName("alr")
	if externalID != "" {
		existing, seen, err := h.idempotency.Remember(ctx, integ.ID, externalID, alertID)
		if err != nil {
			h.logger.Warn().Err(err).Msg("idempotency cache unavailable")
		} else if seen {
			metrics.WebhooksReceived.WithLabelValues(integ.Provider, "duplicate").Inc()
			delivery.StatusCode = http.StatusOK
			response.WriteJSON(w, http.StatusOK, webhookResponse{
				AlertID:     existing,
				Severity:    norm.Severity,
				TriggeredAt: norm.Timestamp,
				Status:      "duplicate",
				Idempotent:  true,
			})
			return
		}
	}

	meta, _ := json.Marshal(norm.Extra)
	alert := &model.Alert{
		ID:            alertID,
		IntegrationID: integ.ID,
		Title:         norm.Title,
		Severity:      norm.Severity,
		Fingerprint:   ingest.Fingerprint(integ.ID, norm),
		Metadata:      meta,
	}
	if externalID != "" {
		alert.ExternalID = &externalID
	}

	created, err := h.alerts.Create(ctx, alert)
	if err != nil {
		fail(http.StatusInternalServerError, "failed to persist alert")
		return
	}
	if !created {
		metrics.WebhooksReceived.WithLabelValues(integ.Provider, "duplicate").Inc()
		delivery.StatusCode = http.StatusOK
		response.WriteJSON(w, http.StatusOK, webhookResponse{
			AlertID:     alert.ID,
			Severity:    alert.Severity,
			TriggeredAt: norm.Timestamp,
			Status:      "duplicate",
			Idempotent:  true,
		})
		return
	}

	_, err = h.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        "process-alert-" + alert.ID,
		TaskQueue: workflow.TaskQueuePipeline,
	}, "ProcessAlertWorkflow", workflow.ProcessAlertParams{AlertID: alert.ID})
	if err != nil {
		h.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to start alert pipeline")
		fail(http.StatusInternalServerError, "failed to enqueue alert")
		return
	}

	metrics.WebhooksReceived.WithLabelValues(integ.Provider, "created").Inc()
	delivery.StatusCode = http.StatusCreated
	response.WriteJSON(w, http.StatusCreated, webhookResponse{
		AlertID:     alert.ID,
		Severity:    alert.Severity,
		TriggeredAt: norm.Timestamp,
		Status:      "created",
	})
}
