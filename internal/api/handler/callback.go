package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/pagebell/pagebell/internal/api/request"
	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/config"
	"github.com/pagebell/pagebell/internal/core"
	"github.com/pagebell/pagebell/internal/events"
	"github.com/pagebell/pagebell/internal/ingest"
)

// Callback moves notification logs from SENT to DELIVERED or FAILED on
// provider delivery receipts. Late or repeated receipts are no-ops:
// the log's conditional transitions refuse to move backwards.
type Callback struct {
	notifications *core.NotificationLogService
	lc            *lifecycle
	cfg           *config.Config
	logger        zerolog.Logger
}

func NewCallback(notifications *core.NotificationLogService, tc temporalclient.Client, hub *events.Hub, cfg *config.Config, logger zerolog.Logger) *Callback {
	return &Callback{
		notifications: notifications,
		lc:            &lifecycle{tc: tc, hub: hub, logger: logger},
		cfg:           cfg,
		logger:        logger,
	}
}

// Delivery accepts a generic JSON receipt from a channel provider.
func (h *Callback) Delivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req request.DeliveryReceipt
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.apply(w, r, id, req.Status, req.Error)
}

// TwilioStatus accepts Twilio's form-encoded status callback for SMS
// and voice. The notification log id rides in the callback URL.
func (h *Callback) TwilioStatus(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwilioAuthToken == "" {
		response.WriteError(w, http.StatusServiceUnavailable, "delivery callbacks not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	fullURL := h.cfg.PublicBaseURL + r.URL.RequestURI()
	if err := ingest.VerifyTwilioSignature(h.cfg.TwilioAuthToken, fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")); err != nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	status := r.PostForm.Get("MessageStatus")
	if status == "" {
		status = r.PostForm.Get("CallStatus")
	}

	switch status {
	case "delivered", "completed":
		h.apply(w, r, chi.URLParam(r, "id"), "delivered", "")
	case "failed", "undelivered", "busy", "no-answer", "canceled":
		errMsg := strings.TrimSpace(status + " " + r.PostForm.Get("ErrorCode"))
		h.apply(w, r, chi.URLParam(r, "id"), "failed", errMsg)
	default:
		// Intermediate statuses (queued, sent, ringing) carry no
		// terminal outcome.
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Callback) apply(w http.ResponseWriter, r *http.Request, id, status, errMsg string) {
	log, err := h.notifications.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	var moved bool
	switch status {
	case "delivered":
		moved, err = h.notifications.MarkDelivered(r.Context(), id)
	case "failed":
		moved, err = h.notifications.MarkFailed(r.Context(), id, errMsg)
	default:
		response.WriteError(w, http.StatusBadRequest, "unknown delivery status")
		return
	}
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	if moved {
		h.lc.broadcast("notification."+status, log.IncidentID, "", map[string]string{
			"notification_id": id,
			"channel":         log.Channel,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
