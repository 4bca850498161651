package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagebell/pagebell/internal/config"
)

func newInboundHandler(cfg *config.Config) *Inbound {
	return NewInbound(nil, nil, nil, nil, nil, cfg, testLogger())
}

func newFormRequest(target, form string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// --- TwilioSMS ---

func TestInboundTwilioSMS_NotConfigured(t *testing.T) {
	h := newInboundHandler(&config.Config{})
	rec := httptest.NewRecorder()
	r := newFormRequest("/webhooks/twilio/sms", "From=%2B46700000001&Body=ACK+inc-1")

	h.TwilioSMS(rec, r)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "not configured")
}

func TestInboundTwilioSMS_BadSignature(t *testing.T) {
	h := newInboundHandler(&config.Config{
		TwilioAuthToken: "tok",
		PublicBaseURL:   "https://pagebell.example.com",
	})
	rec := httptest.NewRecorder()
	r := newFormRequest("/webhooks/twilio/sms", "From=%2B46700000001&Body=ACK+inc-1")
	r.Header.Set("X-Twilio-Signature", "bm90LXRoZS1yaWdodC1zaWduYXR1cmU=")

	h.TwilioSMS(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- TwilioVoice ---

func TestInboundTwilioVoice_NotConfigured(t *testing.T) {
	h := newInboundHandler(&config.Config{})
	rec := httptest.NewRecorder()
	r := newFormRequest("/webhooks/twilio/voice?incident_id=inc-1", "Digits=4")

	h.TwilioVoice(rec, r)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- Slack ---

func TestInboundSlack_NotConfigured(t *testing.T) {
	h := newInboundHandler(&config.Config{})
	rec := httptest.NewRecorder()
	r := newFormRequest("/webhooks/slack/interactions", "payload=%7B%7D")

	h.Slack(rec, r)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInboundSlack_BadSignature(t *testing.T) {
	h := newInboundHandler(&config.Config{SlackSigningSecret: "secret"})
	rec := httptest.NewRecorder()
	r := newFormRequest("/webhooks/slack/interactions", "payload=%7B%7D")
	r.Header.Set("X-Slack-Request-Timestamp", "0")
	r.Header.Set("X-Slack-Signature", "v0=deadbeef")

	h.Slack(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
