package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendTimeout = 10 * time.Second

func buildProvider(channel string, pc ProviderConfig) Provider {
	switch pc.Type {
	case "noop":
		return &noopProvider{id: pc.ID, channel: channel}
	default:
		return &httpProvider{
			id:      pc.ID,
			channel: channel,
			url:     pc.URL,
			token:   pc.AuthToken,
			client:  &http.Client{Timeout: sendTimeout},
		}
	}
}

// httpProvider posts the channel-shaped message to the provider's
// endpoint. Any non-2xx response is a failure.
type httpProvider struct {
	id      string
	channel string
	url     string
	token   string
	client  *http.Client
}

func (p *httpProvider) ID() string      { return p.id }
func (p *httpProvider) Channel() string { return p.channel }

func (p *httpProvider) Send(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(p.shape(payload))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s: %w", p.id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider %s returned %d", p.id, resp.StatusCode)
	}
	return nil
}

// shape builds the channel-specific message body.
func (p *httpProvider) shape(payload *Payload) map[string]any {
	switch p.channel {
	case "sms":
		return map[string]any{
			"to":   payload.Address,
			"body": payload.SMSBody(),
		}
	case "voice":
		return map[string]any{
			"to":     payload.Address,
			"script": payload.VoiceScript(),
		}
	case "email":
		return map[string]any{
			"to":      payload.Address,
			"subject": payload.Subject(),
			"body":    payload.Body(),
		}
	case "push":
		return map[string]any{
			"device_token": payload.Address,
			"title":        payload.Subject(),
			"body":         payload.IncidentTitle,
			"incident_id":  payload.IncidentID,
		}
	default: // chat
		return map[string]any{
			"channel": payload.Address,
			"text":    payload.Body(),
		}
	}
}

// noopProvider accepts everything. Used in dev and tests.
type noopProvider struct {
	id      string
	channel string
}

func (p *noopProvider) ID() string                           { return p.id }
func (p *noopProvider) Channel() string                      { return p.channel }
func (p *noopProvider) Send(context.Context, *Payload) error { return nil }
