package notify

import (
	"context"
	"io"
	"net/http"
	"time"
)

const probeInterval = 30 * time.Second

// RunHealthProber probes providers with open circuits every 30 seconds
// and closes the circuit early when the provider's health endpoint
// answers again. Blocks until ctx is cancelled.
func (r *Registry) RunHealthProber(ctx context.Context) {
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.probeOpen(ctx, client)
		}
	}
}

func (r *Registry) probeOpen(ctx context.Context, client *http.Client) {
	for channel, pool := range r.pools {
		for _, pp := range pool {
			if pp.breaker.State() != StateOpen || pp.healthURL == "" {
				continue
			}
			if probe(ctx, client, pp.healthURL) {
				pp.breaker.RecordSuccess()
				r.logger.Info().
					Str("provider", pp.provider.ID()).
					Str("channel", channel).
					Msg("provider healthy again, circuit closed")
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
