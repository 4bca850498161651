package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrAllProvidersFailed means nothing in the channel's pool can take
// the send right now: no providers are configured, or every breaker is
// open. Breakers stay open longer than any send retry window, so
// callers should treat this as permanent and escalate instead of
// retrying. A pass that actually reached providers and failed returns
// the provider error unwrapped; that class is worth retrying.
var ErrAllProvidersFailed = errors.New("no provider available")

// Provider sends one payload through one upstream.
type Provider interface {
	ID() string
	Channel() string
	Send(ctx context.Context, p *Payload) error
}

// PoolConfig is the providers.yaml shape: an ordered provider list per
// channel.
type PoolConfig struct {
	Channels map[string][]ProviderConfig `yaml:"channels"`
}

// ProviderConfig declares one upstream provider.
type ProviderConfig struct {
	ID        string            `yaml:"id"`
	Type      string            `yaml:"type"` // http | noop
	Priority  int               `yaml:"priority"`
	URL       string            `yaml:"url"`
	AuthToken string            `yaml:"auth_token"`
	HealthURL string            `yaml:"health_url"`
	Extra     map[string]string `yaml:"extra"`
}

// LoadPoolConfig reads providers.yaml.
func LoadPoolConfig(path string) (*PoolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider config %s: %w", path, err)
	}
	return ParsePoolConfig(data)
}

// ParsePoolConfig parses provider pool configuration from raw bytes.
func ParsePoolConfig(data []byte) (*PoolConfig, error) {
	var cfg PoolConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}
	for channel, providers := range cfg.Channels {
		for i, p := range providers {
			if p.ID == "" {
				return nil, fmt.Errorf("channel %s provider %d has no id", channel, i)
			}
		}
	}
	return &cfg, nil
}

type pooledProvider struct {
	provider  Provider
	breaker   *breaker
	priority  int
	healthURL string
}

// Registry holds one failover pool per channel.
type Registry struct {
	pools  map[string][]*pooledProvider
	logger zerolog.Logger
}

// NewRegistry builds provider pools from config, ordered by priority
// (lower first).
func NewRegistry(cfg *PoolConfig, logger zerolog.Logger) *Registry {
	r := &Registry{pools: map[string][]*pooledProvider{}, logger: logger}
	for channel, providers := range cfg.Channels {
		for _, pc := range providers {
			r.register(channel, buildProvider(channel, pc), pc.Priority, pc.HealthURL)
		}
	}
	return r
}

func (r *Registry) register(channel string, p Provider, priority int, healthURL string) {
	pool := append(r.pools[channel], &pooledProvider{
		provider:  p,
		breaker:   newBreaker(),
		priority:  priority,
		healthURL: healthURL,
	})
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].priority < pool[j].priority })
	r.pools[channel] = pool
}

// Send tries the channel's providers in priority order, skipping open
// breakers, until one accepts the payload. Returns the id of the
// provider that accepted. When every attempted provider fails the last
// provider error is returned; ErrAllProvidersFailed is reserved for a
// pool with nothing left to attempt.
func (r *Registry) Send(ctx context.Context, p *Payload) (string, error) {
	pool := r.pools[p.Channel]
	if len(pool) == 0 {
		return "", fmt.Errorf("channel %s: no providers configured: %w", p.Channel, ErrAllProvidersFailed)
	}

	var lastErr error
	for _, pp := range pool {
		if !pp.breaker.Allow() {
			r.logger.Debug().
				Str("provider", pp.provider.ID()).
				Str("channel", p.Channel).
				Msg("provider circuit open, skipping")
			continue
		}

		start := time.Now()
		err := pp.provider.Send(ctx, p)
		if err == nil {
			pp.breaker.RecordSuccess()
			r.logger.Info().
				Str("provider", pp.provider.ID()).
				Str("channel", p.Channel).
				Str("notification_id", p.NotificationID).
				Dur("took", time.Since(start)).
				Msg("notification accepted")
			return pp.provider.ID(), nil
		}

		pp.breaker.RecordFailure()
		lastErr = err
		r.logger.Warn().
			Err(err).
			Str("provider", pp.provider.ID()).
			Str("channel", p.Channel).
			Str("circuit", pp.breaker.State()).
			Msg("provider send failed, trying next")
	}

	if lastErr != nil {
		return "", fmt.Errorf("channel %s: %w", p.Channel, lastErr)
	}
	return "", fmt.Errorf("channel %s: all circuits open: %w", p.Channel, ErrAllProvidersFailed)
}

// CircuitStates reports breaker state per provider, for the health
// endpoint and metrics.
func (r *Registry) CircuitStates() map[string]string {
	out := map[string]string{}
	for channel, pool := range r.pools {
		for _, pp := range pool {
			out[channel+"/"+pp.provider.ID()] = pp.breaker.State()
		}
	}
	return out
}
