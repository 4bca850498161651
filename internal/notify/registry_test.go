package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id      string
	channel string
	err     error   // returned on every call
	errs    []error // consumed one per call before err
	calls   int
}

func (f *fakeProvider) ID() string      { return f.id }
func (f *fakeProvider) Channel() string { return f.channel }
func (f *fakeProvider) Send(context.Context, *Payload) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

func newTestRegistry() *Registry {
	return &Registry{pools: map[string][]*pooledProvider{}, logger: zerolog.Nop()}
}

func TestRegistry_Send_PriorityOrder(t *testing.T) {
	r := newTestRegistry()
	primary := &fakeProvider{id: "twilio", channel: "sms"}
	backup := &fakeProvider{id: "vonage", channel: "sms"}
	r.register("sms", backup, 2, "")
	r.register("sms", primary, 1, "")

	providerID, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, "twilio", providerID)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, backup.calls)
}

func TestRegistry_Send_FailsOverToBackup(t *testing.T) {
	r := newTestRegistry()
	primary := &fakeProvider{id: "twilio", channel: "sms", err: errors.New("upstream 500")}
	backup := &fakeProvider{id: "vonage", channel: "sms"}
	r.register("sms", primary, 1, "")
	r.register("sms", backup, 2, "")

	providerID, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, "vonage", providerID)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

// A pass that reached providers and failed surfaces the provider error
// without the permanent marker: the caller's retry policy owns it.
func TestRegistry_Send_AttemptedFailuresStayRetryable(t *testing.T) {
	r := newTestRegistry()
	r.register("sms", &fakeProvider{id: "a", channel: "sms", err: errors.New("down")}, 1, "")
	r.register("sms", &fakeProvider{id: "b", channel: "sms", err: errors.New("down too")}, 2, "")

	_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAllProvidersFailed)
	assert.Contains(t, err.Error(), "down too")
}

// One transient upstream error: the first Send fails retryably, the
// second Send goes through the same provider and succeeds.
func TestRegistry_Send_TransientFailureThenSuccess(t *testing.T) {
	r := newTestRegistry()
	flaky := &fakeProvider{id: "a", channel: "sms", errs: []error{errors.New("upstream 500")}}
	r.register("sms", flaky, 1, "")

	_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, 1, flaky.calls)

	providerID, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, "a", providerID)
	assert.Equal(t, 2, flaky.calls)
}

func TestRegistry_Send_AllCircuitsOpen(t *testing.T) {
	r := newTestRegistry()
	dead := &fakeProvider{id: "a", channel: "sms", err: errors.New("down")}
	r.register("sms", dead, 1, "")

	for i := 0; i < failureThreshold; i++ {
		_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
		require.Error(t, err)
	}

	_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, failureThreshold, dead.calls, "open circuit must not be attempted")
}

func TestRegistry_Send_SkipsOpenCircuit(t *testing.T) {
	r := newTestRegistry()
	flaky := &fakeProvider{id: "a", channel: "sms", err: errors.New("down")}
	backup := &fakeProvider{id: "b", channel: "sms"}
	r.register("sms", flaky, 1, "")
	r.register("sms", backup, 2, "")

	// Trip the primary's breaker.
	for i := 0; i < failureThreshold; i++ {
		_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
		require.NoError(t, err)
	}
	require.Equal(t, failureThreshold, flaky.calls)

	_, err := r.Send(context.Background(), &Payload{Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, failureThreshold, flaky.calls, "open circuit must not be attempted")

	states := r.CircuitStates()
	assert.Equal(t, StateOpen, states["sms/a"])
	assert.Equal(t, StateClosed, states["sms/b"])
}

func TestRegistry_Send_NoProviders(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Send(context.Background(), &Payload{Channel: "voice"})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestParsePoolConfig(t *testing.T) {
	raw := `
channels:
  sms:
    - id: twilio
      type: http
      priority: 1
      url: https://sms-gw.internal/send
      health_url: https://sms-gw.internal/health
    - id: vonage
      type: http
      priority: 2
      url: https://backup-sms.internal/send
  email:
    - id: ses
      type: http
      priority: 1
      url: https://mailer.internal/send
`
	cfg, err := ParsePoolConfig([]byte(raw))
	require.NoError(t, err)
	require.Len(t, cfg.Channels["sms"], 2)
	assert.Equal(t, "twilio", cfg.Channels["sms"][0].ID)
	assert.Equal(t, 1, cfg.Channels["sms"][0].Priority)

	_, err = ParsePoolConfig([]byte("channels:\n  sms:\n    - type: http\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestPayload_SMSBody_SingleSegment(t *testing.T) {
	p := &Payload{
		IncidentID:    "inc-abc",
		IncidentTitle: strings.Repeat("database timeout ", 20),
		Priority:      "critical",
	}
	body := p.SMSBody()
	units := 0
	for _, r := range body {
		units++
		if r > 0xFFFF {
			units++
		}
	}
	assert.LessOrEqual(t, units, maxSMSUnits)
}

func TestPayload_SMSBody_CountsUTF16Units(t *testing.T) {
	// Emoji are two UTF-16 code units each; 100 of them exceed one
	// segment even though there are only ~120 runes total.
	p := &Payload{
		IncidentID:    "inc-1",
		IncidentTitle: strings.Repeat("\U0001F525", 100),
		Priority:      "high",
	}
	body := p.SMSBody()
	units := 0
	for _, r := range body {
		units++
		if r > 0xFFFF {
			units++
		}
	}
	assert.LessOrEqual(t, units, maxSMSUnits)
	assert.NotContains(t, body, "�", "truncation must not split a rune")
}
