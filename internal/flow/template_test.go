package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() map[string]any {
	return map[string]any{
		"incident": map[string]any{
			"id":       "inc-1",
			"title":    "db down",
			"priority": "critical",
		},
		"team": map[string]any{"name": "platform"},
		"secrets": map[string]any{
			"api_key": "s3cret",
		},
	}
}

func TestInterpolate(t *testing.T) {
	out, err := Interpolate("Incident {{ incident.id }}: {{ incident.title }}", testCtx())
	require.NoError(t, err)
	assert.Equal(t, "Incident inc-1: db down", out)
}

func TestInterpolateHelpers(t *testing.T) {
	out, err := Interpolate("{{ incident.priority | uppercase }}", testCtx())
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", out)

	out, err = Interpolate("{{ team.name | uppercase | lowercase }}", testCtx())
	require.NoError(t, err)
	assert.Equal(t, "platform", out)
}

func TestInterpolateUnknownPathPassesThrough(t *testing.T) {
	out, err := Interpolate("x {{ incident.missing }} y", testCtx())
	require.NoError(t, err)
	assert.Equal(t, "x {{ incident.missing }} y", out)
}

func TestInterpolateSecrets(t *testing.T) {
	out, err := Interpolate("Bearer {{ secrets.api_key }}", testCtx())
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", out)
}

func TestInterpolateMalformed(t *testing.T) {
	_, err := Interpolate("{{ incident.id", testCtx())
	assert.Error(t, err)

	_, err = Interpolate("{{ incident.id | shout }}", testCtx())
	assert.Error(t, err)

	_, err = Interpolate("{{ }}", testCtx())
	assert.Error(t, err)
}

func TestEncryptDecryptSecret(t *testing.T) {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")

	ct, err := EncryptSecret(&key, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(ct), "hunter2")

	pt, err := DecryptSecret(&key, ct)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pt)

	var wrong [32]byte
	copy(wrong[:], "ffffffffffffffffffffffffffffffff")
	_, err = DecryptSecret(&wrong, ct)
	assert.Error(t, err)
}
