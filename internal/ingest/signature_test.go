package ingest

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebell/pagebell/internal/model"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	integ := &model.Integration{Secret: "s3cret", SignatureAlgorithm: "sha256", SignatureFormat: "hex"}
	body := []byte(`{"title":"db down"}`)

	require.NoError(t, VerifySignature(integ, body, sign("s3cret", body)))
	assert.ErrorIs(t, VerifySignature(integ, body, "invalid"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(integ, body, ""), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(integ, []byte("tampered"), sign("s3cret", body)), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(integ, body, sign("wrong", body)), ErrBadSignature)
}

func TestVerifySignatureBase64(t *testing.T) {
	integ := &model.Integration{Secret: "k", SignatureAlgorithm: "sha256", SignatureFormat: "base64"}
	body := []byte("payload")

	mac := hmac.New(sha256.New, []byte("k"))
	mac.Write(body)
	header := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.NoError(t, VerifySignature(integ, body, header))
	// The hex encoding of the same MAC must not verify.
	assert.Error(t, VerifySignature(integ, body, hex.EncodeToString(mac.Sum(nil))))
}

func TestVerifySlackSignature(t *testing.T) {
	now := time.Unix(1700000100, 0)
	ts := "1700000000"
	body := []byte("payload=x")

	mac := hmac.New(sha256.New, []byte("slack-secret"))
	mac.Write([]byte("v0:" + ts + ":" + string(body)))
	header := "v0=" + hex.EncodeToString(mac.Sum(nil))

	require.NoError(t, VerifySlackSignature("slack-secret", ts, body, header, now))
	assert.Error(t, VerifySlackSignature("slack-secret", ts, body, "v0=bad", now))

	// Stale timestamp outside the five minute window.
	assert.Error(t, VerifySlackSignature("slack-secret", ts, body, header, now.Add(10*time.Minute)))
}

func TestVerifyTwilioSignature(t *testing.T) {
	form := url.Values{}
	form.Set("From", "+15550001111")
	form.Set("Body", "ACK")

	fullURL := "https://pagebell.example/webhooks/twilio/sms"

	mac := hmac.New(sha1.New, []byte("token"))
	mac.Write([]byte(fullURL))
	mac.Write([]byte("Body"))
	mac.Write([]byte("ACK"))
	mac.Write([]byte("From"))
	mac.Write([]byte("+15550001111"))
	header := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.NoError(t, VerifyTwilioSignature("token", fullURL, form, header))
	assert.Error(t, VerifyTwilioSignature("other", fullURL, form, header))
}
