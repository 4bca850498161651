package ingest

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pagebell/pagebell/internal/model"
)

// ErrBadSignature is returned for any missing or mismatched webhook
// signature. Callers surface it as 401 without detail.
var ErrBadSignature = fmt.Errorf("invalid-signature")

// VerifySignature checks the webhook signature header against an HMAC
// of the raw body under the integration secret, using the algorithm
// and encoding from the integration config. Comparison is
// constant-time.
func VerifySignature(integ *model.Integration, body []byte, header string) error {
	if header == "" {
		return ErrBadSignature
	}

	var newHash func() hash.Hash
	switch integ.SignatureAlgorithm {
	case "sha1":
		newHash = sha1.New
	case "sha256", "":
		newHash = sha256.New
	default:
		return fmt.Errorf("unsupported signature algorithm %q", integ.SignatureAlgorithm)
	}

	mac := hmac.New(newHash, []byte(integ.Secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	var want string
	switch integ.SignatureFormat {
	case "base64":
		want = base64.StdEncoding.EncodeToString(sum)
	case "hex", "":
		want = hex.EncodeToString(sum)
	default:
		return fmt.Errorf("unsupported signature format %q", integ.SignatureFormat)
	}

	if subtle.ConstantTimeCompare([]byte(want), []byte(header)) != 1 {
		return ErrBadSignature
	}
	return nil
}

// VerifySlackSignature checks X-Slack-Signature:
// "v0=" + hex(HMAC-SHA256(secret, "v0:{timestamp}:{rawBody}")).
// The timestamp must be within five minutes of now.
func VerifySlackSignature(secret string, timestamp string, body []byte, header string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := now.Unix() - ts
	if age < -300 || age > 300 {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	want := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(want), []byte(header)) != 1 {
		return ErrBadSignature
	}
	return nil
}

// VerifyTwilioSignature checks X-Twilio-Signature: base64(HMAC-SHA1(
// authToken, url + form params concatenated in key order)).
func VerifyTwilioSignature(authToken, fullURL string, form url.Values, header string) error {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(want), []byte(header)) != 1 {
		return ErrBadSignature
	}
	return nil
}
