package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the deterministic identity of "the same
// problem": a hash over the integration and the normalized key fields.
// Alerts sharing a fingerprint merge into one incident inside the
// merge window.
func Fingerprint(integrationID string, a *NormalizedAlert) string {
	h := sha256.New()
	for _, part := range []string{
		integrationID,
		a.ExternalID,
		a.RoutingKey,
		a.ServiceName,
		strings.ToLower(strings.TrimSpace(a.Title)),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
