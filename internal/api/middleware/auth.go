package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebell/pagebell/internal/api/response"
)

type contextKey string

// APIKeyIdentityKey carries the authenticated key through the request
// context.
const APIKeyIdentityKey contextKey = "api_key_identity"

// APIKeyIdentity holds the authenticated key's ID and scopes.
type APIKeyIdentity struct {
	ID     string
	Scopes []string
}

// GetIdentity returns the authenticated identity, or nil on
// unauthenticated routes.
func GetIdentity(ctx context.Context) *APIKeyIdentity {
	id, _ := ctx.Value(APIKeyIdentityKey).(*APIKeyIdentity)
	return id
}

// Auth returns a middleware that validates the X-API-Key header against
// the api_keys table. Keys are stored as sha256 hashes; a revoked key
// stops working immediately.
func Auth(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			hash := sha256.Sum256([]byte(key))
			keyHash := hex.EncodeToString(hash[:])

			var identity APIKeyIdentity
			err := pool.QueryRow(r.Context(),
				`SELECT id, scopes FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`, keyHash,
			).Scan(&identity.ID, &identity.Scopes)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
