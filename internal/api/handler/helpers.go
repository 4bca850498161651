package handler

import (
	"net/http"

	"github.com/pagebell/pagebell/internal/api/middleware"
)

// actorFromRequest derives an actor string from the API key identity.
func actorFromRequest(r *http.Request) string {
	if identity := middleware.GetIdentity(r.Context()); identity != nil {
		return "api-key:" + identity.ID
	}
	return "unknown"
}
