package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pagebell/pagebell/internal/platform"
)

type auditEvent struct {
	actor    string
	method   string
	path     string
	status   int
	severity string
}

// AuditLogger writes audit events to the database asynchronously so
// request latency does not depend on the audit write.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
	events chan auditEvent
	done   chan struct{}
}

// NewAuditLogger starts the drain goroutine. Call Close on shutdown to
// flush buffered events.
func NewAuditLogger(pool *pgxpool.Pool, logger zerolog.Logger) *AuditLogger {
	a := &AuditLogger{
		pool:   pool,
		logger: logger,
		events: make(chan auditEvent, 256),
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AuditLogger) drain() {
	defer close(a.done)
	for ev := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := a.pool.Exec(ctx,
			`INSERT INTO audit_events (id, actor, method, path, status, severity, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			platform.NewName("audit"), ev.actor, ev.method, ev.path, ev.status, ev.severity, time.Now().UTC(),
		)
		cancel()
		if err != nil {
			a.logger.Error().Err(err).Str("path", ev.path).Msg("audit write failed")
		}
	}
}

// Close stops accepting events and waits for the buffer to flush.
func (a *AuditLogger) Close() {
	close(a.events)
	<-a.done
}

// Middleware records mutating requests and all auth failures. Auth
// failures are recorded with high severity.
func (a *AuditLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		mutating := r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions
		authFailure := ww.status == http.StatusUnauthorized || ww.status == http.StatusForbidden
		if !mutating && !authFailure {
			return
		}

		actor := "anonymous"
		if identity := GetIdentity(r.Context()); identity != nil {
			actor = "api-key:" + identity.ID
		}

		severity := "normal"
		if authFailure {
			severity = "high"
		}

		ev := auditEvent{
			actor:    actor,
			method:   r.Method,
			path:     r.URL.Path,
			status:   ww.status,
			severity: severity,
		}
		select {
		case a.events <- ev:
		default:
			a.logger.Warn().Str("path", ev.path).Msg("audit buffer full, event dropped")
		}
	})
}
