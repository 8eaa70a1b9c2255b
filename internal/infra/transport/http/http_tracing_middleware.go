package http

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	context_ "github.com/mkrupp/joynest/internal/infra/context"
)

const TraceIDHeader = "X-Request-ID"

// traceIDPattern limits accepted client trace IDs to something safe to log.
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// TracingMiddleware creates middleware that adds request tracing.
// It uses the X-Request-ID header if present and well formed, otherwise it
// generates a new UUIDv7. The trace ID is added to the request context and
// echoed in the response header.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := getTraceID(r)

		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(context_.WithTraceID(r.Context(), traceID)))
	})
}

func getTraceID(r *http.Request) string {
	if traceID := r.Header.Get(TraceIDHeader); traceIDPattern.MatchString(traceID) {
		return traceID
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
