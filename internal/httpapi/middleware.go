package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"statusbar/internal/metrics"
	logx "statusbar/pkg/logx"
)

// newLoggingMiddleware logs one line per request and feeds request metrics
// when m is set.
func newLoggingMiddleware(log logx.Logger, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				took := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				if m != nil {
					m.RecordHTTPRequest(r.Method, routePattern(r), status, took)
				}
				log.Debug("HTTP request",
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.String("remote_addr", r.RemoteAddr),
					logx.Int("status", status),
					logx.Int("bytes", ww.BytesWritten()),
					logx.Duration("duration", took),
					logx.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern keeps metric label cardinality bounded.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// newAuthMiddleware accepts "Authorization: Bearer <token>" or ?token=.
// An empty token disables the check.
func newAuthMiddleware(token string) func(next http.Handler) http.Handler {
	tok := []byte(strings.TrimSpace(token))
	match := func(got string) bool {
		return subtle.ConstantTimeCompare([]byte(got), tok) == 1
	}
	return func(next http.Handler) http.Handler {
		if len(tok) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if match(got) {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && match(strings.TrimSpace(strings.TrimPrefix(ah, p))) {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
