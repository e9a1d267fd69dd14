package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel/internal/behavior"
	"github.com/prn-tf/sentinel/internal/domain"
	"github.com/prn-tf/sentinel/internal/guard"
)

type contextKey string

const sessionContextKey contextKey = "sentinel-session"

// SessionFromContext returns the validated session for the request, if any.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*domain.Session)
	return s, ok
}

// GuardMiddleware validates every request against the session guard. The
// authenticated principal is taken from the X-User-Id and X-Username headers
// stamped by the upstream authentication layer.
func GuardMiddleware(g *guard.Guard, logger zerolog.Logger) func(http.Handler) http.Handler {
	log := logger.With().Str("component", "guard-middleware").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := guard.Request{
				SessionID:      sessionID(r),
				UserID:         r.Header.Get("X-User-Id"),
				Username:       r.Header.Get("X-Username"),
				IPAddress:      clientIP(r),
				UserAgent:      r.UserAgent(),
				AcceptLanguage: r.Header.Get("Accept-Language"),
				AcceptEncoding: r.Header.Get("Accept-Encoding"),
				LoginMethod:    r.Header.Get("X-Login-Method"),
			}

			outcome, err := g.Check(r.Context(), req)
			if err != nil {
				log.Error().Err(err).Msg("session check failed")
				writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
				return
			}

			if !outcome.Allow {
				writeError(w, outcome.StatusCode, outcome.Code, outcome.Message)
				return
			}

			// Propagate the current id so clients pick up rotations.
			w.Header().Set(SessionHeader, outcome.SessionID)
			if outcome.SessionID != req.SessionID {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    outcome.SessionID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteStrictMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, outcome.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response status for activity recording.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RecordMiddleware feeds each completed request into the behavior profiler.
// Must run inside GuardMiddleware so the session is on the context.
func RecordMiddleware(profiler *behavior.Profiler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r)

			session, ok := SessionFromContext(r.Context())
			if !ok {
				return
			}
			profiler.RecordActivity(r.Context(), session.Username, domain.ActivityRecord{
				Endpoint:       r.URL.Path,
				Method:         r.Method,
				Timestamp:      start,
				IPAddress:      clientIP(r),
				UserAgent:      r.UserAgent(),
				SessionID:      session.ID,
				ProcessingTime: time.Since(start),
				StatusCode:     rec.status,
			})
		})
	}
}
