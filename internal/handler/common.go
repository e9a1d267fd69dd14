// Package handler provides the HTTP surface for the Sentinel engine.
package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// SessionHeader carries the session id on requests and responses.
const SessionHeader = "X-Session-Id"

// SessionCookie is the cookie the session id is also accepted from.
const SessionCookie = "sentinel_session"

// APIError is the JSON error response format.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]APIError{"error": {Code: code, Message: message}})
}

// clientIP extracts the originating client IP, honoring X-Forwarded-For and
// X-Real-Ip set by a trusted proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sessionID extracts the presented session id from header or cookie.
func sessionID(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
