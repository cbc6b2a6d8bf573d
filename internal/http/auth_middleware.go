package httpx

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// requireAuth ensures the request carries the configured operator token
// before invoking the handler. Streaming endpoints may pass the token as an
// access_token query parameter because browsers cannot set headers on
// websocket or EventSource connections.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.ensureAuth(w, req) {
			return
		}
		next(w, req)
	}
}

func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) bool {
	expected := r.adminToken
	if expected == "" {
		r.logger.Error("admin API token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "API authentication misconfigured")
		return false
	}
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		token = strings.TrimSpace(req.URL.Query().Get("access_token"))
	}
	if token == "" {
		r.logger.Warn("authorization missing", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("admin token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return false
	}
	return true
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
