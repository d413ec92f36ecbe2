package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dirlisting/importer/internal/config"
	"github.com/dirlisting/importer/internal/logging"
)

// APIKeyHeader carries the operator key for the import API.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth guards the import API. Keys are read from X-API-Key or from an
// "Authorization: Bearer" header. With RequireAPIKey off every request passes;
// with it on and no keys configured every request is refused.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := presentedKey(r)
			if key == "" {
				logging.FromContext(r.Context()).Warn("import api: missing key",
					"path", r.URL.Path,
					"method", r.Method,
				)
				denyRequest(w, http.StatusUnauthorized, "AUTH001", "missing API key")
				return
			}

			if !matchesAnyKey(key, cfg.APIKeys) {
				logging.FromContext(r.Context()).Warn("import api: rejected key",
					"path", r.URL.Path,
					"method", r.Method,
				)
				denyRequest(w, http.StatusForbidden, "AUTH002", "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	const bearer = "bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
		return strings.TrimSpace(auth[len(bearer):])
	}
	return ""
}

// matchesAnyKey compares against every configured key in constant time so the
// response time does not reveal which key, if any, matched.
func matchesAnyKey(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}

func denyRequest(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"message": "The import API requires a valid key",
		"action":  "Send the key in the " + APIKeyHeader + " header",
		"code":    code,
	})
}
