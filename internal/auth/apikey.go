// Package auth guards write endpoints with a shared API key.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/ihong9059/raspberry-weather-monitor/internal/utils"
)

const HeaderAPIKey = "X-API-Key"

// RequireAPIKey rejects requests without the X-API-Key header (401) or with a
// different key (403). Matching requests reach next unchanged.
func RequireAPIKey(key string, next http.Handler) http.Handler {
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(HeaderAPIKey)
		if got == "" {
			utils.WriteError(w, http.StatusUnauthorized, "API key required (X-API-Key header)")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			utils.WriteError(w, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
