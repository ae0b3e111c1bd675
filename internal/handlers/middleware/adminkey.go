package middleware

import (
	"crypto/subtle"
	"net/http"
)

const adminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards staff endpoints with a shared key. An empty
// configured key locks the endpoints entirely rather than opening them.
func AdminKeyMiddleware(key string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(adminKeyHeader)

			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
