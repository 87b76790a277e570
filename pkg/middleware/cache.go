package middleware

import "net/http"

// NoStore marks every response as uncacheable. Sync results and run history
// change on every call and must not be served from an intermediate cache.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
