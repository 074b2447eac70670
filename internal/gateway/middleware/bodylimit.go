package middleware

import "net/http"

// MaxBodySize caps request bodies at maxBytes, covering both JSON
// payloads and multipart uploads. Handlers reading past the cap get an
// *http.MaxBytesError and the client a 413.
func MaxBodySize(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
