package middleware

import (
	"net/http"
)

// BodyLimitHandler caps the request body for a single route via
// http.MaxBytesReader. Upload routes get a larger cap than JSON routes.
func BodyLimitHandler(maxBytes int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next(w, r)
	}
}
