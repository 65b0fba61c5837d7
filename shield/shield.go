// Package shield provides reusable HTTP security middleware for praxis
// services: security headers, body limits, request IDs, and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// DefaultAPIStack returns the standard middleware stack for a praxis API
// service. Ordered: HeadToGet → SecurityHeaders → MaxJSONBody → RequestID.
func DefaultAPIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(256 * 1024),
		RequestID,
	}
}

// HeadToGet converts HEAD requests to GET so that route handlers registered
// with r.Get() respond with 200 instead of 405 (Method Not Allowed).
// Go's net/http automatically strips the body for HEAD responses.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// MaxJSONBody returns middleware that limits the request body size for
// JSON POST/PUT requests. Other content types are passed through.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
