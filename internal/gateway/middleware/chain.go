package middleware

import "net/http"

// Middleware wraps an http.Handler with one cross-cutting concern.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware around handler. Listing order is request
// order: Chain(h, a, b) runs a, then b, then h.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	wrapped := handler
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return wrapped
}
