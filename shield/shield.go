// Package shield provides the HTTP middleware applied to the admin surface:
// security headers, HEAD handling and request body limits.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.AdminStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// AdminStack returns the middleware stack for the admin surface, ordered
// HeadToGet → SecurityHeaders → MaxBody. The admin surface serves JSON
// only, so the CSP forbids every resource type.
func AdminStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(1 << 20),
	}
}
