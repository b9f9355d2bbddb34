package server

import (
	"net/http"
	"strings"
)

// callbackRouter dispatches the callback server's routes. Each route accepts a single
// method: other methods get 405 with an Allow header and unknown paths get 404.
//
// Middleware wraps the whole mux, so rejected requests are logged too.
type callbackRouter struct {
	mux     *http.ServeMux
	handler http.Handler
}

// newCallbackRouter creates a router whose requests pass through middleware in the order given.
func newCallbackRouter(middleware ...Middleware) *callbackRouter {
	mux := http.NewServeMux()
	return &callbackRouter{mux: mux, handler: chain(mux, middleware)}
}

// Get registers handler for GET requests to path. Browsers follow the OAuth redirect with GET.
func (r *callbackRouter) Get(path string, handler http.Handler) {
	r.handle(http.MethodGet, path, handler)
}

func (r *callbackRouter) handle(method, path string, handler http.Handler) {
	r.mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.EqualFold(req.Method, method) {
			w.Header().Set("Allow", method)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, req)
	}))
}

func (r *callbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// chain wraps handler so that middleware[0] runs first.
func chain(handler http.Handler, middleware []Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
