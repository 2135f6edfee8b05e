package server

import (
	"net/http"
)

// BasicRouter dispatches on exact request paths and implements [Router].
//
// Unlike [http.ServeMux], "/" matches only the root, so a redirect URI on "/" does not swallow
// requests such as /favicon.ico. Unknown paths get 404 and unsupported methods get 405.
type BasicRouter struct {
	routes      map[string]map[string]http.Handler
	middlewares []Middleware
	notFound    http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		routes:   map[string]map[string]http.Handler{},
		notFound: http.NotFoundHandler(),
	}
}

// Use adds [Middleware] to the router, applied in the order it's added.
// Middleware wraps every request, including 404 and 405 responses.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method on the exact path. GET routes also answer HEAD.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	if path == "" {
		path = "/"
	}
	methods, ok := r.routes[path]
	if !ok {
		methods = map[string]http.Handler{}
		r.routes[path] = methods
	}
	methods[method] = handler
	if method == http.MethodGet {
		if _, ok := methods[http.MethodHead]; !ok {
			methods[http.MethodHead] = handler
		}
	}
}

// Handler registers h as the GET handler of every path in [Handler.Routes].
func (r *BasicRouter) Handler(h Handler) {
	for _, route := range h.Routes() {
		r.Handle(http.MethodGet, route, h)
	}
}

// NotFound replaces the handler for unknown paths.
func (r *BasicRouter) NotFound(h http.Handler) {
	r.notFound = h
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Apply(http.HandlerFunc(r.dispatch)).ServeHTTP(w, req)
}

func (r *BasicRouter) dispatch(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if path == "" {
		path = "/"
	}

	methods, ok := r.routes[path]
	if !ok {
		r.notFound.ServeHTTP(w, req)
		return
	}
	h, ok := methods[req.Method]
	if !ok {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware, the first added outermost.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}
