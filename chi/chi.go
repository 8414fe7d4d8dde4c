// Package chi wires graft request scopes into Chi routers.
//
// Chi uses plain net/http handlers, so the middleware and handler wrapper
// come from the graft http package; this package adds router helpers.
//
//	r := chi.NewRouter()
//	graftchi.Use(r, c)
//
//	r.Post("/login", graftchi.Handle((*AuthController).Login))
//	r.Get("/users/{id}", graftchi.Handle((*UserController).GetByID))
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/junioryono/graft"
	grafthttp "github.com/junioryono/graft/http"
)

type (
	Option        = grafthttp.Option
	HandlerOption = grafthttp.HandlerOption
)

var (
	WithScopeName              = grafthttp.WithScopeName
	WithErrorHandler           = grafthttp.WithErrorHandler
	WithCloseErrorHandler      = grafthttp.WithCloseErrorHandler
	WithMiddleware             = grafthttp.WithMiddleware
	WithPanicRecovery          = grafthttp.WithPanicRecovery
	WithPanicHandler           = grafthttp.WithPanicHandler
	WithScopeErrorHandler      = grafthttp.WithScopeErrorHandler
	WithResolutionErrorHandler = grafthttp.WithResolutionErrorHandler
)

// ScopeMiddleware opens a scope of c for every request.
func ScopeMiddleware(c *graft.Container, opts ...Option) func(http.Handler) http.Handler {
	return grafthttp.ScopeMiddleware(c, opts...)
}

// Use installs ScopeMiddleware on r.
func Use(r chi.Router, c *graft.Container, opts ...Option) {
	r.Use(ScopeMiddleware(c, opts...))
}

// Group returns a sub-router whose requests get their own scope of c.
// Routes registered on r outside the group are not scoped.
func Group(r chi.Router, c *graft.Container, fn func(chi.Router), opts ...Option) chi.Router {
	return r.Group(func(g chi.Router) {
		g.Use(ScopeMiddleware(c, opts...))
		fn(g)
	})
}

// Handle resolves the controller T from the request scope on every call.
func Handle[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	return grafthttp.Handle(method, opts...)
}

// URLParam returns the named route parameter of r.
func URLParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
