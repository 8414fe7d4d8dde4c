// Package http opens a graft scope per net/http request.
//
// The middleware stores the request scope in the request context, where
// graft.ResolverFrom finds it. Services registered with
// graft.ScopedTo("request") live exactly as long as the request.
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /users/{id}", grafthttp.Handle(UserController.GetByID))
//	srv := &http.Server{Handler: grafthttp.ScopeMiddleware(c)(mux)}
package http

import (
	"log/slog"
	"net/http"

	"github.com/junioryono/graft"
)

// DefaultScopeName names request scopes unless WithScopeName says otherwise.
const DefaultScopeName = "request"

// Config holds the configuration for the scope middleware.
type Config struct {
	// ScopeName is the name given to every request scope.
	ScopeName any

	// ErrorHandler is called when the scope cannot be opened or a
	// middleware fails. Defaults to 500 Internal Server Error.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// CloseErrorHandler is called when disposing the scope fails.
	// Defaults to logging with slog.
	CloseErrorHandler func(error)

	// Middlewares run in order once the scope is attached to the request.
	Middlewares []func(*graft.Container, *http.Request) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithScopeName sets the name of the request scopes.
func WithScopeName(name any) Option {
	return func(c *Config) {
		c.ScopeName = name
	}
}

// WithErrorHandler sets the handler for scope and middleware failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the handler for disposal failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithMiddleware adds a function run with every new request scope, e.g. to
// register request data as an instance.
func WithMiddleware(mw func(*graft.Container, *http.Request) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

// NewConfig applies opts to the default configuration.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		ScopeName: DefaultScopeName,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// OpenRequestScope opens the scope for r and runs the configured
// middlewares. On success the returned request carries the scope.
func (cfg *Config) OpenRequestScope(c *graft.Container, r *http.Request) (*graft.Container, *http.Request, error) {
	scope, err := c.OpenScope(graft.WithScopeName(cfg.ScopeName), graft.WithScopeContext(r.Context()))
	if err != nil {
		return nil, r, err
	}

	r = r.WithContext(scope.Context())
	for _, mw := range cfg.Middlewares {
		if err := mw(scope, r); err != nil {
			cfg.CloseScope(scope)
			return nil, r, err
		}
	}
	return scope, r, nil
}

// CloseScope disposes scope, reporting failures to CloseErrorHandler.
func (cfg *Config) CloseScope(scope *graft.Container) {
	if err := scope.Close(); err != nil {
		cfg.CloseErrorHandler(err)
	}
}

// ScopeMiddleware opens a scope of c for every request and disposes it
// when the handler returns.
func ScopeMiddleware(c *graft.Container, opts ...Option) func(http.Handler) http.Handler {
	cfg := NewConfig(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, r, err := cfg.OpenRequestScope(c, r)
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}
			defer cfg.CloseScope(scope)

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerConfig holds configuration for Handle.
type HandlerConfig struct {
	PanicRecovery bool

	// PanicHandler is called with the recovered value when PanicRecovery
	// is enabled.
	PanicHandler func(http.ResponseWriter, *http.Request, any)

	// ScopeErrorHandler is called when the request carries no scope.
	ScopeErrorHandler func(http.ResponseWriter, *http.Request, error)

	// ResolutionErrorHandler is called when the controller cannot be
	// resolved.
	ResolutionErrorHandler func(http.ResponseWriter, *http.Request, error)
}

// HandlerOption configures Handle.
type HandlerOption func(*HandlerConfig)

// WithPanicRecovery enables or disables panic recovery.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for recovered panics.
func WithPanicHandler(h func(http.ResponseWriter, *http.Request, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

// NewHandlerConfig applies opts to the default handler configuration.
func NewHandlerConfig(opts ...HandlerOption) *HandlerConfig {
	internalError := func(w http.ResponseWriter) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	cfg := &HandlerConfig{
		PanicHandler: func(w http.ResponseWriter, r *http.Request, v any) {
			slog.Error("panic in handler", "panic", v, "path", r.URL.Path)
			internalError(w)
		},
		ScopeErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("request has no scope", "error", err, "path", r.URL.Path)
			internalError(w)
		},
		ResolutionErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("failed to resolve controller", "error", err, "path", r.URL.Path)
			internalError(w)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// Handle adapts a controller method to an http.HandlerFunc. The controller
// T is resolved from the request scope on every call.
//
//	mux.HandleFunc("POST /login", grafthttp.Handle((*AuthController).Login))
func Handle[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	cfg := NewHandlerConfig(opts...)

	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					cfg.PanicHandler(w, r, v)
				}
			}()
		}

		scope, err := graft.ResolverFrom(r.Context())
		if err != nil {
			cfg.ScopeErrorHandler(w, r, err)
			return
		}

		controller, err := graft.Resolve[T](scope)
		if err != nil {
			cfg.ResolutionErrorHandler(w, r, err)
			return
		}

		method(controller, w, r)
	}
}
