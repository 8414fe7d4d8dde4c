// Package echo opens a graft scope per Echo request.
//
//	e := echo.New()
//	e.Use(graftecho.ScopeMiddleware(c))
//
//	e.POST("/login", graftecho.Handle((*AuthController).Login))
//	e.GET("/users/:id", graftecho.Handle((*UserController).GetByID))
package echo

import (
	"log/slog"
	"net/http"

	"github.com/junioryono/graft"
	"github.com/labstack/echo/v4"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// ScopeName is the name given to every request scope. Defaults to
	// "request".
	ScopeName any

	// ErrorHandler is called when the scope cannot be opened or a
	// middleware fails. The default returns the error to Echo.
	ErrorHandler func(echo.Context, error) error

	// CloseErrorHandler is called when disposing the scope fails.
	CloseErrorHandler func(error)

	// Middlewares run in order once the scope is attached to the request.
	Middlewares []func(*graft.Container, echo.Context) error
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
func WithErrorHandler(h func(echo.Context, error) error) Option {
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

// WithMiddleware adds a function run with every new request scope.
func WithMiddleware(mw func(*graft.Container, echo.Context) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func defaultConfig() *Config {
	return &Config{
		ScopeName: "request",
		ErrorHandler: func(c echo.Context, err error) error {
			return err
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for every request and
// disposes it when the handler returns.
func ScopeMiddleware(container *graft.Container, opts ...Option) echo.MiddlewareFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			scope, err := container.OpenScope(graft.WithScopeName(cfg.ScopeName), graft.WithScopeContext(req.Context()))
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			defer func() {
				if err := scope.Close(); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			c.SetRequest(req.WithContext(scope.Context()))

			for _, mw := range cfg.Middlewares {
				if err := mw(scope, c); err != nil {
					return cfg.ErrorHandler(c, err)
				}
			}

			return next(c)
		}
	}
}

// FromContext returns the request scope of c.
func FromContext(c echo.Context) (graft.Resolver, error) {
	return graft.ResolverFrom(c.Request().Context())
}

// HandlerConfig holds configuration for Handle.
type HandlerConfig struct {
	PanicRecovery bool

	PanicHandler           func(echo.Context, any) error
	ScopeErrorHandler      func(echo.Context, error) error
	ResolutionErrorHandler func(echo.Context, error) error
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
func WithPanicHandler(h func(echo.Context, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(echo.Context, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(echo.Context, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	internalError := echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	return &HandlerConfig{
		PanicHandler: func(c echo.Context, v any) error {
			slog.Error("panic in handler", "panic", v, "path", c.Path())
			return internalError
		},
		ScopeErrorHandler: func(c echo.Context, err error) error {
			slog.Error("request has no scope", "error", err, "path", c.Path())
			return internalError
		},
		ResolutionErrorHandler: func(c echo.Context, err error) error {
			slog.Error("failed to resolve controller", "error", err, "path", c.Path())
			return internalError
		},
	}
}

// Handle adapts a controller method to an echo.HandlerFunc. The controller
// T is resolved from the request scope on every call.
func Handle[T any](method func(T, echo.Context) error, opts ...HandlerOption) echo.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c echo.Context) (err error) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					err = cfg.PanicHandler(c, v)
				}
			}()
		}

		scope, err := FromContext(c)
		if err != nil {
			return cfg.ScopeErrorHandler(c, err)
		}

		controller, err := graft.Resolve[T](scope)
		if err != nil {
			return cfg.ResolutionErrorHandler(c, err)
		}

		return method(controller, c)
	}
}
