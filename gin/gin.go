// Package gin opens a graft scope per Gin request.
//
//	r := gin.New()
//	r.Use(graftgin.ScopeMiddleware(c))
//
//	r.POST("/login", graftgin.Handle((*AuthController).Login))
//	r.GET("/users/:id", graftgin.Handle((*UserController).GetByID))
package gin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/junioryono/graft"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// ScopeName is the name given to every request scope. Defaults to
	// "request".
	ScopeName any

	// ErrorHandler is called when the scope cannot be opened or a
	// middleware fails. The default aborts with 500.
	ErrorHandler func(*gin.Context, error)

	// CloseErrorHandler is called when disposing the scope fails.
	CloseErrorHandler func(error)

	// Middlewares run in order once the scope is attached to the request.
	Middlewares []func(*graft.Container, *gin.Context) error
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
func WithErrorHandler(h func(*gin.Context, error)) Option {
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
func WithMiddleware(mw func(*graft.Container, *gin.Context) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func defaultConfig() *Config {
	return &Config{
		ScopeName: "request",
		ErrorHandler: func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for every request and
// disposes it once the rest of the chain has run. The scope is stored in
// the request context.
func ScopeMiddleware(container *graft.Container, opts ...Option) gin.HandlerFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		scope, err := container.OpenScope(graft.WithScopeName(cfg.ScopeName), graft.WithScopeContext(c.Request.Context()))
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}
		defer func() {
			if err := scope.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.Request = c.Request.WithContext(scope.Context())

		for _, mw := range cfg.Middlewares {
			if err := mw(scope, c); err != nil {
				cfg.ErrorHandler(c, err)
				return
			}
		}

		c.Next()
	}
}

// FromContext returns the request scope of c.
func FromContext(c *gin.Context) (graft.Resolver, error) {
	return graft.ResolverFrom(c.Request.Context())
}

// HandlerConfig holds configuration for Handle.
type HandlerConfig struct {
	PanicRecovery bool

	PanicHandler           func(*gin.Context, any)
	ScopeErrorHandler      func(*gin.Context, error)
	ResolutionErrorHandler func(*gin.Context, error)
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
func WithPanicHandler(h func(*gin.Context, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(*gin.Context, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	abort := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
	return &HandlerConfig{
		PanicHandler: func(c *gin.Context, v any) {
			slog.Error("panic in handler", "panic", v, "path", c.FullPath())
			abort(c)
		},
		ScopeErrorHandler: func(c *gin.Context, err error) {
			slog.Error("request has no scope", "error", err, "path", c.FullPath())
			abort(c)
		},
		ResolutionErrorHandler: func(c *gin.Context, err error) {
			slog.Error("failed to resolve controller", "error", err, "path", c.FullPath())
			abort(c)
		},
	}
}

// Handle adapts a controller method to a gin.HandlerFunc. The controller T
// is resolved from the request scope on every call.
func Handle[T any](method func(T, *gin.Context), opts ...HandlerOption) gin.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					cfg.PanicHandler(c, v)
				}
			}()
		}

		scope, err := FromContext(c)
		if err != nil {
			cfg.ScopeErrorHandler(c, err)
			return
		}

		controller, err := graft.Resolve[T](scope)
		if err != nil {
			cfg.ResolutionErrorHandler(c, err)
			return
		}

		method(controller, c)
	}
}
