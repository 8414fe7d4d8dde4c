// Package fiber opens a graft scope per Fiber request.
//
// Fiber does not use net/http contexts, so the scope is stored in the
// request locals and in the user context.
//
//	app := fiber.New()
//	app.Use(graftfiber.ScopeMiddleware(c))
//
//	app.Post("/login", graftfiber.Handle((*AuthController).Login))
//	app.Get("/users/:id", graftfiber.Handle((*UserController).GetByID))
package fiber

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/junioryono/graft"
)

// scopeKey is the fiber.Ctx.Locals key of the request scope.
const scopeKey = "graft_scope"

// Config holds the configuration for the scope middleware.
type Config struct {
	// ScopeName is the name given to every request scope. Defaults to
	// "request".
	ScopeName any

	// ErrorHandler is called when the scope cannot be opened or a
	// middleware fails. The default responds with 500.
	ErrorHandler func(*fiber.Ctx, error) error

	// CloseErrorHandler is called when disposing the scope fails.
	CloseErrorHandler func(error)

	// Middlewares run in order once the scope is stored.
	Middlewares []func(*graft.Container, *fiber.Ctx) error
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
func WithErrorHandler(h func(*fiber.Ctx, error) error) Option {
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
func WithMiddleware(mw func(*graft.Container, *fiber.Ctx) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func defaultConfig() *Config {
	return &Config{
		ScopeName: "request",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware opens a scope of container for every request and
// disposes it once the rest of the chain has run.
func ScopeMiddleware(container *graft.Container, opts ...Option) fiber.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *fiber.Ctx) error {
		scope, err := container.OpenScope(graft.WithScopeName(cfg.ScopeName), graft.WithScopeContext(c.UserContext()))
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}
		defer func() {
			if err := scope.Close(); err != nil {
				cfg.CloseErrorHandler(err)
			}
		}()

		c.SetUserContext(scope.Context())
		c.Locals(scopeKey, scope)

		for _, mw := range cfg.Middlewares {
			if err := mw(scope, c); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		return c.Next()
	}
}

// FromContext returns the request scope stored by ScopeMiddleware.
func FromContext(c *fiber.Ctx) (*graft.Container, error) {
	scope, ok := c.Locals(scopeKey).(*graft.Container)
	if !ok {
		return nil, graft.ErrResolverNotInContext
	}
	if scope.IsDisposed() {
		return nil, graft.ErrScopeDisposed
	}
	return scope, nil
}

// HandlerConfig holds configuration for Handle.
type HandlerConfig struct {
	PanicRecovery bool

	PanicHandler           func(*fiber.Ctx, any) error
	ScopeErrorHandler      func(*fiber.Ctx, error) error
	ResolutionErrorHandler func(*fiber.Ctx, error) error
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
func WithPanicHandler(h func(*fiber.Ctx, any) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the handler for requests without a scope.
func WithScopeErrorHandler(h func(*fiber.Ctx, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the handler for resolution failures.
func WithResolutionErrorHandler(h func(*fiber.Ctx, error) error) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func defaultHandlerConfig() *HandlerConfig {
	internalError := func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}
	return &HandlerConfig{
		PanicHandler: func(c *fiber.Ctx, v any) error {
			slog.Error("panic in handler", "panic", v, "path", c.Path())
			return internalError(c)
		},
		ScopeErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request has no scope", "error", err, "path", c.Path())
			return internalError(c)
		},
		ResolutionErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("failed to resolve controller", "error", err, "path", c.Path())
			return internalError(c)
		},
	}
}

// Handle adapts a controller method to a fiber.Handler. The controller T
// is resolved from the request scope on every call.
func Handle[T any](method func(T, *fiber.Ctx) error, opts ...HandlerOption) fiber.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *fiber.Ctx) (err error) {
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
