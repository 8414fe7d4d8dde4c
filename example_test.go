package graft_test

import (
	"context"
	"fmt"
	"log"

	"github.com/junioryono/graft"
)

// Example demonstrates basic service registration and resolution.
func Example() {
	c := graft.New()
	defer c.Close()

	// Register services
	_ = graft.RegisterCtor(c, NewLogger, graft.WithReuse(graft.Singleton))
	_ = graft.RegisterCtor(c, NewDatabase, graft.WithReuse(graft.Scoped))
	_ = graft.RegisterCtor(c, NewUserService, graft.WithReuse(graft.Scoped))

	// Scoped services need a scope
	scope, err := c.OpenScope()
	if err != nil {
		log.Fatal(err)
	}
	defer scope.Close()

	// Resolve and use a service
	userService, err := graft.Resolve[*UserService](scope)
	if err != nil {
		log.Fatal(err)
	}

	user := userService.GetUser(1)
	fmt.Println(user.Name)
	// Output: John Doe
}

// ExampleContainer_OpenScope demonstrates scoped reuse.
func ExampleContainer_OpenScope() {
	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewRequestContext, graft.WithReuse(graft.Scoped))

	scope1, _ := c.OpenScope(graft.WithScopeName("request"))
	defer scope1.Close()
	scope2, _ := c.OpenScope(graft.WithScopeName("request"))
	defer scope2.Close()

	a := graft.MustResolve[*RequestContext](scope1)
	b := graft.MustResolve[*RequestContext](scope1)
	other := graft.MustResolve[*RequestContext](scope2)

	fmt.Println("same scope, same instance:", a == b)
	fmt.Println("other scope, same instance:", a == other)
	// Output:
	// same scope, same instance: true
	// other scope, same instance: false
}

// ExampleWithServiceKey demonstrates keyed registrations.
func ExampleWithServiceKey() {
	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewRedisCache, graft.WithServiceKey("redis"))
	_ = graft.RegisterCtor(c, NewMemoryCache, graft.WithServiceKey("memory"))

	redis, _ := graft.Resolve[Cache](c, graft.WithKey("redis"))
	memory, _ := graft.Resolve[Cache](c, graft.WithKey("memory"))

	fmt.Println(redis.Name())
	fmt.Println(memory.Name())
	// Output:
	// Redis Cache
	// Memory Cache
}

// ExampleResolveMany demonstrates resolving every registration of a service.
func ExampleResolveMany() {
	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewRedisCache, graft.WithServiceKey("redis"))
	_ = graft.RegisterCtor(c, NewMemoryCache)

	caches, _ := graft.ResolveMany[Cache](c)
	for _, cache := range caches {
		fmt.Println(cache.Name())
	}
	// Output:
	// Redis Cache
	// Memory Cache
}

// ExampleNewModule demonstrates grouping registrations.
func ExampleNewModule() {
	dataModule := graft.NewModule("data",
		graft.Provide(graft.TypeOf[*Database](), graft.Ctor(NewDatabase), graft.WithReuse(graft.Singleton)),
		graft.Provide(graft.TypeOf[*UserRepository](), graft.Ctor(NewUserRepository)),
	)

	appModule := graft.NewModule("app",
		graft.Provide(graft.TypeOf[*Logger](), graft.Ctor(NewLogger), graft.WithReuse(graft.Singleton)),
		dataModule,
	)

	c := graft.New()
	defer c.Close()

	if err := c.Apply(appModule); err != nil {
		log.Fatal(err)
	}

	repo := graft.MustResolve[*UserRepository](c)
	fmt.Println(repo.db.name)
	// Output: main
}

// Example_parameterObject demonstrates In structs with tagged fields.
func Example_parameterObject() {
	type ServiceParams struct {
		graft.In

		Logger  *Logger
		Cache   Cache `key:"redis"`
		Metrics *Metrics `optional:"true"`
	}

	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewLogger)
	_ = graft.RegisterCtor(c, NewRedisCache, graft.WithServiceKey("redis"))
	_ = graft.RegisterCtor(c, func(p ServiceParams) string {
		return fmt.Sprintf("%s, metrics: %v", p.Cache.Name(), p.Metrics != nil)
	})

	fmt.Println(graft.MustResolve[string](c))
	// Output: Redis Cache, metrics: false
}

// Example_decorator demonstrates decorating a service.
func Example_decorator() {
	c := graft.New()
	defer c.Close()

	_ = graft.Register[Service](c, graft.Ctor(func() Service { return &BaseService{} }))
	_ = graft.RegisterDecorator[Service](c, func(inner Service) Service {
		return &LoggingService{inner: inner}
	}, graft.WithOrder(1))
	_ = graft.RegisterDecorator[Service](c, func(inner Service, m *Metrics) Service {
		return &MetricsService{inner: inner, metrics: m}
	}, graft.WithOrder(2))
	_ = graft.RegisterCtor(c, NewMetrics, graft.WithReuse(graft.Singleton))

	svc := graft.MustResolve[Service](c)
	fmt.Println(svc.Process("order"))
	// Output: metrics(logged(order))
}

// Example_lazy demonstrates deferring a dependency.
func Example_lazy() {
	c := graft.New()
	defer c.Close()

	created := false
	_ = graft.RegisterCtor(c, func() *Database {
		created = true
		return &Database{name: "lazy"}
	})
	_ = graft.RegisterCtor(c, func(db graft.Lazy[*Database]) *OrderRepository {
		return &OrderRepository{db: db}
	})

	repo := graft.MustResolve[*OrderRepository](c)
	fmt.Println("created before use:", created)

	db, _ := repo.db.Value()
	fmt.Println("created after use:", created, db.name)
	// Output:
	// created before use: false
	// created after use: true lazy
}

// Example_runtimeArguments demonstrates Func1 factories.
func Example_runtimeArguments() {
	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewLogger, graft.WithReuse(graft.Singleton))
	_ = graft.RegisterCtor(c, func(name string, logger *Logger) *User {
		return &User{Name: name}
	})

	newUser := graft.MustResolve[graft.Func1[string, *User]](c)
	user, _ := newUser("Ada")
	fmt.Println(user.Name)
	// Output: Ada
}

// Example_contravariance demonstrates variant generic collections.
func Example_contravariance() {
	move := graft.TypeOf[Move]()
	moveAbroad := graft.TypeOf[MoveAbroad]()
	handler := graft.Generic("EventHandler", graft.InParam("E"))

	c := graft.New()
	defer c.Close()

	_ = c.Register(handler.Of(move), graft.Instance("audit every move"))
	_ = c.Register(handler.Of(moveAbroad), graft.Instance("notify customs"))

	handlers, _ := c.Resolve(graft.SliceOf(handler.Of(moveAbroad)))
	for _, h := range handlers.([]any) {
		fmt.Println(h)
	}
	// Output:
	// audit every move
	// notify customs
}

// Example_webApplication demonstrates per-request scopes carried in a context.
func Example_webApplication() {
	c := graft.New()
	defer c.Close()

	_ = graft.RegisterCtor(c, NewLogger, graft.WithReuse(graft.Singleton))
	_ = graft.RegisterCtor(c, NewRequestContext, graft.WithReuse(graft.ScopedTo("request")))

	handle := func(ctx context.Context) {
		r, err := graft.ResolverFrom(ctx)
		if err != nil {
			log.Fatal(err)
		}
		req := graft.MustResolve[*RequestContext](r)
		fmt.Println("handling", req.RequestID)
	}

	for _, id := range []string{"req-1", "req-2"} {
		scope, _ := c.OpenScope(graft.WithScopeName("request"))
		graft.MustResolve[*RequestContext](scope).RequestID = id
		handle(scope.Context())
		_ = scope.Close()
	}
	// Output:
	// handling req-1
	// handling req-2
}

// Example types

type Logger struct {
	prefix string
}

func NewLogger() *Logger {
	return &Logger{prefix: "[APP] "}
}

func (l *Logger) Log(msg string) {
	fmt.Println(l.prefix + msg)
}

type Database struct {
	name string
}

func NewDatabase() *Database {
	return &Database{name: "main"}
}

type User struct {
	ID   int
	Name string
}

type UserService struct {
	db     *Database
	logger *Logger
}

func NewUserService(db *Database, logger *Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

func (s *UserService) GetUser(id int) *User {
	return &User{ID: id, Name: "John Doe"}
}

type RequestContext struct {
	RequestID string
}

func NewRequestContext() *RequestContext {
	return &RequestContext{}
}

type Cache interface {
	Name() string
	Get(key string) (string, bool)
	Set(key string, value string)
}

type RedisCache struct{}

func NewRedisCache() Cache {
	return &RedisCache{}
}

func (c *RedisCache) Name() string                  { return "Redis Cache" }
func (c *RedisCache) Get(key string) (string, bool) { return "", false }
func (c *RedisCache) Set(key string, value string)  {}

type MemoryCache struct{}

func NewMemoryCache() Cache {
	return &MemoryCache{}
}

func (c *MemoryCache) Name() string                  { return "Memory Cache" }
func (c *MemoryCache) Get(key string) (string, bool) { return "", false }
func (c *MemoryCache) Set(key string, value string)  {}

type UserRepository struct {
	db *Database
}

func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{db: db}
}

type OrderRepository struct {
	db graft.Lazy[*Database]
}

type Metrics struct{}

func NewMetrics() *Metrics {
	return &Metrics{}
}

type Service interface {
	Process(input string) string
}

type BaseService struct{}

func (s *BaseService) Process(input string) string {
	return input
}

type LoggingService struct {
	inner Service
}

func (s *LoggingService) Process(input string) string {
	return "logged(" + s.inner.Process(input) + ")"
}

type MetricsService struct {
	inner   Service
	metrics *Metrics
}

func (s *MetricsService) Process(input string) string {
	return "metrics(" + s.inner.Process(input) + ")"
}
