package graft_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/junioryono/graft"
	"github.com/junioryono/graft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Reuse(t *testing.T) {
	t.Run("singleton returns the same instance", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTService).Build()

		first := testutil.AssertServiceResolvable[*TService](t, c)
		second := testutil.AssertServiceResolvable[*TService](t, c)
		testutil.AssertSameInstance(t, first, second)
	})

	t.Run("transient returns a new instance", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTService).Build()

		first := testutil.AssertServiceResolvable[*TService](t, c)
		second := testutil.AssertServiceResolvable[*TService](t, c)
		testutil.AssertDifferentInstances(t, first, second)
	})

	t.Run("default reuse comes from rules", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.WithDefaultReuse(graft.Singleton)).Build()
		require.NoError(t, graft.RegisterCtor(c, NewTService))

		first := testutil.AssertServiceResolvable[*TService](t, c)
		second := testutil.AssertServiceResolvable[*TService](t, c)
		testutil.AssertSameInstance(t, first, second)
	})

	t.Run("singleton is created once under concurrency", func(t *testing.T) {
		t.Parallel()

		counter := &TCounter{}
		c := testutil.NewContainerBuilder(t).WithSingleton(counter.NewTCounted).Build()

		const goroutines = 64
		results := make([]*TCounted, goroutines)
		var wg sync.WaitGroup
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := graft.Resolve[*TCounted](c)
				assert.NoError(t, err)
				results[i] = v
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), counter.Calls())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})
}

func TestResolve_Dependencies(t *testing.T) {
	t.Run("constructor parameters are resolved", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).
			WithSingleton(NewTService).
			WithTransient(NewTDependency).
			WithTransient(NewTServiceWithDeps).
			Build()

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, c)
		assert.Equal(t, "svc", svc.Svc.ID)
		assert.Equal(t, "dep", svc.Dep.Name)

		singleton := testutil.AssertServiceResolvable[*TService](t, c)
		assert.Same(t, singleton, svc.Svc)
	})

	t.Run("parameter objects honour key and optional tags", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[testutil.TestLogger](c, graft.Ctor(testutil.NewTestLogger), graft.WithReuse(graft.Singleton)))
		require.NoError(t, graft.Register[testutil.TestDatabase](c, graft.Ctor(func() testutil.TestDatabase {
			return testutil.NewTestDatabaseNamed("primary")
		}), graft.WithServiceKey("primary"), graft.WithReuse(graft.Singleton)))
		require.NoError(t, graft.RegisterCtor(c, testutil.NewTestServiceFromParams))

		svc := testutil.AssertServiceResolvable[*testutil.TestServiceWithDeps](t, c)
		assert.Equal(t, "primary: SELECT 1", svc.Database.Query("SELECT 1"))
		assert.Nil(t, svc.Cache)

		svc.Logger.Log("ready")
		logger := testutil.AssertServiceResolvable[testutil.TestLogger](t, c)
		assert.Equal(t, []string{"ready"}, logger.Logs(), "logger is a singleton")
	})

	t.Run("constructor errors are returned", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.RegisterCtor(c, func() (*TService, error) {
			return nil, testutil.ErrConstructor
		}))

		_, err := graft.Resolve[*TService](c)
		assert.ErrorIs(t, err, testutil.ErrConstructor)
	})

	t.Run("resolver is injected", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTService).Build()
		require.NoError(t, graft.RegisterCtor(c, func(r graft.Resolver) *TServiceWithDeps {
			svc := graft.MustResolve[*TService](r)
			return &TServiceWithDeps{Svc: svc}
		}))

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, c)
		assert.Equal(t, "svc", svc.Svc.ID)
	})

	t.Run("delegate receives the resolving scope", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithScoped(NewTDependency).Build()
		require.NoError(t, graft.RegisterDelegate(c, func(r graft.Resolver) (*TServiceWithDeps, error) {
			dep, err := graft.Resolve[*TDependency](r)
			if err != nil {
				return nil, err
			}
			return &TServiceWithDeps{Dep: dep}, nil
		}))

		scope, err := c.OpenScope()
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, scope)
		dep := testutil.AssertServiceResolvable[*TDependency](t, scope)
		assert.Same(t, dep, svc.Dep)
	})

	t.Run("method implementation calls the receiver", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTDependency).Build()
		err := graft.Register[*Greeter](c, graft.Method(graft.TypeOf[*TDependency](), func(d *TDependency) *Greeter {
			return &Greeter{Name: "from " + d.Name, Dep: d}
		}))
		require.NoError(t, err)

		g := testutil.AssertServiceResolvable[*Greeter](t, c)
		assert.Equal(t, "from dep", g.Name)
	})

	t.Run("forward resolves another registration", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[Plugin](c, graft.Ctor(pluginCtor("auth")), graft.WithServiceKey("auth"), graft.WithReuse(graft.Singleton)))
		require.NoError(t, graft.Register[Plugin](c, graft.Forward(graft.TypeOf[Plugin](), "auth")))

		def := testutil.AssertServiceResolvable[Plugin](t, c)
		keyed := testutil.AssertKeyedServiceResolvable[Plugin](t, c, "auth")
		assert.Equal(t, "auth", def.Name())
		assert.Equal(t, keyed, def)
	})
}

func TestResolve_Keys(t *testing.T) {
	t.Parallel()

	c := testutil.NewContainerBuilder(t).Build()
	for _, key := range []string{"a", "b"} {
		testutil.BuildFixture(t, c, testutil.CommonFixtures.KeyedService(key))
	}

	a := testutil.AssertKeyedServiceResolvable[*testutil.TestService](t, c, "a")
	b := testutil.AssertKeyedServiceResolvable[*testutil.TestService](t, c, "b")
	assert.NotEqual(t, a.ID, b.ID)

	testutil.AssertServiceNotFound[*testutil.TestService](t, c)
	testutil.AssertServiceNotFound[*testutil.TestService](t, c, graft.WithKey("c"))

	assert.True(t, c.IsRegistered(graft.TypeOf[*testutil.TestService](), graft.WithKey("a")))
	assert.False(t, c.IsRegistered(graft.TypeOf[*testutil.TestService]()))
}

func TestResolve_NotFound(t *testing.T) {
	t.Run("unknown service", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		_, err := graft.Resolve[*TService](c)
		require.Error(t, err)
		assert.ErrorIs(t, err, graft.ErrUnknownService)
		assert.True(t, graft.IsNotFound(err))
	})

	t.Run("missing dependency names the chain", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTServiceWithDeps).WithTransient(NewTService).Build()
		_, err := graft.Resolve[*TServiceWithDeps](c)

		var gerr *graft.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, graft.UnableToResolveUnknownService, gerr.Code)
		assert.Equal(t, graft.TypeOf[*TDependency](), gerr.ServiceType)
		assert.Contains(t, gerr.Chain, "TServiceWithDeps")
		assert.Contains(t, gerr.Chain, "TDependency")
	})

	t.Run("return default instead of failing", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		v, err := graft.Resolve[*TService](c, graft.IfUnresolvedReturnDefault())
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("return default does not hide other failures", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTCircularA).WithTransient(NewTCircularB).Build()
		_, err := graft.Resolve[*TCircularA](c, graft.IfUnresolvedReturnDefault())
		testutil.AssertCircularDependency(t, err)
	})

	t.Run("unknown service resolver supplies an implementation", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.WithUnknownServiceResolvers(func(r *graft.Request) graft.Implementation {
			if r.ServiceType() == graft.TypeOf[*TService]() {
				return graft.Ctor(NewTService)
			}
			return nil
		})).Build()

		svc := testutil.AssertServiceResolvable[*TService](t, c)
		assert.Equal(t, "svc", svc.ID)
		testutil.AssertServiceNotFound[*TDependency](t, c)
	})

	t.Run("fallback container", func(t *testing.T) {
		t.Parallel()

		parent := testutil.NewContainerBuilder(t).WithSingleton(NewTDependency).Build()
		c := testutil.NewContainerBuilder(t, graft.WithFallbacks(parent)).WithTransient(NewTServiceWithDeps).WithTransient(NewTService).Build()

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, c)
		dep := testutil.AssertServiceResolvable[*TDependency](t, parent)
		assert.Same(t, dep, svc.Dep)
	})
}

func TestResolve_DefaultSelection(t *testing.T) {
	t.Run("several defaults fail", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[Plugin](c, graft.Ctor(pluginCtor("a"))))
		require.NoError(t, graft.Register[Plugin](c, graft.Ctor(pluginCtor("b"))))

		_, err := graft.Resolve[Plugin](c)
		assert.ErrorIs(t, err, graft.ErrExpectedSingleDefault)
	})

	t.Run("factory selector picks one", func(t *testing.T) {
		t.Parallel()

		last := func(_ *graft.Request, fs []*graft.Factory) *graft.Factory { return fs[len(fs)-1] }
		c := testutil.NewContainerBuilder(t, graft.WithFactorySelector(last)).Build()
		require.NoError(t, graft.Register[Plugin](c, graft.Ctor(pluginCtor("a"))))
		require.NoError(t, graft.Register[Plugin](c, graft.Ctor(pluginCtor("b"))))

		p := testutil.AssertServiceResolvable[Plugin](t, c)
		assert.Equal(t, "b", p.Name())
	})

	t.Run("conditions filter registrations", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		forGreeter := func(r *graft.Request) bool {
			return r.Parent() != nil && r.Parent().ServiceType() == graft.TypeOf[*Greeter]()
		}
		require.NoError(t, graft.Register[*TDependency](c, graft.Ctor(func() *TDependency { return &TDependency{Name: "greeter"} }), graft.WithCondition(forGreeter)))
		require.NoError(t, graft.Register[*TDependency](c, graft.Ctor(NewTDependency), graft.WithCondition(func(r *graft.Request) bool { return !forGreeter(r) })))
		require.NoError(t, graft.Register[*Greeter](c, graft.Ctor(func(d *TDependency) *Greeter { return &Greeter{Dep: d} })))

		g := testutil.AssertServiceResolvable[*Greeter](t, c)
		assert.Equal(t, "greeter", g.Dep.Name)

		d := testutil.AssertServiceResolvable[*TDependency](t, c)
		assert.Equal(t, "dep", d.Name)
	})
}

func TestResolve_Constructors(t *testing.T) {
	newWithDep := func(d *TDependency) *Greeter { return &Greeter{Name: "with dep", Dep: d} }
	newPlain := func() *Greeter { return &Greeter{Name: "plain"} }

	t.Run("several constructors need a selector", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[*Greeter](c, graft.Ctor(newWithDep, newPlain)))

		_, err := graft.Resolve[*Greeter](c)
		testutil.AssertErrorCode(t, err, graft.UnableToSelectConstructor)
	})

	t.Run("most resolvable prefers more parameters", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.WithConstructorSelector(graft.SelectMostResolvableConstructor)).Build()
		require.NoError(t, graft.Register[*Greeter](c, graft.Ctor(newPlain, newWithDep)))

		g := testutil.AssertServiceResolvable[*Greeter](t, c)
		assert.Equal(t, "plain", g.Name)

		require.NoError(t, graft.RegisterCtor(c, NewTDependency))
		g = testutil.AssertServiceResolvable[*Greeter](t, c)
		assert.Equal(t, "with dep", g.Name)
	})

	t.Run("select by index", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[*Greeter](c, graft.Ctor(newWithDep, newPlain).Select(graft.SelectConstructorAt(1))))

		g := testutil.AssertServiceResolvable[*Greeter](t, c)
		assert.Equal(t, "plain", g.Name)
	})
}

func TestResolve_Cycles(t *testing.T) {
	t.Run("direct cycle fails", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTCircularA).WithTransient(NewTCircularB).Build()
		_, err := graft.Resolve[*TCircularA](c)
		testutil.AssertCircularDependency(t, err)
	})

	t.Run("lazy breaks the cycle", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTLazyA).WithTransient(NewTLazyB).Build()

		a := testutil.AssertServiceResolvable[*TLazyA](t, c)
		again, err := a.B.A.Value()
		require.NoError(t, err)
		assert.Same(t, a, again)
	})

	t.Run("func breaks the cycle", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTFuncA).WithTransient(NewTFuncB).Build()

		a := testutil.AssertServiceResolvable[*TFuncA](t, c)
		other, err := a.B.A()
		require.NoError(t, err)
		assert.NotSame(t, a, other)
	})

	t.Run("calling the deferred service during creation fails", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTFuncA).Build()
		require.NoError(t, graft.RegisterCtor(c, func(a graft.Func[*TFuncA]) (*TFuncB, error) {
			if _, err := a(); err != nil {
				return nil, err
			}
			return &TFuncB{A: a}, nil
		}))

		_, err := graft.Resolve[*TFuncA](c)
		testutil.AssertCircularDependency(t, err)
	})
}

func TestResolve_Lifespan(t *testing.T) {
	t.Run("singleton cannot capture scoped", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithScoped(NewTDependency).WithTransient(NewTService).Build()
		require.NoError(t, graft.RegisterCtor(c, NewTServiceWithDeps, graft.WithReuse(graft.Singleton)))

		scope, err := c.OpenScope()
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		_, err = graft.Resolve[*TServiceWithDeps](scope)
		require.ErrorIs(t, err, graft.ErrShorterReuseLifespan)
		assert.Contains(t, err.Error(), "To resolve this")
	})

	t.Run("func defers the scoped dependency", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithScoped(NewTDependency).Build()
		require.NoError(t, graft.RegisterCtor(c, func(f graft.Func[*TDependency]) *Greeter {
			return &Greeter{Name: "lazy"}
		}, graft.WithReuse(graft.Singleton)))

		scope, err := c.OpenScope()
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		testutil.AssertServiceResolvable[*Greeter](t, scope)
	})

	t.Run("check can be disabled", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.WithoutLifespanCheck()).WithTransient(NewTService).Build()
		require.NoError(t, graft.RegisterCtor(c, NewTDependency, graft.WithReuse(graft.ScopedOrSingleton)))
		require.NoError(t, graft.RegisterCtor(c, NewTServiceWithDeps, graft.WithReuse(graft.Singleton)))

		scope, err := c.OpenScope()
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, scope.Close()) })

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, scope)
		scoped := testutil.AssertServiceResolvable[*TDependency](t, scope)
		assert.NotSame(t, scoped, svc.Dep, "singleton captured the root instance")
	})
}

func TestResolve_RuntimeArgs(t *testing.T) {
	t.Run("args satisfy dependencies", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewGreeter).WithSingleton(NewTDependency).Build()

		g, err := graft.Resolve[*Greeter](c, graft.WithArgs("ada"))
		require.NoError(t, err)
		assert.Equal(t, "ada", g.Name)
		assert.Equal(t, "dep", g.Dep.Name)
	})

	t.Run("func1 passes its argument", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewGreeter).WithSingleton(NewTDependency).Build()

		factory := testutil.AssertServiceResolvable[graft.Func1[string, *Greeter]](t, c)
		for _, name := range []string{"ada", "grace"} {
			g, err := factory(name)
			require.NoError(t, err)
			assert.Equal(t, name, g.Name)
		}
	})

	t.Run("nil arguments are rejected", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewGreeter).Build()
		_, err := c.Resolve(graft.TypeOf[*Greeter](), graft.WithArgs(nil))
		testutil.AssertErrorCode(t, err, graft.InvalidRuntimeArguments)
	})
}

func TestResolve_RequiredType(t *testing.T) {
	t.Run("resolves the required implementation as the service", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, graft.Register[namedPlugin](c, graft.Instance(namedPlugin("concrete"))))

		p, err := graft.Resolve[Plugin](c, graft.WithRequiredType(graft.TypeOf[namedPlugin]()))
		require.NoError(t, err)
		assert.Equal(t, "concrete", p.Name())
	})

	t.Run("rejects unrelated required types", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithTransient(NewTService).Build()
		_, err := graft.Resolve[Plugin](c, graft.WithRequiredType(graft.TypeOf[*TService]()))
		testutil.AssertErrorCode(t, err, graft.ServiceIsNotAssignableFromRequiredServiceType)
	})
}

func TestResolve_Hooks(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var resolved, failed []*graft.Type
	c := testutil.NewContainerBuilder(t,
		graft.WithOnResolved(func(st *graft.Type, _ any, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			resolved = append(resolved, st)
		}),
		graft.WithOnError(func(st *graft.Type, _ any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, graft.ErrUnknownService) {
				failed = append(failed, st)
			}
		}),
	).WithTransient(NewTService).Build()

	testutil.AssertServiceResolvable[*TService](t, c)
	testutil.AssertServiceNotFound[*TDependency](t, c)

	assert.Equal(t, []*graft.Type{graft.TypeOf[*TService]()}, resolved)
	assert.Equal(t, []*graft.Type{graft.TypeOf[*TDependency]()}, failed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Resolutions)
	assert.Equal(t, int64(1), stats.Failures)
}
