package graft_test

import (
	"errors"
	"testing"

	"github.com/junioryono/graft"
	"github.com/junioryono/graft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModule(t *testing.T) {
	t.Run("creates module with services", func(t *testing.T) {
		t.Parallel()

		module := graft.NewModule("test-module",
			graft.Provide(graft.TypeOf[testutil.TestLogger](), graft.Ctor(testutil.NewTestLogger), graft.WithReuse(graft.Singleton)),
			graft.Provide(graft.TypeOf[*testutil.TestService](), graft.Ctor(testutil.NewTestService), graft.WithReuse(graft.Scoped)),
		)

		c := testutil.NewContainerBuilder(t).WithModule(module).Build()
		assert.Equal(t, 2, c.Stats().Services)
	})

	t.Run("empty module", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithModule(graft.NewModule("empty-module")).Build()
		assert.Zero(t, c.Stats().Services)
	})

	t.Run("module with nil builders", func(t *testing.T) {
		t.Parallel()

		module := graft.NewModule("module-with-nils",
			graft.Provide(graft.TypeOf[testutil.TestLogger](), graft.Ctor(testutil.NewTestLogger)),
			nil, // Should be skipped
			graft.ProvideInstance(graft.TypeOf[*TService](), &TService{ID: "instance"}),
		)

		c := testutil.NewContainerBuilder(t).WithModule(module).Build()
		assert.Equal(t, 2, c.Stats().Services)
		assert.Equal(t, "instance", testutil.AssertServiceResolvable[*TService](t, c).ID)
	})
}

func TestModule_Composition(t *testing.T) {
	t.Run("nested modules", func(t *testing.T) {
		t.Parallel()

		loggingModule := graft.NewModule("logging",
			graft.Provide(graft.TypeOf[testutil.TestLogger](), graft.Ctor(testutil.NewTestLogger), graft.WithReuse(graft.Singleton)),
		)

		dataModule := graft.NewModule("data",
			graft.Provide(graft.TypeOf[testutil.TestDatabase](), graft.Ctor(testutil.NewTestDatabase), graft.WithReuse(graft.Singleton)),
			graft.Provide(graft.TypeOf[testutil.TestCache](), graft.Ctor(testutil.NewTestCache), graft.WithReuse(graft.Singleton)),
		)

		serviceModule := graft.NewModule("services",
			graft.Provide(graft.TypeOf[*testutil.TestServiceWithDeps](), graft.Ctor(testutil.NewTestServiceWithDeps), graft.WithReuse(graft.Scoped)),
		)

		appModule := graft.NewModule("app", loggingModule, dataModule, serviceModule)

		b := testutil.NewContainerBuilder(t).WithModule(appModule)
		b.MustValidate()

		svc := testutil.AssertServiceResolvable[*testutil.TestServiceWithDeps](t, b.BuildScope())
		assert.NotNil(t, svc.Logger)
		assert.NotNil(t, svc.Database)
		assert.NotNil(t, svc.Cache)
	})

	t.Run("module with decorators", func(t *testing.T) {
		t.Parallel()

		module := graft.NewModule("handlers",
			graft.Provide(graft.TypeOf[testutil.TestHandler](), graft.Ctor(func() testutil.TestHandler {
				return testutil.NewTestHandler("base")
			})),
			graft.Decorate(graft.TypeOf[testutil.TestHandler](), graft.Ctor(func(h testutil.TestHandler) testutil.TestHandler {
				return &testutil.DecoratedHandler{Inner: h, Prefix: "decorated-"}
			})),
		)

		c := testutil.NewContainerBuilder(t).WithModule(module).Build()
		h := testutil.AssertServiceResolvable[testutil.TestHandler](t, c)
		assert.Equal(t, "decorated-base", h.Handle())
	})

	t.Run("apply several modules", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		err := c.Apply(
			graft.NewModule("one", graft.Provide(graft.TypeOf[*TService](), graft.Ctor(NewTService))),
			nil,
			graft.NewModule("two", graft.Provide(graft.TypeOf[*TDependency](), graft.Ctor(NewTDependency))),
		)
		require.NoError(t, err)
		assert.True(t, c.IsRegistered(graft.TypeOf[*TService]()))
		assert.True(t, c.IsRegistered(graft.TypeOf[*TDependency]()))
	})
}

func TestModule_Errors(t *testing.T) {
	t.Run("error names the module", func(t *testing.T) {
		t.Parallel()

		module := graft.NewModule("broken",
			graft.Provide(graft.TypeOf[*TService](), graft.Ctor("not a function")),
		)

		c := testutil.NewContainerBuilder(t).Build()
		err := c.Apply(module)

		modErr := testutil.AssertErrorType[graft.ModuleError](t, err)
		assert.Equal(t, "broken", modErr.Module)
		testutil.AssertErrorCode(t, err, graft.InvalidRegistration)
		assert.Contains(t, err.Error(), `module "broken"`)
	})

	t.Run("nested module errors keep the chain", func(t *testing.T) {
		t.Parallel()

		inner := graft.NewModule("inner", func(*graft.Container) error { return testutil.ErrIntentional })
		outer := graft.NewModule("outer", inner)

		err := testutil.NewContainerBuilder(t).Build().Apply(outer)
		require.Error(t, err)
		assert.ErrorIs(t, err, testutil.ErrIntentional)

		var outerErr graft.ModuleError
		require.True(t, errors.As(err, &outerErr))
		assert.Equal(t, "outer", outerErr.Module)

		var innerErr graft.ModuleError
		require.True(t, errors.As(outerErr.Cause, &innerErr))
		assert.Equal(t, "inner", innerErr.Module)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		t.Parallel()

		module := graft.NewModule("partial",
			graft.Provide(graft.TypeOf[*TService](), graft.Ctor(NewTService)),
			func(*graft.Container) error { return testutil.ErrStop },
			graft.Provide(graft.TypeOf[*TDependency](), graft.Ctor(NewTDependency)),
		)

		c := testutil.NewContainerBuilder(t).Build()
		assert.ErrorIs(t, c.Apply(module), testutil.ErrStop)
		assert.True(t, c.IsRegistered(graft.TypeOf[*TService]()))
		assert.False(t, c.IsRegistered(graft.TypeOf[*TDependency]()))
	})
}
