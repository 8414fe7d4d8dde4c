package graft_test

import (
	"fmt"
	"testing"

	"github.com/junioryono/graft"
	"github.com/junioryono/graft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Entity is the constraint of entity repositories.
type Entity interface {
	EntityName() string
}

type TUser struct{}
type TOrder struct{}
type TAuditLog struct{}

func (TUser) EntityName() string  { return "user" }
func (TOrder) EntityName() string { return "order" }

// TRepo is a Go generic bound to the Repo definition.
type TRepo[T any] struct {
	Entity    string
	Decorated bool
}

func NewTRepo[T any]() *TRepo[T] {
	var zero T
	return &TRepo[T]{Entity: fmt.Sprintf("%T", zero)}
}

// TTimed wraps a service, like a user-defined Lazy.
type TTimed[T any] struct {
	Inner T
}

var (
	repoDef  = graft.Generic("Repo", graft.Param("T"))
	timedDef = graft.Generic("Timed", graft.OutParam("T"))
)

func init() {
	mustBind := func(_ *graft.Type, err error) {
		if err != nil {
			panic(err)
		}
	}
	mustBind(graft.Bind[*TRepo[TUser]](repoDef.Of(graft.TypeOf[TUser]())))
	mustBind(graft.Bind[*TRepo[TOrder]](repoDef.Of(graft.TypeOf[TOrder]())))
	mustBind(graft.Bind[TTimed[*TService]](timedDef.Of(graft.TypeOf[*TService]())))
}

func buildRepo(args []*graft.Type) (graft.Implementation, error) {
	switch args[0] {
	case graft.TypeOf[TUser]():
		return graft.Ctor(NewTRepo[TUser]), nil
	case graft.TypeOf[TOrder]():
		return graft.Ctor(NewTRepo[TOrder]), nil
	}
	return nil, nil
}

func TestGeneric_OpenRegistration(t *testing.T) {
	t.Run("closes for each bound instantiation", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, c.Register(repoDef.Open(), graft.OpenCtor(repoDef, buildRepo), graft.WithReuse(graft.Singleton)))

		users := testutil.AssertServiceResolvable[*TRepo[TUser]](t, c)
		orders := testutil.AssertServiceResolvable[*TRepo[TOrder]](t, c)
		assert.Equal(t, "graft_test.TUser", users.Entity)
		assert.Equal(t, "graft_test.TOrder", orders.Entity)

		assert.Same(t, users, testutil.AssertServiceResolvable[*TRepo[TUser]](t, c))
		assert.True(t, c.IsRegistered(graft.TypeOf[*TRepo[TUser]]()))
	})

	t.Run("bound types share descriptors", func(t *testing.T) {
		t.Parallel()

		assert.Same(t, repoDef.Of(graft.TypeOf[TUser]()), graft.TypeOf[*TRepo[TUser]]())

		again, err := graft.Bind[*TRepo[TUser]](repoDef.Of(graft.TypeOf[TUser]()))
		require.NoError(t, err, "binding the same pair again is allowed")
		assert.Same(t, graft.TypeOf[*TRepo[TUser]](), again)

		_, err = graft.Bind[*TRepo[TUser]](repoDef.Of(graft.TypeOf[TOrder]()))
		testutil.AssertErrorCode(t, err, graft.InvalidRegistration)
	})

	t.Run("exact registration wins over the open one", func(t *testing.T) {
		t.Parallel()

		exact := &TRepo[TUser]{Entity: "exact"}
		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, c.Register(repoDef.Open(), graft.OpenCtor(repoDef, buildRepo)))
		require.NoError(t, graft.RegisterInstance(c, exact))

		assert.Same(t, exact, testutil.AssertServiceResolvable[*TRepo[TUser]](t, c))
	})

	t.Run("builder declining an instantiation", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, c.Register(repoDef.Open(), graft.OpenCtor(repoDef, buildRepo)))

		_, err := c.Resolve(repoDef.Of(graft.TypeOf[TAuditLog]()))
		testutil.AssertErrorCode(t, err, graft.NoMatchedGenericParamConstraints)
	})

	t.Run("open service needs an open implementation", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		err := c.Register(repoDef.Open(), graft.Ctor(NewTRepo[TUser]))
		testutil.AssertErrorCode(t, err, graft.InvalidRegistration)

		err = c.Register(graft.TypeOf[*TRepo[TUser]](), graft.OpenCtor(repoDef, buildRepo))
		testutil.AssertErrorCode(t, err, graft.InvalidRegistration)
	})
}

func TestGeneric_Constraints(t *testing.T) {
	entity := graft.TypeOf[Entity]()
	entityRepo := graft.Generic("EntityRepo", graft.Param("T", entity))

	newContainer := func(t *testing.T) *graft.Container {
		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, c.Register(entityRepo.Open(), graft.OpenCtor(entityRepo, func(args []*graft.Type) (graft.Implementation, error) {
			return graft.Instance(args[0]), nil
		})))
		return c
	}

	t.Run("satisfied constraint", func(t *testing.T) {
		t.Parallel()

		c := newContainer(t)
		v, err := c.Resolve(entityRepo.Of(graft.TypeOf[TUser]()))
		require.NoError(t, err)
		assert.Same(t, graft.TypeOf[TUser](), v)
	})

	t.Run("violated constraint", func(t *testing.T) {
		t.Parallel()

		c := newContainer(t)
		_, err := c.Resolve(entityRepo.Of(graft.TypeOf[TAuditLog]()))
		testutil.AssertErrorCode(t, err, graft.NoMatchedGenericParamConstraints)
		assert.True(t, graft.IsNotFound(err))
	})

	t.Run("violated constraint with return default", func(t *testing.T) {
		t.Parallel()

		c := newContainer(t)
		v, err := c.Resolve(entityRepo.Of(graft.TypeOf[TAuditLog]()), graft.IfUnresolvedReturnDefault())
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("collections skip unsatisfied registrations", func(t *testing.T) {
		t.Parallel()

		c := newContainer(t)
		v, err := c.Resolve(graft.SliceOf(entityRepo.Of(graft.TypeOf[TAuditLog]())))
		require.NoError(t, err)
		assert.Empty(t, v)
	})
}

func TestGeneric_Implements(t *testing.T) {
	t.Parallel()

	handler := graft.Generic("Handler", graft.Param("E"))
	logging := graft.Generic("LoggingHandler", graft.Param("X"))

	c := testutil.NewContainerBuilder(t).Build()
	impl := graft.OpenCtor(logging, func(args []*graft.Type) (graft.Implementation, error) {
		return graft.Instance("logging " + args[0].Name()), nil
	}).Implements(handler.Of(logging.Placeholder(0)))
	require.NoError(t, c.Register(handler.Open(), impl))

	v, err := c.Resolve(handler.Of(graft.TypeOf[TUser]()))
	require.NoError(t, err)
	assert.Equal(t, "logging "+graft.TypeOf[TUser]().Name(), v)

	err = c.Register(handler.Open(), graft.OpenCtor(logging, func([]*graft.Type) (graft.Implementation, error) {
		return nil, nil
	}))
	testutil.AssertErrorCode(t, err, graft.InvalidRegistration)
}

func TestGeneric_DecoratorsAndWrappers(t *testing.T) {
	t.Run("open decorator", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		require.NoError(t, c.Register(repoDef.Open(), graft.OpenCtor(repoDef, buildRepo)))
		require.NoError(t, c.Register(repoDef.Open(), graft.OpenCtor(repoDef, func(args []*graft.Type) (graft.Implementation, error) {
			if args[0] != graft.TypeOf[TUser]() {
				return nil, nil
			}
			return graft.Ctor(func(r *TRepo[TUser]) *TRepo[TUser] {
				r.Decorated = true
				return r
			}), nil
		}), graft.AsDecorator()))

		assert.True(t, testutil.AssertServiceResolvable[*TRepo[TUser]](t, c).Decorated)
		assert.False(t, testutil.AssertServiceResolvable[*TRepo[TOrder]](t, c).Decorated)
	})

	t.Run("registered wrapper", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).WithSingleton(NewTService).Build()
		require.NoError(t, c.Register(timedDef.Open(), graft.OpenCtor(timedDef, func(args []*graft.Type) (graft.Implementation, error) {
			if args[0] != graft.TypeOf[*TService]() {
				return nil, nil
			}
			return graft.Ctor(func(s *TService) TTimed[*TService] { return TTimed[*TService]{Inner: s} }), nil
		}), graft.AsWrapper(0)))

		timed := testutil.AssertServiceResolvable[TTimed[*TService]](t, c)
		assert.Same(t, testutil.AssertServiceResolvable[*TService](t, c), timed.Inner)
	})

	t.Run("wrapper index out of range", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t).Build()
		err := c.Register(timedDef.Open(), graft.OpenCtor(timedDef, func([]*graft.Type) (graft.Implementation, error) {
			return nil, nil
		}), graft.AsWrapper(1))
		testutil.AssertErrorCode(t, err, graft.InvalidRegistration)
	})
}
