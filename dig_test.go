package graft_test

import (
	"testing"

	"github.com/junioryono/graft"
	"github.com/junioryono/graft/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

func TestDigFallback(t *testing.T) {
	newDig := func(t *testing.T) *dig.Container {
		dc := dig.New()
		require.NoError(t, dc.Provide(NewTService))
		require.NoError(t, dc.Provide(func() *TDependency { return &TDependency{Name: "primary"} }, dig.Name("primary")))
		return dc
	}

	t.Run("resolves services provided to dig", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.DigFallback(newDig(t))).Build()

		first := testutil.AssertServiceResolvable[*TService](t, c)
		second := testutil.AssertServiceResolvable[*TService](t, c)
		assert.Same(t, first, second, "dig caches its values")
	})

	t.Run("string keys map to dig names", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.DigFallback(newDig(t))).Build()

		dep := testutil.AssertKeyedServiceResolvable[*TDependency](t, c, "primary")
		assert.Equal(t, "primary", dep.Name)

		testutil.AssertServiceNotFound[*TDependency](t, c)
		testutil.AssertServiceNotFound[*TDependency](t, c, graft.WithKey(42))
	})

	t.Run("container services depend on dig services", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.DigFallback(newDig(t))).Build()
		require.NoError(t, graft.RegisterCtor(c, func(s *TService) *TServiceWithDeps {
			return &TServiceWithDeps{Svc: s}
		}))

		svc := testutil.AssertServiceResolvable[*TServiceWithDeps](t, c)
		assert.Equal(t, "svc", svc.Svc.ID)
	})

	t.Run("registrations win over dig", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.DigFallback(newDig(t))).Build()
		require.NoError(t, graft.RegisterInstance(c, &TService{ID: "registered"}))

		assert.Equal(t, "registered", testutil.AssertServiceResolvable[*TService](t, c).ID)
	})

	t.Run("validate does not run dig constructors", func(t *testing.T) {
		t.Parallel()

		counter := &TCounter{}
		dc := dig.New()
		require.NoError(t, dc.Provide(counter.NewTCounted))

		c := testutil.NewContainerBuilder(t, graft.DigFallback(dc)).Build()
		require.NoError(t, graft.RegisterCtor(c, func(n *TCounted) *TService {
			return &TService{Value: int(n.N)}
		}))

		assert.Empty(t, c.Validate())
		assert.Zero(t, counter.Calls())

		assert.Equal(t, 1, testutil.AssertServiceResolvable[*TService](t, c).Value)
		assert.Empty(t, c.Validate())
		assert.Equal(t, int64(1), counter.Calls())
	})

	t.Run("unknown to both", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainerBuilder(t, graft.DigFallback(newDig(t))).Build()
		testutil.AssertServiceNotFound[*Greeter](t, c)
	})
}
