package testutil

import (
	"testing"

	"github.com/junioryono/graft"
	"github.com/stretchr/testify/require"
)

// ContainerBuilder provides a fluent interface for building test containers
type ContainerBuilder struct {
	t         *testing.T
	container *graft.Container
}

// NewContainerBuilder creates a new ContainerBuilder. The container is
// closed when the test finishes.
func NewContainerBuilder(t *testing.T, opts ...graft.Option) *ContainerBuilder {
	t.Helper()
	c := graft.New(opts...)
	t.Cleanup(func() {
		if !c.IsDisposed() {
			require.NoError(t, c.Close())
		}
	})
	return &ContainerBuilder{t: t, container: c}
}

// WithSingleton registers constructor as a singleton under its result type
func (b *ContainerBuilder) WithSingleton(constructor any, opts ...graft.RegisterOption) *ContainerBuilder {
	b.t.Helper()
	require.NoError(b.t, graft.RegisterCtor(b.container, constructor, append(opts, graft.WithReuse(graft.Singleton))...))
	return b
}

// WithScoped registers constructor as a scoped service under its result type
func (b *ContainerBuilder) WithScoped(constructor any, opts ...graft.RegisterOption) *ContainerBuilder {
	b.t.Helper()
	require.NoError(b.t, graft.RegisterCtor(b.container, constructor, append(opts, graft.WithReuse(graft.Scoped))...))
	return b
}

// WithTransient registers constructor as a transient service under its result type
func (b *ContainerBuilder) WithTransient(constructor any, opts ...graft.RegisterOption) *ContainerBuilder {
	b.t.Helper()
	require.NoError(b.t, graft.RegisterCtor(b.container, constructor, append(opts, graft.WithReuse(graft.Transient))...))
	return b
}

// WithDecorator registers decorator for T
func WithDecorator[T any](b *ContainerBuilder, decorator any, opts ...graft.RegisterOption) *ContainerBuilder {
	b.t.Helper()
	require.NoError(b.t, graft.RegisterDecorator[T](b.container, decorator, opts...))
	return b
}

// WithModule applies a module to the container
func (b *ContainerBuilder) WithModule(module graft.Module) *ContainerBuilder {
	b.t.Helper()
	require.NoError(b.t, b.container.Apply(module))
	return b
}

// Build returns the container
func (b *ContainerBuilder) Build() *graft.Container {
	return b.container
}

// BuildScope opens a scope of the container, closed when the test finishes
func (b *ContainerBuilder) BuildScope(opts ...graft.ScopeOption) *graft.Container {
	b.t.Helper()
	scope, err := b.container.OpenScope(opts...)
	require.NoError(b.t, err, "failed to open scope")
	b.t.Cleanup(func() {
		if !scope.IsDisposed() {
			require.NoError(b.t, scope.Close())
		}
	})
	return scope
}

// MustValidate fails the test if the container has invalid registrations
func (b *ContainerBuilder) MustValidate() *graft.Container {
	b.t.Helper()
	require.Empty(b.t, b.container.Validate(), "container has invalid registrations")
	return b.container
}
