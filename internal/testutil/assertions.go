package testutil

import (
	"testing"

	"github.com/junioryono/graft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertServiceResolvable checks if a service can be resolved
func AssertServiceResolvable[T any](t *testing.T, r graft.Resolver, opts ...graft.ResolveOption) T {
	t.Helper()
	service, err := graft.Resolve[T](r, opts...)
	require.NoError(t, err, "failed to resolve service of type %T", *new(T))
	require.NotNil(t, service, "resolved service is nil")
	return service
}

// AssertKeyedServiceResolvable checks if a keyed service can be resolved
func AssertKeyedServiceResolvable[T any](t *testing.T, r graft.Resolver, key any) T {
	t.Helper()
	service, err := graft.Resolve[T](r, graft.WithKey(key))
	require.NoError(t, err, "failed to resolve keyed service of type %T with key %v", *new(T), key)
	require.NotNil(t, service, "resolved keyed service is nil")
	return service
}

// AssertAllResolvable resolves every registration of T and checks the count
func AssertAllResolvable[T any](t *testing.T, r graft.Resolver, want int) []T {
	t.Helper()
	services, err := graft.ResolveMany[T](r)
	require.NoError(t, err, "failed to resolve all services of type %T", *new(T))
	require.Len(t, services, want)
	return services
}

// AssertServiceNotFound checks if a service resolution fails with not found error
func AssertServiceNotFound[T any](t *testing.T, r graft.Resolver, opts ...graft.ResolveOption) {
	t.Helper()
	_, err := graft.Resolve[T](r, opts...)
	assert.Error(t, err)
	assert.True(t, graft.IsNotFound(err), "expected service not found error, got: %v", err)
}

// AssertErrorCode checks that err carries code
func AssertErrorCode(t *testing.T, err error, code graft.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, graft.HasCode(err, code), "expected %s, got: %v", code, err)
}

// AssertSameInstance verifies two services are the same instance
func AssertSameInstance(t *testing.T, expected, actual any, msgAndArgs ...any) {
	t.Helper()
	assert.Same(t, expected, actual, msgAndArgs...)
}

// AssertDifferentInstances verifies two services are different instances
func AssertDifferentInstances(t *testing.T, first, second any, msgAndArgs ...any) {
	t.Helper()
	assert.NotSame(t, first, second, msgAndArgs...)
}

// AssertContainerDisposed checks if operations on a disposed container fail correctly
func AssertContainerDisposed(t *testing.T, c *graft.Container) {
	t.Helper()
	assert.True(t, c.IsDisposed(), "container should be disposed")

	_, err := c.Resolve(graft.TypeOf[*TestService]())
	assert.ErrorIs(t, err, graft.ErrContainerDisposed)

	_, err = c.OpenScope()
	assert.ErrorIs(t, err, graft.ErrContainerDisposed)

	err = graft.Register[*TestService](c, graft.Ctor(NewTestService))
	assert.ErrorIs(t, err, graft.ErrContainerDisposed)
}

// AssertScopeDisposed checks if operations on a disposed scope fail correctly
func AssertScopeDisposed(t *testing.T, scope *graft.Container) {
	t.Helper()
	assert.True(t, scope.IsDisposed(), "scope should be disposed")

	_, err := scope.Resolve(graft.TypeOf[*TestService]())
	assert.ErrorIs(t, err, graft.ErrScopeDisposed)

	_, err = scope.OpenScope()
	assert.ErrorIs(t, err, graft.ErrScopeDisposed)
}

// AssertErrorType checks if an error is of a specific type
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()
	var target T
	assert.ErrorAs(t, err, &target, msgAndArgs...)
	return target
}

// AssertCircularDependency checks if an error is a circular dependency error
func AssertCircularDependency(t *testing.T, err error) {
	t.Helper()
	assert.Error(t, err)
	assert.ErrorIs(t, err, graft.ErrRecursiveDependency)
}

// RequireError is a helper that uses require.Error
func RequireError(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
}
