package capture

import (
	"testing"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greet(ctx types.Context) (any, error) {
	return "hello", nil
}

func init() {
	Register("capture_test.greet", greet)
	RegisterBound("capture_test.counter.Add", func(state []byte) (Func, error) {
		return func(ctx types.Context) (any, error) { return string(state), nil }, nil
	})
	RegisterClosure("capture_test.adder", func(captured []byte) (Func, error) {
		return func(ctx types.Context) (any, error) { return string(captured), nil }, nil
	})
}

func TestNamedRoundTrip(t *testing.T) {
	c, err := Named("capture_test.greet")
	require.NoError(t, err)
	assert.Equal(t, types.CallableNamed, c.Kind)

	fn, err := Hydrate(c)
	require.NoError(t, err)
	result, err := fn(nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestNamedUnregistered(t *testing.T) {
	_, err := Named("does.not.exist")
	assert.Error(t, err)
}

func TestBoundRoundTrip(t *testing.T) {
	c, err := Bound("capture_test.counter.Add", map[string]int{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, types.CallableBound, c.Kind)
	assert.NotEmpty(t, c.ReceiverState)

	fn, err := Hydrate(c)
	require.NoError(t, err)
	_, err = fn(nil)
	assert.NoError(t, err)
}

func TestClosureRoundTrip(t *testing.T) {
	c, err := Closure("capture_test.adder", map[string]int{"x": 1, "y": 2})
	require.NoError(t, err)
	assert.Equal(t, types.CallableClosure, c.Kind)

	fn, err := Hydrate(c)
	require.NoError(t, err)
	_, err = fn(nil)
	assert.NoError(t, err)
}

func TestCaptureFallbackResolvesRegisteredPointer(t *testing.T) {
	c, err := Capture(greet)
	require.NoError(t, err)
	assert.Equal(t, types.CallableNamed, c.Kind)
	assert.True(t, c.Unverified)
}

func TestCaptureFallbackRejectsUnregistered(t *testing.T) {
	anon := func(ctx types.Context) (any, error) { return nil, nil }
	_, err := Capture(anon)
	assert.Error(t, err)
}

func TestHydrateUnknownKind(t *testing.T) {
	_, err := Hydrate(types.Callable{Kind: "bogus"})
	assert.Error(t, err)
}
