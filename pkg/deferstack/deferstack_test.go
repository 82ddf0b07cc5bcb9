package deferstack

import (
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionStackRunsInReverseOrder(t *testing.T) {
	s := NewFunctionStack()
	var order []int
	s.Defer(func() { order = append(order, 1) })
	s.Defer(func() { order = append(order, 2) })
	s.Defer(func() { order = append(order, 3) })

	s.Release()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestFunctionStackContainsPanics(t *testing.T) {
	s := NewFunctionStack()
	var ran bool
	s.Defer(func() { ran = true })
	s.Defer(func() { panic("boom") })

	assert.NotPanics(t, func() { s.Release() })
	assert.True(t, ran, "a callback registered earlier (run later, LIFO) must still execute after an earlier-run callback panics")
}

func TestGlobalStackEvictsOldestOnOverflow(t *testing.T) {
	s := NewGlobalStack()
	var ran []int
	for i := 0; i < GlobalStackMax+5; i++ {
		i := i
		s.Defer(func() { ran = append(ran, i) })
	}
	assert.Equal(t, GlobalStackMax, s.Len())

	s.Flush()
	require.Len(t, ran, GlobalStackMax)
	assert.Equal(t, GlobalStackMax+4, ran[0], "newest registration runs first")
	assert.Equal(t, 5, ran[len(ran)-1], "the five oldest registrations were evicted")
}

func TestGlobalStackFlushIsIdempotent(t *testing.T) {
	s := NewGlobalStack()
	var calls int
	s.Defer(func() { calls++ })

	s.Flush()
	s.Flush()
	assert.Equal(t, 1, calls)
}

type fakeHook struct {
	registered func()
	calls      int
}

func (h *fakeHook) Register(fn func()) error {
	h.registered = fn
	h.calls++
	return nil
}

type fakeCore struct {
	spawned []types.Callable
}

func (f *fakeCore) Spawn(c types.Callable, ctx types.Context) (types.TaskID, error) {
	f.spawned = append(f.spawned, c)
	return "defer_bg", nil
}
func (f *fakeCore) Status(types.TaskID) (*types.TaskStatus, error) { return nil, nil }
func (f *fakeCore) List() ([]*types.TaskStatus, error)             { return nil, nil }
func (f *fakeCore) Cleanup(time.Duration) (int, error)             { return 0, nil }

func TestPostResponseStackRegistersHookOnce(t *testing.T) {
	hook := &fakeHook{}
	s := NewPostResponseStack(hook, &fakeCore{})

	require.NoError(t, s.Defer(func() {}, true))
	require.NoError(t, s.Defer(func() {}, true))
	assert.NotNil(t, hook.registered)
	assert.Equal(t, 1, hook.calls)
}

func TestPostResponseStackAlwaysFalseSkippedOnFailureStatus(t *testing.T) {
	hook := &fakeHook{}
	s := NewPostResponseStack(hook, &fakeCore{})

	var alwaysRan, conditionalRan bool
	require.NoError(t, s.Defer(func() { alwaysRan = true }, true))
	require.NoError(t, s.Defer(func() { conditionalRan = true }, false))

	s.Run(404)
	assert.True(t, alwaysRan)
	assert.False(t, conditionalRan)
}

func TestPostResponseStackAllRunOnSuccessStatus(t *testing.T) {
	hook := &fakeHook{}
	s := NewPostResponseStack(hook, &fakeCore{})

	var a, b bool
	require.NoError(t, s.Defer(func() { a = true }, true))
	require.NoError(t, s.Defer(func() { b = true }, false))

	s.Run(200)
	assert.True(t, a)
	assert.True(t, b)
}

func TestPostResponseStackRunsInRegistrationOrder(t *testing.T) {
	hook := &fakeHook{}
	s := NewPostResponseStack(hook, &fakeCore{})

	var order []int
	require.NoError(t, s.Defer(func() { order = append(order, 1) }, true))
	require.NoError(t, s.Defer(func() { order = append(order, 2) }, true))

	s.Run(200)
	assert.Equal(t, []int{1, 2}, order)
}

func TestDeferBackgroundSpawnsImmediately(t *testing.T) {
	rt := &fakeCore{}
	s := NewPostResponseStack(&fakeHook{}, rt)

	taskID, err := s.DeferBackground(types.Callable{Kind: types.CallableNamed, Name: "f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.TaskID("defer_bg"), taskID)
	assert.Len(t, rt.spawned, 1)
}
