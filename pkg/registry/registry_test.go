package registry

import (
	"testing"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	r.Register("defer_1", types.CallableNamed, 3)

	entry, ok := r.Get("defer_1")
	require.True(t, ok)
	assert.Equal(t, types.CallableNamed, entry.CallbackType)
	assert.Equal(t, 3, entry.ContextSize)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	r := New()
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestForgetRemovesEntry(t *testing.T) {
	r := New()
	r.Register("defer_1", types.CallableNamed, 0)
	r.Forget("defer_1")

	_, ok := r.Get("defer_1")
	assert.False(t, ok)
}

func TestListAndLen(t *testing.T) {
	r := New()
	r.Register("a", types.CallableNamed, 0)
	r.Register("b", types.CallableClosure, 1)

	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.List(), 2)
}
