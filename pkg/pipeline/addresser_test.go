package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify_Idempotent(t *testing.T) {
	store := newMemStore()
	a := NewContentAddresser(store, 1, false)
	ctx := context.Background()

	first, err := a.Identify(ctx, testRepo, Text("same"))
	require.NoError(t, err)
	second, err := a.Identify(ctx, testRepo, Text("same"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 相同字节，不同编码
	third, err := a.Identify(ctx, testRepo, Binary([]byte("same")))
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestIdentifyAll_OneCallPerFile(t *testing.T) {
	store := newMemStore()
	a := NewContentAddresser(store, 4, false)

	ids, err := a.IdentifyAll(context.Background(), testRepo, map[string]Content{
		"a": Text("dup"), "b": Text("dup"), "c": Text("other"),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.blobCalls.Load())
	assert.Equal(t, ids["a"], ids["b"])
	assert.NotEqual(t, ids["a"], ids["c"])
}

func TestIdentifyAll_Dedupe(t *testing.T) {
	store := newMemStore()
	a := NewContentAddresser(store, 4, true)

	ids, err := a.IdentifyAll(context.Background(), testRepo, map[string]Content{
		"a": Text("dup"), "b": Text("dup"), "c": Text("other"),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.blobCalls.Load())
	assert.Len(t, ids, 3)
	assert.Equal(t, ids["a"], ids["b"])
}

func TestIdentifyAll_Cancelled(t *testing.T) {
	store := newMemStore()
	a := NewContentAddresser(store, 1, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.IdentifyAll(ctx, testRepo, map[string]Content{"a": Text("x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrObjectCreationFailed)
}
