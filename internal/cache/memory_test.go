package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_GetMissReturnsNil(t *testing.T) {
	m := NewMemory()

	value, err := m.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestMemory_SetGetDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", []byte("v1")))

	value, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, m.Delete(ctx, "k1"))

	value, err = m.Get(ctx, "k1")
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k1", []byte("abc")))

	value, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	value[0] = 'x'

	again, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestMemory_MultiGetOmitsMissingKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}))

	result, err := m.MultiGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, []byte("1"), result["a"])
	require.Equal(t, []byte("2"), result["b"])
	require.NotContains(t, result, "c")
}

func TestMemory_MultiDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.MultiSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
	}))

	require.NoError(t, m.MultiDelete(ctx, []string{"a", "c"}))

	result, err := m.MultiGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Contains(t, result, "b")
}
