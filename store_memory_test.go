package memcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := Document{{Key: "_id", Value: int32(1)}, {Key: "v", Value: "x"}}
	require.NoError(t, s.Put(ctx, int32(1), doc))

	got, ok, err := s.Get(ctx, int32(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, got)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, int32(1)))
	_, ok, err = s.Get(ctx, int32(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreGetReturnsIsolatedClone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := Document{{Key: "nested", Value: Document{{Key: "x", Value: int32(1)}}}}
	require.NoError(t, s.Put(ctx, int32(1), doc))

	got, _, err := s.Get(ctx, int32(1))
	require.NoError(t, err)
	gotDoc := got[0].Value.(Document)
	gotDoc[0].Value = int32(999)

	got2, _, err := s.Get(ctx, int32(1))
	require.NoError(t, err)
	v, _ := getField(got2[0].Value.(Document), "x")
	assert.Equal(t, int32(1), v)
}

func TestMemoryStoreKeysEnumeratesAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, int32(1), Document{{Key: "_id", Value: int32(1)}}))
	require.NoError(t, s.Put(ctx, int32(2), Document{{Key: "_id", Value: int32(2)}}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
