package memcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathGetNested(t *testing.T) {
	doc := Document{
		{Key: "a", Value: Document{{Key: "b", Value: int32(42)}}},
	}
	v, ok := PathGet(doc, "a.b")
	require.True(t, ok)
	assert.Equal(t, int32(42), v)

	_, ok = PathGet(doc, "a.c")
	assert.False(t, ok)
}

func TestPathGetArrayIndex(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{int32(1), int32(2), int32(3)}}}
	v, ok := PathGet(doc, "items.1")
	require.True(t, ok)
	assert.Equal(t, int32(2), v)

	_, ok = PathGet(doc, "items.9")
	assert.False(t, ok)
}

func TestPathGetArrayAsMapOfDocuments(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{
		Document{{Key: "name", Value: "a"}},
		Document{{Key: "name", Value: "b"}},
	}}}
	v, ok := PathGet(doc, "items.name")
	require.True(t, ok)
	assert.Equal(t, Array{"a", "b"}, v)
}

func TestPathHasDistinguishesAbsentFromNull(t *testing.T) {
	doc := Document{{Key: "a", Value: nil}}
	assert.True(t, PathHas(doc, "a"))
	assert.False(t, PathHas(doc, "b"))
}

func TestPathSetAutovivifies(t *testing.T) {
	doc := Document{}
	out, err := PathSet(doc, "a.b.c", int32(1), NoMatchPosition())
	require.NoError(t, err)
	v, ok := PathGet(out, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, int32(1), v)
}

func TestPathSetOverwritesNonContainerIntermediate(t *testing.T) {
	doc := Document{{Key: "a", Value: int32(5)}}
	out, err := PathSet(doc, "a.b", int32(1), NoMatchPosition())
	require.NoError(t, err)
	v, ok := PathGet(out, "a.b")
	require.True(t, ok)
	assert.Equal(t, int32(1), v)
}

func TestPathSetArrayExtends(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{int32(1)}}}
	out, err := PathSet(doc, "items.3", int32(9), NoMatchPosition())
	require.NoError(t, err)
	v, ok := PathGet(out, "items")
	require.True(t, ok)
	arr := v.(Array)
	require.Len(t, arr, 4)
	assert.Nil(t, arr[1])
	assert.Nil(t, arr[2])
	assert.Equal(t, int32(9), arr[3])
}

func TestPathSetPositional(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{int32(1), int32(2), int32(3)}}}
	mp := NewMatchPosition(1)
	out, err := PathSet(doc, "items.$", int32(99), mp)
	require.NoError(t, err)
	v, _ := PathGet(out, "items.1")
	assert.Equal(t, int32(99), v)
}

func TestPathSetPositionalWithoutMatchFails(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{int32(1)}}}
	_, err := PathSet(doc, "items.$", int32(1), NoMatchPosition())
	require.Error(t, err)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrPositionalWithoutMatch)
}

func TestPathSetPositionalSingleShot(t *testing.T) {
	mp := NewMatchPosition(0)
	idx, ok := mp.Take()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	_, ok = mp.Take()
	assert.False(t, ok)
}

func TestPathRemoveFieldAndArrayElement(t *testing.T) {
	doc := Document{
		{Key: "a", Value: int32(1)},
		{Key: "items", Value: Array{int32(1), int32(2), int32(3)}},
	}
	out, removed, err := PathRemove(doc, "a", NoMatchPosition())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, PathHas(out, "a"))

	out2, removed2, err := PathRemove(out, "items.1", NoMatchPosition())
	require.NoError(t, err)
	assert.True(t, removed2)
	v, _ := PathGet(out2, "items")
	assert.Equal(t, Array{int32(1), int32(3)}, v)
}

func TestPathRemoveAbsentIsNoop(t *testing.T) {
	doc := Document{{Key: "a", Value: int32(1)}}
	out, removed, err := PathRemove(doc, "b.c", NoMatchPosition())
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, doc, out)
}
