package memcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSimpleEquality(t *testing.T) {
	doc := Document{{Key: "name", Value: "alice"}, {Key: "age", Value: int32(30)}}
	matched, _ := Match(doc, Document{{Key: "name", Value: "alice"}})
	assert.True(t, matched)

	matched, _ = Match(doc, Document{{Key: "name", Value: "bob"}})
	assert.False(t, matched)
}

func TestMatchComparisonOperators(t *testing.T) {
	doc := Document{{Key: "age", Value: int32(30)}}
	matched, _ := Match(doc, Document{{Key: "age", Value: Document{{Key: "$gte", Value: int32(18)}}}})
	assert.True(t, matched)

	matched, _ = Match(doc, Document{{Key: "age", Value: Document{{Key: "$lt", Value: int32(18)}}}})
	assert.False(t, matched)
}

func TestMatchAndOrNor(t *testing.T) {
	doc := Document{{Key: "age", Value: int32(30)}, {Key: "active", Value: true}}

	matched, _ := Match(doc, Document{{Key: "$and", Value: Array{
		Document{{Key: "age", Value: int32(30)}},
		Document{{Key: "active", Value: true}},
	}}})
	assert.True(t, matched)

	matched, _ = Match(doc, Document{{Key: "$or", Value: Array{
		Document{{Key: "age", Value: int32(99)}},
		Document{{Key: "active", Value: true}},
	}}})
	assert.True(t, matched)

	matched, _ = Match(doc, Document{{Key: "$nor", Value: Array{
		Document{{Key: "age", Value: int32(99)}},
	}}})
	assert.True(t, matched)
}

func TestMatchArrayBroadcastWholeOrElement(t *testing.T) {
	doc := Document{{Key: "tags", Value: Array{"a", "b", "c"}}}

	matched, _ := Match(doc, Document{{Key: "tags", Value: "b"}})
	assert.True(t, matched)

	matched, _ = Match(doc, Document{{Key: "tags", Value: Array{"a", "b", "c"}}})
	assert.True(t, matched)
}

func TestMatchCapturesArrayPosition(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{int32(1), int32(2), int32(3)}}}
	matched, pos := Match(doc, Document{{Key: "items", Value: int32(2)}})
	require.True(t, matched)
	idx, ok := pos.Take()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchElemMatch(t *testing.T) {
	doc := Document{{Key: "items", Value: Array{
		Document{{Key: "sku", Value: "a"}, {Key: "qty", Value: int32(1)}},
		Document{{Key: "sku", Value: "b"}, {Key: "qty", Value: int32(5)}},
	}}}
	matched, pos := Match(doc, Document{{Key: "items", Value: Document{{Key: "$elemMatch", Value: Document{
		{Key: "sku", Value: "b"},
	}}}}})
	require.True(t, matched)
	idx, ok := pos.Take()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchExistsAndType(t *testing.T) {
	doc := Document{{Key: "a", Value: int32(1)}}
	matched, _ := Match(doc, Document{{Key: "a", Value: Document{{Key: "$exists", Value: true}}}})
	assert.True(t, matched)
	matched, _ = Match(doc, Document{{Key: "b", Value: Document{{Key: "$exists", Value: true}}}})
	assert.False(t, matched)
	matched, _ = Match(doc, Document{{Key: "a", Value: Document{{Key: "$type", Value: "int"}}}})
	assert.True(t, matched)
}

func TestMatchNinAndNe(t *testing.T) {
	doc := Document{{Key: "status", Value: "active"}}
	matched, _ := Match(doc, Document{{Key: "status", Value: Document{{Key: "$ne", Value: "inactive"}}}})
	assert.True(t, matched)
	matched, _ = Match(doc, Document{{Key: "status", Value: Document{{Key: "$nin", Value: Array{"active", "pending"}}}}})
	assert.False(t, matched)
}
