package memcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestApplyUpdateSetAndInc(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "count", Value: int32(5)}}
	update := Document{{Key: "$set", Value: Document{{Key: "name", Value: "x"}}}, {Key: "$inc", Value: Document{{Key: "count", Value: int32(2)}}}}

	out, err := ApplyUpdate(current, update, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ := getField(out, "name")
	assert.Equal(t, "x", v)
	v, _ = getField(out, "count")
	assert.Equal(t, int32(7), v)
}

func TestApplyUpdateIncMissingFieldDefaultsZero(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	update := Document{{Key: "$inc", Value: Document{{Key: "count", Value: int32(3)}}}}
	out, err := ApplyUpdate(current, update, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ := getField(out, "count")
	assert.Equal(t, int32(3), v)
}

func TestApplyUpdateRejectsModOnId(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	update := Document{{Key: "$set", Value: Document{{Key: "_id", Value: int32(2)}}}}
	_, err := ApplyUpdate(current, update, NoMatchPosition(), "_id", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModOnIdNotAllowed)
}

func TestApplyUpdateReplacementPreservesId(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "name", Value: "old"}}
	replacement := Document{{Key: "name", Value: "new"}}
	out, err := ApplyUpdate(current, replacement, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ := getField(out, "_id")
	assert.Equal(t, int32(1), v)
	v, _ = getField(out, "name")
	assert.Equal(t, "new", v)
}

func TestApplyUpdateReplacementRejectsChangedId(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	replacement := Document{{Key: "_id", Value: int32(2)}, {Key: "name", Value: "new"}}
	_, err := ApplyUpdate(current, replacement, NoMatchPosition(), "_id", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCannotChangeId)
}

func TestApplyUpdateMixedModeIsIllegal(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	update := Document{{Key: "$set", Value: Document{{Key: "a", Value: 1}}}, {Key: "name", Value: "x"}}
	_, err := ApplyUpdate(current, update, NoMatchPosition(), "_id", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalUpdate)
}

func TestApplyUpdatePushAddToSetPullPop(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "tags", Value: Array{"a", "b"}}}

	out, err := ApplyUpdate(current, Document{{Key: "$push", Value: Document{{Key: "tags", Value: "c"}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ := getField(out, "tags")
	assert.Equal(t, Array{"a", "b", "c"}, v)

	out, err = ApplyUpdate(out, Document{{Key: "$addToSet", Value: Document{{Key: "tags", Value: "a"}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ = getField(out, "tags")
	assert.Equal(t, Array{"a", "b", "c"}, v)

	out, err = ApplyUpdate(out, Document{{Key: "$pull", Value: Document{{Key: "tags", Value: "b"}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ = getField(out, "tags")
	assert.Equal(t, Array{"a", "c"}, v)

	out, err = ApplyUpdate(out, Document{{Key: "$pop", Value: Document{{Key: "tags", Value: int32(1)}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ = getField(out, "tags")
	assert.Equal(t, Array{"a"}, v)
}

func TestApplyUpdatePushOnNonArrayFails(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "tags", Value: "not-an-array"}}
	_, err := ApplyUpdate(current, Document{{Key: "$push", Value: Document{{Key: "tags", Value: "c"}}}}, NoMatchPosition(), "_id", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonArrayTarget)
}

func TestApplyUpdateMinMax(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "score", Value: int32(5)}}
	out, err := ApplyUpdate(current, Document{{Key: "$min", Value: Document{{Key: "score", Value: int32(3)}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ := getField(out, "score")
	assert.Equal(t, int32(3), v)

	out, err = ApplyUpdate(out, Document{{Key: "$max", Value: Document{{Key: "score", Value: int32(9)}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, _ = getField(out, "score")
	assert.Equal(t, int32(9), v)
}

func TestApplyUpdatePositionalSet(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}, {Key: "items", Value: Array{int32(1), int32(2), int32(3)}}}
	_, pos := Match(current, Document{{Key: "items", Value: int32(2)}})
	out, err := ApplyUpdate(current, Document{{Key: "$set", Value: Document{{Key: "items.$", Value: int32(99)}}}}, pos, "_id", false)
	require.NoError(t, err)
	v, _ := PathGet(out, "items.1")
	assert.Equal(t, int32(99), v)
}

func TestApplyUpdateSetOnInsertOnlyOnInsert(t *testing.T) {
	seed := Document{}
	out, err := ApplyUpdate(seed, Document{{Key: "$setOnInsert", Value: Document{{Key: "createdBy", Value: "system"}}}}, NoMatchPosition(), "_id", true)
	require.NoError(t, err)
	v, _ := getField(out, "createdBy")
	assert.Equal(t, "system", v)

	current := Document{{Key: "_id", Value: int32(1)}}
	out, err = ApplyUpdate(current, Document{{Key: "$setOnInsert", Value: Document{{Key: "createdBy", Value: "system"}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	_, found := getField(out, "createdBy")
	assert.False(t, found)
}

func TestApplyUpdateCurrentDateTimestamp(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	out, err := ApplyUpdate(current, Document{{Key: "$currentDate", Value: Document{{Key: "ts", Value: Document{{Key: "$type", Value: "timestamp"}}}}}}, NoMatchPosition(), "_id", false)
	require.NoError(t, err)
	v, found := getField(out, "ts")
	require.True(t, found)
	ts, ok := v.(primitive.Timestamp)
	require.True(t, ok)
	assert.Equal(t, uint32(1), ts.I)
}

func TestApplyUpdateUnknownOperatorFails(t *testing.T) {
	current := Document{{Key: "_id", Value: int32(1)}}
	_, err := ApplyUpdate(current, Document{{Key: "$bogus", Value: Document{{Key: "a", Value: 1}}}}, NoMatchPosition(), "_id", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidModifier)
}
