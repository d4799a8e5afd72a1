package memcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCollectionOptions(t *testing.T) {
	o := DefaultCollectionOptions()
	assert.Equal(t, "_id", o.IdentifierField)
	assert.True(t, o.GenerateIdentifiers)
	assert.Equal(t, IdentifierSchemeObjectID, o.IdentifierScheme)
}

func TestOptionsApplyInOrder(t *testing.T) {
	o := DefaultCollectionOptions()
	WithIdentifierField("uuid")(o)
	WithGeneratedIdentifiers(false)(o)
	WithIdentifierScheme(IdentifierSchemeUUID)(o)

	assert.Equal(t, "uuid", o.IdentifierField)
	assert.False(t, o.GenerateIdentifiers)
	assert.Equal(t, IdentifierSchemeUUID, o.IdentifierScheme)
}

func TestUpdateOptionsFunctional(t *testing.T) {
	o := NewUpdateOptions(WithUpsert(), WithMulti(), WithReturnNew())
	assert.True(t, o.Upsert)
	assert.True(t, o.Multi)
	assert.True(t, o.ReturnNew)
	assert.False(t, o.Remove)
}
