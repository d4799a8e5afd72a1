package memcore

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentifierScheme names the fresh-identifier generation strategy an
// upsert falls back to when neither the selector nor the update pins a
// concrete identifier (spec §4.5: "otherwise generate a fresh object-id").
type IdentifierScheme int

const (
	// IdentifierSchemeObjectID matches the source's behavior literally.
	IdentifierSchemeObjectID IdentifierScheme = iota
	// IdentifierSchemeUUID supplements it with a string UUIDv4, useful
	// when the collection is embedded in a system that already keys
	// everything else by UUID and wants identifiers in the same space.
	IdentifierSchemeUUID
)

func generateIdentifier(scheme IdentifierScheme) Value {
	switch scheme {
	case IdentifierSchemeUUID:
		return uuid.New().String()
	default:
		return primitive.NewObjectID()
	}
}
