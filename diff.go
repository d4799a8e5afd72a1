package memcore

import (
	jsonpatch "github.com/evanphx/json-patch"
	"go.mongodb.org/mongo-driver/bson"
)

// diffDocuments renders a JSON merge patch (RFC 7396) describing how to
// turn oldDoc into newDoc, for Debug-level logging of update and
// findAndModify operations. It never affects control flow: on a marshal
// failure the caller skips the log entry, never surfacing it as an
// operation error.
func diffDocuments(oldDoc, newDoc Document) ([]byte, error) {
	oldJSON, err := bson.MarshalExtJSON(oldDoc, true, false)
	if err != nil {
		return nil, err
	}
	newJSON, err := bson.MarshalExtJSON(newDoc, true, false)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(oldJSON, newJSON)
}
