package memcore

import "context"

// DocumentStore is the abstract "insert blob -> key" / "fetch by key"
// collaborator the core assumes (spec §1). Collection Core never depends
// on how a document is actually kept durable; it only needs Get/Put/Delete
// and a way to enumerate every live key for a full scan.
//
// Implementations must be safe for concurrent use; Collection Core itself
// supplies the per-document critical section (spec §5), not the store.
type DocumentStore interface {
	Get(ctx context.Context, key StoreKey) (Document, bool, error)
	Put(ctx context.Context, key StoreKey, doc Document) error
	Delete(ctx context.Context, key StoreKey) error
	// Keys enumerates every live store key, in an implementation-defined
	// order, for the full-scan path handleQuery falls back to when no
	// index narrows a query.
	Keys(ctx context.Context) ([]StoreKey, error)
	// Len reports the number of live documents, backing getStats/validate.
	Len(ctx context.Context) (int, error)
	Close() error
}
