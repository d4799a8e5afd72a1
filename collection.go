package memcore

import "context"

// Collection sequences the public operations over a document store and its
// index set (spec §4.5, §6). Implementations serialize structural
// operations (insert/update/delete/findAndModify/upsert) against each
// other while letting readers (HandleQuery/Count/HandleDistinct/GetStats/
// Validate) proceed concurrently (spec §5).
type Collection interface {
	// InsertDocuments writes each doc, returning the number successfully
	// inserted. It stops at the first index violation, leaving documents
	// already written in place (spec §4.5: no batch transactionality).
	InsertDocuments(ctx context.Context, docs []Document) (int, error)

	// HandleQuery extracts query/orderby from queryObject (either bare, or
	// wrapped in query+orderby / $query+$orderby), matches candidates,
	// sorts, applies skip/limit, and projects through fieldSelector if given.
	HandleQuery(ctx context.Context, queryObject Document, skip, limit int, fieldSelector Document) ([]Document, error)

	// FindAndModify implements the query/sort/remove/update/upsert/new/fields
	// command described in spec §4.5, returning
	// { value, lastErrorObject: {updatedExisting, n}, ok: 1 }.
	FindAndModify(ctx context.Context, spec Document) (Document, error)

	// UpdateDocuments applies update to documents matching selector,
	// returning { n, updatedExisting, upserted? }.
	UpdateDocuments(ctx context.Context, selector, update Document, isMulti, isUpsert bool) (Document, error)

	// DeleteDocuments removes documents matching selector, up to limit (0
	// means unlimited), returning the count deleted.
	DeleteDocuments(ctx context.Context, selector Document, limit int) (int, error)

	// HandleDistinct returns { values: [...sorted-unique...], ok: 1 } for
	// spec's {key, query} request document.
	HandleDistinct(ctx context.Context, spec Document) (Document, error)

	// Count returns the number of live documents, or the number matching
	// query when one is given.
	Count(ctx context.Context, query ...Document) (int, error)

	// AddIndex registers a secondary index. Treated as setup-only: spec §9
	// leaves concurrent addIndex during active queries unspecified.
	AddIndex(ix Index)

	GetStats(ctx context.Context) (Document, error)
	Validate(ctx context.Context) (Document, error)
}
