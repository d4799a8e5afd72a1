package memcore

// CollectionOptions configures a Collection at construction time.
//
// The options can be provided when creating a new collection:
//
//	coll := memcore.NewCollection("db", "coll", memcore.NewMemoryStore(), memcore.WithIdentifierField("_id"))
type CollectionOptions struct {
	// IdentifierField is the name of the field that uniquely identifies a
	// document within the collection. Every mutating operator rejects an
	// attempt to change it (ErrModOnIdNotAllowed / ErrCannotChangeId).
	IdentifierField string

	// GenerateIdentifiers controls whether Insert synthesizes a missing
	// identifier field rather than rejecting the document.
	GenerateIdentifiers bool

	// IdentifierScheme picks the fresh-identifier strategy used by
	// GenerateIdentifiers and by upsert's identifier-derivation fallback.
	IdentifierScheme IdentifierScheme
}

// DefaultCollectionOptions returns the options a Collection uses when none
// are supplied: "_id" as the identifier field, with identifiers generated
// automatically on insert.
func DefaultCollectionOptions() *CollectionOptions {
	return &CollectionOptions{
		IdentifierField:     "_id",
		GenerateIdentifiers: true,
		IdentifierScheme:    IdentifierSchemeObjectID,
	}
}

// Option mutates CollectionOptions at construction time.
type Option func(*CollectionOptions)

// WithIdentifierField overrides the field name used as the document identifier.
func WithIdentifierField(name string) Option {
	return func(o *CollectionOptions) {
		o.IdentifierField = name
	}
}

// WithGeneratedIdentifiers toggles automatic identifier synthesis on insert.
func WithGeneratedIdentifiers(enabled bool) Option {
	return func(o *CollectionOptions) {
		o.GenerateIdentifiers = enabled
	}
}

// WithIdentifierScheme selects the fresh-identifier generation strategy.
func WithIdentifierScheme(scheme IdentifierScheme) Option {
	return func(o *CollectionOptions) {
		o.IdentifierScheme = scheme
	}
}

// UpdateOptions bundles the upsert/multi/new/remove flags of a MongoDB
// update command. No Collection method takes an UpdateOptions:
// UpdateDocuments receives isMulti/isUpsert as arguments, and FindAndModify
// reads upsert/new/remove from its command document.
type UpdateOptions struct {
	// Upsert requests inserting a document synthesized from the query and
	// update when no document matches.
	Upsert bool
	// Multi requests updating every matching document instead of just
	// the first.
	Multi bool
	// ReturnNew requests the document after the update instead of the
	// snapshot taken before it (findAndModify's "new" flag).
	ReturnNew bool
	// Remove requests deleting the matched document instead of updating
	// it (findAndModify's "remove" flag).
	Remove bool
}

// UpdateOption mutates UpdateOptions.
type UpdateOption func(*UpdateOptions)

// WithUpsert enables upsert behavior.
func WithUpsert() UpdateOption {
	return func(o *UpdateOptions) { o.Upsert = true }
}

// WithMulti applies the update to all matching documents.
func WithMulti() UpdateOption {
	return func(o *UpdateOptions) { o.Multi = true }
}

// WithReturnNew requests the post-update document from FindAndModify.
func WithReturnNew() UpdateOption {
	return func(o *UpdateOptions) { o.ReturnNew = true }
}

// WithRemove requests delete-and-return behavior from FindAndModify.
func WithRemove() UpdateOption {
	return func(o *UpdateOptions) { o.Remove = true }
}

// NewUpdateOptions builds an UpdateOptions from zero or more UpdateOption values.
func NewUpdateOptions(opts ...UpdateOption) *UpdateOptions {
	options := &UpdateOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
