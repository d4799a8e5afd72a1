package memcore

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/docstore/memcore/internal/corelog"
)

// docLockTable hands out a per-key *sync.Mutex, lazily created, giving
// each document its own critical section (spec §5) without forcing every
// operation through one collection-wide lock.
type docLockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDocLockTable() *docLockTable {
	return &docLockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *docLockTable) acquire(key string) *sync.Mutex {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l
}

// collectionImpl is the in-memory Collection Core: a document store, its
// index set, and the locking discipline spec §5 requires around them.
type collectionImpl struct {
	dbName, collName string
	idField          string
	opts             *CollectionOptions
	store            DocumentStore
	indexes          *IndexSet

	// structMu serializes structural operations against each other
	// (spec §5: "collection-level mutation serialization").
	structMu sync.Mutex
	docLocks *docLockTable

	log *zap.Logger
}

// NewCollection builds a Collection over store, named dbName.collName for
// stats/validate reporting.
func NewCollection(dbName, collName string, store DocumentStore, opts ...Option) Collection {
	o := DefaultCollectionOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &collectionImpl{
		dbName:   dbName,
		collName: collName,
		idField:  o.IdentifierField,
		opts:     o,
		store:    store,
		indexes:  NewIndexSet(o.IdentifierField),
		docLocks: newDocLockTable(),
		log:      corelog.GetLogger().With(zap.String("collection", dbName+"."+collName)),
	}
}

func (c *collectionImpl) ns() string { return c.dbName + "." + c.collName }

// candidates narrows query through the index set, falling back to a full
// scan over every live key; the result is sorted by canonical key so
// iteration order is stable across calls (spec §4.5 "iterates candidates
// in order" — exact tie-breaking among untouched candidates is otherwise
// unspecified, so this package picks key order and documents it).
func (c *collectionImpl) candidates(ctx context.Context, query Document) ([]StoreKey, error) {
	var keys []StoreKey
	if narrowed, ok := c.indexes.CandidateKeys(query); ok {
		keys = narrowed
	} else {
		all, err := c.store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		keys = all
	}
	sort.Slice(keys, func(i, j int) bool {
		return canonicalKey(keys[i]) < canonicalKey(keys[j])
	})
	return keys, nil
}

func (c *collectionImpl) prepareInsert(doc Document) (Document, error) {
	doc = cloneDocument(doc)
	if key, dup := hasDuplicateKeys(doc); dup {
		return nil, &CoreError{Message: "duplicate field name " + key + " in document"}
	}
	id, found := getField(doc, c.idField)
	if !found || id == nil {
		if !c.opts.GenerateIdentifiers {
			return nil, &CoreError{Message: "document is missing identifier field " + c.idField}
		}
		id = generateIdentifier(c.opts.IdentifierScheme)
		doc = setFieldOrdered(doc, c.idField, id)
		return doc, nil
	}
	if IsArray(id) {
		return nil, &CoreError{Message: "identifier field " + c.idField + " may not be an array"}
	}
	return doc, nil
}

func (c *collectionImpl) InsertDocuments(ctx context.Context, docs []Document) (int, error) {
	c.structMu.Lock()
	defer c.structMu.Unlock()

	inserted := 0
	for _, raw := range docs {
		doc, err := c.prepareInsert(raw)
		if err != nil {
			return inserted, err
		}
		if err := c.indexes.CheckAdd(doc); err != nil {
			return inserted, err
		}
		key, _ := getField(doc, c.idField)
		if err := c.store.Put(ctx, key, doc); err != nil {
			return inserted, err
		}
		c.indexes.AddAll(doc, key)
		inserted++
	}
	return inserted, nil
}

// extractQueryOrderBy unwraps the query/orderby or $query/$orderby
// envelope handleQuery and findAndModify both accept (spec §4.5).
func extractQueryOrderBy(queryObject Document) (query Document, orderby Document) {
	if q, ok := getField(queryObject, "query"); ok {
		qd, _ := q.(Document)
		ob, _ := getField(queryObject, "orderby")
		obd, _ := ob.(Document)
		return qd, obd
	}
	if q, ok := getField(queryObject, "$query"); ok {
		qd, _ := q.(Document)
		ob, _ := getField(queryObject, "$orderby")
		obd, _ := ob.(Document)
		return qd, obd
	}
	return queryObject, nil
}

func sortByOrderBy(docs []Document, orderby Document) {
	if len(orderby) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, e := range orderby {
			dir := int(asFloat64(e.Value))
			vi, _ := PathGet(docs[i], e.Key)
			vj, _ := PathGet(docs[j], e.Key)
			cmp := Compare(vi, vj)
			if cmp == 0 {
				continue
			}
			if dir < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func truthy(v Value) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		if isNumericKind(KindOf(v)) {
			return asFloat64(v) != 0
		}
		return true
	}
}

// projectDocument copies each truthy-included field of selector from doc
// via dotted path, implicitly including the identifier unless the
// selector explicitly names it (spec §4.5).
func projectDocument(doc Document, selector Document, idField string) Document {
	out := Document{}
	includedID := false
	for _, e := range selector {
		if !truthy(e.Value) {
			continue
		}
		if e.Key == idField {
			includedID = true
		}
		v, found := PathGet(doc, e.Key)
		if !found {
			continue
		}
		newOut, err := PathSet(out, e.Key, v, NoMatchPosition())
		if err == nil {
			out = newOut
		}
	}
	if !includedID {
		if id, ok := getField(doc, idField); ok {
			out = setFieldOrdered(out, idField, id)
		}
	}
	return out
}

func (c *collectionImpl) matchingDocs(ctx context.Context, query Document) ([]StoreKey, []Document, error) {
	keys, err := c.candidates(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	var mk []StoreKey
	var docs []Document
	for _, k := range keys {
		doc, ok, err := c.store.Get(ctx, k)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if matched, _ := Match(doc, query); matched {
			mk = append(mk, k)
			docs = append(docs, doc)
		}
	}
	return mk, docs, nil
}

func (c *collectionImpl) HandleQuery(ctx context.Context, queryObject Document, skip, limit int, fieldSelector Document) ([]Document, error) {
	query, orderby := extractQueryOrderBy(queryObject)
	if n, _ := c.store.Len(ctx); n == 0 {
		return []Document{}, nil
	}

	_, docs, err := c.matchingDocs(ctx, query)
	if err != nil {
		return nil, err
	}
	sortByOrderBy(docs, orderby)

	if skip > 0 {
		if skip >= len(docs) {
			docs = nil
		} else {
			docs = docs[skip:]
		}
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}

	if fieldSelector != nil {
		projected := make([]Document, len(docs))
		for i, d := range docs {
			projected[i] = projectDocument(d, fieldSelector, c.idField)
		}
		docs = projected
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

// applyUpdateLocked runs the Update Engine's atomicity contract (spec
// §4.4): compute the candidate next state against the snapshot already
// held in current, check every index before writing, then swap.
func (c *collectionImpl) applyUpdateLocked(ctx context.Context, key StoreKey, current Document, update Document, pos *MatchPosition, isInsert bool) (Document, error) {
	lock := c.docLocks.acquire(canonicalKey(key))
	defer lock.Unlock()

	newDoc, err := ApplyUpdate(current, update, pos, c.idField, isInsert)
	if err != nil {
		return nil, err
	}
	if err := c.indexes.CheckUpdate(current, newDoc); err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, key, newDoc); err != nil {
		return nil, err
	}
	c.indexes.UpdateInPlace(current, newDoc)

	if ce := c.log.Check(zap.DebugLevel, "document updated"); ce != nil {
		patch, diffErr := diffDocuments(current, newDoc)
		if diffErr == nil {
			ce.Write(zap.String("ns", c.ns()), zap.ByteString("patch", patch))
		}
	}
	return newDoc, nil
}

func containsQueryExpression(v Value) bool {
	d, ok := v.(Document)
	return ok && isOperatorDoc(d)
}

func buildUpsertSeed(selector Document) Document {
	seed := Document{}
	for _, e := range selector {
		if isDollarPrefixed(e.Key) || containsQueryExpression(e.Value) {
			continue
		}
		seed = setFieldOrdered(seed, e.Key, cloneValue(e.Value))
	}
	return seed
}

// derivedIdentifier finds a concrete identifier value named by selector,
// and reports whether the selector pinned it to one concrete value (as
// opposed to leaving it to a $in list, which upsert must report via
// "upserted"; spec §4.5).
func derivedIdentifier(selector Document, idField string) (Value, bool) {
	v, ok := getField(selector, idField)
	if !ok {
		return nil, false
	}
	if d, isDoc := v.(Document); isDoc {
		if inVal, ok := getField(d, "$in"); ok {
			if arr, ok := inVal.(Array); ok && len(arr) > 0 {
				return arr[0], false
			}
		}
		if eqVal, ok := getField(d, "$eq"); ok {
			return eqVal, true
		}
		return nil, false
	}
	return v, true
}

// doUpsert runs the upsert procedure of spec §4.5: synthesize a seed from
// selector, apply update to it, derive or generate an identifier, and
// insert. Returns the inserted document and, when the selector did not
// pin the identifier, the identifier to report as "upserted".
func (c *collectionImpl) doUpsert(ctx context.Context, selector, update Document) (Document, Value, error) {
	seed := buildUpsertSeed(selector)
	newDoc, err := ApplyUpdate(seed, update, NoMatchPosition(), c.idField, true)
	if err != nil {
		return nil, nil, err
	}

	id, hasID := getField(newDoc, c.idField)
	var reportUpserted Value
	if !hasID || id == nil {
		derived, pinned := derivedIdentifier(selector, c.idField)
		if derived != nil {
			id = derived
			if !pinned {
				reportUpserted = derived
			}
		} else {
			id = generateIdentifier(c.opts.IdentifierScheme)
			reportUpserted = id
		}
		newDoc = setFieldOrdered(newDoc, c.idField, id)
	}

	if err := c.indexes.CheckAdd(newDoc); err != nil {
		return nil, nil, err
	}
	if err := c.store.Put(ctx, id, newDoc); err != nil {
		return nil, nil, err
	}
	c.indexes.AddAll(newDoc, id)
	return newDoc, reportUpserted, nil
}

func updateResult(n int, updatedExisting bool, upserted Value) Document {
	out := Document{
		{Key: "n", Value: n},
		{Key: "updatedExisting", Value: updatedExisting},
	}
	if upserted != nil {
		out = append(out, bson.E{Key: "upserted", Value: upserted})
	}
	return out
}

func (c *collectionImpl) UpdateDocuments(ctx context.Context, selector, update Document, isMulti, isUpsert bool) (Document, error) {
	if isMulti {
		hasPlain := false
		for _, e := range update {
			if !isDollarPrefixed(e.Key) {
				hasPlain = true
				break
			}
		}
		if hasPlain {
			return nil, newMultiUpdateError()
		}
	}

	c.structMu.Lock()
	defer c.structMu.Unlock()

	keys, docs, err := c.matchingDocs(ctx, selector)
	if err != nil {
		return nil, err
	}

	n := 0
	for i, k := range keys {
		_, pos := Match(docs[i], selector)
		if _, err := c.applyUpdateLocked(ctx, k, docs[i], update, pos, false); err != nil {
			return nil, err
		}
		n++
		if !isMulti {
			break
		}
	}

	if n == 0 && isUpsert {
		_, upserted, err := c.doUpsert(ctx, selector, update)
		if err != nil {
			return nil, err
		}
		return updateResult(1, false, upserted), nil
	}
	return updateResult(n, n > 0, nil), nil
}

func findAndModifyResult(value Document, updatedExisting bool, n int, upserted Value) Document {
	leo := Document{
		{Key: "updatedExisting", Value: updatedExisting},
		{Key: "n", Value: n},
	}
	if upserted != nil {
		leo = append(leo, bson.E{Key: "upserted", Value: upserted})
	}
	return Document{
		{Key: "value", Value: value},
		{Key: "lastErrorObject", Value: leo},
		{Key: "ok", Value: int32(1)},
	}
}

func (c *collectionImpl) FindAndModify(ctx context.Context, spec Document) (Document, error) {
	queryVal, _ := getField(spec, "query")
	query, _ := queryVal.(Document)
	sortVal, _ := getField(spec, "sort")
	sortDoc, _ := sortVal.(Document)
	remove, _ := getField(spec, "remove")
	update, _ := getField(spec, "update")
	updateDoc, _ := update.(Document)
	upsertFlag, _ := getField(spec, "upsert")
	newFlag, _ := getField(spec, "new")
	fieldsVal, hasFields := getField(spec, "fields")
	fieldsDoc, _ := fieldsVal.(Document)

	c.structMu.Lock()
	defer c.structMu.Unlock()

	_, docs, err := c.matchingDocs(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(sortDoc) > 0 {
		sortByOrderBy(docs, sortDoc)
	}

	if len(docs) > 0 {
		doc := docs[0]
		key, _ := getField(doc, c.idField)
		storeKey := key

		if truthy(remove) {
			lock := c.docLocks.acquire(canonicalKey(storeKey))
			if err := c.store.Delete(ctx, storeKey); err != nil {
				lock.Unlock()
				return nil, err
			}
			c.indexes.RemoveAll(doc)
			lock.Unlock()

			value := doc
			if hasFields {
				value = projectDocument(value, fieldsDoc, c.idField)
			}
			return findAndModifyResult(value, false, 1, nil), nil
		}

		_, pos := Match(doc, query)
		newDoc, err := c.applyUpdateLocked(ctx, storeKey, doc, updateDoc, pos, false)
		if err != nil {
			return nil, err
		}
		value := doc
		if truthy(newFlag) {
			value = newDoc
		}
		if hasFields {
			value = projectDocument(value, fieldsDoc, c.idField)
		}
		return findAndModifyResult(value, true, 1, nil), nil
	}

	if truthy(upsertFlag) {
		newDoc, upserted, err := c.doUpsert(ctx, query, updateDoc)
		if err != nil {
			return nil, err
		}
		var value Document
		if truthy(newFlag) {
			value = newDoc
			if hasFields {
				value = projectDocument(value, fieldsDoc, c.idField)
			}
		}
		return findAndModifyResult(value, false, 1, upserted), nil
	}

	return findAndModifyResult(nil, false, 0, nil), nil
}

func (c *collectionImpl) DeleteDocuments(ctx context.Context, selector Document, limit int) (int, error) {
	c.structMu.Lock()
	defer c.structMu.Unlock()

	keys, docs, err := c.matchingDocs(ctx, selector)
	if err != nil {
		return 0, err
	}

	count := 0
	for i, k := range keys {
		if limit > 0 && count >= limit {
			break
		}
		lock := c.docLocks.acquire(canonicalKey(k))
		if err := c.store.Delete(ctx, k); err != nil {
			lock.Unlock()
			return count, err
		}
		c.indexes.RemoveAll(docs[i])
		lock.Unlock()
		count++
	}
	return count, nil
}

func dedupeSortedValues(values []Value) []Value {
	out := values[:0:0]
	for i, v := range values {
		if i == 0 || !ValuesEqual(values[i-1], v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *collectionImpl) HandleDistinct(ctx context.Context, spec Document) (Document, error) {
	key, _ := getField(spec, "key")
	fieldName, _ := key.(string)
	queryVal, hasQuery := getField(spec, "query")
	query, _ := queryVal.(Document)
	if !hasQuery {
		query = Document{}
	}

	_, docs, err := c.matchingDocs(ctx, query)
	if err != nil {
		return nil, err
	}

	var values []Value
	for _, doc := range docs {
		v, found := PathGet(doc, fieldName)
		if !found {
			continue
		}
		if arr, ok := v.(Array); ok {
			values = append(values, arr...)
		} else {
			values = append(values, v)
		}
	}
	sort.Slice(values, func(i, j int) bool { return Compare(values[i], values[j]) < 0 })
	values = dedupeSortedValues(values)
	if values == nil {
		values = []Value{}
	}
	return Document{
		{Key: "values", Value: Array(values)},
		{Key: "ok", Value: int32(1)},
	}, nil
}

func (c *collectionImpl) Count(ctx context.Context, query ...Document) (int, error) {
	if len(query) == 0 || query[0] == nil {
		return c.store.Len(ctx)
	}
	_, docs, err := c.matchingDocs(ctx, query[0])
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (c *collectionImpl) AddIndex(ix Index) {
	c.indexes.AddIndex(ix)
}

func (c *collectionImpl) GetStats(ctx context.Context) (Document, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return nil, err
	}
	names, _, sizes := c.indexes.Stats()
	totalSize := c.indexes.PrimaryDataSize()

	var avgObjSize int64
	if n > 0 {
		avgObjSize = totalSize / int64(n)
	}

	indexSize := Document{}
	for _, name := range names {
		indexSize = append(indexSize, bson.E{Key: name, Value: sizes[name]})
	}

	return Document{
		{Key: "ns", Value: c.ns()},
		{Key: "count", Value: n},
		{Key: "size", Value: totalSize},
		{Key: "avgObjSize", Value: avgObjSize},
		{Key: "storageSize", Value: int64(0)},
		{Key: "numExtents", Value: int32(0)},
		{Key: "nindexes", Value: c.indexes.Len()},
		{Key: "indexSize", Value: indexSize},
		{Key: "ok", Value: int32(1)},
	}, nil
}

func (c *collectionImpl) Validate(ctx context.Context) (Document, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return nil, err
	}
	names, counts, _ := c.indexes.Stats()

	keysPerIndex := Document{}
	for _, name := range names {
		keysPerIndex = append(keysPerIndex, bson.E{Key: name, Value: counts[name]})
	}

	return Document{
		{Key: "ns", Value: c.ns()},
		{Key: "extentCount", Value: int32(0)},
		{Key: "datasize", Value: c.indexes.PrimaryDataSize()},
		{Key: "nrecords", Value: n},
		{Key: "padding", Value: 1},
		{Key: "deletedCount", Value: int32(0)},
		{Key: "deletedSize", Value: int64(0)},
		{Key: "nIndexes", Value: c.indexes.Len()},
		{Key: "keysPerIndex", Value: keysPerIndex},
		{Key: "valid", Value: true},
		{Key: "errors", Value: Array{}},
		{Key: "ok", Value: int32(1)},
	}, nil
}
