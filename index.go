package memcore

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// StoreKey is the opaque key a DocumentStore uses to address a document.
// Every index maps query predicates to candidate StoreKeys without needing
// to know how the store itself represents them.
type StoreKey = Value

// Index is one secondary index tracked by a Collection's Index Set. At
// minimum the identifier field is indexed (unique); a Collection may add
// further indexes with AddIndex.
//
// check_update/update_in_place/remove run inside the Collection's
// per-document critical section (spec §5); check_add/add run under the
// collection-level mutation lock only. Check methods must be side-effect
// free so a failed check leaves the index untouched.
type Index interface {
	Name() string
	// CanHandle reports whether this index can narrow the candidate set
	// for query; a false result means "no help", not "no match".
	CanHandle(query Document) bool
	// Keys returns the candidate store keys query could match, according
	// to this index alone. A false bool means "didn't narrow"; a nil or
	// empty slice with true means no document can match.
	Keys(query Document) ([]StoreKey, bool)
	CheckAdd(doc Document) error
	Add(doc Document, key StoreKey)
	CheckUpdate(old, new Document) error
	UpdateInPlace(old, new Document)
	// Remove reports the store key the removed document was filed under,
	// if this index had an entry for it.
	Remove(doc Document) (StoreKey, bool)
	Count() int
	DataSize() int64
}

// canonicalKey renders v as a string that uniquely identifies its value
// for use as a Go map key, since bson.D/bson.A are not comparable. Two
// Values compare equal under ValuesEqual iff their canonicalKey agree for
// every kind this store actually indexes (scalars, and — for completeness —
// documents/arrays, though identifiers are never array-kinded per spec §3).
func canonicalKey(v Value) string {
	v = normalizeScalar(v)
	if isNumericKind(KindOf(v)) {
		// Numbers are keyed by the float64 value Compare orders them by,
		// so int32(1), int64(1) and 1.0 share one key.
		f := asFloat64(v)
		if f == 0 {
			f = 0 // fold -0 into 0
		}
		return "num:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch t := v.(type) {
	case nil:
		return "n:"
	case Document:
		s := "d:{"
		for _, e := range t {
			s += e.Key + "=" + canonicalKey(e.Value) + ","
		}
		return s + "}"
	case Array:
		s := "a:["
		for _, e := range t {
			s += canonicalKey(e) + ","
		}
		return s + "]"
	default:
		return fmt.Sprintf("%v:%v", KindOf(v), t)
	}
}

// IdentifierIndex enforces the collection's uniqueness invariant on its
// identifier field (spec §3: "no two documents in a collection share an
// identifier value").
type IdentifierIndex struct {
	mu    sync.RWMutex
	field string
	byKey map[string]StoreKey
	size  int64
}

// NewIdentifierIndex builds the mandatory unique index on field.
func NewIdentifierIndex(field string) *IdentifierIndex {
	return &IdentifierIndex{field: field, byKey: make(map[string]StoreKey)}
}

func (ix *IdentifierIndex) Name() string { return "identifier:" + ix.field }

func (ix *IdentifierIndex) CanHandle(query Document) bool {
	v, ok := getField(query, ix.field)
	if !ok {
		return false
	}
	switch d := v.(type) {
	case Document:
		return isOperatorDoc(d) && hasOnlyOperators(d, "$eq", "$in")
	default:
		return true
	}
}

func hasOnlyOperators(d Document, allowed ...string) bool {
	for _, e := range d {
		ok := false
		for _, a := range allowed {
			if e.Key == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (ix *IdentifierIndex) Keys(query Document) ([]StoreKey, bool) {
	v, ok := getField(query, ix.field)
	if !ok {
		return nil, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lookup := func(val Value) ([]StoreKey, bool) {
		if k, ok := ix.byKey[canonicalKey(val)]; ok {
			return []StoreKey{k}, true
		}
		return []StoreKey{}, true
	}

	switch d := v.(type) {
	case Document:
		if eqVal, ok := getField(d, "$eq"); ok {
			return lookup(eqVal)
		}
		if inVal, ok := getField(d, "$in"); ok {
			arr, _ := inVal.(Array)
			out := make([]StoreKey, 0, len(arr))
			for _, cand := range arr {
				if k, ok := ix.byKey[canonicalKey(cand)]; ok {
					out = append(out, k)
				}
			}
			return out, true
		}
		return nil, false
	default:
		return lookup(v)
	}
}

func (ix *IdentifierIndex) CheckAdd(doc Document) error {
	v, ok := getField(doc, ix.field)
	if !ok || v == nil {
		return &CoreError{Message: "document is missing identifier field " + ix.field}
	}
	if IsArray(v) {
		return &CoreError{Message: "identifier field " + ix.field + " may not be an array"}
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if _, exists := ix.byKey[canonicalKey(v)]; exists {
		return &CoreError{Message: "duplicate key for " + ix.field, Sentinel: ErrDuplicateKey}
	}
	return nil
}

func (ix *IdentifierIndex) Add(doc Document, key StoreKey) {
	v, _ := getField(doc, ix.field)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byKey[canonicalKey(v)] = key
	ix.size += estimateSize(doc)
}

func (ix *IdentifierIndex) CheckUpdate(old, new Document) error {
	oldV, _ := getField(old, ix.field)
	newV, _ := getField(new, ix.field)
	if !ValuesEqual(oldV, newV) {
		return newCannotChangeIdError()
	}
	return nil
}

func (ix *IdentifierIndex) UpdateInPlace(old, new Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.size += estimateSize(new) - estimateSize(old)
}

func (ix *IdentifierIndex) Remove(doc Document) (StoreKey, bool) {
	v, ok := getField(doc, ix.field)
	if !ok {
		return nil, false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k, ok := ix.byKey[canonicalKey(v)]
	if ok {
		delete(ix.byKey, canonicalKey(v))
		ix.size -= estimateSize(doc)
	}
	return k, ok
}

func (ix *IdentifierIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKey)
}

func (ix *IdentifierIndex) DataSize() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// FieldIndex is a non-unique secondary index over a single dotted field
// path, supporting equality and $in narrowing. Collections add these with
// AddIndex to speed up handleQuery over frequently filtered fields.
type FieldIndex struct {
	mu      sync.RWMutex
	field   string
	idField string
	byVal   map[string][]StoreKey
	size    int64
}

// NewFieldIndex builds a secondary index over field. idField names the
// collection's identifier field, used internally to find the exact entry
// to remove when several documents share the same indexed value.
func NewFieldIndex(field, idField string) *FieldIndex {
	return &FieldIndex{field: field, idField: idField, byVal: make(map[string][]StoreKey)}
}

func (ix *FieldIndex) Name() string { return "field:" + ix.field }

func (ix *FieldIndex) CanHandle(query Document) bool {
	v, ok := getField(query, ix.field)
	if !ok {
		return false
	}
	if d, ok := v.(Document); ok {
		return isOperatorDoc(d) && hasOnlyOperators(d, "$eq", "$in")
	}
	return true
}

func (ix *FieldIndex) Keys(query Document) ([]StoreKey, bool) {
	v, ok := getField(query, ix.field)
	if !ok {
		return nil, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	values := []Value{v}
	if d, ok := v.(Document); ok {
		if eqVal, ok := getField(d, "$eq"); ok {
			values = []Value{eqVal}
		} else if inVal, ok := getField(d, "$in"); ok {
			arr, _ := inVal.(Array)
			values = arr
		} else {
			return nil, false
		}
	}

	seen := make(map[string]struct{})
	var out []StoreKey
	for _, val := range values {
		for _, k := range ix.byVal[canonicalKey(val)] {
			ck := canonicalKey(k)
			if _, dup := seen[ck]; dup {
				continue
			}
			seen[ck] = struct{}{}
			out = append(out, k)
		}
	}
	if out == nil {
		out = []StoreKey{}
	}
	return out, true
}

func (ix *FieldIndex) CheckAdd(doc Document) error { return nil }

func (ix *FieldIndex) Add(doc Document, key StoreKey) {
	v, _ := PathGet(doc, ix.field)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ck := canonicalKey(v)
	ix.byVal[ck] = append(ix.byVal[ck], key)
	ix.size += estimateSize(doc)
}

func (ix *FieldIndex) CheckUpdate(old, new Document) error { return nil }

func (ix *FieldIndex) UpdateInPlace(old, new Document) {
	oldV, _ := PathGet(old, ix.field)
	newV, _ := PathGet(new, ix.field)
	if ValuesEqual(oldV, newV) {
		ix.mu.Lock()
		ix.size += estimateSize(new) - estimateSize(old)
		ix.mu.Unlock()
		return
	}
	key, ok := ix.Remove(old)
	if ok {
		ix.Add(new, key)
	}
}

func (ix *FieldIndex) Remove(doc Document) (StoreKey, bool) {
	v, _ := PathGet(doc, ix.field)
	id, _ := getField(doc, ix.idField)
	wantKey := canonicalKey(id)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ck := canonicalKey(v)
	keys := ix.byVal[ck]
	for i, k := range keys {
		if canonicalKey(k) != wantKey {
			continue
		}
		ix.byVal[ck] = append(keys[:i:i], keys[i+1:]...)
		ix.size -= estimateSize(doc)
		return k, true
	}
	return nil, false
}

func (ix *FieldIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, keys := range ix.byVal {
		n += len(keys)
	}
	return n
}

func (ix *FieldIndex) DataSize() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// estimateSize approximates a document's storage footprint for data_size
// accounting (spec §3). Exact byte-for-byte accounting is not required by
// the core; a monotone, cheap-to-compute proxy is sufficient.
func estimateSize(doc Document) int64 {
	return int64(len(canonicalKey(doc)))
}

// IndexSet is the ordered list of indexes a Collection maintains. Its own
// mutex guards structural changes (AddIndex) separately from document
// mutation (spec §5: "index list mutation is protected by its own lock").
type IndexSet struct {
	mu      sync.RWMutex
	indexes []Index
}

// NewIndexSet builds an IndexSet whose first, mandatory member is the
// unique identifier index.
func NewIndexSet(idField string) *IndexSet {
	return &IndexSet{indexes: []Index{NewIdentifierIndex(idField)}}
}

// AddIndex appends a secondary index. Safe to call concurrently with
// readers of the index list; per spec §9, concurrent addIndex during
// active queries is treated as a setup-only operation and not hardened
// against races with in-flight mutations.
func (s *IndexSet) AddIndex(ix Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = append(s.indexes, ix)
}

func (s *IndexSet) list() []Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Index, len(s.indexes))
	copy(out, s.indexes)
	return out
}

// CandidateKeys narrows query to a candidate set of store keys using
// whichever indexes CanHandle it, intersecting their results. A nil slice
// with ok=false means no index narrowed the query at all, so the
// Collection must fall back to a full scan.
func (s *IndexSet) CandidateKeys(query Document) ([]StoreKey, bool) {
	var narrowed []StoreKey
	any := false
	for _, ix := range s.list() {
		if !ix.CanHandle(query) {
			continue
		}
		keys, ok := ix.Keys(query)
		if !ok {
			continue
		}
		if !any {
			narrowed = keys
			any = true
			continue
		}
		narrowed = intersectKeys(narrowed, keys)
	}
	return narrowed, any
}

func intersectKeys(a, b []StoreKey) []StoreKey {
	set := make(map[string]struct{}, len(b))
	for _, k := range b {
		set[canonicalKey(k)] = struct{}{}
	}
	out := make([]StoreKey, 0, len(a))
	for _, k := range a {
		if _, ok := set[canonicalKey(k)]; ok {
			out = append(out, k)
		}
	}
	return out
}

// CheckAdd runs check_add on every index; the first failure aborts (no
// index has been mutated yet).
func (s *IndexSet) CheckAdd(doc Document) error {
	for _, ix := range s.list() {
		if err := ix.CheckAdd(doc); err != nil {
			return err
		}
	}
	return nil
}

// AddAll runs add on every index, in list order (spec §5).
func (s *IndexSet) AddAll(doc Document, key StoreKey) {
	for _, ix := range s.list() {
		ix.Add(doc, key)
	}
}

// CheckUpdate runs check_update on every index; the first failure aborts.
func (s *IndexSet) CheckUpdate(old, new Document) error {
	for _, ix := range s.list() {
		if err := ix.CheckUpdate(old, new); err != nil {
			return err
		}
	}
	return nil
}

// UpdateInPlace runs update_in_place on every index, in list order.
func (s *IndexSet) UpdateInPlace(old, new Document) {
	for _, ix := range s.list() {
		ix.UpdateInPlace(old, new)
	}
}

// RemoveAll runs remove on every index, returning the primary (identifier
// index's) store key if found.
func (s *IndexSet) RemoveAll(doc Document) (StoreKey, bool) {
	var primary StoreKey
	found := false
	for _, ix := range s.list() {
		if k, ok := ix.Remove(doc); ok && !found {
			primary = k
			found = true
		}
	}
	return primary, found
}

// Stats reports per-index document counts and byte sizes, with names
// sorted alphabetically (used by getStats/validate, spec §6).
func (s *IndexSet) Stats() (names []string, counts map[string]int, sizes map[string]int64) {
	counts = make(map[string]int)
	sizes = make(map[string]int64)
	for _, ix := range s.list() {
		names = append(names, ix.Name())
		counts[ix.Name()] = ix.Count()
		sizes[ix.Name()] = ix.DataSize()
	}
	sort.Strings(names)
	return names, counts, sizes
}

// Len reports how many indexes are registered.
func (s *IndexSet) Len() int {
	return len(s.list())
}

// PrimaryDataSize reports the data size tracked by the mandatory identifier
// index, which every live document passes through exactly once — the
// aggregate figure getStats/validate report as the collection's size.
func (s *IndexSet) PrimaryDataSize() int64 {
	list := s.list()
	if len(list) == 0 {
		return 0
	}
	return list[0].DataSize()
}
