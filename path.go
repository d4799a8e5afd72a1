package memcore

import (
	"strconv"
	"strings"
)

// MatchPosition is the single-shot cell the Query Matcher binds with the
// array index of the first array-traversing clause that matched, and the
// Update Engine consumes when a path contains a positional '$' segment.
//
// It is owned by one update call frame (spec §4.2, §9 "match-position
// single-shot"): Take clears the binding so the same position can never be
// reused across two '$' segments in the same update, or across documents.
type MatchPosition struct {
	bound bool
	value int
	taken bool
}

// NoMatchPosition is an unbound position: any '$' segment resolved
// against it fails with ErrPositionalWithoutMatch.
func NoMatchPosition() *MatchPosition {
	return &MatchPosition{}
}

// NewMatchPosition binds idx as the match position.
func NewMatchPosition(idx int) *MatchPosition {
	return &MatchPosition{bound: true, value: idx}
}

// Take consumes the bound position, if any. A second call (or a call on an
// unbound/already-consumed cell) reports ok=false.
func (m *MatchPosition) Take() (idx int, ok bool) {
	if m == nil || !m.bound || m.taken {
		return 0, false
	}
	m.taken = true
	return m.value, true
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// PathGet resolves path against doc. Reading into an array with a
// non-numeric segment treats the array as a sequence of documents and
// gathers the segment's value across every element that has it (absent
// if none do), mirroring MongoDB's dotted-path-into-array-of-documents
// semantics.
func PathGet(doc Document, path string) (Value, bool) {
	return getAt(doc, splitPath(path))
}

// PathHas distinguishes an absent field from one explicitly set to null.
func PathHas(doc Document, path string) bool {
	_, ok := PathGet(doc, path)
	return ok
}

// PathSet assigns value at path within doc, autovivifying intermediate
// documents and overwriting non-container intermediates with a fresh
// document holding the remainder of the path (spec §4.2).
func PathSet(doc Document, path string, value Value, mp *MatchPosition) (Document, error) {
	result, err := setAt(doc, splitPath(path), value, mp)
	if err != nil {
		return doc, err
	}
	out, _ := result.(Document)
	return out, nil
}

// PathRemove deletes the value at path: an array terminal removes the
// element at that index and shifts the remainder left; a document
// terminal deletes the field. Reports whether anything was removed.
func PathRemove(doc Document, path string, mp *MatchPosition) (Document, bool, error) {
	result, removed, err := removeAt(doc, splitPath(path), mp)
	if err != nil {
		return doc, false, err
	}
	out, _ := result.(Document)
	return out, removed, nil
}

func resolveSegment(seg string, mp *MatchPosition) (string, error) {
	if seg != "$" {
		return seg, nil
	}
	idx, ok := mp.Take()
	if !ok {
		return "", newPositionalError()
	}
	return strconv.Itoa(idx), nil
}

func getAt(container Value, segs []string) (Value, bool) {
	seg := segs[0]
	rest := segs[1:]

	switch c := container.(type) {
	case Document:
		v, found := getField(c, seg)
		if !found {
			return nil, false
		}
		if len(rest) == 0 {
			return v, true
		}
		return getAt(v, rest)

	case Array:
		if idx, ok := parseArrayIndex(seg); ok {
			if idx < 0 || idx >= len(c) {
				return nil, false
			}
			if len(rest) == 0 {
				return c[idx], true
			}
			return getAt(c[idx], rest)
		}
		// Array-as-map (read-only, spec §4.2): gather the remaining
		// path across every document element that has it.
		var gathered Array
		full := append([]string{seg}, rest...)
		for _, el := range c {
			if d, ok := el.(Document); ok {
				if v, found := getAt(d, full); found {
					gathered = append(gathered, v)
				}
			}
		}
		if len(gathered) == 0 {
			return nil, false
		}
		return gathered, true

	default:
		return nil, false
	}
}

func setAt(container Value, segs []string, value Value, mp *MatchPosition) (Value, error) {
	seg, err := resolveSegment(segs[0], mp)
	if err != nil {
		return container, err
	}
	rest := segs[1:]

	switch c := container.(type) {
	case Array:
		idx, isIdx := parseArrayIndex(seg)
		if !isIdx {
			return nil, &CoreError{Message: "cannot set field name " + strconv.Quote(seg) + " on an array"}
		}
		arr := c
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		if len(rest) == 0 {
			arr[idx] = value
			return arr, nil
		}
		child := arr[idx]
		if child != nil && !IsDocument(child) && !IsArray(child) {
			child = nil
		}
		newChild, err := setAt(child, rest, value, mp)
		if err != nil {
			return arr, err
		}
		arr[idx] = newChild
		return arr, nil

	case Document:
		doc := c
		if len(rest) == 0 {
			return setFieldOrdered(doc, seg, value), nil
		}
		existing, found := getField(doc, seg)
		var child Value
		if found && (IsDocument(existing) || IsArray(existing)) {
			child = existing
		}
		newChild, err := setAt(child, rest, value, mp)
		if err != nil {
			return doc, err
		}
		return setFieldOrdered(doc, seg, newChild), nil

	default:
		// nil or a non-container intermediate: autovivify a fresh
		// document holding the remainder of the path.
		return setAt(Document{}, segs, value, mp)
	}
}

func removeAt(container Value, segs []string, mp *MatchPosition) (Value, bool, error) {
	seg, err := resolveSegment(segs[0], mp)
	if err != nil {
		return container, false, err
	}
	rest := segs[1:]

	switch c := container.(type) {
	case Document:
		if len(rest) == 0 {
			out, removed := removeField(c, seg)
			return out, removed, nil
		}
		v, found := getField(c, seg)
		if !found {
			return c, false, nil
		}
		newChild, removed, err := removeAt(v, rest, mp)
		if err != nil || !removed {
			return c, removed, err
		}
		return setFieldOrdered(c, seg, newChild), true, nil

	case Array:
		idx, ok := parseArrayIndex(seg)
		if !ok || idx < 0 || idx >= len(c) {
			return c, false, nil
		}
		if len(rest) == 0 {
			out := make(Array, 0, len(c)-1)
			out = append(out, c[:idx]...)
			out = append(out, c[idx+1:]...)
			return out, true, nil
		}
		newChild, removed, err := removeAt(c[idx], rest, mp)
		if err != nil || !removed {
			return c, removed, err
		}
		c[idx] = newChild
		return c, true, nil

	default:
		return c, false, nil
	}
}
