package memcore

import (
	"regexp"
	"strings"
)

// fieldOccurrence is one resolved location a query path reaches inside a
// candidate document. A single path can reach more than one occurrence
// when it crosses an array: spec §4.3 requires trying the predicate
// against both "the array as a whole" and "each element of the array",
// and capturing the index of the first element that satisfies it.
type fieldOccurrence struct {
	value      Value
	exists     bool
	arrayIndex int // -1 unless this occurrence came from a specific array element
}

// collectOccurrences walks segs against container, broadcasting across
// arrays encountered mid-path or at the terminal segment.
func collectOccurrences(container Value, segs []string, exists bool) []fieldOccurrence {
	if len(segs) == 0 {
		occs := []fieldOccurrence{{value: container, exists: exists, arrayIndex: -1}}
		if arr, ok := container.(Array); ok {
			for i, el := range arr {
				occs = append(occs, fieldOccurrence{value: el, exists: true, arrayIndex: i})
			}
		}
		return occs
	}

	seg := segs[0]
	rest := segs[1:]

	switch c := container.(type) {
	case Document:
		v, found := getField(c, seg)
		if !found {
			return []fieldOccurrence{{value: nil, exists: false, arrayIndex: -1}}
		}
		return collectOccurrences(v, rest, true)

	case Array:
		if idx, ok := parseArrayIndex(seg); ok {
			if idx < 0 || idx >= len(c) {
				return []fieldOccurrence{{value: nil, exists: false, arrayIndex: -1}}
			}
			return collectOccurrences(c[idx], rest, true)
		}
		var out []fieldOccurrence
		full := append([]string{seg}, rest...)
		for i, el := range c {
			for _, o := range collectOccurrences(el, full, true) {
				o.arrayIndex = i
				out = append(out, o)
			}
		}
		if len(out) == 0 {
			out = []fieldOccurrence{{value: nil, exists: false, arrayIndex: -1}}
		}
		return out

	default:
		return []fieldOccurrence{{value: nil, exists: false, arrayIndex: -1}}
	}
}

type matchState struct {
	pos *int
}

func (st *matchState) capture(idx int, hasIdx bool) {
	if hasIdx && st.pos == nil {
		p := idx
		st.pos = &p
	}
}

// Match evaluates query (a conjunction over its top-level clauses) against
// doc. It returns whether the query matched and, if it matched via an
// array-traversing clause, the MatchPosition bound to the index of the
// first such clause's matching element (spec §4.3).
func Match(doc Document, query Document) (bool, *MatchPosition) {
	st := &matchState{}
	if !evalQuery(doc, query, st) {
		return false, NoMatchPosition()
	}
	if st.pos != nil {
		return true, NewMatchPosition(*st.pos)
	}
	return true, NoMatchPosition()
}

func evalQuery(doc Document, query Document, st *matchState) bool {
	for _, e := range query {
		if !evalTopClause(doc, e.Key, e.Value, st) {
			return false
		}
	}
	return true
}

func asSubqueries(v Value) []Document {
	arr, _ := v.(Array)
	out := make([]Document, 0, len(arr))
	for _, v := range arr {
		if d, ok := v.(Document); ok {
			out = append(out, d)
		}
	}
	return out
}

func evalTopClause(doc Document, key string, val Value, st *matchState) bool {
	switch key {
	case "$and":
		for _, sub := range asSubqueries(val) {
			if !evalQuery(doc, sub, st) {
				return false
			}
		}
		return true
	case "$or":
		for _, sub := range asSubqueries(val) {
			if evalQuery(doc, sub, st) {
				return true
			}
		}
		return false
	case "$nor":
		for _, sub := range asSubqueries(val) {
			if evalQuery(doc, sub, st) {
				return false
			}
		}
		return true
	default:
		occs := collectOccurrences(doc, splitPath(key), true)
		matched, idx, hasIdx := evalPredicate(occs, val)
		if matched {
			st.capture(idx, hasIdx)
		}
		return matched
	}
}

func isOperatorDoc(d Document) bool {
	if len(d) == 0 {
		return false
	}
	for _, e := range d {
		if !isDollarPrefixed(e.Key) {
			return false
		}
	}
	return true
}

func evalPredicate(occs []fieldOccurrence, predValue Value) (bool, int, bool) {
	if d, ok := predValue.(Document); ok && isOperatorDoc(d) {
		return evalOperatorDoc(occs, d)
	}
	return evalEqualityOccs(occs, predValue)
}

func evalEqualityOccs(occs []fieldOccurrence, rhs Value) (bool, int, bool) {
	matched := false
	idx := -1
	for _, o := range occs {
		if ValuesEqual(o.value, rhs) {
			matched = true
			if o.arrayIndex >= 0 && idx == -1 {
				idx = o.arrayIndex
			}
		}
	}
	return matched, idx, idx >= 0
}

func evalInOccs(occs []fieldOccurrence, candidates Array) (bool, int, bool) {
	matched := false
	idx := -1
	for _, o := range occs {
		for _, cand := range candidates {
			if ValuesEqual(o.value, cand) {
				matched = true
				if o.arrayIndex >= 0 && idx == -1 {
					idx = o.arrayIndex
				}
				break
			}
		}
	}
	return matched, idx, idx >= 0
}

var simpleComparisonOps = map[string]bool{
	"$eq": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$mod": true, "$regex": true, "$options": true, "$type": true,
}

// evalOperatorDoc evaluates an operator-document predicate (e.g.
// {$gte: 1, $lte: 10}, {$exists: true}, {$elemMatch: {...}}) against the
// occurrences a query path resolved to.
func evalOperatorDoc(occs []fieldOccurrence, opDoc Document) (bool, int, bool) {
	var whole fieldOccurrence
	haveWhole := false
	for _, o := range occs {
		if o.arrayIndex == -1 {
			whole = o
			haveWhole = true
			break
		}
	}

	simpleKeys := make(Document, 0, len(opDoc))
	for _, e := range opDoc {
		if simpleComparisonOps[e.Key] {
			simpleKeys = append(simpleKeys, e)
		}
	}

	simpleMatched := true
	simpleIdx := -1
	simpleHasIdx := false
	if len(simpleKeys) > 0 {
		simpleMatched = false
		for _, o := range occs {
			if simpleOpsMatch(o, simpleKeys) {
				simpleMatched = true
				if o.arrayIndex >= 0 && simpleIdx == -1 {
					simpleIdx = o.arrayIndex
				}
			}
		}
		simpleHasIdx = simpleIdx >= 0
	}

	overall := simpleMatched
	capturedIdx, capturedHas := simpleIdx, simpleHasIdx

	for _, e := range opDoc {
		switch e.Key {
		case "$ne":
			eqMatched, _, _ := evalEqualityOccs(occs, e.Value)
			overall = overall && !eqMatched
		case "$nin":
			arr, _ := e.Value.(Array)
			inMatched, _, _ := evalInOccs(occs, arr)
			overall = overall && !inMatched
		case "$exists":
			want, _ := e.Value.(bool)
			anyExists := false
			for _, o := range occs {
				if o.exists {
					anyExists = true
					break
				}
			}
			overall = overall && (anyExists == want)
		case "$all":
			want, _ := e.Value.(Array)
			arr, isArr := Value(nil), false
			if haveWhole {
				arr, isArr = whole.value, IsArray(whole.value)
			}
			if !isArr {
				overall = false
				continue
			}
			all := true
			for _, w := range want {
				found := false
				for _, el := range arr.(Array) {
					if ValuesEqual(el, w) {
						found = true
						break
					}
				}
				if !found {
					all = false
					break
				}
			}
			overall = overall && all
		case "$size":
			n := int(asFloat64(e.Value))
			if !haveWhole || !IsArray(whole.value) || len(whole.value.(Array)) != n {
				overall = false
			}
		case "$not":
			inner, _ := e.Value.(Document)
			innerMatched, _, _ := evalPredicate(occs, inner)
			overall = overall && !innerMatched
		case "$elemMatch":
			sub, _ := e.Value.(Document)
			if !haveWhole || !IsArray(whole.value) {
				overall = false
				continue
			}
			matchedIdx, ok := evalElemMatch(whole.value.(Array), sub)
			if !ok {
				overall = false
			} else if capturedIdx == -1 {
				capturedIdx, capturedHas = matchedIdx, true
			}
		}
	}

	return overall, capturedIdx, capturedHas
}

func evalElemMatch(arr Array, sub Document) (int, bool) {
	subIsOperatorDoc := isOperatorDoc(sub)
	for i, el := range arr {
		if d, ok := el.(Document); ok && !subIsOperatorDoc {
			if ok, _ := Match(d, sub); ok {
				return i, true
			}
			continue
		}
		occs := []fieldOccurrence{{value: el, exists: true, arrayIndex: -1}}
		if matched, _, _ := evalPredicate(occs, sub); matched {
			return i, true
		}
	}
	return 0, false
}

func simpleOpsMatch(o fieldOccurrence, ops Document) bool {
	options := ""
	for _, e := range ops {
		if e.Key == "$options" {
			options, _ = e.Value.(string)
		}
	}
	for _, e := range ops {
		switch e.Key {
		case "$eq":
			if !ValuesEqual(o.value, e.Value) {
				return false
			}
		case "$gt":
			if !o.exists || Compare(o.value, e.Value) <= 0 {
				return false
			}
		case "$gte":
			if !o.exists || Compare(o.value, e.Value) < 0 {
				return false
			}
		case "$lt":
			if !o.exists || Compare(o.value, e.Value) >= 0 {
				return false
			}
		case "$lte":
			if !o.exists || Compare(o.value, e.Value) > 0 {
				return false
			}
		case "$in":
			arr, _ := e.Value.(Array)
			found := false
			for _, cand := range arr {
				if ValuesEqual(o.value, cand) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$mod":
			arr, _ := e.Value.(Array)
			if len(arr) != 2 || !isNumericKind(KindOf(o.value)) {
				return false
			}
			div := int64(asFloat64(arr[0]))
			rem := int64(asFloat64(arr[1]))
			if div == 0 || int64(asFloat64(o.value))%div != rem {
				return false
			}
		case "$regex":
			pattern, _ := e.Value.(string)
			s, ok := o.value.(string)
			if !ok || !regexMatches(pattern, options, s) {
				return false
			}
		case "$type":
			if !typeMatches(o.value, o.exists, e.Value) {
				return false
			}
		}
	}
	return true
}

func regexMatches(pattern, options, s string) bool {
	prefix := ""
	for _, c := range options {
		switch c {
		case 'i', 'm', 's':
			prefix += string(c)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

var typeAliases = map[string]Kind{
	"double": KindDouble, "string": KindString, "object": KindDocument,
	"array": KindArray, "binData": KindBinary, "objectId": KindObjectID,
	"bool": KindBool, "date": KindDateTime, "null": KindNull,
	"int": KindInt32, "long": KindInt64, "timestamp": KindTimestamp,
	"number": -1, // special: matches any numeric kind
}

var typeCodeAliases = map[int]Kind{
	1: KindDouble, 2: KindString, 3: KindDocument, 4: KindArray,
	5: KindBinary, 7: KindObjectID, 8: KindBool, 9: KindDateTime,
	10: KindNull, 16: KindInt32, 17: KindTimestamp, 18: KindInt64,
}

func typeMatches(value Value, exists bool, typeSpec Value) bool {
	if !exists {
		return false
	}
	k := KindOf(value)
	switch t := typeSpec.(type) {
	case string:
		name := strings.TrimSpace(t)
		if name == "number" {
			return isNumericKind(k)
		}
		want, ok := typeAliases[name]
		return ok && want == k
	default:
		code := int(asFloat64(typeSpec))
		want, ok := typeCodeAliases[code]
		return ok && want == k
	}
}
