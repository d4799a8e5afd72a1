package memcore

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var knownOperators = map[string]bool{
	"$set": true, "$setOnInsert": true, "$unset": true,
	"$inc": true, "$mul": true, "$min": true, "$max": true,
	"$push": true, "$pushAll": true, "$addToSet": true,
	"$pull": true, "$pullAll": true, "$pop": true, "$currentDate": true,
}

func isIdentifierPath(path, idField string) bool {
	return path == idField || strings.HasPrefix(path, idField+".")
}

// ApplyUpdate computes the result of applying update to current, without
// mutating current. It dispatches on the shape of update's top-level keys
// (spec §4.4): all-$ is operator mode, none-$ is full replacement, mixed
// is ErrIllegalUpdate.
//
// pos is the single-shot MatchPosition the caller's Query Matcher bound;
// pass NoMatchPosition() when no query produced one. isInsert must be true
// only while synthesizing an upsert's inserted document, so that
// $setOnInsert fires and $set/etc. do not trip the "no-op on existing
// document" distinction.
func ApplyUpdate(current Document, update Document, pos *MatchPosition, idField string, isInsert bool) (Document, error) {
	hasDollar, hasPlain := false, false
	for _, e := range update {
		if isDollarPrefixed(e.Key) {
			hasDollar = true
		} else {
			hasPlain = true
		}
	}
	switch {
	case hasDollar && hasPlain:
		return nil, newIllegalUpdateError()
	case hasDollar:
		return applyOperatorUpdate(current, update, pos, idField, isInsert)
	default:
		return applyReplacement(current, update, idField)
	}
}

func applyReplacement(current Document, update Document, idField string) (Document, error) {
	newDoc := cloneDocument(update)
	if key, dup := hasDuplicateKeys(newDoc); dup {
		return nil, &CoreError{Message: "duplicate field name " + key + " in document"}
	}
	curId, curFound := getField(current, idField)
	newId, newFound := getField(newDoc, idField)
	if curFound && newFound && newId != nil && !ValuesEqual(curId, newId) {
		return nil, newCannotChangeIdError()
	}
	if curFound {
		newDoc = setFieldOrdered(newDoc, idField, cloneValue(curId))
	}
	return newDoc, nil
}

func applyOperatorUpdate(current Document, update Document, pos *MatchPosition, idField string, isInsert bool) (Document, error) {
	result := cloneDocument(current)
	for _, top := range update {
		opName := top.Key
		if !knownOperators[opName] {
			return nil, newModifierError("invalid modifier specified", opName)
		}
		changes, ok := top.Value.(Document)
		if !ok {
			return nil, newModifierError("modifier argument must be an object", opName)
		}
		if opName != "$unset" {
			for _, ch := range changes {
				if isDollarPrefixed(ch.Key) {
					return nil, newDollarFieldError(ch.Key)
				}
			}
		}
		for _, ch := range changes {
			if isIdentifierPath(ch.Key, idField) {
				return nil, newModOnIdError(ch.Key)
			}
			if err := applyOperator(&result, opName, ch.Key, ch.Value, pos, isInsert); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func applyOperator(doc *Document, op, path string, rhs Value, pos *MatchPosition, isInsert bool) error {
	switch op {
	case "$set":
		return setAndAssign(doc, path, cloneValue(rhs), pos)
	case "$setOnInsert":
		if !isInsert {
			return nil
		}
		return setAndAssign(doc, path, cloneValue(rhs), pos)
	case "$unset":
		newDoc, _, err := PathRemove(*doc, path, pos)
		if err != nil {
			return err
		}
		*doc = newDoc
		return nil
	case "$inc":
		return applyArithmetic(doc, path, rhs, pos, Add)
	case "$mul":
		return applyArithmetic(doc, path, rhs, pos, Mul)
	case "$min":
		return applyMinMax(doc, path, rhs, pos, true)
	case "$max":
		return applyMinMax(doc, path, rhs, pos, false)
	case "$push":
		return applyPush(doc, path, rhs, pos)
	case "$pushAll":
		return applyPushAll(doc, path, rhs, pos)
	case "$addToSet":
		return applyAddToSet(doc, path, rhs, pos)
	case "$pull":
		return applyPull(doc, path, rhs, pos)
	case "$pullAll":
		return applyPullAll(doc, path, rhs, pos)
	case "$pop":
		return applyPop(doc, path, rhs, pos)
	case "$currentDate":
		return applyCurrentDate(doc, path, rhs, pos)
	default:
		return newModifierError("invalid modifier specified", op)
	}
}

func setAndAssign(doc *Document, path string, value Value, pos *MatchPosition) error {
	newDoc, err := PathSet(*doc, path, value, pos)
	if err != nil {
		return err
	}
	*doc = newDoc
	return nil
}

func applyArithmetic(doc *Document, path string, rhs Value, pos *MatchPosition, op func(a, b Value) (Value, error)) error {
	current, found := PathGet(*doc, path)
	if !found {
		current = int32(0)
	}
	result, err := op(current, rhs)
	if err != nil {
		return err
	}
	return setAndAssign(doc, path, result, pos)
}

func applyMinMax(doc *Document, path string, rhs Value, pos *MatchPosition, isMin bool) error {
	current, found := PathGet(*doc, path)
	assign := !found
	if found {
		cmp := Compare(rhs, current)
		if isMin {
			assign = cmp < 0
		} else {
			assign = cmp > 0
		}
	}
	if !assign {
		return nil
	}
	return setAndAssign(doc, path, cloneValue(rhs), pos)
}

// eachValues expands a $push/$addToSet operand: either {$each: [...]} or a
// single value to append/add.
func eachValues(rhs Value) []Value {
	if d, ok := rhs.(Document); ok {
		if eachVal, ok := getField(d, "$each"); ok {
			arr, _ := eachVal.(Array)
			out := make([]Value, len(arr))
			for i, v := range arr {
				out[i] = cloneValue(v)
			}
			return out
		}
	}
	return []Value{cloneValue(rhs)}
}

func arrayTarget(doc *Document, path string, op string, code Code) (Array, error) {
	current, found := PathGet(*doc, path)
	if !found {
		return nil, nil
	}
	arr, ok := current.(Array)
	if !ok {
		return nil, newNonArrayTargetError(code, op, path)
	}
	return arr, nil
}

func applyPush(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	arr, err := arrayTarget(doc, path, "$push", CodeNonArrayTargetA)
	if err != nil {
		return err
	}
	arr = append(arr, eachValues(rhs)...)
	return setAndAssign(doc, path, arr, pos)
}

func applyPushAll(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	rhsArr, ok := rhs.(Array)
	if !ok {
		return newArrayOnlyModifierError("$pushAll", path)
	}
	arr, err := arrayTarget(doc, path, "$pushAll", CodeNonArrayTargetB)
	if err != nil {
		return err
	}
	for _, v := range rhsArr {
		arr = append(arr, cloneValue(v))
	}
	return setAndAssign(doc, path, arr, pos)
}

func applyAddToSet(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	arr, err := arrayTarget(doc, path, "$addToSet", CodeNonArrayTargetC)
	if err != nil {
		return err
	}
	for _, v := range eachValues(rhs) {
		present := false
		for _, el := range arr {
			if ValuesEqual(el, v) {
				present = true
				break
			}
		}
		if !present {
			arr = append(arr, v)
		}
	}
	return setAndAssign(doc, path, arr, pos)
}

// pullMatches supports both the spec's literal "equal to RHS" semantics
// and, when RHS is itself an operator document, predicate-based removal
// (a conservative superset real MongoDB also allows for $pull).
func pullMatches(el Value, rhs Value) bool {
	if d, ok := rhs.(Document); ok && isOperatorDoc(d) {
		matched, _, _ := evalPredicate([]fieldOccurrence{{value: el, exists: true, arrayIndex: -1}}, d)
		return matched
	}
	return ValuesEqual(el, rhs)
}

func applyPull(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	arr, err := arrayTarget(doc, path, "$pull", CodeNonArrayTargetA)
	if err != nil {
		return err
	}
	if arr == nil {
		return nil
	}
	out := make(Array, 0, len(arr))
	for _, el := range arr {
		if !pullMatches(el, rhs) {
			out = append(out, el)
		}
	}
	return setAndAssign(doc, path, out, pos)
}

func applyPullAll(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	rhsArr, ok := rhs.(Array)
	if !ok {
		return newArrayOnlyModifierError("$pullAll", path)
	}
	arr, err := arrayTarget(doc, path, "$pullAll", CodeNonArrayTargetB)
	if err != nil {
		return err
	}
	if arr == nil {
		return nil
	}
	out := make(Array, 0, len(arr))
	for _, el := range arr {
		remove := false
		for _, r := range rhsArr {
			if ValuesEqual(el, r) {
				remove = true
				break
			}
		}
		if !remove {
			out = append(out, el)
		}
	}
	return setAndAssign(doc, path, out, pos)
}

func applyPop(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	arr, err := arrayTarget(doc, path, "$pop", CodeNonArrayTargetC)
	if err != nil {
		return err
	}
	if len(arr) == 0 {
		return nil
	}
	var out Array
	if asFloat64(rhs) == -1.0 {
		out = append(Array{}, arr[1:]...)
	} else {
		out = append(Array{}, arr[:len(arr)-1]...)
	}
	return setAndAssign(doc, path, out, pos)
}

func applyCurrentDate(doc *Document, path string, rhs Value, pos *MatchPosition) error {
	var newVal Value
	switch t := rhs.(type) {
	case bool:
		if !t {
			return newInvalidCurrentDateTypeError()
		}
		newVal = primitive.NewDateTimeFromTime(time.Now())
	case Document:
		typeVal, _ := getField(t, "$type")
		name, _ := typeVal.(string)
		switch name {
		case "date":
			newVal = primitive.NewDateTimeFromTime(time.Now())
		case "timestamp":
			// spec §9 open question: increment is the constant 1, not
			// monotonically advanced within or across operator documents.
			newVal = primitive.Timestamp{T: uint32(time.Now().Unix()), I: 1}
		default:
			return newInvalidCurrentDateTypeError()
		}
	default:
		return newInvalidCurrentDateTypeError()
	}
	return setAndAssign(doc, path, newVal, pos)
}
