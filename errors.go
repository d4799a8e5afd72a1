package memcore

import (
	"errors"
	"fmt"
)

// Code is a numeric error code preserved for wire-layer compatibility (spec §6).
type Code int

const (
	CodeInvalidCurrentDateType     Code = 2
	CodeInvalidModifier            Code = 10147
	CodeModOnIdNotAllowed          Code = 10148
	CodeMultiUpdateRequiresOperators Code = 10158
	CodeNonArrayTargetA            Code = 10141
	CodeNonArrayTargetB            Code = 10142
	CodeNonArrayTargetC            Code = 10143
	CodeArrayOnlyModifier          Code = 10153
	CodeCannotChangeId             Code = 13596
	CodeDollarInFieldName          Code = 15896
	CodePositionalWithoutMatch     Code = 16650
)

// CoreError is the error type returned by every public operation that fails
// for a reason the wire layer needs to translate into a server error code.
//
// It mirrors the teacher's VersionError: a concrete struct implementing
// Error/Is/Unwrap so callers can both pattern-match on a sentinel with
// errors.Is and recover the numeric code for wire framing.
type CoreError struct {
	Code    Code
	Message string
	// Sentinel is the canonical error this CoreError reports as via Is/Unwrap.
	Sentinel error
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *CoreError) Is(target error) bool {
	return e.Sentinel != nil && errors.Is(e.Sentinel, target)
}

func (e *CoreError) Unwrap() error {
	return e.Sentinel
}

var (
	// ErrInvalidModifier: update document referenced an unknown $ operator.
	ErrInvalidModifier = errors.New("invalid modifier specified")
	// ErrModOnIdNotAllowed: a mutating operator targeted the identifier field.
	ErrModOnIdNotAllowed = errors.New("mod on _id not allowed")
	// ErrDollarInFieldName: a field name inside a non-$unset change begins with $.
	ErrDollarInFieldName = errors.New("field names may not start with '$'")
	// ErrCannotChangeId: replacement document supplied a different identifier.
	ErrCannotChangeId = errors.New("cannot change _id of a document")
	// ErrMultiUpdateRequiresOperators: multi-update given a replacement document.
	ErrMultiUpdateRequiresOperators = errors.New("multi update only works with $ operators")
	// ErrPositionalWithoutMatch: path used '$' without a bound match position.
	ErrPositionalWithoutMatch = errors.New("positional operator '$' used without a query match position")
	// ErrNonArrayTarget: an array-only modifier targeted a non-array value.
	ErrNonArrayTarget = errors.New("cannot apply array modifier to non-array")
	// ErrArrayOnlyModifier: RHS of an array modifier was not itself an array.
	ErrArrayOnlyModifier = errors.New("modifier requires an array operand")
	// ErrInvalidCurrentDateType: $currentDate given an unrecognized $type.
	ErrInvalidCurrentDateType = errors.New("$currentDate value must be true or {$type: 'date'|'timestamp'}")
	// ErrIllegalUpdate: update document mixed $-prefixed and plain keys.
	ErrIllegalUpdate = errors.New("update document has mixed $operator and non-$operator top-level keys")
	// ErrDuplicateKey: an index uniqueness constraint rejected the write.
	ErrDuplicateKey = errors.New("duplicate key error")
	// ErrNotFound: no document matched a lookup by identifier.
	ErrNotFound = errors.New("document not found")
	// ErrNonNumericOperand: $inc/$mul operand (or target) was not numeric.
	ErrNonNumericOperand = errors.New("cannot increment/multiply value")
)

func newModifierError(msg string, op string) *CoreError {
	return &CoreError{Code: CodeInvalidModifier, Message: fmt.Sprintf("%s: %s", msg, op), Sentinel: ErrInvalidModifier}
}

func newModOnIdError(path string) *CoreError {
	return &CoreError{Code: CodeModOnIdNotAllowed, Message: fmt.Sprintf("mod on _id not allowed at path %q", path), Sentinel: ErrModOnIdNotAllowed}
}

func newDollarFieldError(field string) *CoreError {
	return &CoreError{Code: CodeDollarInFieldName, Message: fmt.Sprintf("field name %q may not start with '$'", field), Sentinel: ErrDollarInFieldName}
}

func newCannotChangeIdError() *CoreError {
	return &CoreError{Code: CodeCannotChangeId, Message: "after applying the update, the (immutable) field '_id' was found to have been altered", Sentinel: ErrCannotChangeId}
}

func newMultiUpdateError() *CoreError {
	return &CoreError{Code: CodeMultiUpdateRequiresOperators, Message: "multi update only works with $ operators", Sentinel: ErrMultiUpdateRequiresOperators}
}

func newPositionalError() *CoreError {
	return &CoreError{Code: CodePositionalWithoutMatch, Message: "positional operator '$' used but query does not contain an array match", Sentinel: ErrPositionalWithoutMatch}
}

func newNonArrayTargetError(code Code, op string, path string) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf("cannot apply %s to a non-array value at path %q", op, path), Sentinel: ErrNonArrayTarget}
}

func newArrayOnlyModifierError(op string, path string) *CoreError {
	return &CoreError{Code: CodeArrayOnlyModifier, Message: fmt.Sprintf("%s requires an array operand at path %q", op, path), Sentinel: ErrArrayOnlyModifier}
}

func newInvalidCurrentDateTypeError() *CoreError {
	return &CoreError{Code: CodeInvalidCurrentDateType, Message: "invalid $currentDate type", Sentinel: ErrInvalidCurrentDateType}
}

func newIllegalUpdateError() *CoreError {
	return &CoreError{Message: "update document contains mixed $operator and non-$operator style", Sentinel: ErrIllegalUpdate}
}

func newNonNumericOperandError(op, path string) *CoreError {
	return &CoreError{Message: fmt.Sprintf("cannot %s to non-numeric value at path %q", op, path), Sentinel: ErrNonNumericOperand}
}
