package memcore

import (
	"bytes"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// kindOrder gives the cross-kind tie-break order from spec §4.1:
// null < number < string < document < array < binary < object-id < bool < datetime < timestamp.
func kindOrder(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindDouble:
		return 1
	case KindString:
		return 2
	case KindDocument:
		return 3
	case KindArray:
		return 4
	case KindBinary:
		return 5
	case KindObjectID:
		return 6
	case KindBool:
		return 7
	case KindDateTime:
		return 8
	case KindTimestamp:
		return 9
	default:
		return 10
	}
}

func isNumericKind(k Kind) bool {
	return k == KindInt32 || k == KindInt64 || k == KindDouble
}

func asFloat64(v Value) float64 {
	switch t := v.(type) {
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case float32:
		return float64(t)
	}
	return 0
}

// Compare implements the Value Comparator's total order: a negative
// result means a < b, zero means equal, positive means a > b. Missing
// fields are represented by passing nil, which sorts as the null kind.
func Compare(a, b Value) int {
	a = normalizeScalar(a)
	b = normalizeScalar(b)
	ka, kb := KindOf(a), KindOf(b)

	if isNumericKind(ka) && isNumericKind(kb) {
		fa, fb := asFloat64(a), asFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	oa, ob := kindOrder(ka), kindOrder(kb)
	if oa != ob {
		return oa - ob
	}

	switch ka {
	case KindNull:
		return 0
	case KindString:
		return compareStrings(a.(string), b.(string))
	case KindBool:
		return compareBools(a.(bool), b.(bool))
	case KindObjectID:
		return bytes.Compare(objectIDBytes(a), objectIDBytes(b))
	case KindDateTime:
		da, db := a.(primitive.DateTime), b.(primitive.DateTime)
		return compareInt64(int64(da), int64(db))
	case KindTimestamp:
		ta, tb := a.(primitive.Timestamp), b.(primitive.Timestamp)
		if ta.T != tb.T {
			return compareInt64(int64(ta.T), int64(tb.T))
		}
		return compareInt64(int64(ta.I), int64(tb.I))
	case KindBinary:
		ba, bb := a.(primitive.Binary), b.(primitive.Binary)
		if ba.Subtype != bb.Subtype {
			return int(ba.Subtype) - int(bb.Subtype)
		}
		return bytes.Compare(ba.Data, bb.Data)
	case KindDocument:
		return compareDocuments(a.(Document), b.(Document))
	case KindArray:
		return compareArrays(a.(Array), b.(Array))
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBools(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func objectIDBytes(v Value) []byte {
	oid := v.(primitive.ObjectID)
	b := make([]byte, len(oid))
	copy(b, oid[:])
	return b
}

// compareDocuments orders documents by comparing fields positionally in
// insertion order (the default, non-set comparison spec §4.1 calls for).
func compareDocuments(a, b Document) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Key != b[i].Key {
			return compareStrings(a[i].Key, b[i].Key)
		}
		if c := Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// compareArrays orders arrays lexicographically, element by element.
func compareArrays(a, b Array) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// ValuesEqual reports structural, order-preserving equality (spec §4.1:
// "equals is value-structural (deep), order-preserving for arrays").
func ValuesEqual(a, b Value) bool {
	return Compare(a, b) == 0
}

// Add implements the $inc promotion rule: int+int widens to int64 on
// 32-bit overflow and only promotes further to float64 on 64-bit overflow;
// any float64 operand forces a float64 result.
func Add(a, b Value) (Value, error) {
	return numericOp(a, b, "increment",
		func(x, y int32) (Value, bool) {
			r := int64(x) + int64(y)
			if r >= math.MinInt32 && r <= math.MaxInt32 {
				return int32(r), true
			}
			return r, true
		},
		func(x, y int64) (Value, bool) {
			r := x + y
			// Overflow detection on int64 addition.
			if (y > 0 && r < x) || (y < 0 && r > x) {
				return float64(x) + float64(y), true
			}
			return r, true
		},
		func(x, y float64) Value { return x + y },
	)
}

// Mul implements the $mul promotion rule analogous to Add.
func Mul(a, b Value) (Value, error) {
	return numericOp(a, b, "multiply",
		func(x, y int32) (Value, bool) {
			r := int64(x) * int64(y)
			if r >= math.MinInt32 && r <= math.MaxInt32 {
				return int32(r), true
			}
			return r, true
		},
		func(x, y int64) (Value, bool) {
			if x == 0 || y == 0 {
				return int64(0), true
			}
			r := x * y
			if r/y != x {
				return float64(x) * float64(y), true
			}
			return r, true
		},
		func(x, y float64) Value { return x * y },
	)
}

func numericOp(a, b Value, verb string,
	i32 func(x, y int32) (Value, bool),
	i64 func(x, y int64) (Value, bool),
	f64 func(x, y float64) Value,
) (Value, error) {
	a = normalizeScalar(a)
	b = normalizeScalar(b)
	ka, kb := KindOf(a), KindOf(b)
	if !isNumericKind(ka) || !isNumericKind(kb) {
		bad := a
		if isNumericKind(ka) {
			bad = b
		}
		return nil, newNonNumericOperandErrorValue(verb, bad)
	}

	if ka == KindDouble || kb == KindDouble {
		return f64(asFloat64(a), asFloat64(b)), nil
	}
	if ka == KindInt64 || kb == KindInt64 {
		if v, ok := i64(toInt64(a), toInt64(b)); ok {
			return v, nil
		}
	}
	x, _ := a.(int32)
	y, _ := b.(int32)
	if v, ok := i32(x, y); ok {
		return v, nil
	}
	return f64(asFloat64(a), asFloat64(b)), nil
}

func toInt64(v Value) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	}
	return 0
}

func newNonNumericOperandErrorValue(verb string, bad Value) error {
	return &CoreError{Message: "cannot " + verb + " with non-numeric argument", Sentinel: ErrNonNumericOperand}
}
