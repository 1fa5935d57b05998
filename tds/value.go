package tds

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// ValueKind discriminates the representations a [Value] can hold.
type ValueKind uint

const (
	KindNull ValueKind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindBytes
)

// String implements fmt.Stringer.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	}
	return "invalid"
}

// Value is a typed positional parameter or result cell.
//
// The zero Value is NULL. Values are immutable once constructed.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
}

// Null returns the NULL Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int32 returns a 32-bit integer Value.
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }

// Int64 returns a 64-bit integer Value.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Float64 returns a double-precision Value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bytes returns a binary Value. The slice is not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, raw: v} }

// Kind reports the Value's representation.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the Value is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean representation and whether the Value holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt64 returns the integer representation and whether the Value holds
// one. Both 32- and 64-bit integers report true.
func (v Value) AsInt64() (int64, bool) {
	return v.i, v.kind == KindInt32 || v.kind == KindInt64
}

// AsFloat64 returns the floating-point representation and whether the Value
// holds one.
func (v Value) AsFloat64() (float64, bool) { return v.f, v.kind == KindFloat64 }

// AsString returns the string representation and whether the Value holds
// one.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the binary representation and whether the Value holds
// one.
func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }

// Equal reports whether two Values have the same kind and contents.
//
// Used by go-cmp.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt32, KindInt64:
		return v.i == o.i
	case KindFloat64:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		return string(v.raw) == string(o.raw)
	}
	return false
}

// String implements fmt.Stringer for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.raw)
	}
	return fmt.Sprintf("invalid(%d)", v.kind)
}
