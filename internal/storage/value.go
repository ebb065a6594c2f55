// Package storage implements the runtime model's variable storage ([F]):
// the Value tagged union, ValueRef structural addressing, and
// VariableStorage (globals, retain, local frames, instances).
//
// Value generalizes the teacher's terex.Atom (an AtomType discriminant plus
// a single untyped Data field) into a strongly-typed discriminated struct:
// every built-in scalar/time/date/char/string kind plus the composite
// Array/Struct/Instance/Reference/Enum/Null variants spec.md §3.3 names.
package storage

import (
	"fmt"
	"time"

	"github.com/trust-automation/trust/internal/types"
)

// Kind discriminates which field of Value is meaningful.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindDuration // TIME/LTIME
	KindDate     // DATE/LDATE/TOD/LTOD/DT/LDT, distinguished by Type
	KindString   // STRING/WSTRING/CHAR/WCHAR
	KindArray
	KindStruct
	KindInstance
	KindReference
	KindEnum
)

// InstanceId identifies one FB/Class instance in storage.
type InstanceId int64

// Value is the tagged union every storage slot holds.
type Value struct {
	Type types.TypeId
	Kind Kind

	B    bool
	I    int64
	F    float64
	Dur  time.Duration
	T    time.Time
	S    string
	Elem []Value
	Dims []types.ArrayDim
	St   *OrderedMap
	Inst InstanceId
	Ref  *ValueRef

	EnumTypeName string
	EnumNumeric  int64
}

// Null returns the Null value.
func Null() Value { return Value{Kind: KindNull, Type: types.Null} }

// Bool constructs a BOOL value.
func Bool(t types.TypeId, v bool) Value { return Value{Kind: KindBool, Type: t, B: v} }

// Int constructs an integer/bit-string value.
func Int(t types.TypeId, v int64) Value { return Value{Kind: KindInt, Type: t, I: v} }

// Real constructs a REAL/LREAL value.
func Real(t types.TypeId, v float64) Value { return Value{Kind: KindReal, Type: t, F: v} }

// Duration constructs a TIME/LTIME value.
func Duration(t types.TypeId, v time.Duration) Value { return Value{Kind: KindDuration, Type: t, Dur: v} }

// DateTime constructs a DATE/TOD/DT (or L* variant) value.
func DateTime(t types.TypeId, v time.Time) Value { return Value{Kind: KindDate, Type: t, T: v} }

// Str constructs a STRING/WSTRING/CHAR/WCHAR value.
func Str(t types.TypeId, v string) Value { return Value{Kind: KindString, Type: t, S: v} }

// Array constructs a composite Array value.
func Array(t types.TypeId, dims []types.ArrayDim, elems []Value) Value {
	return Value{Kind: KindArray, Type: t, Dims: dims, Elem: elems}
}

// Struct constructs a composite Struct value over an ordered field map.
func Struct(t types.TypeId, fields *OrderedMap) Value {
	return Value{Kind: KindStruct, Type: t, St: fields}
}

// Instance constructs a reference to an FB/Class instance.
func Instance(t types.TypeId, id InstanceId) Value {
	return Value{Kind: KindInstance, Type: t, Inst: id}
}

// Reference constructs a REF_TO/pointer-like value; ref may be nil (null reference).
func Reference(t types.TypeId, ref *ValueRef) Value {
	return Value{Kind: KindReference, Type: t, Ref: ref}
}

// Enum constructs an enumerated value.
func Enum(t types.TypeId, typeName string, numeric int64) Value {
	return Value{Kind: KindEnum, Type: t, EnumTypeName: typeName, EnumNumeric: numeric}
}

// Clone deep-copies composite values so retain snapshots and frame teardown
// never alias the original storage.
func (v Value) Clone() Value {
	out := v
	if v.Elem != nil {
		out.Elem = make([]Value, len(v.Elem))
		for i, e := range v.Elem {
			out.Elem[i] = e.Clone()
		}
	}
	if v.St != nil {
		out.St = v.St.Clone()
	}
	if v.Ref != nil {
		r := *v.Ref
		out.Ref = &r
	}
	return out
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%v", v.B)
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindReal:
		return fmt.Sprintf("%g", v.F)
	case KindDuration:
		return v.Dur.String()
	case KindDate:
		return v.T.String()
	case KindString:
		return v.S
	case KindArray:
		return fmt.Sprintf("ARRAY[%d elements]", len(v.Elem))
	case KindStruct:
		return "STRUCT{...}"
	case KindInstance:
		return fmt.Sprintf("<instance %d>", v.Inst)
	case KindReference:
		if v.Ref == nil {
			return "REF(nil)"
		}
		return fmt.Sprintf("REF(%v)", *v.Ref)
	case KindEnum:
		return fmt.Sprintf("%s#%d", v.EnumTypeName, v.EnumNumeric)
	default:
		return "<?>"
	}
}
