package eval

import (
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// ZeroValue builds the default-initialized storage.Value for a declared
// type: FALSE/0/0.0/empty-string for scalars, a zero-filled element slice
// for arrays, a field-by-field zero struct, the first member for enums, and
// a null reference/instance for Reference/Interface/FunctionBlock/Class
// (those need live storage.VariableStorage.NewInstance, handled by the
// caller, not a pure value construction).
func ZeroValue(reg *types.Registry, id types.TypeId) storage.Value {
	switch id {
	case types.Bool:
		return storage.Bool(id, false)
	case types.Real, types.Lreal:
		return storage.Real(id, 0)
	case types.Time, types.Ltime:
		return storage.Duration(id, 0)
	case types.Date, types.Ldate, types.Tod, types.Ltod, types.Dt, types.Ldt:
		return storage.DateTime(id, time.Time{})
	case types.String, types.WString, types.Char, types.WChar:
		return storage.Str(id, "")
	case types.Sint, types.Int, types.Dint, types.Lint,
		types.Usint, types.Uint, types.Udint, types.Ulint,
		types.Byte, types.Word, types.Dword, types.Lword:
		return storage.Int(id, 0)
	case types.Unknown, types.Void, types.Null:
		return storage.Null()
	}

	t, ok := reg.Get(id)
	if !ok {
		return storage.Null()
	}
	switch t.Kind {
	case types.KindPrimitive:
		return storage.Int(id, 0)
	case types.KindString:
		return storage.Str(id, "")
	case types.KindWString:
		return storage.Str(id, "")
	case types.KindArray:
		n := 1
		for _, d := range t.Dimensions {
			if d.IsWildcard() {
				return storage.Array(id, t.Dimensions, nil)
			}
			n *= int(d.Upper-d.Lower) + 1
		}
		elems := make([]storage.Value, n)
		for i := range elems {
			elems[i] = ZeroValue(reg, t.Element)
		}
		return storage.Array(id, t.Dimensions, elems)
	case types.KindStruct:
		fields := storage.NewOrderedMap()
		for _, f := range t.Fields {
			fields.Set(f.Name, ZeroValue(reg, f.Type))
		}
		return storage.Struct(id, fields)
	case types.KindUnion:
		if len(t.Variants) == 0 {
			return storage.Null()
		}
		return ZeroValue(reg, t.Variants[0])
	case types.KindEnum:
		if len(t.EnumValues) == 0 {
			return storage.Enum(id, t.Name, 0)
		}
		return storage.Enum(id, t.Name, t.EnumValues[0].Value)
	case types.KindAlias:
		return ZeroValue(reg, t.AliasTarget)
	case types.KindSubrange:
		v := int64(0)
		if v < t.SubrangeLower {
			v = t.SubrangeLower
		} else if v > t.SubrangeUpper {
			v = t.SubrangeUpper
		}
		return storage.Int(id, v)
	case types.KindReference, types.KindPointer:
		return storage.Reference(id, nil)
	case types.KindInterface, types.KindFunctionBlock, types.KindClass:
		// Live instance construction is the caller's job (needs
		// VariableStorage.NewInstance); a bare zero value is null.
		return storage.Null()
	default:
		return storage.Null()
	}
}
