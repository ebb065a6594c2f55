// Package stdlib implements the IEC standard library ([H]): standard
// functions dispatched by uppercase name, and standard function blocks
// (CTU/CTD/CTUD, TP/TON/TOF, R_TRIG/F_TRIG, RS/SR) with per-instance state
// kept under well-known internal field names, grounded on
// original_source/crates/trust-runtime/src/stdlib/{fbs/counters,time,
// string,helpers}.rs for the exact field names and edge/scaling semantics.
package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// numericClass classifies a resolved builtin type for conversion/arithmetic.
type numericClass uint8

const (
	classNone numericClass = iota
	classSignedInt
	classUnsignedInt
	classBitString
	classReal
	classBool
	classChar
	classString
)

func classify(reg *types.Registry, id types.TypeId) numericClass {
	resolved := reg.ResolveAlias(id)
	switch resolved {
	case types.Sint, types.Int, types.Dint, types.Lint:
		return classSignedInt
	case types.Usint, types.Uint, types.Udint, types.Ulint:
		return classUnsignedInt
	case types.Bool:
		return classBool
	case types.Byte, types.Word, types.Dword, types.Lword:
		return classBitString
	case types.Real, types.Lreal:
		return classReal
	case types.Char, types.WChar:
		return classChar
	case types.String, types.WString:
		return classString
	}
	if t, ok := reg.Get(resolved); ok && (t.Kind == types.KindString || t.Kind == types.KindWString) {
		return classString
	}
	return classNone
}

func widthOf(id types.TypeId) int {
	switch id {
	case types.Sint, types.Usint, types.Byte:
		return 8
	case types.Int, types.Uint, types.Word, types.Char, types.WChar:
		return 16
	case types.Dint, types.Udint, types.Dword, types.Real:
		return 32
	default:
		return 64
	}
}

// maskTo wraps v to the two's-complement width of targetClass/targetId, the
// way every TO_* numeric narrowing conversion (§4.7) behaves.
func maskTo(v int64, bits int, signed bool) int64 {
	if bits >= 64 {
		return v
	}
	mask := int64(1)<<uint(bits) - 1
	m := v & mask
	if signed && m&(int64(1)<<uint(bits-1)) != 0 {
		m -= int64(1) << uint(bits)
	}
	return m
}

// Convert implements the generic TO_<target> / TRUNC_<target> family: every
// numeric/bit-string/char/bool N-to-M conversion reduces to a classify +
// width dispatch rather than one hand-written function per ordered pair.
// Any value converts to STRING; TIME and date/time-of-day types are not
// otherwise covered, and converting from or to them returns an error.
func Convert(reg *types.Registry, target types.TypeId, v storage.Value, truncate bool) (storage.Value, error) {
	srcClass := classify(reg, v.Type)
	dstClass := classify(reg, target)
	bits := widthOf(reg.ResolveAlias(target))

	switch dstClass {
	case classSignedInt, classUnsignedInt, classBitString:
		var i64 int64
		switch srcClass {
		case classSignedInt, classUnsignedInt, classBitString:
			i64 = v.I
		case classBool:
			if v.B {
				i64 = 1
			}
		case classReal:
			if truncate {
				i64 = int64(v.F)
			} else {
				i64 = int64(roundTiesToEven(v.F))
			}
		case classChar:
			if len(v.S) > 0 {
				i64 = int64(v.S[0])
			}
		case classString:
			n, err := strconv.ParseInt(strings.TrimSpace(v.S), 10, 64)
			if err != nil {
				return storage.Value{}, fmt.Errorf("cannot convert string %q to numeric: %w", v.S, err)
			}
			i64 = n
		default:
			return storage.Value{}, fmt.Errorf("unsupported conversion source type for numeric target")
		}
		signed := dstClass == classSignedInt
		return storage.Int(target, maskTo(i64, bits, signed)), nil

	case classReal:
		var f float64
		switch srcClass {
		case classSignedInt, classUnsignedInt, classBitString:
			f = float64(v.I)
		case classReal:
			f = v.F
		case classBool:
			if v.B {
				f = 1
			}
		case classString:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64)
			if err != nil {
				return storage.Value{}, fmt.Errorf("cannot convert string %q to real: %w", v.S, err)
			}
			f = parsed
		default:
			return storage.Value{}, fmt.Errorf("unsupported conversion source type for real target")
		}
		return storage.Real(target, f), nil

	case classBool:
		switch srcClass {
		case classSignedInt, classUnsignedInt, classBitString:
			return storage.Bool(target, v.I != 0), nil
		case classBool:
			return storage.Bool(target, v.B), nil
		default:
			return storage.Value{}, fmt.Errorf("unsupported conversion source type for BOOL target")
		}

	case classChar:
		switch srcClass {
		case classSignedInt, classUnsignedInt, classBitString:
			return storage.Str(target, string(rune(v.I))), nil
		case classChar:
			return storage.Str(target, v.S), nil
		default:
			return storage.Value{}, fmt.Errorf("unsupported conversion source type for CHAR target")
		}

	case classString:
		return storage.Str(target, ToStringLiteral(v)), nil
	}
	return storage.Value{}, fmt.Errorf("unsupported conversion target type")
}

// ToStringLiteral renders v the way TO_STRING would for any elementary type.
func ToStringLiteral(v storage.Value) string {
	switch v.Kind {
	case storage.KindBool:
		if v.B {
			return "TRUE"
		}
		return "FALSE"
	case storage.KindInt:
		return strconv.FormatInt(v.I, 10)
	case storage.KindReal:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case storage.KindString:
		return v.S
	case storage.KindDuration:
		return v.Dur.String()
	case storage.KindDate:
		return v.T.String()
	default:
		return v.String()
	}
}

// BCDToInt decodes a packed-BCD integer (BCD_TO_* family).
func BCDToInt(bcd uint64) (int64, error) {
	var out int64
	mul := int64(1)
	for bcd != 0 {
		digit := bcd & 0xF
		if digit > 9 {
			return 0, fmt.Errorf("invalid BCD nibble %d", digit)
		}
		out += int64(digit) * mul
		mul *= 10
		bcd >>= 4
	}
	return out, nil
}

// IntToBCD encodes an integer as packed BCD (TO_BCD_* family).
func IntToBCD(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("BCD encoding requires a non-negative value, got %d", v)
	}
	var out uint64
	shift := uint(0)
	if v == 0 {
		return 0, nil
	}
	for v != 0 {
		digit := v % 10
		out |= uint64(digit) << shift
		shift += 4
		v /= 10
	}
	return out, nil
}
