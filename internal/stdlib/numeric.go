package stdlib

import (
	"fmt"
	"math"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// roundTiesToEven rounds f to the nearest integer, breaking exact .5 ties to
// the even neighbor, as §4.7 mandates for numeric-to-integer conversion and
// time-value scaling.
func roundTiesToEven(f float64) float64 {
	return math.RoundToEven(f)
}

func asFloat(v storage.Value) (float64, error) {
	switch v.Kind {
	case storage.KindReal:
		return v.F, nil
	case storage.KindInt:
		return float64(v.I), nil
	default:
		return 0, fmt.Errorf("expected a numeric value, got %v", v.Kind)
	}
}

// Abs implements ABS.
func Abs(v storage.Value) (storage.Value, error) {
	switch v.Kind {
	case storage.KindInt:
		if v.I < 0 {
			return storage.Int(v.Type, -v.I), nil
		}
		return v, nil
	case storage.KindReal:
		return storage.Real(v.Type, math.Abs(v.F)), nil
	default:
		return storage.Value{}, fmt.Errorf("ABS expects a numeric operand")
	}
}

type unaryRealFn func(float64) float64

func unaryReal(name string, fn unaryRealFn) func(storage.Value) (storage.Value, error) {
	return func(v storage.Value) (storage.Value, error) {
		f, err := asFloat(v)
		if err != nil {
			return storage.Value{}, fmt.Errorf("%s: %w", name, err)
		}
		return storage.Real(v.Type, fn(f)), nil
	}
}

var (
	Sqrt = unaryReal("SQRT", math.Sqrt)
	Ln   = unaryReal("LN", math.Log)
	Log  = unaryReal("LOG", math.Log10)
	Exp  = unaryReal("EXP", math.Exp)
	Sin  = unaryReal("SIN", math.Sin)
	Cos  = unaryReal("COS", math.Cos)
	Tan  = unaryReal("TAN", math.Tan)
	Asin = unaryReal("ASIN", math.Asin)
	Acos = unaryReal("ACOS", math.Acos)
	Atan = unaryReal("ATAN", math.Atan)
)

// widerOf picks the wider of two resolved numeric types per §4.5 arithmetic
// widening: unsigned<unsigned, signed<signed ladders, REAL/LREAL widen over
// integers.
func widerOf(reg *types.Registry, a, b types.TypeId) types.TypeId {
	ra, rb := reg.ResolveAlias(a), reg.ResolveAlias(b)
	rank := func(id types.TypeId) int {
		switch id {
		case types.Sint, types.Usint:
			return 1
		case types.Int, types.Uint:
			return 2
		case types.Dint, types.Udint:
			return 3
		case types.Lint, types.Ulint:
			return 4
		case types.Real:
			return 5
		case types.Lreal:
			return 6
		case types.Byte:
			return 1
		case types.Word:
			return 2
		case types.Dword:
			return 3
		case types.Lword:
			return 4
		default:
			return 0
		}
	}
	if rank(rb) > rank(ra) {
		return b
	}
	return a
}

func arith(reg *types.Registry, a, b storage.Value, f func(x, y float64) float64, i func(x, y int64) (int64, error)) (storage.Value, error) {
	result := widerOf(reg, a.Type, b.Type)
	cls := classify(reg, result)
	if cls == classReal {
		fa, err := asFloat(a)
		if err != nil {
			return storage.Value{}, err
		}
		fb, err := asFloat(b)
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Real(result, f(fa, fb)), nil
	}
	r, err := i(a.I, b.I)
	if err != nil {
		return storage.Value{}, err
	}
	return storage.Int(result, r), nil
}

// Add implements ADD.
func Add(reg *types.Registry, a, b storage.Value) (storage.Value, error) {
	return arith(reg, a, b, func(x, y float64) float64 { return x + y }, func(x, y int64) (int64, error) { return x + y, nil })
}

// Sub implements SUB.
func Sub(reg *types.Registry, a, b storage.Value) (storage.Value, error) {
	return arith(reg, a, b, func(x, y float64) float64 { return x - y }, func(x, y int64) (int64, error) { return x - y, nil })
}

// Mul implements MUL.
func Mul(reg *types.Registry, a, b storage.Value) (storage.Value, error) {
	return arith(reg, a, b, func(x, y float64) float64 { return x * y }, func(x, y int64) (int64, error) { return x * y, nil })
}

// ErrDivisionByZero is returned by Div/Mod when the divisor is zero.
var ErrDivisionByZero = fmt.Errorf("division by zero")

// Div implements DIV.
func Div(reg *types.Registry, a, b storage.Value) (storage.Value, error) {
	return arith(reg, a, b,
		func(x, y float64) float64 { return x / y },
		func(x, y int64) (int64, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x / y, nil
		})
}

// Mod implements MOD (integer operands only, per IEC).
func Mod(a, b storage.Value) (storage.Value, error) {
	if a.Kind != storage.KindInt || b.Kind != storage.KindInt {
		return storage.Value{}, fmt.Errorf("MOD requires integer operands")
	}
	if b.I == 0 {
		return storage.Value{}, ErrDivisionByZero
	}
	return storage.Int(a.Type, a.I%b.I), nil
}

// Expt implements EXPT.
func Expt(a, b storage.Value) (storage.Value, error) {
	fa, err := asFloat(a)
	if err != nil {
		return storage.Value{}, err
	}
	fb, err := asFloat(b)
	if err != nil {
		return storage.Value{}, err
	}
	return storage.Real(a.Type, math.Pow(fa, fb)), nil
}

// Move implements MOVE (identity passthrough with a fresh clone).
func Move(v storage.Value) storage.Value {
	return v.Clone()
}

// Shl implements SHL (logical shift left on a bit-string/integer value).
func Shl(v storage.Value, n int64) storage.Value {
	if n <= 0 {
		return v
	}
	return storage.Int(v.Type, v.I<<uint(n))
}

// Shr implements SHR (logical shift right).
func Shr(v storage.Value, n int64, bits int) storage.Value {
	if n <= 0 {
		return v
	}
	mask := uint64(1)<<uint(bits) - 1
	u := uint64(v.I) & mask
	return storage.Int(v.Type, int64(u>>uint(n)))
}

// Rol implements ROL (rotate left) over a bits-wide window.
func Rol(v storage.Value, n int64, bits int) storage.Value {
	if bits <= 0 {
		return v
	}
	shift := uint(n) % uint(bits)
	mask := uint64(1)<<uint(bits) - 1
	u := uint64(v.I) & mask
	rotated := ((u << shift) | (u >> (uint(bits) - shift))) & mask
	return storage.Int(v.Type, int64(rotated))
}

// Ror implements ROR (rotate right) over a bits-wide window.
func Ror(v storage.Value, n int64, bits int) storage.Value {
	if bits <= 0 {
		return v
	}
	shift := uint(n) % uint(bits)
	mask := uint64(1)<<uint(bits) - 1
	u := uint64(v.I) & mask
	rotated := ((u >> shift) | (u << (uint(bits) - shift))) & mask
	return storage.Int(v.Type, int64(rotated))
}

// BitAnd/BitOr/BitXor/BitNot implement AND/OR/XOR/NOT over bit-strings or BOOL.
func BitAnd(a, b storage.Value) storage.Value {
	if a.Kind == storage.KindBool {
		return storage.Bool(a.Type, a.B && b.B)
	}
	return storage.Int(a.Type, a.I&b.I)
}

func BitOr(a, b storage.Value) storage.Value {
	if a.Kind == storage.KindBool {
		return storage.Bool(a.Type, a.B || b.B)
	}
	return storage.Int(a.Type, a.I|b.I)
}

func BitXor(a, b storage.Value) storage.Value {
	if a.Kind == storage.KindBool {
		return storage.Bool(a.Type, a.B != b.B)
	}
	return storage.Int(a.Type, a.I^b.I)
}

func BitNot(a storage.Value, bits int) storage.Value {
	if a.Kind == storage.KindBool {
		return storage.Bool(a.Type, !a.B)
	}
	mask := uint64(1)<<uint(bits) - 1
	return storage.Int(a.Type, int64(^uint64(a.I)&mask))
}

// Sel implements SEL(G, IN0, IN1): IN1 if G else IN0.
func Sel(g bool, in0, in1 storage.Value) storage.Value {
	if g {
		return in1
	}
	return in0
}

// Max/Min implement MAX/MIN over a variadic numeric list.
func Max(vals ...storage.Value) (storage.Value, error) {
	return extremum(vals, true)
}

func Min(vals ...storage.Value) (storage.Value, error) {
	return extremum(vals, false)
}

func extremum(vals []storage.Value, wantMax bool) (storage.Value, error) {
	if len(vals) == 0 {
		return storage.Value{}, fmt.Errorf("MAX/MIN require at least one operand")
	}
	best := vals[0]
	bf, err := asFloat(best)
	if err != nil {
		return storage.Value{}, err
	}
	for _, v := range vals[1:] {
		f, err := asFloat(v)
		if err != nil {
			return storage.Value{}, err
		}
		if (wantMax && f > bf) || (!wantMax && f < bf) {
			best, bf = v, f
		}
	}
	return best, nil
}

// Limit implements LIMIT(MN, IN, MX).
func Limit(mn, in, mx storage.Value) (storage.Value, error) {
	lo, err := asFloat(mn)
	if err != nil {
		return storage.Value{}, err
	}
	hi, err := asFloat(mx)
	if err != nil {
		return storage.Value{}, err
	}
	v, err := asFloat(in)
	if err != nil {
		return storage.Value{}, err
	}
	if v < lo {
		return mn, nil
	}
	if v > hi {
		return mx, nil
	}
	return in, nil
}

// Mux implements MUX(K, IN0..INn): selects the Kth input.
func Mux(k int64, vals ...storage.Value) (storage.Value, error) {
	if k < 0 || int(k) >= len(vals) {
		return storage.Value{}, fmt.Errorf("MUX selector %d out of range (%d inputs)", k, len(vals))
	}
	return vals[k], nil
}

// Compare implements GT/GE/EQ/LE/LT/NE.
func Compare(op string, a, b storage.Value) (bool, error) {
	var cmp int
	switch {
	case a.Kind == storage.KindString:
		cmp = stringsCompare(a.S, b.S)
	case a.Kind == storage.KindBool:
		if a.B == b.B {
			cmp = 0
		} else if !a.B {
			cmp = -1
		} else {
			cmp = 1
		}
	default:
		fa, err := asFloat(a)
		if err != nil {
			return false, err
		}
		fb, err := asFloat(b)
		if err != nil {
			return false, err
		}
		switch {
		case fa < fb:
			cmp = -1
		case fa > fb:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch op {
	case "GT":
		return cmp > 0, nil
	case "GE":
		return cmp >= 0, nil
	case "EQ":
		return cmp == 0, nil
	case "LE":
		return cmp <= 0, nil
	case "LT":
		return cmp < 0, nil
	case "NE":
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

func stringsCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
