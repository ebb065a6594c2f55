package stdlib

import (
	"fmt"
	"strings"
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

var standardFBs = map[string]bool{
	"RS": true, "SR": true, "R_TRIG": true, "F_TRIG": true,
	"CTU": true, "CTD": true, "CTUD": true,
	"TP": true, "TON": true, "TOF": true,
	"TP_LTIME": true, "TON_LTIME": true, "TOF_LTIME": true,
}

// IsStandardFB reports whether name is a standard function block (§4.7),
// dispatched case-insensitively like every stdlib entry point.
func IsStandardFB(name string) bool {
	return standardFBs[strings.ToUpper(name)]
}

// IsStandardFunction reports whether name resolves to a standard function
// (a pure CallStandard dispatch target), including the generic TO_*/
// TRUNC_*/BCD_TO_*/TO_BCD_* conversion families.
func IsStandardFunction(name string) bool {
	u := strings.ToUpper(name)
	if _, ok := standardFunctions[u]; ok {
		return true
	}
	return strings.HasPrefix(u, "TO_") || strings.HasPrefix(u, "TRUNC_") ||
		strings.HasPrefix(u, "BCD_TO_")
}

var standardFunctions = map[string]bool{
	"ABS": true, "SQRT": true, "LN": true, "LOG": true, "EXP": true,
	"SIN": true, "COS": true, "TAN": true, "ASIN": true, "ACOS": true, "ATAN": true,
	"ADD": true, "SUB": true, "MUL": true, "DIV": true, "MOD": true, "EXPT": true, "MOVE": true,
	"SHL": true, "SHR": true, "ROL": true, "ROR": true,
	"AND": true, "OR": true, "XOR": true, "NOT": true,
	"SEL": true, "MAX": true, "MIN": true, "LIMIT": true, "MUX": true,
	"GT": true, "GE": true, "EQ": true, "LE": true, "LT": true, "NE": true,
	"LEN": true, "LEFT": true, "RIGHT": true, "MID": true, "CONCAT": true,
	"INSERT": true, "DELETE": true, "REPLACE": true, "FIND": true,
	"ADD_TIME": true, "SUB_TIME": true, "MUL_TIME": true, "DIV_TIME": true,
	"ADD_TOD_TIME": true, "ADD_DT_TIME": true, "SUB_TOD_TIME": true,
	"SUB_DT_TIME": true, "SUB_DATE_DATE": true,
	"CONCAT_DATE": true, "CONCAT_TOD": true, "CONCAT_DATE_TOD": true,
	"SPLIT_DATE": true, "SPLIT_TOD": true, "DAY_OF_WEEK": true,
}

// CallStandard dispatches a standard function call by uppercase name.
// Multi-result functions (SPLIT_*) return their components packed into a
// Struct value with positional field names Out0.. so callers doing multi-
// variable OUT binding can unpack it; single-result functions return one
// Value directly.
func CallStandard(reg *types.Registry, name string, args []storage.Value, now time.Time) (storage.Value, error) {
	u := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(u, "TO_BCD_"):
		if len(args) != 1 || args[0].Kind != storage.KindInt {
			return storage.Value{}, fmt.Errorf("%s expects one integer argument", u)
		}
		bcd, err := IntToBCD(args[0].I)
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Int(args[0].Type, int64(bcd)), nil
	case strings.HasPrefix(u, "BCD_TO_"):
		if len(args) != 1 || args[0].Kind != storage.KindInt {
			return storage.Value{}, fmt.Errorf("%s expects one integer argument", u)
		}
		target, ok := types.FromBuiltinName(strings.TrimPrefix(u, "BCD_TO_"))
		if !ok {
			return storage.Value{}, fmt.Errorf("%s: unknown target type", u)
		}
		v, err := BCDToInt(uint64(args[0].I))
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Int(target, v), nil
	case strings.HasPrefix(u, "TRUNC_"):
		target, ok := types.FromBuiltinName(strings.TrimPrefix(u, "TRUNC_"))
		if !ok {
			return storage.Value{}, fmt.Errorf("%s: unknown target type", u)
		}
		return Convert(reg, target, args[0], true)
	case strings.HasPrefix(u, "TO_"):
		target, ok := types.FromBuiltinName(strings.TrimPrefix(u, "TO_"))
		if !ok {
			return storage.Value{}, fmt.Errorf("%s: unknown target type", u)
		}
		return Convert(reg, target, args[0], false)
	}

	switch u {
	case "ABS":
		return Abs(args[0])
	case "SQRT":
		return Sqrt(args[0])
	case "LN":
		return Ln(args[0])
	case "LOG":
		return Log(args[0])
	case "EXP":
		return Exp(args[0])
	case "SIN":
		return Sin(args[0])
	case "COS":
		return Cos(args[0])
	case "TAN":
		return Tan(args[0])
	case "ASIN":
		return Asin(args[0])
	case "ACOS":
		return Acos(args[0])
	case "ATAN":
		return Atan(args[0])
	case "ADD":
		return reduceArith(reg, args, Add)
	case "SUB":
		return Sub(reg, args[0], args[1])
	case "MUL":
		return reduceArith(reg, args, Mul)
	case "DIV":
		return Div(reg, args[0], args[1])
	case "MOD":
		return Mod(args[0], args[1])
	case "EXPT":
		return Expt(args[0], args[1])
	case "MOVE":
		return Move(args[0]), nil
	case "SHL":
		return Shl(args[0], args[1].I), nil
	case "SHR":
		return Shr(args[0], args[1].I, widthOf(reg.ResolveAlias(args[0].Type))), nil
	case "ROL":
		return Rol(args[0], args[1].I, widthOf(reg.ResolveAlias(args[0].Type))), nil
	case "ROR":
		return Ror(args[0], args[1].I, widthOf(reg.ResolveAlias(args[0].Type))), nil
	case "AND":
		return reduceBit(args, BitAnd), nil
	case "OR":
		return reduceBit(args, BitOr), nil
	case "XOR":
		return reduceBit(args, BitXor), nil
	case "NOT":
		return BitNot(args[0], widthOf(reg.ResolveAlias(args[0].Type))), nil
	case "SEL":
		return Sel(args[0].B, args[1], args[2]), nil
	case "MAX":
		return Max(args...)
	case "MIN":
		return Min(args...)
	case "LIMIT":
		return Limit(args[0], args[1], args[2])
	case "MUX":
		return Mux(args[0].I, args[1:]...)
	case "GT", "GE", "EQ", "LE", "LT", "NE":
		b, err := Compare(u, args[0], args[1])
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Bool(types.Bool, b), nil
	case "LEN":
		return storage.Int(types.Dint, Len(args[0].S)), nil
	case "LEFT":
		s, err := Left(args[0].S, args[1].I)
		return storage.Str(args[0].Type, s), err
	case "RIGHT":
		s, err := Right(args[0].S, args[1].I)
		return storage.Str(args[0].Type, s), err
	case "MID":
		s, err := Mid(args[0].S, args[1].I, args[2].I)
		return storage.Str(args[0].Type, s), err
	case "CONCAT":
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.S
		}
		return storage.Str(args[0].Type, Concat(parts...)), nil
	case "INSERT":
		s, err := Insert(args[0].S, args[1].S, args[2].I)
		return storage.Str(args[0].Type, s), err
	case "DELETE":
		s, err := Delete(args[0].S, args[1].I, args[2].I)
		return storage.Str(args[0].Type, s), err
	case "REPLACE":
		s, err := Replace(args[0].S, args[1].S, args[2].I, args[3].I)
		return storage.Str(args[0].Type, s), err
	case "FIND":
		return storage.Int(types.Dint, Find(args[0].S, args[1].S)), nil
	case "ADD_TIME", "ADD_TOD_TIME", "ADD_DT_TIME":
		return AddTime(reg, args[0], args[1])
	case "SUB_TIME", "SUB_TOD_TIME", "SUB_DT_TIME", "SUB_DATE_DATE":
		return SubTime(args[0], args[1])
	case "MUL_TIME":
		f, err := asFloat(args[1])
		if err != nil {
			return storage.Value{}, err
		}
		return MulTime(args[0], f)
	case "DIV_TIME":
		f, err := asFloat(args[1])
		if err != nil {
			return storage.Value{}, err
		}
		return DivTime(args[0], f)
	case "CONCAT_DATE":
		return ConcatDate(args[0].I, args[1].I, args[2].I), nil
	case "CONCAT_TOD":
		return ConcatTod(args[0].I, args[1].I, args[2].I, args[3].I), nil
	case "CONCAT_DATE_TOD":
		return ConcatDT(args[0], args[1]), nil
	case "DAY_OF_WEEK":
		return storage.Int(types.Dint, DayOfWeek(args[0])), nil
	case "SPLIT_DATE", "SPLIT_TOD":
		var parts []int64
		if u == "SPLIT_DATE" {
			y, m, d := SplitDate(args[0])
			parts = []int64{y, m, d}
		} else {
			h, mi, s, ms := SplitTod(args[0])
			parts = []int64{h, mi, s, ms}
		}
		out := storage.NewOrderedMap()
		for i, p := range parts {
			out.Set(fmt.Sprintf("Out%d", i), storage.Int(types.Dint, p))
		}
		return storage.Struct(types.Unknown, out), nil
	}
	return storage.Value{}, fmt.Errorf("unknown standard function %q", name)
}

func reduceArith(reg *types.Registry, args []storage.Value, op func(*types.Registry, storage.Value, storage.Value) (storage.Value, error)) (storage.Value, error) {
	if len(args) == 0 {
		return storage.Value{}, fmt.Errorf("arithmetic function requires at least one operand")
	}
	acc := args[0]
	for _, v := range args[1:] {
		var err error
		acc, err = op(reg, acc, v)
		if err != nil {
			return storage.Value{}, err
		}
	}
	return acc, nil
}

func reduceBit(args []storage.Value, op func(a, b storage.Value) storage.Value) storage.Value {
	acc := args[0]
	for _, v := range args[1:] {
		acc = op(acc, v)
	}
	return acc
}
