package eval

import (
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/stdlib"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// opToStdlib maps a lowered binary operator token onto the internal/stdlib
// dispatch name it shares semantics with, so ADD/SUB/.../EQ/NE/... are
// implemented exactly once.
var opToStdlib = map[string]string{
	"+": "ADD", "-": "SUB", "*": "MUL", "/": "DIV", "MOD": "MOD", "**": "EXPT",
	"AND": "AND", "&": "AND", "OR": "OR", "XOR": "XOR",
	"=": "EQ", "<>": "NE", "<": "LT", ">": "GT", "<=": "LE", ">=": "GE",
}

// EvalExpr recursively evaluates e against frame, reading through the
// three-tier name resolution for any lvalue-shaped subexpression.
func (ev *Evaluator) EvalExpr(frame *storage.LocalFrame, e *ir.Expr) (storage.Value, error) {
	if e == nil {
		return storage.Null(), nil
	}
	switch e.Kind {
	case ir.ExprLiteral:
		return e.Lit.Clone(), nil

	case ir.ExprNameRef, ir.ExprField, ir.ExprIndex, ir.ExprDeref:
		ref, err := ev.resolveRef(frame, e)
		if err != nil {
			return storage.Value{}, err
		}
		v, err := ev.Storage.Resolve(ref)
		if err != nil {
			return storage.Value{}, errf(ErrMissingSlot, e.Loc, "%s", err)
		}
		return v.Clone(), nil

	case ir.ExprThis:
		if frame == nil || frame.InstanceId == nil {
			return storage.Value{}, errf(ErrNilReference, e.Loc, "THIS used outside an instance method")
		}
		return storage.Instance(e.Type, *frame.InstanceId), nil

	case ir.ExprSuper:
		if frame == nil || frame.InstanceId == nil {
			return storage.Value{}, errf(ErrNilReference, e.Loc, "SUPER used outside an instance method")
		}
		return storage.Instance(e.Type, *frame.InstanceId), nil

	case ir.ExprBinary:
		return ev.evalBinary(frame, e)

	case ir.ExprUnary:
		return ev.evalUnary(frame, e)

	case ir.ExprCall:
		return ev.EvalCall(frame, e)

	case ir.ExprAddrOf:
		ref, err := ev.resolveRef(frame, e.Operand)
		if err != nil {
			return storage.Value{}, err
		}
		r := ref
		return storage.Reference(e.Type, &r), nil

	case ir.ExprSizeOf:
		return storage.Int(e.Type, ev.sizeOf(e.Operand.Type)), nil

	default:
		return storage.Value{}, errf(ErrInternal, e.Loc, "unhandled expression kind %v", e.Kind)
	}
}

func (ev *Evaluator) evalBinary(frame *storage.LocalFrame, e *ir.Expr) (storage.Value, error) {
	l, err := ev.EvalExpr(frame, e.Left)
	if err != nil {
		return storage.Value{}, err
	}
	r, err := ev.EvalExpr(frame, e.Right)
	if err != nil {
		return storage.Value{}, err
	}
	name, ok := opToStdlib[e.Op]
	if !ok {
		return storage.Value{}, errf(ErrInternal, e.Loc, "unknown binary operator %q", e.Op)
	}
	v, err := stdlib.CallStandard(ev.typeReg(), name, []storage.Value{l, r}, ev.now())
	if err != nil {
		return storage.Value{}, errf(ErrInternal, e.Loc, "%s", err)
	}
	return v, nil
}

func (ev *Evaluator) evalUnary(frame *storage.LocalFrame, e *ir.Expr) (storage.Value, error) {
	v, err := ev.EvalExpr(frame, e.Operand)
	if err != nil {
		return storage.Value{}, err
	}
	switch e.Op {
	case "-":
		switch v.Kind {
		case storage.KindInt:
			return storage.Int(v.Type, -v.I), nil
		case storage.KindReal:
			return storage.Real(v.Type, -v.F), nil
		}
		return storage.Value{}, errf(ErrInternal, e.Loc, "unary - applied to a non-numeric value")
	case "+":
		return v, nil
	case "NOT":
		out, err := stdlib.CallStandard(ev.typeReg(), "NOT", []storage.Value{v}, ev.now())
		if err != nil {
			return storage.Value{}, errf(ErrInternal, e.Loc, "%s", err)
		}
		return out, nil
	default:
		return storage.Value{}, errf(ErrInternal, e.Loc, "unknown unary operator %q", e.Op)
	}
}

// sizeOf returns a rough byte-size estimate for a declared type, used by
// SIZEOF (§4.6); exact layout is implementation-defined in IEC 61131-3, so
// this is sized for diagnostic/debug display rather than binary layout.
func (ev *Evaluator) sizeOf(id types.TypeId) int64 {
	switch id {
	case types.Bool, types.Sint, types.Usint, types.Byte, types.Char:
		return 1
	case types.Int, types.Uint, types.Word:
		return 2
	case types.Dint, types.Udint, types.Dword, types.Real, types.Time:
		return 4
	case types.Lint, types.Ulint, types.Lword, types.Lreal, types.Ltime,
		types.Date, types.Tod, types.Dt, types.Ldate, types.Ltod, types.Ldt:
		return 8
	}
	t, ok := ev.typeReg().Get(id)
	if !ok {
		return 0
	}
	switch t.Kind {
	case types.KindArray:
		n := int64(1)
		for _, d := range t.Dimensions {
			if d.IsWildcard() {
				return 0
			}
			n *= d.Upper - d.Lower + 1
		}
		return n * ev.sizeOf(t.Element)
	case types.KindStruct:
		var total int64
		for _, f := range t.Fields {
			total += ev.sizeOf(f.Type)
		}
		return total
	case types.KindAlias:
		return ev.sizeOf(t.AliasTarget)
	case types.KindString, types.KindWString:
		if t.HasMaxLen {
			return int64(t.MaxLen)
		}
		return 80
	case types.KindEnum:
		return ev.sizeOf(t.EnumBase)
	case types.KindSubrange:
		return ev.sizeOf(t.SubrangeBase)
	case types.KindReference, types.KindPointer:
		return 8
	default:
		return 0
	}
}
