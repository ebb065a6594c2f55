package eval

import (
	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// NOTE on multi-dimensional arrays: storage.Value holds a flat, row-major
// Elem slice regardless of declared dimension count, so a ValueRef only
// ever needs one Index path element per array access; flatIndex computes
// that single offset from the declared Dimensions.

// resolveRef turns an lvalue-shaped Expr (NameRef/This/Super/Field/Index/
// Deref) into a ValueRef naming its storage slot, without reading the
// value. Field/Index descend by extending the Base's ref path, so
// `a.b[2].c` resolves in one recursive walk down to a single root plus a
// flat descent path — mirroring how storage.ValueRef itself is shaped
// (§3.3).
func (ev *Evaluator) resolveRef(frame *storage.LocalFrame, e *ir.Expr) (storage.ValueRef, error) {
	switch e.Kind {
	case ir.ExprNameRef:
		return ev.resolveNameRef(frame, e)
	case ir.ExprThis:
		if frame == nil || frame.InstanceId == nil {
			return storage.ValueRef{}, errf(ErrNilReference, e.Loc, "THIS used outside an instance method")
		}
		return storage.ValueRef{Location: storage.LocInstance, Offset: int64(*frame.InstanceId)}, nil
	case ir.ExprSuper:
		if frame == nil || frame.InstanceId == nil {
			return storage.ValueRef{}, errf(ErrNilReference, e.Loc, "SUPER used outside an instance method")
		}
		return storage.ValueRef{Location: storage.LocInstance, Offset: int64(*frame.InstanceId)}, nil
	case ir.ExprField:
		base, err := ev.resolveRef(frame, e.Base)
		if err != nil {
			return storage.ValueRef{}, err
		}
		if base.Name == "" {
			base.Name = e.Name
			return base, nil
		}
		base.Path = append(append([]storage.PathElem(nil), base.Path...), storage.Field(e.Name))
		return base, nil
	case ir.ExprIndex:
		base, err := ev.resolveRef(frame, e.Base)
		if err != nil {
			return storage.ValueRef{}, err
		}
		idxs := make([]int64, len(e.Indices))
		for i, ie := range e.Indices {
			v, err := ev.EvalExpr(frame, ie)
			if err != nil {
				return storage.ValueRef{}, err
			}
			idxs[i] = v.I
		}
		flat, err := ev.flatIndex(e.Base.Type, idxs, e.Loc)
		if err != nil {
			return storage.ValueRef{}, err
		}
		base.Path = append(append([]storage.PathElem(nil), base.Path...), storage.Index(flat))
		return base, nil
	case ir.ExprDeref:
		v, err := ev.EvalExpr(frame, e.Operand)
		if err != nil {
			return storage.ValueRef{}, err
		}
		if v.Kind != storage.KindReference || v.Ref == nil {
			return storage.ValueRef{}, errf(ErrNilReference, e.Loc, "dereference of a null reference")
		}
		return *v.Ref, nil
	default:
		return storage.ValueRef{}, errf(ErrInternal, e.Loc, "expression kind %v is not assignable", e.Kind)
	}
}

// resolveNameRef implements the three-tier lookup (§3.3): transient frame
// locals/params first, then the enclosing instance's persistent fields,
// then globals.
func (ev *Evaluator) resolveNameRef(frame *storage.LocalFrame, e *ir.Expr) (storage.ValueRef, error) {
	if frame != nil {
		if _, ok := frame.Variables.Get(e.Name); ok {
			return storage.ValueRef{Location: storage.LocLocal, Offset: int64(frame.Id), Name: e.Name}, nil
		}
		if frame.InstanceId != nil {
			if inst, ok := ev.Storage.Instances[*frame.InstanceId]; ok {
				if _, ok := inst.Variables.Get(e.Name); ok {
					return storage.ValueRef{Location: storage.LocInstance, Offset: int64(*frame.InstanceId), Name: e.Name}, nil
				}
			}
		}
	}
	if _, ok := ev.Storage.Globals.Get(e.Name); ok {
		return storage.ValueRef{Location: storage.LocGlobal, Name: e.Name}, nil
	}
	return storage.ValueRef{}, errf(ErrMissingSlot, e.Loc, "unresolved variable %q", e.Name)
}

// flatIndex resolves a (possibly multi-dimensional) index list against the
// array's declared TypeId into the single flat offset storage.Value's
// row-major Elem slice uses.
func (ev *Evaluator) flatIndex(arrType types.TypeId, idxs []int64, loc trust.SourceLocation) (int64, error) {
	t, ok := ev.typeReg().Get(arrType)
	if !ok || t.Kind != types.KindArray {
		return 0, errf(ErrInternal, loc, "index applied to a non-array type")
	}
	if len(idxs) != len(t.Dimensions) {
		return 0, errf(ErrWrongArgCount, loc, "array has %d dimensions, %d indices given", len(t.Dimensions), len(idxs))
	}
	var flat int64
	for i, d := range t.Dimensions {
		if idxs[i] < d.Lower || idxs[i] > d.Upper {
			return 0, errf(ErrIndexOutOfRange, loc, "index %d out of range [%d..%d]", idxs[i], d.Lower, d.Upper)
		}
		size := d.Upper - d.Lower + 1
		flat = flat*size + (idxs[i] - d.Lower)
	}
	return flat, nil
}
