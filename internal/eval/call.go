package eval

import (
	"strings"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/stdlib"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// EvalCall dispatches an ExprCall. A dotted callee name ("recv.Method") is
// a method call on recv (the last '.' splits receiver from method, since
// ir.Expr has no separate receiver field); a bare name is, in resolution
// order, a variable naming an FB/Class instance (a bare FB invocation), a
// user FUNCTION, or a standard library function/FB.
func (ev *Evaluator) EvalCall(frame *storage.LocalFrame, e *ir.Expr) (storage.Value, error) {
	if idx := strings.LastIndex(e.Name, "."); idx >= 0 {
		return ev.evalMethodCall(frame, e, e.Name[:idx], e.Name[idx+1:])
	}

	if ref, err := ev.resolveNameRef(frame, &ir.Expr{Kind: ir.ExprNameRef, Name: e.Name, Loc: e.Loc}); err == nil {
		if v, err := ev.Storage.Resolve(ref); err == nil && v.Kind == storage.KindInstance {
			return ev.CallFB(frame, v.Inst, e.Args, e.Loc)
		}
	}

	if _, ok := ev.Program.FBs[e.Name]; ok {
		// Bare call by type name with no bound variable: instantiate
		// transiently. State does not persist across scans this way; a
		// program that wants persistence must declare a variable of this
		// FB type instead.
		instId, err := ev.instantiate(e.Name)
		if err != nil {
			return storage.Value{}, err
		}
		return ev.CallFB(frame, instId, e.Args, e.Loc)
	}

	if fn, ok := ev.Program.Functions[e.Name]; ok {
		return ev.CallFunction(frame, fn, e.Args, e.Loc)
	}

	if stdlib.IsStandardFunction(e.Name) {
		args := make([]storage.Value, 0, len(e.Args))
		for _, a := range e.Args {
			if a.Value == nil {
				continue
			}
			v, err := ev.EvalExpr(frame, a.Value)
			if err != nil {
				return storage.Value{}, err
			}
			args = append(args, v)
		}
		v, err := stdlib.CallStandard(ev.typeReg(), e.Name, args, ev.now())
		if err != nil {
			return storage.Value{}, errf(ErrInternal, e.Loc, "%s", err)
		}
		return v, nil
	}

	return storage.Value{}, errf(ErrUnknownCallee, e.Loc, "unresolved callee %q", e.Name)
}

// CallFB runs a bare function-block call: args bind straight into the
// instance's own persistent fields (§3.3 — an FB's VAR_INPUT/VAR_OUTPUT are
// just more of its persistent storage, not a transient parameter frame).
func (ev *Evaluator) CallFB(callerFrame *storage.LocalFrame, instId storage.InstanceId, args []ir.Arg, loc trust.SourceLocation) (storage.Value, error) {
	inst, ok := ev.Storage.Instances[instId]
	if !ok {
		return storage.Value{}, errf(ErrNilReference, loc, "call to a missing instance")
	}
	typeName := inst.TypeName

	if stdlib.IsStandardFB(typeName) {
		inputs := make(map[string]storage.Value, len(args))
		for _, a := range args {
			if a.Value == nil {
				continue
			}
			v, err := ev.EvalExpr(callerFrame, a.Value)
			if err != nil {
				return storage.Value{}, err
			}
			inputs[a.ParamName] = v
			inst.Variables.Set(a.ParamName, v)
		}
		if err := stdlib.RunStandardFB(ev.typeReg(), typeName, inst.Variables, inputs, ev.now()); err != nil {
			return storage.Value{}, errf(ErrInternal, loc, "%s", err)
		}
		if err := ev.writeBackArgs(callerFrame, inst, args); err != nil {
			return storage.Value{}, err
		}
		return storage.Null(), nil
	}

	fbDef, ok := ev.Program.FBs[typeName]
	if !ok {
		return storage.Value{}, errf(ErrUnknownCallee, loc, "unknown function block type %q", typeName)
	}
	for _, a := range args {
		if a.Value == nil {
			continue
		}
		v, err := ev.EvalExpr(callerFrame, a.Value)
		if err != nil {
			return storage.Value{}, err
		}
		inst.Variables.Set(a.ParamName, v)
	}
	callee := ev.Storage.PushFrame(typeName)
	callee.InstanceId = &instId
	_, _, err := ev.ExecBody(callee, fbDef.Body)
	ev.Storage.PopFrame()
	if err != nil {
		return storage.Value{}, err
	}
	if err := ev.writeBackArgs(callerFrame, inst, args); err != nil {
		return storage.Value{}, err
	}
	return storage.Null(), nil
}

func (ev *Evaluator) writeBackArgs(callerFrame *storage.LocalFrame, inst *storage.InstanceData, args []ir.Arg) error {
	for _, a := range args {
		if a.OutTarget == nil {
			continue
		}
		v, ok := inst.Variables.Get(a.ParamName)
		if !ok {
			continue
		}
		ref, err := ev.resolveRef(callerFrame, a.OutTarget)
		if err != nil {
			return err
		}
		if err := ev.Storage.Assign(ref, v); err != nil {
			return errf(ErrMissingSlot, a.OutTarget.Loc, "%s", err)
		}
	}
	return nil
}

// evalMethodCall resolves recv (a variable, THIS or SUPER) to an instance
// and dispatches methodName on it. THIS and plain variables dispatch
// dynamically (search starts at the instance's actual runtime type, so an
// OVERRIDE in a more-derived class wins); SUPER dispatches statically,
// starting the search one level above the calling method's own declaring
// type, bypassing override resolution for that one call.
func (ev *Evaluator) evalMethodCall(frame *storage.LocalFrame, e *ir.Expr, recv, methodName string) (storage.Value, error) {
	var instId storage.InstanceId
	var searchFrom string

	switch recv {
	case "THIS":
		if frame == nil || frame.InstanceId == nil {
			return storage.Value{}, errf(ErrNilReference, e.Loc, "THIS used outside an instance method")
		}
		instId = *frame.InstanceId
		searchFrom = ev.Storage.Instances[instId].TypeName
	case "SUPER":
		if frame == nil || frame.InstanceId == nil {
			return storage.Value{}, errf(ErrNilReference, e.Loc, "SUPER used outside an instance method")
		}
		instId = *frame.InstanceId
		searchFrom = ev.extendsOf(ownerTypeName(frame.Owner))
		if searchFrom == "" {
			return storage.Value{}, errf(ErrUnknownCallee, e.Loc, "SUPER has no base type from %q", ownerTypeName(frame.Owner))
		}
	default:
		ref, err := ev.resolveNameRef(frame, &ir.Expr{Kind: ir.ExprNameRef, Name: recv, Loc: e.Loc})
		if err != nil {
			return storage.Value{}, err
		}
		v, err := ev.Storage.Resolve(ref)
		if err != nil {
			return storage.Value{}, errf(ErrMissingSlot, e.Loc, "%s", err)
		}
		switch v.Kind {
		case storage.KindInstance:
			instId = v.Inst
		case storage.KindReference:
			if v.Ref == nil {
				return storage.Value{}, errf(ErrNilReference, e.Loc, "method call through a null reference")
			}
			rv, err := ev.Storage.Resolve(*v.Ref)
			if err != nil || rv.Kind != storage.KindInstance {
				return storage.Value{}, errf(ErrNotCallable, e.Loc, "%q is not an instance reference", recv)
			}
			instId = rv.Inst
		default:
			return storage.Value{}, errf(ErrNotCallable, e.Loc, "%q is not callable", recv)
		}
		searchFrom = ev.Storage.Instances[instId].TypeName
	}

	method, owner, ok := ev.resolveMethod(searchFrom, methodName)
	if !ok {
		return storage.Value{}, errf(ErrUnknownCallee, e.Loc, "no method %q reachable from %q", methodName, searchFrom)
	}
	return ev.CallMethod(frame, instId, method, owner, e.Args, e.Loc)
}

// resolveMethod searches typeName's own Methods, then walks Extends
// outward (across Classes and FBs alike) until found.
func (ev *Evaluator) resolveMethod(typeName, methodName string) (*ir.MethodDef, string, bool) {
	cur := typeName
	for cur != "" {
		if cls, ok := ev.Program.Classes[cur]; ok {
			for i := range cls.Methods {
				if cls.Methods[i].Name == methodName {
					return &cls.Methods[i], cur, true
				}
			}
			cur = cls.Extends
			continue
		}
		if fb, ok := ev.Program.FBs[cur]; ok {
			for i := range fb.Methods {
				if fb.Methods[i].Name == methodName {
					return &fb.Methods[i], cur, true
				}
			}
			cur = fb.Extends
			continue
		}
		break
	}
	return nil, "", false
}

func (ev *Evaluator) extendsOf(typeName string) string {
	if cls, ok := ev.Program.Classes[typeName]; ok {
		return cls.Extends
	}
	if fb, ok := ev.Program.FBs[typeName]; ok {
		return fb.Extends
	}
	return ""
}

// ownerTypeName decodes the "Type.Method" encoding CallMethod stores in
// frame.Owner, so a SUPER call knows which type's Extends to start from.
func ownerTypeName(owner string) string {
	if idx := strings.LastIndex(owner, "."); idx >= 0 {
		return owner[:idx]
	}
	return owner
}

// CallMethod pushes a transient param/local frame bound to instId and runs
// method's body.
func (ev *Evaluator) CallMethod(callerFrame *storage.LocalFrame, instId storage.InstanceId, method *ir.MethodDef, ownerTypeName string, args []ir.Arg, loc trust.SourceLocation) (storage.Value, error) {
	callee := ev.Storage.PushFrame(ownerTypeName + "." + method.Name)
	callee.InstanceId = &instId
	defer ev.Storage.PopFrame()

	if err := ev.bindParamsAndLocals(callerFrame, callee, method.Params, method.Vars, args, method.Return, method.Name, loc); err != nil {
		return storage.Value{}, err
	}
	if _, _, err := ev.ExecBody(callee, method.Body); err != nil {
		return storage.Value{}, err
	}
	if err := ev.writeBackParamArgs(callerFrame, callee, method.Params, args); err != nil {
		return storage.Value{}, err
	}
	return ev.resultValue(callee, method.Return, method.Name), nil
}

// CallFunction pushes a transient param/local frame (no bound instance) and
// runs fn's body.
func (ev *Evaluator) CallFunction(callerFrame *storage.LocalFrame, fn *ir.FunctionDef, args []ir.Arg, loc trust.SourceLocation) (storage.Value, error) {
	callee := ev.Storage.PushFrame(fn.Name)
	defer ev.Storage.PopFrame()

	if err := ev.bindParamsAndLocals(callerFrame, callee, fn.Params, fn.Vars, args, fn.Return, fn.Name, loc); err != nil {
		return storage.Value{}, err
	}
	if _, _, err := ev.ExecBody(callee, fn.Body); err != nil {
		return storage.Value{}, err
	}
	if err := ev.writeBackParamArgs(callerFrame, callee, fn.Params, args); err != nil {
		return storage.Value{}, err
	}
	return ev.resultValue(callee, fn.Return, fn.Name), nil
}

// CallProgram runs one scan of a program instance's body in place: a
// program has no parameters, and its Vars already live permanently on the
// bound instance, so there is nothing to bind before running the body.
func (ev *Evaluator) CallProgram(instId storage.InstanceId, prog *ir.ProgramDef) error {
	callee := ev.Storage.PushFrame(prog.Name)
	callee.InstanceId = &instId
	defer ev.Storage.PopFrame()
	_, _, err := ev.ExecBody(callee, prog.Body)
	return err
}

// resultValue reads back a function/method's result: an explicit RETURN
// sets frame.ReturnValue, which wins; otherwise the convention is
// assignment to a local named after the callee itself (funcName := expr),
// mirroring IEC's implicit result variable. Void callees return Null.
func (ev *Evaluator) resultValue(frame *storage.LocalFrame, ret types.TypeId, name string) storage.Value {
	if frame.ReturnValue != nil {
		return *frame.ReturnValue
	}
	if ret == types.Void {
		return storage.Null()
	}
	if v, ok := frame.Variables.Get(name); ok {
		return v
	}
	return ZeroValue(ev.typeReg(), ret)
}

// bindParamsAndLocals binds args into callee's param slots (positional
// when Arg.ParamName is empty, named otherwise) and zero/initializes every
// declared local, plus the implicit funcName result slot when retType is
// non-Void. Argument expressions are evaluated against callerFrame, the
// scope the call expression actually appears in.
func (ev *Evaluator) bindParamsAndLocals(callerFrame, callee *storage.LocalFrame, params []ir.ParamDef, vars []ir.VarDef, args []ir.Arg, retType types.TypeId, name string, loc trust.SourceLocation) error {
	if retType != types.Void {
		callee.Variables.Set(name, ZeroValue(ev.typeReg(), retType))
	}
	for i, p := range params {
		arg, ok := findArg(args, p.Name, i)
		switch p.Direction {
		case symbols.DirOut:
			callee.Variables.Set(p.Name, ZeroValue(ev.typeReg(), p.Type))
		case symbols.DirInOut:
			if !ok || arg.OutTarget == nil {
				return errf(ErrWrongArgCount, loc, "missing IN_OUT argument for parameter %q", p.Name)
			}
			ref, err := ev.resolveRef(callerFrame, arg.OutTarget)
			if err != nil {
				return err
			}
			v, err := ev.Storage.Resolve(ref)
			if err != nil {
				return errf(ErrMissingSlot, loc, "%s", err)
			}
			callee.Variables.Set(p.Name, v.Clone())
		default: // DirIn
			if !ok || arg.Value == nil {
				callee.Variables.Set(p.Name, ZeroValue(ev.typeReg(), p.Type))
				continue
			}
			v, err := ev.EvalExpr(callerFrame, arg.Value)
			if err != nil {
				return err
			}
			callee.Variables.Set(p.Name, v)
		}
	}
	for _, vd := range vars {
		v, err := ev.initialValue(callee, vd)
		if err != nil {
			return err
		}
		callee.Variables.Set(vd.Name, v)
	}
	return nil
}

// findArg locates the Arg bound to parameter p: by name if any Arg in the
// call carries ParamName, else positionally at index i.
func findArg(args []ir.Arg, paramName string, i int) (ir.Arg, bool) {
	named := false
	for _, a := range args {
		if a.ParamName != "" {
			named = true
			if a.ParamName == paramName {
				return a, true
			}
		}
	}
	if named {
		return ir.Arg{}, false
	}
	if i < len(args) {
		return args[i], true
	}
	return ir.Arg{}, false
}

// writeBackParamArgs copies OUT/IN_OUT parameter values back to the
// caller's bound OutTarget expressions after the call returns.
func (ev *Evaluator) writeBackParamArgs(callerFrame, callee *storage.LocalFrame, params []ir.ParamDef, args []ir.Arg) error {
	for i, p := range params {
		if p.Direction != symbols.DirOut && p.Direction != symbols.DirInOut {
			continue
		}
		arg, ok := findArg(args, p.Name, i)
		if !ok || arg.OutTarget == nil {
			continue
		}
		v, ok := callee.Variables.Get(p.Name)
		if !ok {
			continue
		}
		ref, err := ev.resolveRef(callerFrame, arg.OutTarget)
		if err != nil {
			return err
		}
		if err := ev.Storage.Assign(ref, v); err != nil {
			return errf(ErrMissingSlot, arg.OutTarget.Loc, "%s", err)
		}
	}
	return nil
}

// isAssignableInstance reports whether instId's dynamic type is targetType
// itself, or reaches it by walking Extends/Implements — the "attempt"
// check behind the '?=' reference-assignment operator.
func (ev *Evaluator) isAssignableInstance(instId storage.InstanceId, targetType types.TypeId) bool {
	inst, ok := ev.Storage.Instances[instId]
	if !ok {
		return false
	}
	targetName := ev.typeReg().TypeName(targetType)
	cur := inst.TypeName
	for cur != "" {
		if strings.EqualFold(cur, targetName) {
			return true
		}
		if cls, ok := ev.Program.Classes[cur]; ok {
			for _, i := range cls.Implements {
				if strings.EqualFold(i, targetName) {
					return true
				}
			}
			cur = cls.Extends
			continue
		}
		if fb, ok := ev.Program.FBs[cur]; ok {
			for _, i := range fb.Implements {
				if strings.EqualFold(i, targetName) {
					return true
				}
			}
			cur = fb.Extends
			continue
		}
		break
	}
	return false
}
