package eval

import (
	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// instantiate allocates a new persistent instance of typeName (FB or
// Class) and initializes every field declared by it and its Extends chain,
// base type first so a derived type's own initializer, if any, is what
// ends up set for a same-named field.
func (ev *Evaluator) instantiate(typeName string) (storage.InstanceId, error) {
	instId := ev.Storage.NewInstance(typeName, nil)
	if err := ev.populateInstance(instId, typeName); err != nil {
		return 0, err
	}
	return instId, nil
}

func (ev *Evaluator) populateInstance(instId storage.InstanceId, typeName string) error {
	vars, err := ev.collectVars(typeName)
	if err != nil {
		return err
	}
	// A throwaway frame bound to the instance, so initializer expressions
	// referencing sibling fields fall through resolveNameRef's instance
	// tier; it is never pushed onto the call stack.
	initFrame := &storage.LocalFrame{Variables: storage.NewOrderedMap(), InstanceId: &instId}
	inst := ev.Storage.Instances[instId]
	for _, vd := range vars {
		v, err := ev.initialValue(initFrame, vd)
		if err != nil {
			return err
		}
		inst.Variables.Set(vd.Name, v)
	}
	return nil
}

// InitializeProgram allocates the one persistent instance a PROGRAM gets
// for its entire lifetime (§3.3): every one of its Vars, initialized once,
// is what CallProgram's transient per-scan frame resolves into via the
// instance tier. The instance name and the PROGRAM type name are the same,
// the common case of a PROGRAM run directly without a configuration-level
// instance binding.
func (ev *Evaluator) InitializeProgram(name string) (storage.InstanceId, error) {
	return ev.InitializeProgramInstance(name, name)
}

// InitializeProgramInstance is InitializeProgram generalized to a
// configuration's PROGRAM instance binding (§4.6, §4.8), where a RESOURCE
// may name its own instance independently of the PROGRAM type it runs
// (ir.ProgramAssignment.InstanceName vs. ProgramName).
func (ev *Evaluator) InitializeProgramInstance(instanceName, typeName string) (storage.InstanceId, error) {
	prog, ok := ev.Program.Programs[typeName]
	if !ok {
		return 0, errf(ErrUnknownCallee, trust.SourceLocation{}, "unknown program type %q for instance %q", typeName, instanceName)
	}
	instId := ev.Storage.NewInstance(typeName, nil)
	initFrame := &storage.LocalFrame{Variables: storage.NewOrderedMap(), InstanceId: &instId}
	inst := ev.Storage.Instances[instId]
	for _, vd := range prog.Vars {
		v, err := ev.initialValue(initFrame, vd)
		if err != nil {
			return 0, err
		}
		inst.Variables.Set(vd.Name, v)
	}
	return instId, nil
}

// collectVars gathers Vars across typeName's Extends chain, base-first.
func (ev *Evaluator) collectVars(typeName string) ([]ir.VarDef, error) {
	var chain []string
	for cur := typeName; cur != ""; cur = ev.extendsOf(cur) {
		chain = append(chain, cur)
		if len(chain) > 64 {
			break // Extends cycles are rejected at check time; this just bounds a miss.
		}
	}
	var vars []ir.VarDef
	for i := len(chain) - 1; i >= 0; i-- {
		name := chain[i]
		if cls, ok := ev.Program.Classes[name]; ok {
			vars = append(vars, cls.Vars...)
			continue
		}
		if fb, ok := ev.Program.FBs[name]; ok {
			vars = append(vars, fb.Vars...)
			continue
		}
		return nil, errf(ErrUnknownCallee, trust.SourceLocation{}, "unknown type %q in Extends chain of %q", name, typeName)
	}
	return vars, nil
}

// initialValue computes the starting value for a declared variable: a
// nested FB/Class field gets its own live instance, anything else with an
// initializer evaluates it, everything else is ZeroValue.
func (ev *Evaluator) initialValue(frame *storage.LocalFrame, vd ir.VarDef) (storage.Value, error) {
	if t, ok := ev.typeReg().Get(vd.Type); ok && (t.Kind == types.KindFunctionBlock || t.Kind == types.KindClass) {
		instId, err := ev.instantiate(ev.typeReg().TypeName(vd.Type))
		if err != nil {
			return storage.Value{}, err
		}
		return storage.Instance(vd.Type, instId), nil
	}
	if vd.Initializer != nil {
		return ev.EvalExpr(frame, vd.Initializer)
	}
	return ZeroValue(ev.typeReg(), vd.Type), nil
}
