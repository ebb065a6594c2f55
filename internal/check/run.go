package check

import (
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// RunAll is the production RunSemanticChecks hook (hirdb.RunSemanticChecks):
// it runs every table-wide semantic pass over merged, in the order
// internal/lower's own consumers assume a fully-checked table already holds
// (OOP conformance before abstract-instantiation, since the latter trusts
// Modifiers.Abstract as already validated against a resolvable EXTENDS base).
func RunAll(reg *types.Registry, merged *symbols.Table, file string, bag *diag.Bag) {
	CheckOOP(reg, merged, bag, file)
	checkAbstractInstantiations(merged, bag, file)
}

// checkAbstractInstantiations walks every declared variable whose type names
// an ABSTRACT Class/FunctionBlock and rejects it unless it is an IN/IN_OUT
// parameter (§4.4), the same rule CheckInstantiation enforces one variable
// at a time.
func checkAbstractInstantiations(t *symbols.Table, bag *diag.Bag, file string) {
	t.Iter(func(sym *symbols.Symbol) {
		if sym.Kind != symbols.KindVariable {
			return
		}
		declType, ok := declaredTypeName(t, sym)
		if !ok {
			return
		}
		CheckInstantiation(t, bag, file, sym, declType)
	})
}

// declaredTypeName finds the Class/FunctionBlock symbol name backing sym's
// TypeId, if any: CheckInstantiation takes a declared-type NAME (it looks
// the name back up via LookupAny), so the binder's TypeId must be mapped
// back to the owning symbol's name here.
func declaredTypeName(t *symbols.Table, sym *symbols.Symbol) (string, bool) {
	name := ""
	t.Iter(func(s *symbols.Symbol) {
		if name != "" {
			return
		}
		if (s.Kind == symbols.KindClass || s.Kind == symbols.KindFunctionBlock) && s.TypeId == sym.TypeId {
			name = s.Name
		}
	})
	if name == "" {
		return "", false
	}
	return name, true
}
