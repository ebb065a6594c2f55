package check

import (
	"fmt"
	"strings"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// CheckOOP runs the full §4.4 conformance pass over every Class/
// FunctionBlock/Interface symbol in t, appending diagnostics to bag.
func CheckOOP(reg *types.Registry, t *symbols.Table, bag *diag.Bag, file string) {
	t.Iter(func(sym *symbols.Symbol) {
		switch sym.Kind {
		case symbols.KindClass, symbols.KindFunctionBlock, symbols.KindInterface:
			checkExtends(reg, t, bag, file, sym)
			checkImplements(reg, t, bag, file, sym)
			checkOverrides(t, bag, file, sym)
		case symbols.KindProperty:
			if sym.Property != nil && !sym.Property.HasGet && !sym.Property.HasSet {
				bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "property %q declares neither GET nor SET", sym.Name))
			}
		}
	})
}

func loc(file string, sym *symbols.Symbol) trust.SourceLocation {
	return trust.SourceLocation{File: file, Span: sym.Range}
}

func checkExtends(reg *types.Registry, t *symbols.Table, bag *diag.Bag, file string, sym *symbols.Symbol) {
	base, ok := t.ExtendsName(sym.Id)
	if !ok {
		return
	}
	baseSym, found := t.LookupAny(base)
	if !found {
		bag.Add(diag.New(diag.EUnresolvedType, loc(file, sym), "EXTENDS base %q not found", base))
		return
	}
	if !symbols.ExtendsKind(baseSym.Kind, sym.Kind) {
		bag.Add(diag.New(diag.ETypeMismatch, loc(file, sym), "%q cannot extend %q: incompatible kinds", sym.Name, base))
	}
	if baseSym.Modifiers.Final {
		bag.Add(diag.New(diag.EFinalExtended, loc(file, sym), "%q extends FINAL %q", sym.Name, base))
	}
	if symbols.DetectExtendsCycle(t, sym.Id) {
		bag.Add(diag.New(diag.ECyclicInheritance, loc(file, sym), "EXTENDS cycle detected starting at %q", sym.Name))
	}
}

func checkImplements(reg *types.Registry, t *symbols.Table, bag *diag.Bag, file string, sym *symbols.Symbol) {
	if sym.Kind == symbols.KindInterface {
		return
	}
	for _, ifaceName := range sym.Implements {
		ifaceSym, ok := t.LookupAny(ifaceName)
		if !ok || ifaceSym.Kind != symbols.KindInterface {
			bag.Add(diag.New(diag.EUnresolvedType, loc(file, sym), "IMPLEMENTS target %q is not an interface", ifaceName))
			continue
		}
		ifaceScope, hasScope := t.ScopeForOwner(ifaceSym.Id)
		if !hasScope {
			continue
		}
		implScope, hasImpl := t.ScopeForOwner(sym.Id)
		for _, ifaceMemberId := range scopeMembers(t, ifaceScope) {
			ifaceMember, _ := t.Get(ifaceMemberId)
			if ifaceMember.Visibility != symbols.VisPublic && ifaceMember.Visibility != symbols.VisInternal {
				continue
			}
			if !hasImpl {
				bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q does not implement %q: missing %q", sym.Name, ifaceName, ifaceMember.Name))
				continue
			}
			actual, found := t.LookupInScope(implScope, ifaceMember.Name)
			if !found {
				bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q does not implement %q: missing %q", sym.Name, ifaceName, ifaceMember.Name))
				continue
			}
			if ifaceMember.Method != nil {
				if !methodSignatureMatches(reg, ifaceMember.Method, actual.Method) {
					bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q.%q signature does not match interface %q", sym.Name, ifaceMember.Name, ifaceName))
				}
			}
			if ifaceMember.Property != nil {
				if actual.Property == nil || reg.ResolveAlias(actual.Property.Type) != reg.ResolveAlias(ifaceMember.Property.Type) {
					bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q.%q property type does not match interface %q", sym.Name, ifaceMember.Name, ifaceName))
					continue
				}
				if (ifaceMember.Property.HasGet && !actual.Property.HasGet) || (ifaceMember.Property.HasSet && !actual.Property.HasSet) {
					bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q.%q does not expose required GET/SET for interface %q", sym.Name, ifaceMember.Name, ifaceName))
				}
			}
			if actual.Visibility != symbols.VisPublic && actual.Visibility != symbols.VisInternal {
				bag.Add(diag.New(diag.EInterfaceIncomplete, loc(file, sym), "%q.%q must be PUBLIC or INTERNAL to satisfy interface %q", sym.Name, ifaceMember.Name, ifaceName))
			}
		}
	}
}

func scopeMembers(t *symbols.Table, scope symbols.ScopeId) []symbols.SymbolId {
	var out []symbols.SymbolId
	for _, name := range memberNamesOf(t, scope) {
		if sym, ok := t.LookupInScope(scope, name); ok {
			out = append(out, sym.Id)
		}
	}
	return out
}

func memberNamesOf(t *symbols.Table, scope symbols.ScopeId) []string {
	var names []string
	seen := map[string]bool{}
	t.Iter(func(s *symbols.Symbol) {
		if sym, ok := t.LookupInScope(scope, s.Name); ok && sym.Id == s.Id && !seen[strings.ToLower(s.Name)] {
			seen[strings.ToLower(s.Name)] = true
			names = append(names, s.Name)
		}
	})
	return names
}

func methodSignatureMatches(reg *types.Registry, iface, actual *symbols.MethodInfo) bool {
	if actual == nil {
		return false
	}
	if reg.ResolveAlias(iface.Return) != reg.ResolveAlias(actual.Return) {
		return false
	}
	if len(iface.Params) != len(actual.Params) {
		return false
	}
	for i := range iface.Params {
		ip, ap := iface.Params[i], actual.Params[i]
		if ip.Direction != ap.Direction {
			return false
		}
		if reg.ResolveAlias(ip.Type) != reg.ResolveAlias(ap.Type) {
			return false
		}
		if !strings.EqualFold(ip.Name, ap.Name) {
			return false
		}
	}
	return true
}

// checkOverrides verifies OVERRIDE and FINAL method rules and member
// shadowing, walking the EXTENDS chain for each declared method; ABSTRACT
// methods are not checked here.
func checkOverrides(t *symbols.Table, bag *diag.Bag, file string, sym *symbols.Symbol) {
	scope, ok := t.ScopeForOwner(sym.Id)
	if !ok {
		return
	}
	base, hasBase := t.ExtendsName(sym.Id)
	for _, name := range memberNamesOf(t, scope) {
		member, _ := t.LookupInScope(scope, name)
		if member.Kind != symbols.KindMethod && member.Kind != symbols.KindVariable && member.Kind != symbols.KindConstant {
			continue
		}
		if !hasBase {
			if member.Modifiers.Override {
				bag.Add(diag.New(diag.EInvalidOverride, loc(file, member), "%q marked OVERRIDE but %q has no EXTENDS base", name, sym.Name))
			}
			continue
		}
		baseSym, found := t.LookupAny(base)
		if !found {
			continue
		}
		baseScope, hasScope := t.ScopeForOwner(baseSym.Id)
		if !hasScope {
			continue
		}
		inherited, inhOk := t.LookupInScope(baseScope, name)
		if !inhOk {
			if member.Modifiers.Override {
				bag.Add(diag.New(diag.EInvalidOverride, loc(file, member), "%q marked OVERRIDE but no inherited member named %q", name, name))
			}
			continue
		}
		if member.Kind == symbols.KindVariable || member.Kind == symbols.KindConstant {
			bag.Add(diag.New(diag.WMemberShadow, loc(file, member), "%q shadows inherited member %q", name, name))
			continue
		}
		if !member.Modifiers.Override {
			continue
		}
		if inherited.Modifiers.Final {
			bag.Add(diag.New(diag.EFinalExtended, loc(file, member), "%q overrides FINAL method %q", name, name))
		}
		if inherited.Method == nil || member.Method == nil || !methodSignatureMatchesLoose(inherited.Method, member.Method) {
			bag.Add(diag.New(diag.EInvalidOverride, loc(file, member), "%q's signature does not match the inherited method", name))
		}
	}
	if sym.Modifiers.Abstract {
		return
	}
}

func methodSignatureMatchesLoose(a, b *symbols.MethodInfo) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	if a.Return != b.Return {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Type != b.Params[i].Type || a.Params[i].Direction != b.Params[i].Direction {
			return false
		}
	}
	return true
}

// CheckInstantiation rejects direct instantiation of an ABSTRACT class as a
// plain variable (everything other than an IN/INOUT parameter).
func CheckInstantiation(t *symbols.Table, bag *diag.Bag, file string, varSym *symbols.Symbol, declaredType string) {
	sym, ok := t.LookupAny(declaredType)
	if !ok || !sym.Modifiers.Abstract {
		return
	}
	if varSym.VarQualifier == symbols.QualInput || varSym.VarQualifier == symbols.QualInOut {
		return
	}
	bag.Add(diag.New(diag.EAbstractInstantiation, loc(file, varSym), fmt.Sprintf("cannot instantiate ABSTRACT %q as a variable", declaredType)))
}
