package symbols

import "strings"

// MergeProject imports src's externally-visible symbols into dst, tagging
// each imported symbol with its Origin (§3.2 lifecycle, §4.3 Project Import).
//
// Namespaces with identical dotted paths coalesce into dst's namespace scope
// (never merged by pointer identity, grounded on the teacher's ScopeTree
// push/pop-by-name discipline generalized to dotted-path keys, §9). Other
// root-level symbols are imported unless their name already exists in dst's
// global scope.
func MergeProject(dst *Table, src *Table, srcFile string) {
	remap := make(map[SymbolId]SymbolId)

	src.Iter(func(sym *Symbol) {
		if sym.Visibility == VisPrivate {
			return // not externally visible
		}
		scope, owned := src.ScopeForOwner(sym.Id)
		var targetScope ScopeId = GLOBAL
		if sc, ok := src.scopes[scope]; owned && ok && sc.IsNamespace {
			targetScope = dst.NewNamespaceScope(sc.DottedPath)
		} else if _, exists := dst.LookupInScope(GLOBAL, sym.Name); exists {
			return // name collision in target global scope: skip
		}

		clone := *sym
		clone.Id = 0
		clone.Origin = &Origin{File: srcFile, SymbolId: sym.Id}
		newId := dst.DefineInScope(targetScope, &clone)
		remap[sym.Id] = newId
	})

	// Remap parent pointers now that every symbol has a new id.
	dst.Iter(func(sym *Symbol) {
		if sym.Origin == nil {
			return
		}
		if sym.Parent != nil {
			if newParent, ok := remap[*sym.Parent]; ok {
				sym.Parent = &newParent
			}
		}
	})
}

// ExtendsKind classifies which kind an EXTENDS/IMPLEMENTS base must be for
// acyclicity checks (§4.4): CLASS->CLASS, FB->FB/CLASS, INTERFACE->INTERFACE.
func ExtendsKind(baseKind Kind, derivedKind Kind) bool {
	switch derivedKind {
	case KindClass:
		return baseKind == KindClass
	case KindFunctionBlock:
		return baseKind == KindFunctionBlock || baseKind == KindClass
	case KindInterface:
		return baseKind == KindInterface
	default:
		return false
	}
}

// DetectExtendsCycle walks the EXTENDS chain starting at id and reports
// whether it revisits a symbol (a cycle), using an in-progress set so a
// cyclic reference resolves to "cycle found" rather than looping forever
// (grounded on §9's "avoid cyclic type references... visiting types under
// an in-progress set; on revisit substitute UNKNOWN").
func DetectExtendsCycle(t *Table, start SymbolId) bool {
	seen := map[SymbolId]bool{start: true}
	cur := start
	for {
		sym, ok := t.Get(cur)
		if !ok || sym.Extends == "" {
			return false
		}
		base, ok := t.LookupAny(sym.Extends)
		if !ok {
			return false
		}
		if seen[base.Id] {
			return true
		}
		seen[base.Id] = true
		cur = base.Id
	}
}

// QualifiedNameParts splits a dotted-name syntax token into parts.
func QualifiedNameParts(qualified string) []string {
	return strings.Split(qualified, ".")
}
