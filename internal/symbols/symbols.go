// Package symbols implements the symbol table and scope tree ([B]):
// declarations, visibility, scope tree, qualified/namespaced lookup.
//
// Structurally this generalizes the teacher's runtime.SymbolTable/Scope/
// ScopeTree (a map-backed table attached to a scope, scopes forming a tree
// via a parent pointer and pushed/popped during traversal) from a single
// untyped Tag to a fully-kinded Symbol, and from a single global table to a
// table-per-scope addressed by ScopeId.
package symbols

import (
	"strings"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/types"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// SymbolId, ScopeId are opaque handles.
type SymbolId int32
type ScopeId int32

// GLOBAL is the root scope's id, always present in a fresh Table.
const GLOBAL ScopeId = 0

// Kind enumerates the closed set of symbol kinds.
type Kind uint8

const (
	KindNamespace Kind = iota
	KindProgram
	KindConfiguration
	KindResource
	KindTask
	KindProgramInstance
	KindFunctionBlock
	KindClass
	KindMethod
	KindProperty
	KindInterface
	KindVariable
	KindConstant
	KindParameter
	KindEnumValue
	KindType
)

// VarQualifier enumerates VAR_* qualifiers for KindVariable symbols.
type VarQualifier uint8

const (
	QualLocal VarQualifier = iota
	QualInput
	QualOutput
	QualInOut
	QualTemp
	QualGlobal
	QualExternal
	QualStatic
	QualAccess
)

// ParamDirection enumerates direction for KindParameter symbols.
type ParamDirection uint8

const (
	DirIn ParamDirection = iota
	DirOut
	DirInOut
)

// Visibility enumerates OOP member visibility.
type Visibility uint8

const (
	VisPublic Visibility = iota
	VisProtected
	VisPrivate
	VisInternal
)

// Modifiers bundles the boolean declaration modifiers.
type Modifiers struct {
	Final    bool
	Abstract bool
	Static   bool
	Override bool
}

// MethodInfo holds Method-kind-specific data.
type MethodInfo struct {
	Return types.TypeId
	Params []ParamInfo
}

// ParamInfo describes one formal parameter.
type ParamInfo struct {
	Name      string
	Type      types.TypeId
	Direction ParamDirection
}

// PropertyInfo holds Property-kind-specific data.
type PropertyInfo struct {
	Type   types.TypeId
	HasGet bool
	HasSet bool
}

// Origin records where an imported symbol originally came from, for
// cross-file merged tables (§3.2 lifecycle).
type Origin struct {
	File     string
	SymbolId SymbolId
}

// Symbol is one declaration.
type Symbol struct {
	Id     SymbolId
	Name   string // original spelling, preserved for diagnostics (property 2)
	Kind   Kind
	Parent *SymbolId // owning symbol, if any

	TypeId     types.TypeId
	Visibility Visibility
	Modifiers  Modifiers

	VarQualifier   VarQualifier // meaningful iff Kind == KindVariable
	ParamDirection ParamDirection
	Method         *MethodInfo
	Property       *PropertyInfo

	Range         trust.Span
	DirectAddress string // AT %... literal, empty if none
	Origin        *Origin

	Extends    string   // EXTENDS base name, for Class/FunctionBlock/Interface
	Implements []string // IMPLEMENTS names
}

// lcName is the case-insensitive lookup key (invariant from §3.2/property 2).
func lcName(name string) string { return strings.ToLower(name) }

// Scope is a node in the scope tree. Each scope optionally owns a symbol
// (e.g. a FUNCTION_BLOCK's own scope is owned by its FunctionBlock symbol).
type Scope struct {
	Id       ScopeId
	Name     string
	Parent   *ScopeId
	Owner    *SymbolId
	Children []ScopeId
	IsNamespace bool
	DottedPath  string // for namespace scopes, the coalescing key
}

// Table is a symbol table plus its scope tree: one instance per file, or a
// merged instance per (project, file) pair (§3.2 lifecycle).
type Table struct {
	symbols    map[SymbolId]*Symbol
	byScope    map[ScopeId]map[string]SymbolId // declares-in-scope index
	scopes     map[ScopeId]*Scope
	namespaces map[string]ScopeId // dotted path -> namespace scope, coalesced
	nextSym    SymbolId
	nextScope  ScopeId
}

// NewTable creates an empty table with a GLOBAL root scope.
func NewTable() *Table {
	tbl := &Table{
		symbols:    make(map[SymbolId]*Symbol),
		byScope:    make(map[ScopeId]map[string]SymbolId),
		scopes:     make(map[ScopeId]*Scope),
		namespaces: make(map[string]ScopeId),
		nextSym:    1,
		nextScope:  1,
	}
	tbl.scopes[GLOBAL] = &Scope{Id: GLOBAL, Name: "GLOBAL"}
	tbl.byScope[GLOBAL] = make(map[string]SymbolId)
	return tbl
}

// NewScope creates a child scope of parent. If owner is non-nil, invariant
// (I1) requires owner's scope equal parent once the caller links them.
func (t *Table) NewScope(parent ScopeId, name string, owner *SymbolId) ScopeId {
	id := t.nextScope
	t.nextScope++
	p := parent
	sc := &Scope{Id: id, Name: name, Parent: &p, Owner: owner}
	t.scopes[id] = sc
	t.byScope[id] = make(map[string]SymbolId)
	if ps, ok := t.scopes[parent]; ok {
		ps.Children = append(ps.Children, id)
	}
	T().P("scope", name).Debugf("created scope %d under %d", id, parent)
	return id
}

// NewNamespaceScope returns the scope for dottedPath, coalescing with any
// existing namespace scope of the identical path (never merged by pointer
// identity, always by dotted-path string, per §4.3/§9).
func (t *Table) NewNamespaceScope(dottedPath string) ScopeId {
	key := strings.ToLower(dottedPath)
	if id, ok := t.namespaces[key]; ok {
		return id
	}
	id := t.NewScope(GLOBAL, dottedPath, nil)
	t.scopes[id].IsNamespace = true
	t.scopes[id].DottedPath = dottedPath
	t.namespaces[key] = id
	return id
}

// DefineInScope declares sym in scope, indexed by case-insensitive name.
func (t *Table) DefineInScope(scope ScopeId, sym *Symbol) SymbolId {
	if sym.Id == 0 {
		sym.Id = t.nextSym
		t.nextSym++
	}
	t.symbols[sym.Id] = sym
	if _, ok := t.byScope[scope]; !ok {
		t.byScope[scope] = make(map[string]SymbolId)
	}
	t.byScope[scope][lcName(sym.Name)] = sym.Id
	return sym.Id
}

// LookupInScope resolves name directly in scope (no parent walk).
func (t *Table) LookupInScope(scope ScopeId, name string) (*Symbol, bool) {
	idx, ok := t.byScope[scope]
	if !ok {
		return nil, false
	}
	id, ok := idx[lcName(name)]
	if !ok {
		return nil, false
	}
	return t.symbols[id], true
}

// Resolve walks scope, then its ancestors, for name (case-insensitive).
func (t *Table) Resolve(name string, scope ScopeId) (*Symbol, ScopeId, bool) {
	cur := scope
	for {
		if sym, ok := t.LookupInScope(cur, name); ok {
			return sym, cur, true
		}
		sc, ok := t.scopes[cur]
		if !ok || sc.Parent == nil {
			return nil, 0, false
		}
		cur = *sc.Parent
	}
}

// ResolveQualified resolves a dotted-name path by walking namespace scopes
// in order (invariant I2): parts[0..n-2] are namespace segments, parts[n-1]
// is the final symbol name.
func (t *Table) ResolveQualified(parts []string) (*Symbol, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	if len(parts) == 1 {
		sym, _, ok := t.Resolve(parts[0], GLOBAL)
		return sym, ok
	}
	nsPath := strings.Join(parts[:len(parts)-1], ".")
	scopeId, ok := t.namespaces[strings.ToLower(nsPath)]
	if !ok {
		return nil, false
	}
	return t.LookupInScope(scopeId, parts[len(parts)-1])
}

// LookupAny searches every scope for name (case-insensitive), used by
// unqualified global fallbacks. Deterministic order: scope id ascending.
func (t *Table) LookupAny(name string) (*Symbol, bool) {
	ids := make([]ScopeId, 0, len(t.scopes))
	for id := range t.scopes {
		ids = append(ids, id)
	}
	sortScopeIds(ids)
	for _, id := range ids {
		if sym, ok := t.LookupInScope(id, name); ok {
			return sym, true
		}
	}
	return nil, false
}

func sortScopeIds(ids []ScopeId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// LookupType resolves a type name defined as a KindType symbol.
func (t *Table) LookupType(name string) (*Symbol, bool) {
	sym, ok := t.LookupAny(name)
	if !ok || sym.Kind != KindType {
		return nil, false
	}
	return sym, true
}

// ScopeForOwner returns the scope owned by sym, if any.
func (t *Table) ScopeForOwner(sym SymbolId) (ScopeId, bool) {
	for id, sc := range t.scopes {
		if sc.Owner != nil && *sc.Owner == sym {
			return id, true
		}
	}
	return 0, false
}

// Get returns the symbol for id.
func (t *Table) Get(id SymbolId) (*Symbol, bool) {
	s, ok := t.symbols[id]
	return s, ok
}

// GetMut returns a mutable pointer to the symbol for id.
func (t *Table) GetMut(id SymbolId) *Symbol {
	return t.symbols[id]
}

// SetExtends records the EXTENDS base name for a Class/FunctionBlock/Interface symbol.
func (t *Table) SetExtends(id SymbolId, base string) {
	if s, ok := t.symbols[id]; ok {
		s.Extends = base
	}
}

// ExtendsName returns the EXTENDS base name, if any.
func (t *Table) ExtendsName(id SymbolId) (string, bool) {
	s, ok := t.symbols[id]
	if !ok || s.Extends == "" {
		return "", false
	}
	return s.Extends, true
}

// ImplementsNames returns the IMPLEMENTS names, if any.
func (t *Table) ImplementsNames(id SymbolId) []string {
	s, ok := t.symbols[id]
	if !ok {
		return nil
	}
	return s.Implements
}

// Iter calls fn for every symbol, in ascending SymbolId order (deterministic).
func (t *Table) Iter(fn func(*Symbol)) {
	ids := make([]SymbolId, 0, len(t.symbols))
	for id := range t.symbols {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	for _, id := range ids {
		fn(t.symbols[id])
	}
}

// Scopes returns the internal scope map for read-only traversal by callers
// in the same module (used by the OOP conformance and import passes).
func (t *Table) Scopes() map[ScopeId]*Scope {
	return t.scopes
}

// CanInherit decides visibility-aware inheritance reachability (invariant
// I3): Private is never inherited; Internal only within the same namespace
// path; Public/Protected always inherited.
func CanInherit(vis Visibility, sameNamespace bool) bool {
	switch vis {
	case VisPrivate:
		return false
	case VisInternal:
		return sameNamespace
	default:
		return true
	}
}
