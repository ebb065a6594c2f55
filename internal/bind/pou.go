package bind

import (
	"strings"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func (b *builder) pou(n *cst.Node) (*symbols.Symbol, symbols.ScopeId, bool) {
	key := strings.ToLower(nameOf(n))
	sym, ok := b.pouSym[key]
	if !ok {
		return nil, 0, false
	}
	return sym, b.pouScope[key], true
}

// bindInterface fills in an already-predeclared INTERFACE's method/property
// signatures and its (possibly multi-base) EXTENDS list. internal/check/
// oop.go's checkExtends walks a single Symbol.Extends base even for
// interfaces, so the first EXTENDS name is recorded there too, alongside the
// full list in Implements that internal/lower's LowerInterface reads as its
// Extends list (§4.4/§4.6 interfaces may extend more than one base).
func (b *builder) bindInterface(n *cst.Node) {
	sym, scope, ok := b.pou(n)
	if !ok {
		return
	}
	for _, mn := range n.ChildrenOf(cst.KindMethod) {
		b.bindMethod(scope, mn)
	}
	for _, pn := range n.ChildrenOf(cst.KindProperty) {
		b.bindProperty(scope, pn)
	}
	bases := extendsNames(n)
	sym.Implements = bases
	if len(bases) > 0 {
		b.tbl.SetExtends(sym.Id, bases[0])
	}
}

// bindClass fills in an already-predeclared CLASS's var blocks, methods,
// properties, EXTENDS base, and IMPLEMENTS targets.
func (b *builder) bindClass(n *cst.Node) {
	sym, scope, ok := b.pou(n)
	if !ok {
		return
	}
	b.bindVarBlocks(scope, n)
	for _, mn := range n.ChildrenOf(cst.KindMethod) {
		b.bindMethod(scope, mn)
	}
	for _, pn := range n.ChildrenOf(cst.KindProperty) {
		b.bindProperty(scope, pn)
	}
	if bases := extendsNames(n); len(bases) > 0 {
		b.tbl.SetExtends(sym.Id, bases[0])
	}
	sym.Implements = implementsNames(n)
}

// bindFunctionBlock is bindClass's FUNCTION_BLOCK counterpart; FBs carry the
// same EXTENDS/IMPLEMENTS/METHOD/PROPERTY shape as classes (§4.4).
func (b *builder) bindFunctionBlock(n *cst.Node) {
	b.bindClass(n)
}

// bindMethod declares one METHOD's own scope under owner, its VAR_INPUT/
// VAR_OUTPUT/VAR_IN_OUT/local variables, and its MethodInfo (return type,
// parameter list) read by both internal/lower (LowerMethod) and
// internal/check (typeOfCall, checkOverrides).
func (b *builder) bindMethod(owner symbols.ScopeId, n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	mods := parseModifiers(n.Text)
	ret := types.Void
	if tr := n.Child(cst.KindTypeRef); tr != nil {
		ret = b.resolveTypeRef(tr)
	}
	sym := &symbols.Symbol{
		Name:       name,
		Kind:       symbols.KindMethod,
		TypeId:     ret,
		Visibility: mods.Visibility,
		Modifiers:  symbols.Modifiers{Final: mods.Final, Abstract: mods.Abstract, Override: mods.Override, Static: mods.Static},
		Range:      n.Span,
	}
	id := b.tbl.DefineInScope(owner, sym)
	scope := b.tbl.NewScope(owner, name, &id)
	b.bindVarBlocks(scope, n)
	sym.Method = &symbols.MethodInfo{Return: ret, Params: b.paramsFromScope(scope)}
}

// bindProperty declares one PROPERTY symbol directly in owner (properties
// have no scope of their own: internal/lower's LowerProperty reads Property
// fields straight off the Symbol).
func (b *builder) bindProperty(owner symbols.ScopeId, n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	mods := parseModifiers(n.Text)
	ptype := types.Void
	if tr := n.Child(cst.KindTypeRef); tr != nil {
		ptype = b.resolveTypeRef(tr)
	}
	sym := &symbols.Symbol{
		Name:       name,
		Kind:       symbols.KindProperty,
		TypeId:     ptype,
		Visibility: mods.Visibility,
		Modifiers:  symbols.Modifiers{Final: mods.Final, Abstract: mods.Abstract, Override: mods.Override, Static: mods.Static},
		Property:   &symbols.PropertyInfo{Type: ptype, HasGet: mods.HasGet, HasSet: mods.HasSet},
		Range:      n.Span,
	}
	b.tbl.DefineInScope(owner, sym)
}

// bindFunction declares a top-level FUNCTION symbol. symbols.Kind has no
// dedicated Function kind (free functions share KindMethod, which is all
// that internal/check's typeOfCall and internal/lower's call-argument
// binding actually require: a Method != nil). TypeId carries the return
// type for LowerFunction's direct read of sym.TypeId, and Method.Return
// carries the same value for typeOfCall's read of sym.Method.Return, so
// both call sites agree.
func (b *builder) bindFunction(n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	ret := types.Void
	if tr := n.Child(cst.KindTypeRef); tr != nil {
		ret = b.resolveTypeRef(tr)
	}
	sym := &symbols.Symbol{
		Name:       name,
		Kind:       symbols.KindMethod,
		TypeId:     ret,
		Visibility: symbols.VisPublic,
		Range:      n.Span,
	}
	id := b.tbl.DefineInScope(symbols.GLOBAL, sym)
	scope := b.tbl.NewScope(symbols.GLOBAL, name, &id)
	b.bindVarBlocks(scope, n)
	sym.Method = &symbols.MethodInfo{Return: ret, Params: b.paramsFromScope(scope)}
}

// bindProgram declares a top-level PROGRAM symbol and its own scope.
func (b *builder) bindProgram(n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	sym := &symbols.Symbol{Name: name, Kind: symbols.KindProgram, Visibility: symbols.VisPublic, Range: n.Span}
	id := b.tbl.DefineInScope(symbols.GLOBAL, sym)
	scope := b.tbl.NewScope(symbols.GLOBAL, name, &id)
	b.bindVarBlocks(scope, n)
}

// bindConfiguration declares a CONFIGURATION symbol. internal/lower's
// LowerConfiguration never calls ScopeForOwner on it (tasks/resources/
// VAR_ACCESS/VAR_CONFIG are all lowered straight from CST attrs, not symbol
// lookups), so no owned scope is needed here.
func (b *builder) bindConfiguration(n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	sym := &symbols.Symbol{Name: name, Kind: symbols.KindConfiguration, Visibility: symbols.VisPublic, Range: n.Span}
	b.tbl.DefineInScope(symbols.GLOBAL, sym)
}
