package lower

import (
	"strings"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// lowerVarBlock lowers every VarDecl under one VAR.../END_VAR block. The
// block's RETAIN attribute is carried on vb.Text (e.g. "VAR RETAIN"),
// independent of the per-variable VarQualifier.
func (lw *Lowerer) lowerVarBlock(scope symbols.ScopeId, vb *cst.Node) []ir.VarDef {
	retain := strings.Contains(strings.ToUpper(vb.Text), "RETAIN")
	var out []ir.VarDef
	for _, vd := range vb.ChildrenOf(cst.KindVarDecl) {
		out = append(out, lw.lowerVarDecl(scope, vd, retain))
	}
	return out
}

func (lw *Lowerer) lowerVarDecl(scope symbols.ScopeId, vd *cst.Node, retain bool) ir.VarDef {
	nameNode := vd.Child(cst.KindName)
	name := ""
	if nameNode != nil {
		name = nameNode.Text
	}
	def := ir.VarDef{Name: name, Retain: retain}

	sym, _, ok := lw.Checker.Table.Resolve(name, scope)
	if ok {
		def.Type = sym.TypeId
		def.Qualifier = sym.VarQualifier
		def.Address = sym.DirectAddress
	} else {
		lw.Bag.Add(diag.New(diag.EUnresolvedName, lw.loc(vd), "no bound symbol for declared variable %q", name))
		def.Type = types.Unknown
	}

	for _, c := range vd.Children {
		if c.Kind == cst.KindName || c.Kind == cst.KindTypeRef {
			continue
		}
		def.Initializer = lw.LowerExpr(scope, c)
		break
	}
	return def
}

// lowerAllVarBlocks collects every VAR*/END_VAR block directly under n.
func (lw *Lowerer) lowerAllVarBlocks(scope symbols.ScopeId, n *cst.Node) []ir.VarDef {
	var out []ir.VarDef
	for _, vb := range n.ChildrenOf(cst.KindVarBlock) {
		out = append(out, lw.lowerVarBlock(scope, vb)...)
	}
	return out
}

// directionFor maps a parameter's declared VarQualifier to its call direction.
func directionFor(q symbols.VarQualifier) symbols.ParamDirection {
	switch q {
	case symbols.QualOutput:
		return symbols.DirOut
	case symbols.QualInOut:
		return symbols.DirInOut
	default:
		return symbols.DirIn
	}
}

// membersInScope returns every symbol directly declared in scope (not a
// parent scope), in declaration (SymbolId) order.
func membersInScope(t *symbols.Table, scope symbols.ScopeId) []*symbols.Symbol {
	var out []*symbols.Symbol
	seen := map[string]bool{}
	t.Iter(func(s *symbols.Symbol) {
		if sym, ok := t.LookupInScope(scope, s.Name); ok && sym.Id == s.Id && !seen[strings.ToLower(s.Name)] {
			seen[strings.ToLower(s.Name)] = true
			out = append(out, s)
		}
	})
	return out
}

// lowerParams pulls VAR_INPUT/VAR_OUTPUT/VAR_IN_OUT members in declaration
// order from the POU's own scope, skipping plain VAR_* locals.
func lowerParams(t *symbols.Table, scope symbols.ScopeId) []ir.ParamDef {
	var out []ir.ParamDef
	for _, s := range membersInScope(t, scope) {
		if s.Kind != symbols.KindVariable {
			continue
		}
		switch s.VarQualifier {
		case symbols.QualInput, symbols.QualOutput, symbols.QualInOut:
		default:
			continue
		}
		out = append(out, ir.ParamDef{Name: s.Name, Type: s.TypeId, Direction: directionFor(s.VarQualifier)})
	}
	return out
}

// modifiers holds the parsed leading-keyword attributes a Method/Class/
// Property node carries on its Text field (e.g. "PUBLIC ABSTRACT OVERRIDE").
type modifiers struct {
	Visibility symbols.Visibility
	Final      bool
	Abstract   bool
	Override   bool
	Static     bool
}

func parseModifiers(text string) modifiers {
	m := modifiers{Visibility: symbols.VisPublic}
	for _, w := range strings.Fields(strings.ToUpper(text)) {
		switch w {
		case "PUBLIC":
			m.Visibility = symbols.VisPublic
		case "PRIVATE":
			m.Visibility = symbols.VisPrivate
		case "PROTECTED":
			m.Visibility = symbols.VisProtected
		case "INTERNAL":
			m.Visibility = symbols.VisInternal
		case "FINAL":
			m.Final = true
		case "ABSTRACT":
			m.Abstract = true
		case "OVERRIDE":
			m.Override = true
		case "STATIC":
			m.Static = true
		}
	}
	return m
}

// LowerFunction lowers a FUNCTION declaration.
func (lw *Lowerer) LowerFunction(n *cst.Node, sym *symbols.Symbol) *ir.FunctionDef {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	ctx := &StmtCtx{ReturnType: sym.TypeId, HasReturn: sym.TypeId != types.Void}
	return &ir.FunctionDef{
		Name:   sym.Name,
		Params: lowerParams(lw.Checker.Table, scope),
		Return: sym.TypeId,
		Vars:   lw.lowerAllVarBlocks(scope, n),
		Body:   lw.LowerBody(scope, n.Child(cst.KindStmtList), ctx),
	}
}

// LowerProgram lowers a PROGRAM declaration.
func (lw *Lowerer) LowerProgram(n *cst.Node, sym *symbols.Symbol) *ir.ProgramDef {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	ctx := &StmtCtx{}
	return &ir.ProgramDef{
		Name: sym.Name,
		Vars: lw.lowerAllVarBlocks(scope, n),
		Body: lw.LowerBody(scope, n.Child(cst.KindStmtList), ctx),
	}
}

// LowerMethod lowers one METHOD node belonging to an FB/Class. slot is this
// method's assigned vtable slot (declaration order among all of the owner's
// methods, static ones included).
func (lw *Lowerer) LowerMethod(n *cst.Node, sym *symbols.Symbol, slot int) ir.MethodDef {
	mods := parseModifiers(n.Text)
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	ret := types.Void
	if sym.Method != nil {
		ret = sym.Method.Return
	}
	ctx := &StmtCtx{ReturnType: ret, HasReturn: ret != types.Void}
	return ir.MethodDef{
		Name:       sym.Name,
		Params:     lowerParams(lw.Checker.Table, scope),
		Return:     ret,
		Vars:       lw.lowerAllVarBlocks(scope, n),
		Body:       lw.LowerBody(scope, n.Child(cst.KindStmtList), ctx),
		Visibility: mods.Visibility,
		VTableSlot: slot,
		IsOverride: mods.Override,
		IsAbstract: mods.Abstract,
		IsFinal:    mods.Final,
		IsStatic:   mods.Static,
	}
}

// LowerProperty lowers one PROPERTY node's GET/SET exposure signature.
func (lw *Lowerer) LowerProperty(sym *symbols.Symbol) ir.PropertyDef {
	p := ir.PropertyDef{Name: sym.Name, Visibility: sym.Visibility}
	if sym.Property != nil {
		p.Type = sym.Property.Type
		p.HasGet = sym.Property.HasGet
		p.HasSet = sym.Property.HasSet
	}
	return p
}

func (lw *Lowerer) lowerMethodsAndProperties(n *cst.Node, sym *symbols.Symbol) ([]ir.MethodDef, []ir.PropertyDef) {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	var methods []ir.MethodDef
	var props []ir.PropertyDef
	slot := 0
	for _, mn := range n.ChildrenOf(cst.KindMethod) {
		nameNode := mn.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		msym, ok := lw.Checker.Table.LookupInScope(scope, nameNode.Text)
		if !ok {
			lw.Bag.Add(diag.New(diag.EUnresolvedName, lw.loc(mn), "no bound symbol for method %q", nameNode.Text))
			continue
		}
		methods = append(methods, lw.LowerMethod(mn, msym, slot))
		slot++
	}
	for _, pn := range n.ChildrenOf(cst.KindProperty) {
		nameNode := pn.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		psym, ok := lw.Checker.Table.LookupInScope(scope, nameNode.Text)
		if !ok {
			lw.Bag.Add(diag.New(diag.EUnresolvedName, lw.loc(pn), "no bound symbol for property %q", nameNode.Text))
			continue
		}
		props = append(props, lw.LowerProperty(psym))
	}
	return methods, props
}

// LowerFunctionBlock lowers a FUNCTION_BLOCK declaration.
func (lw *Lowerer) LowerFunctionBlock(n *cst.Node, sym *symbols.Symbol) *ir.FunctionBlockDef {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	methods, props := lw.lowerMethodsAndProperties(n, sym)
	ctx := &StmtCtx{}
	fb := &ir.FunctionBlockDef{
		Name:       sym.Name,
		Vars:       lw.lowerAllVarBlocks(scope, n),
		Body:       lw.LowerBody(scope, n.Child(cst.KindStmtList), ctx),
		Methods:    methods,
		Properties: props,
		Extends:    sym.Extends,
		Implements: sym.Implements,
	}
	return fb
}

// LowerClass lowers a CLASS declaration.
func (lw *Lowerer) LowerClass(n *cst.Node, sym *symbols.Symbol) *ir.ClassDef {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	methods, props := lw.lowerMethodsAndProperties(n, sym)
	return &ir.ClassDef{
		Name:       sym.Name,
		Vars:       lw.lowerAllVarBlocks(scope, n),
		Methods:    methods,
		Properties: props,
		Extends:    sym.Extends,
		Implements: sym.Implements,
		IsAbstract: sym.Modifiers.Abstract,
		IsFinal:    sym.Modifiers.Final,
	}
}

// LowerInterface lowers an INTERFACE declaration's method/property
// signatures (no bodies).
func (lw *Lowerer) LowerInterface(n *cst.Node, sym *symbols.Symbol) *ir.InterfaceDef {
	scope, _ := lw.Checker.Table.ScopeForOwner(sym.Id)
	iface := &ir.InterfaceDef{Name: sym.Name, Extends: sym.Implements}
	for _, mn := range n.ChildrenOf(cst.KindMethod) {
		nameNode := mn.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		msym, ok := lw.Checker.Table.LookupInScope(scope, nameNode.Text)
		if !ok {
			continue
		}
		ret := types.Void
		var params []ir.ParamDef
		if msym.Method != nil {
			ret = msym.Method.Return
			for _, p := range msym.Method.Params {
				params = append(params, ir.ParamDef{Name: p.Name, Type: p.Type, Direction: p.Direction})
			}
		}
		iface.Methods = append(iface.Methods, ir.MethodSig{Name: msym.Name, Params: params, Return: ret})
	}
	for _, pn := range n.ChildrenOf(cst.KindProperty) {
		nameNode := pn.Child(cst.KindName)
		if nameNode == nil {
			continue
		}
		psym, ok := lw.Checker.Table.LookupInScope(scope, nameNode.Text)
		if !ok || psym.Property == nil {
			continue
		}
		iface.Properties = append(iface.Properties, ir.PropertySig{
			Name: psym.Name, Type: psym.Property.Type, HasGet: psym.Property.HasGet, HasSet: psym.Property.HasSet,
		})
	}
	return iface
}

// LowerProject lowers every top-level declaration in decls into an
// ir.Program, in Interfaces -> Classes -> FBs -> Functions -> Programs ->
// Configuration order (§4.6), rejecting duplicate top-level names.
func (lw *Lowerer) LowerProject(reg *types.Registry, decls []*cst.Node) *ir.Program {
	prog := ir.NewProgram(reg)
	seen := make(map[string]bool)

	declName := func(n *cst.Node) (string, *symbols.Symbol, bool) {
		nameNode := n.Child(cst.KindName)
		if nameNode == nil {
			return "", nil, false
		}
		sym, ok := lw.Checker.Table.LookupAny(nameNode.Text)
		return nameNode.Text, sym, ok
	}
	checkDup := func(n *cst.Node, name string) bool {
		key := strings.ToLower(name)
		if seen[key] {
			lw.Bag.Add(diag.New(diag.EDuplicateDeclaration, lw.loc(n), "duplicate top-level declaration %q", name))
			return true
		}
		seen[key] = true
		return false
	}

	byKind := func(k cst.Kind) []*cst.Node {
		var out []*cst.Node
		for _, n := range decls {
			if n.Kind == k {
				out = append(out, n)
			}
		}
		return out
	}

	for _, n := range byKind(cst.KindInterface) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.Interfaces[sym.Name] = lw.LowerInterface(n, sym)
	}
	for _, n := range byKind(cst.KindClass) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.Classes[sym.Name] = lw.LowerClass(n, sym)
	}
	for _, n := range byKind(cst.KindFunctionBlock) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.FBs[sym.Name] = lw.LowerFunctionBlock(n, sym)
	}
	for _, n := range byKind(cst.KindFunction) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.Functions[sym.Name] = lw.LowerFunction(n, sym)
	}
	for _, n := range byKind(cst.KindProgram) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.Programs[sym.Name] = lw.LowerProgram(n, sym)
	}
	for _, n := range byKind(cst.KindConfiguration) {
		name, sym, ok := declName(n)
		if !ok || checkDup(n, name) {
			continue
		}
		prog.Config = lw.LowerConfiguration(n, sym)
	}
	return prog
}
