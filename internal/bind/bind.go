// Package bind implements the CST->SymbolTable binder: the missing link
// between an externally-parsed syntax tree ([internal/cst]) and the query
// database's FileSymbols query ([internal/hirdb]'s BuildFileSymbols hook).
// Nothing else in the module turns declarations into bound symbols; this is
// that pass.
//
// The two-phase walk (predeclare every POU's name and TypeId, then fill in
// each POU's own scope) follows the forward-reference discipline
// internal/types.Registry already documents for itself ("resolve-or-create
// on demand... idempotent"): RegisterClass/RegisterFunctionBlock/
// RegisterInterface are safe to call before a type's body is known and safe
// to call again once it is, so VAR declarations naming a not-yet-fully-bound
// FUNCTION_BLOCK or CLASS still resolve. The kind-grouped bind order
// (Interfaces, then Classes, then FunctionBlocks, then Functions, then
// Programs, then Configuration) mirrors internal/lower/decl.go's
// LowerProject order for the same reason lowering needs it: IMPLEMENTS
// targets and instance-variable types should already exist in the table by
// the time a later kind group needs to resolve them.
package bind

import (
	"strconv"
	"strings"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/hirdb"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// Build constructs a file-local symbol table from file's parsed tree. Its
// signature matches hirdb.BuildFileSymbols exactly, so it is passed directly
// to hirdb.New as the production binder.
func Build(reg *types.Registry, file hirdb.FileInput) *symbols.Table {
	b := &builder{reg: reg, tbl: symbols.NewTable(), pouSym: map[string]*symbols.Symbol{}, pouScope: map[string]symbols.ScopeId{}}
	if file.Tree == nil {
		return b.tbl
	}
	decls := file.Tree.Children

	b.predeclarePOUs(decls, cst.KindInterface, symbols.KindInterface, reg.RegisterInterface)
	b.predeclarePOUs(decls, cst.KindClass, symbols.KindClass, reg.RegisterClass)
	b.predeclarePOUs(decls, cst.KindFunctionBlock, symbols.KindFunctionBlock, reg.RegisterFunctionBlock)

	for _, n := range byKind(decls, cst.KindTypeDecl) {
		b.bindTypeDecl(n)
	}
	for _, n := range byKind(decls, cst.KindInterface) {
		b.bindInterface(n)
	}
	for _, n := range byKind(decls, cst.KindClass) {
		b.bindClass(n)
	}
	for _, n := range byKind(decls, cst.KindFunctionBlock) {
		b.bindFunctionBlock(n)
	}
	for _, n := range byKind(decls, cst.KindFunction) {
		b.bindFunction(n)
	}
	for _, n := range byKind(decls, cst.KindProgram) {
		b.bindProgram(n)
	}
	for _, n := range byKind(decls, cst.KindConfiguration) {
		b.bindConfiguration(n)
	}

	return b.tbl
}

type builder struct {
	reg      *types.Registry
	tbl      *symbols.Table
	pouSym   map[string]*symbols.Symbol
	pouScope map[string]symbols.ScopeId
}

func byKind(decls []*cst.Node, k cst.Kind) []*cst.Node {
	var out []*cst.Node
	for _, n := range decls {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

func nameOf(n *cst.Node) string {
	if nn := n.Child(cst.KindName); nn != nil {
		return nn.Text
	}
	return ""
}

// predeclarePOUs registers every decl of cstKind's name as a symKind symbol
// with its own scope, before any VAR block or EXTENDS/IMPLEMENTS clause
// anywhere in the file is resolved.
func (b *builder) predeclarePOUs(decls []*cst.Node, cstKind cst.Kind, symKind symbols.Kind, register func(string) types.TypeId) {
	for _, n := range byKind(decls, cstKind) {
		name := nameOf(n)
		if name == "" {
			continue
		}
		mods := parseModifiers(n.Text)
		sym := &symbols.Symbol{
			Name:       name,
			Kind:       symKind,
			TypeId:     register(name),
			Visibility: symbols.VisPublic,
			Modifiers:  symbols.Modifiers{Final: mods.Final, Abstract: mods.Abstract},
			Range:      n.Span,
		}
		id := b.tbl.DefineInScope(symbols.GLOBAL, sym)
		scope := b.tbl.NewScope(symbols.GLOBAL, name, &id)
		key := strings.ToLower(name)
		b.pouSym[key] = sym
		b.pouScope[key] = scope
		T().P("bind", name).Debugf("predeclared %s %s as type %d, scope %d", symKind, name, sym.TypeId, scope)
	}
}

// modifiers holds the parsed leading/trailing-keyword attributes a
// Class/FunctionBlock/Interface/Method/Property node carries on its Text
// field, the same convention internal/lower/decl.go's parseModifiers reads
// for its own (lowering-time) purposes.
type modifiers struct {
	Visibility symbols.Visibility
	Final      bool
	Abstract   bool
	Override   bool
	Static     bool
	HasGet     bool
	HasSet     bool
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
		case "GET":
			m.HasGet = true
		case "SET":
			m.HasSet = true
		}
	}
	return m
}

// attrs parses a node's space-separated KEY=VALUE attribute text, the same
// lightweight convention internal/lower/config.go uses for TASK/RESOURCE
// attributes.
func attrs(text string) map[string]string {
	out := map[string]string{}
	for _, field := range strings.Fields(text) {
		if i := strings.Index(field, "="); i > 0 {
			out[strings.ToUpper(field[:i])] = field[i+1:]
		}
	}
	return out
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func atoi64Or(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// extendsNames reads an ExtendsClause child's base names: Interface EXTENDS
// may list several bases, Class/FunctionBlock EXTENDS exactly one.
func extendsNames(n *cst.Node) []string {
	ec := n.Child(cst.KindExtendsClause)
	if ec == nil {
		return nil
	}
	return namesIn(ec)
}

// implementsNames reads an ImplementsClause child's target interface names.
func implementsNames(n *cst.Node) []string {
	ic := n.Child(cst.KindImplementsClause)
	if ic == nil {
		return nil
	}
	return namesIn(ic)
}

func namesIn(n *cst.Node) []string {
	var out []string
	for _, c := range n.ChildrenOf(cst.KindName) {
		out = append(out, c.Text)
	}
	for _, c := range n.ChildrenOf(cst.KindQualifiedName) {
		out = append(out, c.Text)
	}
	if len(out) == 0 && strings.TrimSpace(n.Text) != "" {
		out = append(out, strings.TrimSpace(n.Text))
	}
	return out
}
