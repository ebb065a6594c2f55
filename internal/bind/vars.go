package bind

import (
	"strings"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// bindVarBlocks declares every VarDecl under every VAR.../END_VAR block
// directly under n into scope, the binding-time counterpart of
// internal/lower/decl.go's lowerAllVarBlocks.
func (b *builder) bindVarBlocks(scope symbols.ScopeId, n *cst.Node) {
	for _, vb := range n.ChildrenOf(cst.KindVarBlock) {
		b.bindVarBlock(scope, vb)
	}
}

func (b *builder) bindVarBlock(scope symbols.ScopeId, vb *cst.Node) {
	qual := parseVarQualifier(vb.Text)
	for _, vd := range vb.ChildrenOf(cst.KindVarDecl) {
		name := nameOf(vd)
		if name == "" {
			continue
		}
		typeId := types.Unknown
		if tr := vd.Child(cst.KindTypeRef); tr != nil {
			typeId = b.resolveTypeRef(tr)
		}
		sym := &symbols.Symbol{
			Name:          name,
			Kind:          symbols.KindVariable,
			TypeId:        typeId,
			Visibility:    symbols.VisPublic,
			VarQualifier:  qual,
			DirectAddress: strings.TrimSpace(vd.Text),
			Range:         vd.Span,
		}
		b.tbl.DefineInScope(scope, sym)
	}
}

// parseVarQualifier maps a VarBlock node's Text (e.g. "VAR_INPUT",
// "VAR_IN_OUT", "VAR RETAIN") to its VarQualifier.
func parseVarQualifier(text string) symbols.VarQualifier {
	u := strings.ToUpper(text)
	switch {
	case strings.Contains(u, "IN_OUT"):
		return symbols.QualInOut
	case strings.Contains(u, "INPUT"):
		return symbols.QualInput
	case strings.Contains(u, "OUTPUT"):
		return symbols.QualOutput
	case strings.Contains(u, "TEMP"):
		return symbols.QualTemp
	case strings.Contains(u, "GLOBAL"):
		return symbols.QualGlobal
	case strings.Contains(u, "EXTERNAL"):
		return symbols.QualExternal
	case strings.Contains(u, "STAT"):
		return symbols.QualStatic
	case strings.Contains(u, "ACCESS"):
		return symbols.QualAccess
	default:
		return symbols.QualLocal
	}
}

// paramsFromScope collects scope's VAR_INPUT/VAR_OUTPUT/VAR_IN_OUT members
// in declaration order, mirroring internal/lower/decl.go's lowerParams.
func (b *builder) paramsFromScope(scope symbols.ScopeId) []symbols.ParamInfo {
	var out []symbols.ParamInfo
	for _, s := range b.membersInScope(scope) {
		if s.Kind != symbols.KindVariable {
			continue
		}
		var dir symbols.ParamDirection
		switch s.VarQualifier {
		case symbols.QualOutput:
			dir = symbols.DirOut
		case symbols.QualInOut:
			dir = symbols.DirInOut
		case symbols.QualInput:
			dir = symbols.DirIn
		default:
			continue
		}
		out = append(out, symbols.ParamInfo{Name: s.Name, Type: s.TypeId, Direction: dir})
	}
	return out
}

// membersInScope returns every symbol directly declared in scope, in
// declaration (SymbolId) order, mirroring internal/lower/decl.go's
// membersInScope/memberNamesOf helpers.
func (b *builder) membersInScope(scope symbols.ScopeId) []*symbols.Symbol {
	var out []*symbols.Symbol
	seen := map[string]bool{}
	b.tbl.Iter(func(s *symbols.Symbol) {
		if sym, ok := b.tbl.LookupInScope(scope, s.Name); ok && sym.Id == s.Id && !seen[strings.ToLower(s.Name)] {
			seen[strings.ToLower(s.Name)] = true
			out = append(out, s)
		}
	})
	return out
}
