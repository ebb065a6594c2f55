package bind

import (
	"strings"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// resolveTypeRef resolves a TypeRef node to a TypeId, registering an
// anonymous structural type (array/pointer/reference/sized-string/subrange)
// on demand. tr must be non-nil.
func (b *builder) resolveTypeRef(tr *cst.Node) types.TypeId {
	if at := tr.Child(cst.KindArrayType); at != nil {
		elemRef := at.Child(cst.KindTypeRef)
		if elemRef == nil {
			return types.Unknown
		}
		elem := b.resolveTypeRef(elemRef)
		return b.reg.RegisterArray(elem, parseDims(at.Text))
	}
	if pt := tr.Child(cst.KindPointerType); pt != nil {
		elemRef := pt.Child(cst.KindTypeRef)
		if elemRef == nil {
			return types.Unknown
		}
		return b.reg.RegisterPointer(b.resolveTypeRef(elemRef))
	}
	if rt := tr.Child(cst.KindReferenceType); rt != nil {
		elemRef := rt.Child(cst.KindTypeRef)
		if elemRef == nil {
			return types.Unknown
		}
		return b.reg.RegisterReference(b.resolveTypeRef(elemRef))
	}
	if st := tr.Child(cst.KindStringType); st != nil {
		a := attrs(st.Text)
		_, hasMaxLen := a["MAXLEN"]
		return b.reg.RegisterStringWithLength(atoiOr(a["MAXLEN"], 0), hasMaxLen, strings.ToUpper(a["WIDE"]) == "TRUE")
	}
	if sr := tr.Child(cst.KindSubrange); sr != nil {
		baseRef := sr.Child(cst.KindTypeRef)
		base := types.Int
		if baseRef != nil {
			base = b.resolveTypeRef(baseRef)
		}
		a := attrs(sr.Text)
		return b.reg.RegisterSubrange(base, atoi64Or(a["LOWER"], 0), atoi64Or(a["UPPER"], 0))
	}

	name := strings.TrimSpace(tr.Text)
	if name == "" {
		if nn := tr.Child(cst.KindName); nn != nil {
			name = nn.Text
		} else if qn := tr.Child(cst.KindQualifiedName); qn != nil {
			name = qn.Text
		}
	}
	if id, ok := types.FromBuiltinName(name); ok {
		return id
	}
	if id, ok := b.reg.Lookup(name); ok {
		return id
	}
	return types.Unknown
}

// parseDims parses an ArrayType node's dimension list, e.g. "0:9,0:4", with
// "*" marking a wildcard dimension (§3.1 invariant (c)).
func parseDims(text string) []types.ArrayDim {
	var dims []types.ArrayDim
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			dims = append(dims, types.ArrayDim{Lower: 0, Upper: types.WildcardUpper})
			continue
		}
		bounds := strings.SplitN(part, ":", 2)
		if len(bounds) != 2 {
			continue
		}
		lower := atoi64Or(strings.TrimSpace(bounds[0]), 0)
		upper := atoi64Or(strings.TrimSpace(bounds[1]), 0)
		dims = append(dims, types.ArrayDim{Lower: lower, Upper: upper})
	}
	return dims
}

// bindTypeDecl registers a top-level TYPE declaration: struct, union, enum,
// or a plain alias (a TypeDecl whose only body is a TypeRef).
func (b *builder) bindTypeDecl(n *cst.Node) {
	name := nameOf(n)
	if name == "" {
		return
	}
	var id types.TypeId
	switch {
	case n.Child(cst.KindStructDef) != nil:
		id = b.bindStructDef(name, n.Child(cst.KindStructDef))
	case n.Child(cst.KindUnionDef) != nil:
		id = b.bindUnionDef(name, n.Child(cst.KindUnionDef))
	case n.Child(cst.KindEnumDef) != nil:
		id = b.bindEnumDef(name, n.Child(cst.KindEnumDef))
	case n.Child(cst.KindTypeRef) != nil:
		id = b.reg.RegisterAlias(name, b.resolveTypeRef(n.Child(cst.KindTypeRef)))
	default:
		return
	}
	sym := &symbols.Symbol{Name: name, Kind: symbols.KindType, TypeId: id, Visibility: symbols.VisPublic, Range: n.Span}
	b.tbl.DefineInScope(symbols.GLOBAL, sym)
}

func (b *builder) bindStructDef(name string, n *cst.Node) types.TypeId {
	var fields []types.StructField
	for _, vd := range n.ChildrenOf(cst.KindVarDecl) {
		fname := nameOf(vd)
		if fname == "" {
			continue
		}
		ftype := types.Unknown
		if tr := vd.Child(cst.KindTypeRef); tr != nil {
			ftype = b.resolveTypeRef(tr)
		}
		fields = append(fields, types.StructField{Name: fname, Type: ftype, Address: strings.TrimSpace(vd.Text)})
	}
	return b.reg.RegisterStruct(name, fields)
}

func (b *builder) bindUnionDef(name string, n *cst.Node) types.TypeId {
	var variants []types.TypeId
	for _, vd := range n.ChildrenOf(cst.KindVarDecl) {
		if tr := vd.Child(cst.KindTypeRef); tr != nil {
			variants = append(variants, b.resolveTypeRef(tr))
		}
	}
	return b.reg.RegisterUnion(name, variants)
}

func (b *builder) bindEnumDef(name string, n *cst.Node) types.TypeId {
	base := types.Int
	a := attrs(n.Text)
	if baseName, ok := a["BASE"]; ok {
		if id, ok := types.FromBuiltinName(baseName); ok {
			base = id
		}
	}
	var values []types.EnumValue
	next := int64(0)
	for _, vn := range n.ChildrenOf(cst.KindName) {
		ev := strings.SplitN(vn.Text, "=", 2)
		evName := strings.TrimSpace(ev[0])
		val := next
		if len(ev) == 2 {
			val = atoi64Or(strings.TrimSpace(ev[1]), next)
		}
		values = append(values, types.EnumValue{Name: evName, Value: val})
		next = val + 1
	}
	return b.reg.RegisterEnum(name, base, values)
}
