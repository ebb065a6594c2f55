package check

import (
	"strconv"
	"strings"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// Checker types expressions over a cst.Node tree (§4.5). It is
// side-effect-free on the program: it only records diagnostics and returns
// the TypeId it infers for the node.
type Checker struct {
	Reg   *types.Registry
	Table *symbols.Table
	Bag   *diag.Bag
	File  string
}

func (c *Checker) loc(n *cst.Node) trust.SourceLocation {
	return trust.SourceLocation{File: c.File, Span: n.Span}
}

func (c *Checker) err(n *cst.Node, code diag.Code, format string, args ...interface{}) types.TypeId {
	c.Bag.Add(diag.New(code, c.loc(n), format, args...))
	return types.Unknown
}

// TypeOfExpr recursively types n within scope.
func (c *Checker) TypeOfExpr(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if n == nil {
		return types.Unknown
	}
	switch n.Kind {
	case cst.KindLiteral:
		return c.typeOfLiteral(n)
	case cst.KindNameRef:
		return c.typeOfNameRef(scope, n)
	case cst.KindBinaryExpr:
		return c.typeOfBinary(scope, n)
	case cst.KindUnaryExpr:
		return c.typeOfUnary(scope, n)
	case cst.KindIndexExpr:
		return c.typeOfIndex(scope, n)
	case cst.KindFieldExpr:
		return c.typeOfField(scope, n)
	case cst.KindDerefExpr:
		return c.typeOfDeref(scope, n)
	case cst.KindAddrExpr:
		return c.typeOfAddrOf(scope, n)
	case cst.KindSizeOfExpr:
		return types.Udint
	case cst.KindCallExpr:
		return c.typeOfCall(scope, n)
	case cst.KindThisExpr, cst.KindSuperExpr:
		return c.typeOfSelf(scope, n)
	default:
		return c.err(n, diag.EInvalidOperation, "unexpected node kind %s in expression position", n.Kind)
	}
}

var typedLiteralPrefixes = map[string]types.TypeId{
	"SINT": types.Sint, "INT": types.Int, "DINT": types.Dint, "LINT": types.Lint,
	"USINT": types.Usint, "UINT": types.Uint, "UDINT": types.Udint, "ULINT": types.Ulint,
	"BYTE": types.Byte, "WORD": types.Word, "DWORD": types.Dword, "LWORD": types.Lword,
	"REAL": types.Real, "LREAL": types.Lreal,
}

func (c *Checker) typeOfLiteral(n *cst.Node) types.TypeId {
	text := n.Text
	if i := strings.Index(text, "#"); i > 0 {
		prefix := strings.ToUpper(text[:i])
		if t, ok := typedLiteralPrefixes[prefix]; ok {
			return t
		}
		switch prefix {
		case "T", "TIME":
			return types.Time
		case "LT", "LTIME":
			return types.Ltime
		case "D", "DATE":
			return types.Date
		case "LD", "LDATE":
			return types.Ldate
		case "TOD", "TIME_OF_DAY":
			return types.Tod
		case "LTOD":
			return types.Ltod
		case "DT", "DATE_AND_TIME":
			return types.Dt
		case "LDT":
			return types.Ldt
		}
	}
	switch {
	case text == "TRUE" || text == "FALSE":
		return types.Bool
	case strings.HasPrefix(text, "'") || strings.HasPrefix(text, "\""):
		return types.String
	case strings.Contains(text, ".") || strings.ContainsAny(text, "eE") && !strings.HasPrefix(text, "16#"):
		return types.Lreal
	default:
		return c.smallestIntFit(text)
	}
}

// smallestIntFit picks the smallest builtin integer type an integer literal
// fits in (signed path for decimal, unsigned-preferred for based literals),
// per §4.5.
func (c *Checker) smallestIntFit(text string) types.TypeId {
	based := strings.Contains(text, "#")
	digits := text
	if i := strings.Index(text, "#"); i >= 0 {
		digits = text[i+1:]
	}
	base := 10
	if strings.HasPrefix(text, "16#") {
		base = 16
	} else if strings.HasPrefix(text, "8#") {
		base = 8
	} else if strings.HasPrefix(text, "2#") {
		base = 2
	}
	digits = strings.ReplaceAll(digits, "_", "")
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		// decimal signed literal (possibly negative, handled by a preceding unary minus node)
		sv, serr := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 10, 64)
		if serr != nil {
			return types.Dint
		}
		return smallestSigned(sv)
	}
	if based {
		return smallestUnsigned(v)
	}
	return smallestSigned(int64(v))
}

func smallestSigned(v int64) types.TypeId {
	switch {
	case v >= -128 && v <= 127:
		return types.Sint
	case v >= -32768 && v <= 32767:
		return types.Int
	case v >= -2147483648 && v <= 2147483647:
		return types.Dint
	default:
		return types.Lint
	}
}

func smallestUnsigned(v uint64) types.TypeId {
	switch {
	case v <= 255:
		return types.Usint
	case v <= 65535:
		return types.Uint
	case v <= 4294967295:
		return types.Udint
	default:
		return types.Ulint
	}
}

func (c *Checker) typeOfNameRef(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	sym, _, ok := c.Table.Resolve(n.Text, scope)
	if !ok {
		return c.err(n, diag.EUnresolvedName, "undefined identifier %q", n.Text)
	}
	return sym.TypeId
}

func (c *Checker) typeOfSelf(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	sc, ok := c.Table.Scopes()[scope]
	for ok {
		if sc.Owner != nil {
			if sym, found := c.Table.Get(*sc.Owner); found {
				if n.Kind == cst.KindSuperExpr {
					if ext, hasExt := c.Table.ExtendsName(sym.Id); hasExt {
						if base, bok := c.Table.LookupAny(ext); bok {
							return base.TypeId
						}
					}
					return c.err(n, diag.EUnresolvedName, "SUPER used without an EXTENDS clause")
				}
				return sym.TypeId
			}
		}
		if sc.Parent == nil {
			break
		}
		sc, ok = c.Table.Scopes()[*sc.Parent]
	}
	return c.err(n, diag.EInvalidOperation, "THIS/SUPER used outside a method body")
}

var logicalOps = map[string]bool{"AND": true, "OR": true, "XOR": true}
var comparisonOps = map[string]bool{"=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true}

func (c *Checker) typeOfBinary(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	op := strings.ToUpper(n.Text)
	kids := n.Children
	if len(kids) < 2 {
		return c.err(n, diag.EInvalidOperation, "binary expression %q missing operand", op)
	}
	lt := c.TypeOfExpr(scope, kids[0])
	rt := c.TypeOfExpr(scope, kids[1])

	switch {
	case comparisonOps[op]:
		if !comparable(c.Reg, lt, rt) {
			return c.err(n, diag.ETypeMismatch, "operands of %q are not comparable", op)
		}
		return types.Bool
	case logicalOps[op]:
		if c.Reg.ResolveAlias(lt) != types.Bool || c.Reg.ResolveAlias(rt) != types.Bool {
			return c.err(n, diag.ETypeMismatch, "operands of %q must be BOOL", op)
		}
		return types.Bool
	default: // arithmetic / bitwise
		if !numericOrBit(c.Reg, lt) || !numericOrBit(c.Reg, rt) {
			return c.err(n, diag.EInvalidOperation, "operator %q requires numeric or bit-string operands", op)
		}
		return widerOfTypes(c.Reg, lt, rt)
	}
}

func (c *Checker) typeOfUnary(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if len(n.Children) == 0 {
		return c.err(n, diag.EInvalidOperation, "unary expression missing operand")
	}
	ot := c.TypeOfExpr(scope, n.Children[0])
	if strings.ToUpper(n.Text) == "NOT" {
		if c.Reg.ResolveAlias(ot) != types.Bool {
			return c.err(n, diag.ETypeMismatch, "NOT requires a BOOL operand")
		}
		return types.Bool
	}
	return ot
}

func comparable(reg *types.Registry, a, b types.TypeId) bool {
	if numericOrBit(reg, a) && numericOrBit(reg, b) {
		return true
	}
	ra, rb := reg.ResolveAlias(a), reg.ResolveAlias(b)
	if ra == types.Null || rb == types.Null {
		return true
	}
	return ra == rb
}

func numericOrBit(reg *types.Registry, id types.TypeId) bool {
	r := reg.ResolveAlias(id)
	return reg.Satisfies(types.AnyNum, r) || reg.Satisfies(types.AnyBit, r) || r == types.Unknown
}

func widerOfTypes(reg *types.Registry, a, b types.TypeId) types.TypeId {
	ra, rb := reg.ResolveAlias(a), reg.ResolveAlias(b)
	rank := func(id types.TypeId) int {
		for i, t := range signedLadder {
			if t == id {
				return 10 + i
			}
		}
		for i, t := range unsignedLadder {
			if t == id {
				return 10 + i
			}
		}
		for i, t := range bitLadder {
			if t == id {
				return 10 + i
			}
		}
		if id == types.Real {
			return 20
		}
		if id == types.Lreal {
			return 21
		}
		return 0
	}
	if rank(rb) > rank(ra) {
		return b
	}
	return a
}

func (c *Checker) typeOfIndex(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if len(n.Children) < 1 {
		return c.err(n, diag.EInvalidOperation, "index expression missing base")
	}
	baseType := c.TypeOfExpr(scope, n.Children[0])
	args := n.ChildrenOf(cst.KindArgList)
	var indices []*cst.Node
	if len(args) > 0 {
		indices = args[0].Children
	} else {
		indices = n.Children[1:]
	}
	t, ok := c.Reg.Get(c.Reg.ResolveAlias(baseType))
	if !ok || t.Kind != types.KindArray {
		return c.err(n, diag.EInvalidOperation, "indexed expression is not an array")
	}
	if len(indices) != len(t.Dimensions) {
		return c.err(n, diag.EArrayBoundsMismatch, "expected %d index(es), got %d", len(t.Dimensions), len(indices))
	}
	for _, idx := range indices {
		it := c.TypeOfExpr(scope, idx)
		if !c.Reg.Satisfies(types.AnyInt, c.Reg.ResolveAlias(it)) && it != types.Unknown {
			c.err(idx, diag.ETypeMismatch, "array index must be an integer type")
		}
	}
	return t.Element
}

func (c *Checker) typeOfField(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if len(n.Children) < 1 {
		return c.err(n, diag.EInvalidOperation, "field access missing base")
	}
	baseType := c.TypeOfExpr(scope, n.Children[0])
	fieldName := n.Text
	rt := c.Reg.ResolveAlias(baseType)
	t, ok := c.Reg.Get(rt)
	if !ok {
		return types.Unknown
	}
	switch t.Kind {
	case types.KindStruct:
		for _, f := range t.Fields {
			if strings.EqualFold(f.Name, fieldName) {
				return f.Type
			}
		}
		return c.err(n, diag.EUnresolvedName, "no field %q on %s", fieldName, c.Reg.TypeName(rt))
	case types.KindUnion:
		for _, v := range t.Variants {
			if strings.EqualFold(c.Reg.TypeName(v), fieldName) {
				return v
			}
		}
		return c.err(n, diag.EUnresolvedName, "no variant %q in union %s", fieldName, c.Reg.TypeName(rt))
	case types.KindFunctionBlock, types.KindClass, types.KindInterface:
		memberScope, hasScope := c.Table.ScopeForOwner(mustSymbolFor(c.Table, c.Reg.TypeName(rt)))
		if !hasScope {
			return c.err(n, diag.EUnresolvedName, "cannot resolve member scope for %s", c.Reg.TypeName(rt))
		}
		if sym, found := c.Table.LookupInScope(memberScope, fieldName); found {
			return sym.TypeId
		}
		return c.err(n, diag.EUnresolvedName, "no member %q on %s", fieldName, c.Reg.TypeName(rt))
	default:
		return c.err(n, diag.EInvalidOperation, "field access on non-composite type %s", c.Reg.TypeName(rt))
	}
}

func mustSymbolFor(t *symbols.Table, name string) symbols.SymbolId {
	if sym, ok := t.LookupAny(name); ok {
		return sym.Id
	}
	return 0
}

func (c *Checker) typeOfDeref(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if len(n.Children) < 1 {
		return c.err(n, diag.EInvalidDereference, "dereference missing operand")
	}
	ot := c.TypeOfExpr(scope, n.Children[0])
	rt := c.Reg.ResolveAlias(ot)
	t, ok := c.Reg.Get(rt)
	if !ok || (t.Kind != types.KindReference && t.Kind != types.KindPointer) {
		return c.err(n, diag.EInvalidDereference, "'^' requires a Pointer or Reference operand")
	}
	return t.Element
}

func (c *Checker) typeOfAddrOf(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	if len(n.Children) < 1 {
		return c.err(n, diag.EInvalidAddrOf, "ADR missing operand")
	}
	target := n.Children[0]
	if target.Kind != cst.KindNameRef && target.Kind != cst.KindFieldExpr && target.Kind != cst.KindIndexExpr {
		return c.err(n, diag.EInvalidAddrOf, "ADR operand must be an assignable lvalue")
	}
	ot := c.TypeOfExpr(scope, target)
	return c.Reg.RegisterPointer(ot)
}

// typeOfCall types a call expression. Resolution order (§4.5): direct name,
// then USING namespaces (left to the caller's scope chain, already folded
// into Table.Resolve), falling back to standard-function names which the
// caller recognizes before invoking TypeOfExpr on a CallExpr node.
func (c *Checker) typeOfCall(scope symbols.ScopeId, n *cst.Node) types.TypeId {
	nameNode := n.Child(cst.KindNameRef)
	if nameNode == nil {
		return c.err(n, diag.EInvalidOperation, "call expression missing callee name")
	}
	sym, _, ok := c.Table.Resolve(nameNode.Text, scope)
	if !ok {
		return c.err(n, diag.EUnresolvedName, "call to undefined %q", nameNode.Text)
	}
	args := n.Child(cst.KindArgList)
	if sym.Method != nil {
		c.checkArgBinding(scope, args, sym.Method.Params)
		return sym.Method.Return
	}
	return sym.TypeId
}

func (c *Checker) checkArgBinding(scope symbols.ScopeId, args *cst.Node, params []symbols.ParamInfo) {
	if args == nil {
		if len(params) > 0 {
			return
		}
		return
	}
	argNodes := args.ChildrenOf(cst.KindArg)
	named := false
	for i, a := range argNodes {
		nameNode := a.Child(cst.KindName)
		var p *symbols.ParamInfo
		if nameNode != nil {
			named = true
			for j := range params {
				if strings.EqualFold(params[j].Name, nameNode.Text) {
					p = &params[j]
					break
				}
			}
			if p == nil {
				c.err(a, diag.EUnresolvedName, "no parameter named %q", nameNode.Text)
				continue
			}
		} else if !named && i < len(params) {
			p = &params[i]
		} else {
			c.err(a, diag.EWrongArgCount, "positional argument after a named argument, or too many arguments")
			continue
		}
		valNode := a.Children[len(a.Children)-1]
		vt := c.TypeOfExpr(scope, valNode)
		switch p.Direction {
		case symbols.DirIn:
			if !AssignableWithin(c.Reg, c.Table, p.Type, vt) {
				c.err(a, diag.ETypeMismatch, "argument not assignment-compatible with IN parameter %q", p.Name)
			}
		case symbols.DirOut:
			if !AssignableWithin(c.Reg, c.Table, vt, p.Type) {
				c.err(a, diag.ETypeMismatch, "OUT parameter %q not assignable to its target", p.Name)
			}
		case symbols.DirInOut:
			if c.Reg.ResolveAlias(vt) != c.Reg.ResolveAlias(p.Type) {
				c.err(a, diag.ETypeMismatch, "INOUT parameter %q requires an exact type match", p.Name)
			}
		}
	}
	if !named && len(argNodes) > len(params) {
		c.err(args, diag.EWrongArgCount, "too many arguments: expected %d, got %d", len(params), len(argNodes))
	}
}
