// Package lower implements HIR→IR lowering ([E], §4.6): turning the
// checked cst.Node declaration/statement tree into the runtime model's
// Program/POU/Stmt/Expr shapes.
//
// The tree-rewrite shape (recursively rebuild a new tree node-by-node from
// an input tree) is grounded on the teacher's terex/termr rewrite passes,
// here rewriting syntax into the runtime IR instead of rewriting one syntax
// tree into another; exact statement-shape and CASE-range handling follows
// original_source/crates/trust-runtime/src/harness/lower/stmt.rs.
package lower

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/check"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// Lowerer carries the checker and shared state across one project's
// lowering pass.
type Lowerer struct {
	Checker *check.Checker
	Bag     *diag.Bag
	File    string
}

func (lw *Lowerer) loc(n *cst.Node) trust.SourceLocation {
	return trust.SourceLocation{File: lw.File, Span: n.Span}
}

// LowerExpr rebuilds n as an *ir.Expr, annotating Type via the checker.
func (lw *Lowerer) LowerExpr(scope symbols.ScopeId, n *cst.Node) *ir.Expr {
	if n == nil {
		return nil
	}
	t := lw.Checker.TypeOfExpr(scope, n)
	switch n.Kind {
	case cst.KindLiteral:
		return &ir.Expr{Kind: ir.ExprLiteral, Type: t, Loc: lw.loc(n), Lit: literalValue(t, n.Text)}
	case cst.KindNameRef:
		return &ir.Expr{Kind: ir.ExprNameRef, Type: t, Loc: lw.loc(n), Name: n.Text}
	case cst.KindThisExpr:
		return &ir.Expr{Kind: ir.ExprThis, Type: t, Loc: lw.loc(n)}
	case cst.KindSuperExpr:
		return &ir.Expr{Kind: ir.ExprSuper, Type: t, Loc: lw.loc(n)}
	case cst.KindBinaryExpr:
		if len(n.Children) < 2 {
			lw.Bag.Add(diag.New(diag.EInvalidOperation, lw.loc(n), "binary expression missing operand"))
			return &ir.Expr{Kind: ir.ExprBinary, Type: types.Unknown, Loc: lw.loc(n)}
		}
		return &ir.Expr{
			Kind: ir.ExprBinary, Type: t, Loc: lw.loc(n), Op: n.Text,
			Left: lw.LowerExpr(scope, n.Children[0]), Right: lw.LowerExpr(scope, n.Children[1]),
		}
	case cst.KindUnaryExpr:
		var operand *ir.Expr
		if len(n.Children) > 0 {
			operand = lw.LowerExpr(scope, n.Children[0])
		}
		return &ir.Expr{Kind: ir.ExprUnary, Type: t, Loc: lw.loc(n), Op: n.Text, Operand: operand}
	case cst.KindIndexExpr:
		return lw.lowerIndex(scope, n, t)
	case cst.KindFieldExpr:
		var base *ir.Expr
		if len(n.Children) > 0 {
			base = lw.LowerExpr(scope, n.Children[0])
		}
		return &ir.Expr{Kind: ir.ExprField, Type: t, Loc: lw.loc(n), Name: n.Text, Base: base}
	case cst.KindDerefExpr:
		var operand *ir.Expr
		if len(n.Children) > 0 {
			operand = lw.LowerExpr(scope, n.Children[0])
		}
		return &ir.Expr{Kind: ir.ExprDeref, Type: t, Loc: lw.loc(n), Operand: operand}
	case cst.KindAddrExpr:
		var operand *ir.Expr
		if len(n.Children) > 0 {
			operand = lw.LowerExpr(scope, n.Children[0])
		}
		return &ir.Expr{Kind: ir.ExprAddrOf, Type: t, Loc: lw.loc(n), Operand: operand}
	case cst.KindSizeOfExpr:
		var operand *ir.Expr
		if len(n.Children) > 0 {
			operand = lw.LowerExpr(scope, n.Children[0])
		}
		return &ir.Expr{Kind: ir.ExprSizeOf, Type: t, Loc: lw.loc(n), Operand: operand}
	case cst.KindCallExpr:
		return lw.lowerCall(scope, n, t)
	default:
		lw.Bag.Add(diag.New(diag.EInvalidOperation, lw.loc(n), "cannot lower node kind %s as an expression", n.Kind))
		return &ir.Expr{Kind: ir.ExprLiteral, Type: types.Unknown, Loc: lw.loc(n)}
	}
}

func (lw *Lowerer) lowerIndex(scope symbols.ScopeId, n *cst.Node, t types.TypeId) *ir.Expr {
	if len(n.Children) < 1 {
		return &ir.Expr{Kind: ir.ExprIndex, Type: t, Loc: lw.loc(n)}
	}
	base := lw.LowerExpr(scope, n.Children[0])
	var idxNodes []*cst.Node
	if args := n.ChildrenOf(cst.KindArgList); len(args) > 0 {
		idxNodes = args[0].Children
	} else {
		idxNodes = n.Children[1:]
	}
	indices := make([]*ir.Expr, len(idxNodes))
	for i, idx := range idxNodes {
		indices[i] = lw.LowerExpr(scope, idx)
	}
	return &ir.Expr{Kind: ir.ExprIndex, Type: t, Loc: lw.loc(n), Base: base, Indices: indices}
}

func (lw *Lowerer) lowerCall(scope symbols.ScopeId, n *cst.Node, t types.TypeId) *ir.Expr {
	nameNode := n.Child(cst.KindNameRef)
	name := ""
	if nameNode != nil {
		name = nameNode.Text
	}
	argsNode := n.Child(cst.KindArgList)
	var args []ir.Arg
	if argsNode != nil {
		for _, a := range argsNode.ChildrenOf(cst.KindArg) {
			if len(a.Children) == 0 {
				continue
			}
			paramName := ""
			var valNode *cst.Node
			if nm := a.Child(cst.KindName); nm != nil {
				paramName = nm.Text
				valNode = a.Children[len(a.Children)-1]
			} else {
				valNode = a.Children[len(a.Children)-1]
			}
			args = append(args, ir.Arg{ParamName: paramName, Value: lw.LowerExpr(scope, valNode)})
		}
	}
	return &ir.Expr{Kind: ir.ExprCall, Type: t, Loc: lw.loc(n), Name: name, Args: args}
}

// literalValue parses a literal token of resolved type t into a storage
// value, mirroring the checker's own literal classification (§4.5).
func literalValue(t types.TypeId, text string) storage.Value {
	body := text
	if i := strings.Index(text, "#"); i > 0 {
		switch text[:i] {
		case "16", "8", "2":
			// a bare based literal: its base prefix is parsed below
		default:
			body = text[i+1:]
		}
	}
	switch t {
	case types.Bool:
		return storage.Bool(t, strings.EqualFold(body, "TRUE"))
	case types.Real, types.Lreal:
		f, _ := strconv.ParseFloat(strings.ReplaceAll(body, "_", ""), 64)
		return storage.Real(t, f)
	case types.String, types.WString:
		return storage.Str(t, strings.Trim(body, "'\""))
	}
	switch t {
	case types.Sint, types.Int, types.Dint, types.Lint,
		types.Usint, types.Uint, types.Udint, types.Ulint,
		types.Byte, types.Word, types.Dword, types.Lword:
		base := 10
		digits := body
		if strings.HasPrefix(body, "16#") {
			base, digits = 16, body[3:]
		} else if strings.HasPrefix(body, "8#") {
			base, digits = 8, body[2:]
		} else if strings.HasPrefix(body, "2#") {
			base, digits = 2, body[2:]
		}
		digits = strings.ReplaceAll(digits, "_", "")
		v, err := strconv.ParseInt(digits, base, 64)
		if err != nil {
			uv, uerr := strconv.ParseUint(digits, base, 64)
			if uerr == nil {
				v = int64(uv)
			}
		}
		return storage.Int(t, v)
	}
	return storage.Str(t, fmt.Sprintf("%v", body))
}
