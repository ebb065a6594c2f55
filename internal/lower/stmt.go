package lower

import (
	"strconv"
	"strings"

	"github.com/trust-automation/trust/internal/check"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

// StmtCtx tracks loop nesting and the enclosing POU's return type, needed to
// enforce EXIT/CONTINUE/RETURN legality (§4.6).
type StmtCtx struct {
	loopDepth  int
	ReturnType types.TypeId // types.Void if the enclosing POU has no return value
	HasReturn  bool
}

// LowerBody lowers a StmtList node's children into an ir.Stmt slice.
func (lw *Lowerer) LowerBody(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) []ir.Stmt {
	if n == nil {
		return nil
	}
	out := make([]ir.Stmt, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, lw.LowerStmt(scope, c, ctx))
	}
	return out
}

// LowerStmt lowers one statement node.
func (lw *Lowerer) LowerStmt(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	switch n.Kind {
	case cst.KindAssignStmt:
		return lw.lowerAssign(scope, n)
	case cst.KindIfStmt:
		return lw.lowerIf(scope, n, ctx)
	case cst.KindCaseStmt:
		return lw.lowerCase(scope, n, ctx)
	case cst.KindForStmt:
		return lw.lowerFor(scope, n, ctx)
	case cst.KindWhileStmt:
		return lw.lowerWhile(scope, n, ctx)
	case cst.KindRepeatStmt:
		return lw.lowerRepeat(scope, n, ctx)
	case cst.KindReturnStmt:
		return lw.lowerReturn(scope, n, ctx)
	case cst.KindExitStmt:
		if ctx.loopDepth == 0 {
			lw.Bag.Add(diag.New(diag.EInvalidControlFlow, lw.loc(n), "EXIT used outside a loop"))
		}
		return ir.Stmt{Kind: ir.StmtExit, Loc: lw.loc(n)}
	case cst.KindContinueStmt:
		if ctx.loopDepth == 0 {
			lw.Bag.Add(diag.New(diag.EInvalidControlFlow, lw.loc(n), "CONTINUE used outside a loop"))
		}
		return ir.Stmt{Kind: ir.StmtContinue, Loc: lw.loc(n)}
	case cst.KindLabelStmt:
		return ir.Stmt{Kind: ir.StmtLabel, Loc: lw.loc(n), Label: n.Text}
	case cst.KindJmpStmt:
		return ir.Stmt{Kind: ir.StmtJmp, Loc: lw.loc(n), Label: n.Text}
	case cst.KindCallExpr:
		return ir.Stmt{Kind: ir.StmtExpr, Loc: lw.loc(n), Call: lw.LowerExpr(scope, n)}
	default:
		lw.Bag.Add(diag.New(diag.EInvalidControlFlow, lw.loc(n), "unexpected node kind %s in statement position", n.Kind))
		return ir.Stmt{Kind: ir.StmtExpr, Loc: lw.loc(n)}
	}
}

func (lw *Lowerer) lowerAssign(scope symbols.ScopeId, n *cst.Node) ir.Stmt {
	if len(n.Children) < 2 {
		lw.Bag.Add(diag.New(diag.EInvalidControlFlow, lw.loc(n), "assignment missing target/value"))
		return ir.Stmt{Kind: ir.StmtAssign, Loc: lw.loc(n)}
	}
	target := lw.LowerExpr(scope, n.Children[0])
	value := lw.LowerExpr(scope, n.Children[1])
	if !check.AssignableWithin(lw.Checker.Reg, lw.Checker.Table, target.Type, value.Type) {
		lw.Bag.Add(diag.New(diag.ETypeMismatch, lw.loc(n), "value of type %s is not assignable to target of type %s",
			lw.Checker.Reg.TypeName(value.Type), lw.Checker.Reg.TypeName(target.Type)))
	}
	kind := ir.StmtAssign
	if n.Text == "?=" {
		kind = ir.StmtAssignAttempt
	}
	return ir.Stmt{Kind: kind, Loc: lw.loc(n), Target: target, Value: value}
}

func (lw *Lowerer) lowerIf(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	parts := n.ChildrenOf(cst.KindStmtList)
	var cond *ir.Expr
	for _, c := range n.Children {
		if c.Kind != cst.KindStmtList {
			cond = lw.LowerExpr(scope, c)
			break
		}
	}
	stmt := ir.Stmt{Kind: ir.StmtIf, Loc: lw.loc(n), Cond: cond}
	if len(parts) > 0 {
		stmt.Then = lw.LowerBody(scope, parts[0], ctx)
	}
	if len(parts) > 1 {
		stmt.Else = lw.LowerBody(scope, parts[len(parts)-1], ctx)
	}
	return stmt
}

func (lw *Lowerer) lowerCase(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	var selector *cst.Node
	for _, c := range n.Children {
		if c.Kind != cst.KindStmtList {
			selector = c
			break
		}
	}
	stmt := ir.Stmt{Kind: ir.StmtCase, Loc: lw.loc(n)}
	if selector != nil {
		stmt.CaseExpr = lw.LowerExpr(scope, selector)
	}
	// Convention: one StmtList per WHEN arm, each tagged via its Text field
	// holding the comma-separated label list ("1,3,5..7"); an arm with empty
	// Text is the ELSE body.
	bodies := n.ChildrenOf(cst.KindStmtList)
	for _, body := range bodies {
		if body.Text == "" {
			stmt.CaseElse = lw.LowerBody(scope, body, ctx)
			continue
		}
		labels := parseCaseLabels(body.Text)
		stmt.Cases = append(stmt.Cases, ir.CaseArm{Labels: labels, Body: lw.LowerBody(scope, body, ctx)})
	}
	return stmt
}

// parseCaseLabels parses a comma-separated label list of integers and
// inclusive ranges ("1,3,5..7") into CaseLabels (§4.6).
func parseCaseLabels(text string) []ir.CaseLabel {
	var out []ir.CaseLabel
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, ".."); idx >= 0 {
			lo, _ := strconv.ParseInt(strings.TrimSpace(part[:idx]), 10, 64)
			hi, _ := strconv.ParseInt(strings.TrimSpace(part[idx+2:]), 10, 64)
			out = append(out, ir.CaseLabel{IsRange: true, RangeLow: lo, RangeHigh: hi})
			continue
		}
		v, _ := strconv.ParseInt(part, 10, 64)
		vv := v
		out = append(out, ir.CaseLabel{Single: &vv})
	}
	return out
}

// lowerFor lowers a FOR statement. Child shape: NameRef (control var), then
// 2 or 3 non-StmtList expression children (from, to[, step]), then a
// StmtList body.
func (lw *Lowerer) lowerFor(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	varNode := n.Child(cst.KindNameRef)
	var body *cst.Node
	var exprNodes []*cst.Node
	for _, c := range n.Children {
		switch {
		case c.Kind == cst.KindStmtList:
			body = c
		case c == varNode:
			// skip, already captured
		default:
			exprNodes = append(exprNodes, c)
		}
	}
	var from, to, step *ir.Expr
	if len(exprNodes) > 0 {
		from = lw.LowerExpr(scope, exprNodes[0])
	}
	if len(exprNodes) > 1 {
		to = lw.LowerExpr(scope, exprNodes[1])
	}
	if len(exprNodes) > 2 {
		step = lw.LowerExpr(scope, exprNodes[2])
	}

	name := ""
	if varNode != nil {
		name = varNode.Text
	}
	if step != nil && step.Kind == ir.ExprLiteral && step.Lit.Kind == storage.KindInt {
		if step.Lit.I == 0 {
			lw.Bag.Add(diag.New(diag.EZeroStep, lw.loc(n), "FOR step must be non-zero"))
		}
		if step.Lit.I < 0 && varNode != nil {
			if varSym, _, ok := lw.Checker.Table.Resolve(varNode.Text, scope); ok && isUnsignedType(lw.Checker.Reg, varSym.TypeId) {
				lw.Bag.Add(diag.New(diag.EZeroStep, lw.loc(n), "unsigned FOR control variable %q cannot use a negative step", name))
			}
		}
	}

	ctx.loopDepth++
	var forBody []ir.Stmt
	if body != nil {
		forBody = lw.LowerBody(scope, body, ctx)
	}
	ctx.loopDepth--

	return ir.Stmt{Kind: ir.StmtFor, Loc: lw.loc(n), ForVar: name, ForFrom: from, ForTo: to, ForStep: step, ForBody: forBody}
}

func isUnsignedType(reg *types.Registry, id types.TypeId) bool {
	switch reg.ResolveAlias(id) {
	case types.Usint, types.Uint, types.Udint, types.Ulint:
		return true
	}
	return false
}

func (lw *Lowerer) lowerWhile(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	var cond *ir.Expr
	var body *cst.Node
	for _, c := range n.Children {
		if c.Kind == cst.KindStmtList {
			body = c
		} else {
			cond = lw.LowerExpr(scope, c)
		}
	}
	ctx.loopDepth++
	var loopBody []ir.Stmt
	if body != nil {
		loopBody = lw.LowerBody(scope, body, ctx)
	}
	ctx.loopDepth--
	return ir.Stmt{Kind: ir.StmtWhile, Loc: lw.loc(n), LoopCond: cond, LoopBody: loopBody}
}

func (lw *Lowerer) lowerRepeat(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	var cond *ir.Expr
	var body *cst.Node
	for _, c := range n.Children {
		if c.Kind == cst.KindStmtList {
			body = c
		} else {
			cond = lw.LowerExpr(scope, c)
		}
	}
	ctx.loopDepth++
	var loopBody []ir.Stmt
	if body != nil {
		loopBody = lw.LowerBody(scope, body, ctx)
	}
	ctx.loopDepth--
	// REPEAT's UNTIL condition is evaluated after the body; the evaluator
	// runs LoopBody once unconditionally before consulting LoopCond.
	return ir.Stmt{Kind: ir.StmtRepeat, Loc: lw.loc(n), LoopCond: cond, LoopBody: loopBody}
}

func (lw *Lowerer) lowerReturn(scope symbols.ScopeId, n *cst.Node, ctx *StmtCtx) ir.Stmt {
	var value *ir.Expr
	if len(n.Children) > 0 {
		value = lw.LowerExpr(scope, n.Children[0])
	}
	if value != nil && (!ctx.HasReturn || ctx.ReturnType == types.Void) {
		lw.Bag.Add(diag.New(diag.EInvalidControlFlow, lw.loc(n), "RETURN with a value is only legal in a function/method with a return type"))
	}
	return ir.Stmt{Kind: ir.StmtReturn, Loc: lw.loc(n), Value: value}
}
