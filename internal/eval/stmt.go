package eval

import (
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
)

// signal reports non-local control flow bubbling up out of ExecStmt/
// ExecBody, generalizing the teacher's plain recursive evaluation (which
// never needed to interrupt itself) with the handful of IEC control-flow
// exits: RETURN, EXIT, CONTINUE and GOTO all unwind the recursive walk
// rather than being threaded through as explicit parameters.
type signal uint8

const (
	sigNone signal = iota
	sigReturn
	sigExit
	sigContinue
	sigJmp
)

// ExecBody runs a flat statement list in order, resolving GOTO targets that
// live in this same list and bubbling anything else (a label elsewhere, a
// RETURN/EXIT/CONTINUE) to the caller.
func (ev *Evaluator) ExecBody(frame *storage.LocalFrame, stmts []ir.Stmt) (signal, string, error) {
	for i := 0; i < len(stmts); i++ {
		sig, label, err := ev.ExecStmt(frame, &stmts[i])
		if err != nil {
			return sigNone, "", err
		}
		if sig == sigJmp {
			idx := indexOfLabel(stmts, label)
			if idx < 0 {
				return sig, label, nil
			}
			i = idx
			continue
		}
		if sig != sigNone {
			return sig, label, nil
		}
	}
	return sigNone, "", nil
}

func indexOfLabel(stmts []ir.Stmt, label string) int {
	for i := range stmts {
		if stmts[i].Kind == ir.StmtLabel && stmts[i].Label == label {
			return i
		}
	}
	return -1
}

// ExecStmt executes one statement, returning any signal that should bubble
// past the enclosing block (§4.8: a deadline Checkpoint runs before every
// statement and, separately, once per loop iteration).
func (ev *Evaluator) ExecStmt(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	if err := ev.Checkpoint(s.Loc); err != nil {
		return sigNone, "", err
	}
	switch s.Kind {
	case ir.StmtAssign:
		return ev.execAssign(frame, s, false)
	case ir.StmtAssignAttempt:
		return ev.execAssign(frame, s, true)
	case ir.StmtExpr:
		_, err := ev.EvalExpr(frame, s.Call)
		return sigNone, "", err
	case ir.StmtIf:
		return ev.execIf(frame, s)
	case ir.StmtCase:
		return ev.execCase(frame, s)
	case ir.StmtFor:
		return ev.execFor(frame, s)
	case ir.StmtWhile:
		return ev.execWhile(frame, s)
	case ir.StmtRepeat:
		return ev.execRepeat(frame, s)
	case ir.StmtReturn:
		if s.Value != nil {
			v, err := ev.EvalExpr(frame, s.Value)
			if err != nil {
				return sigNone, "", err
			}
			frame.ReturnValue = &v
		}
		return sigReturn, "", nil
	case ir.StmtExit:
		return sigExit, "", nil
	case ir.StmtContinue:
		return sigContinue, "", nil
	case ir.StmtLabel:
		return sigNone, "", nil
	case ir.StmtJmp:
		return sigJmp, s.Label, nil
	default:
		return sigNone, "", errf(ErrInternal, s.Loc, "unhandled statement kind %v", s.Kind)
	}
}

// execAssign handles both ':=' and the reference-assignment '?=' operator.
// '?=' only commits when the source is a null reference or an instance
// whose runtime type is assignable to the target's declared type,
// approximating the IEC "attempt" semantics without a full type-compat
// check at every plain assignment.
func (ev *Evaluator) execAssign(frame *storage.LocalFrame, s *ir.Stmt, attempt bool) (signal, string, error) {
	v, err := ev.EvalExpr(frame, s.Value)
	if err != nil {
		return sigNone, "", err
	}
	ref, err := ev.resolveRef(frame, s.Target)
	if err != nil {
		return sigNone, "", err
	}
	if attempt {
		if v.Kind == storage.KindInstance && !ev.isAssignableInstance(v.Inst, s.Target.Type) {
			return sigNone, "", nil
		}
	}
	if err := ev.Storage.Assign(ref, v); err != nil {
		return sigNone, "", errf(ErrMissingSlot, s.Loc, "%s", err)
	}
	return sigNone, "", nil
}

func (ev *Evaluator) execIf(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	cond, err := ev.EvalExpr(frame, s.Cond)
	if err != nil {
		return sigNone, "", err
	}
	if cond.B {
		return ev.ExecBody(frame, s.Then)
	}
	for _, ei := range s.ElseIfs {
		c, err := ev.EvalExpr(frame, ei.Cond)
		if err != nil {
			return sigNone, "", err
		}
		if c.B {
			return ev.ExecBody(frame, ei.Body)
		}
	}
	return ev.ExecBody(frame, s.Else)
}

func (ev *Evaluator) execCase(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	v, err := ev.EvalExpr(frame, s.CaseExpr)
	if err != nil {
		return sigNone, "", err
	}
	key := v.I
	if v.Kind == storage.KindEnum {
		key = v.EnumNumeric
	}
	for _, arm := range s.Cases {
		for _, l := range arm.Labels {
			if l.Matches(key) {
				return ev.ExecBody(frame, arm.Body)
			}
		}
	}
	return ev.ExecBody(frame, s.CaseElse)
}

func (ev *Evaluator) execFor(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	ctrl := &ir.Expr{Kind: ir.ExprNameRef, Name: s.ForVar, Loc: s.Loc}
	ref, err := ev.resolveRef(frame, ctrl)
	if err != nil {
		return sigNone, "", err
	}
	from, err := ev.EvalExpr(frame, s.ForFrom)
	if err != nil {
		return sigNone, "", err
	}
	to, err := ev.EvalExpr(frame, s.ForTo)
	if err != nil {
		return sigNone, "", err
	}
	step := int64(1)
	if s.ForStep != nil {
		sv, err := ev.EvalExpr(frame, s.ForStep)
		if err != nil {
			return sigNone, "", err
		}
		step = sv.I
	}
	if step == 0 {
		return sigNone, "", errf(ErrInternal, s.Loc, "FOR loop step is zero")
	}
	if err := ev.Storage.Assign(ref, from); err != nil {
		return sigNone, "", errf(ErrMissingSlot, s.Loc, "%s", err)
	}
	for {
		if err := ev.Checkpoint(s.Loc); err != nil {
			return sigNone, "", err
		}
		cur, err := ev.Storage.Resolve(ref)
		if err != nil {
			return sigNone, "", errf(ErrMissingSlot, s.Loc, "%s", err)
		}
		if step > 0 && cur.I > to.I {
			break
		}
		if step < 0 && cur.I < to.I {
			break
		}
		sig, label, err := ev.ExecBody(frame, s.ForBody)
		if err != nil {
			return sigNone, "", err
		}
		switch sig {
		case sigExit:
			return sigNone, "", nil
		case sigReturn, sigJmp:
			return sig, label, nil
		}
		cur, err = ev.Storage.Resolve(ref)
		if err != nil {
			return sigNone, "", errf(ErrMissingSlot, s.Loc, "%s", err)
		}
		next := storage.Int(cur.Type, cur.I+step)
		if err := ev.Storage.Assign(ref, next); err != nil {
			return sigNone, "", errf(ErrMissingSlot, s.Loc, "%s", err)
		}
	}
	return sigNone, "", nil
}

func (ev *Evaluator) execWhile(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	for {
		if err := ev.Checkpoint(s.Loc); err != nil {
			return sigNone, "", err
		}
		c, err := ev.EvalExpr(frame, s.LoopCond)
		if err != nil {
			return sigNone, "", err
		}
		if !c.B {
			return sigNone, "", nil
		}
		sig, label, err := ev.ExecBody(frame, s.LoopBody)
		if err != nil {
			return sigNone, "", err
		}
		switch sig {
		case sigExit:
			return sigNone, "", nil
		case sigReturn, sigJmp:
			return sig, label, nil
		}
	}
}

func (ev *Evaluator) execRepeat(frame *storage.LocalFrame, s *ir.Stmt) (signal, string, error) {
	for {
		if err := ev.Checkpoint(s.Loc); err != nil {
			return sigNone, "", err
		}
		sig, label, err := ev.ExecBody(frame, s.LoopBody)
		if err != nil {
			return sigNone, "", err
		}
		switch sig {
		case sigExit:
			return sigNone, "", nil
		case sigReturn, sigJmp:
			return sig, label, nil
		}
		c, err := ev.EvalExpr(frame, s.LoopCond)
		if err != nil {
			return sigNone, "", err
		}
		if c.B {
			return sigNone, "", nil
		}
	}
}
