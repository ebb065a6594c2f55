// Package eval implements the tree-walking expression & statement evaluator
// ([G]): deterministic execution of the lowered ir.Program against
// storage.VariableStorage, dispatching standard functions/FBs to
// internal/stdlib.
//
// The recursive walk (EvalExpr/ExecStmt mutually driving each other) is
// grounded on the teacher's terex/eval.go Eval/evalList/evalAtom shape,
// generalized from S-expression evaluation over an Environment to
// statement/expression evaluation over VariableStorage; the per-statement
// execution-deadline checkpoint and per-iteration re-check for FOR/WHILE/
// REPEAT follow original_source/crates/trust-runtime/src/eval/stmt.rs.
package eval

import (
	"fmt"
	"time"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// ErrKind is a closed enumeration of evaluator failure categories, in the
// same embedded-code style as diag.Code and bytecode.ErrKind.
type ErrKind uint8

const (
	ErrMissingSlot ErrKind = iota
	ErrDivisionByZero
	ErrIndexOutOfRange
	ErrUnknownCallee
	ErrWrongArgCount
	ErrNilReference
	ErrNotCallable
	ErrExecutionTimeout
	ErrInternal
)

func (k ErrKind) String() string {
	switch k {
	case ErrMissingSlot:
		return "MissingSlot"
	case ErrDivisionByZero:
		return "DivisionByZero"
	case ErrIndexOutOfRange:
		return "IndexOutOfRange"
	case ErrUnknownCallee:
		return "UnknownCallee"
	case ErrWrongArgCount:
		return "WrongArgCount"
	case ErrNilReference:
		return "NilReference"
	case ErrNotCallable:
		return "NotCallable"
	case ErrExecutionTimeout:
		return "ExecutionTimeout"
	default:
		return "Internal"
	}
}

// Error is the evaluator's error type, carrying the source location of the
// statement/expression that failed.
type Error struct {
	Kind ErrKind
	Loc  trust.SourceLocation
	Msg  string
}

func (e *Error) Error() string {
	if e.Loc.File == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Loc, e.Kind, e.Msg)
}

func errf(kind ErrKind, loc trust.SourceLocation, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

// Evaluator walks a lowered ir.Program against one VariableStorage. It
// holds no per-call state itself; every call pushes/pops its own frame
// (invariant (i), §3.3), so one Evaluator is safely reused across cycles
// and across concurrently-unrelated control/debug inspection between
// cycles.
type Evaluator struct {
	Storage *storage.VariableStorage
	Program *ir.Program

	// Now supplies the evaluator's notion of wall-clock time (TON/TOF/TP,
	// DT/TOD reads); defaults to time.Now when nil.
	Now func() time.Time

	// Deadline, if non-zero, is checked at every statement and at every
	// loop iteration (§4.8 "Cancellation / budget"); exceeding it aborts
	// the in-flight call with ErrExecutionTimeout.
	Deadline time.Time
}

// NewEvaluator creates an Evaluator bound to store/prog with no deadline.
func NewEvaluator(store *storage.VariableStorage, prog *ir.Program) *Evaluator {
	return &Evaluator{Storage: store, Program: prog}
}

func (ev *Evaluator) now() time.Time {
	if ev.Now != nil {
		return ev.Now()
	}
	return time.Now()
}

// Checkpoint checks the execution deadline, returning ErrExecutionTimeout
// once it has passed. Called once per statement and once per loop
// iteration (§4.8, §5 "no preemption... checks per statement").
func (ev *Evaluator) Checkpoint(loc trust.SourceLocation) error {
	if ev.Deadline.IsZero() {
		return nil
	}
	if ev.now().After(ev.Deadline) {
		return errf(ErrExecutionTimeout, loc, "execution deadline exceeded")
	}
	return nil
}

// typeReg is a small convenience accessor; Program.Types is always set by
// ir.NewProgram.
func (ev *Evaluator) typeReg() *types.Registry {
	return ev.Program.Types
}
