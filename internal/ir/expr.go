// Package ir implements the runtime model's POU/task/resource definitions
// and the statement/expression tree the evaluator walks ([F], [E]'s output).
//
// The tree shape generalizes the teacher's terex.Atom (ConsType/VarType/
// NumType/... discriminated by AtomType, evaluated by terex/eval.go's
// recursive Eval) into a strongly-typed Expr/Stmt pair: Expr covers what
// terex's evaluator treats as S-expressions, Stmt is additive structure the
// teacher's sandbox language never needed.
package ir

import (
	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// ExprKind is a closed enumeration of lowered expression shapes.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota
	ExprNameRef
	ExprBinary
	ExprUnary
	ExprCall
	ExprIndex
	ExprField
	ExprDeref
	ExprAddrOf
	ExprSizeOf
	ExprThis
	ExprSuper
)

// Arg is one bound call argument (§4.5 Calls).
type Arg struct {
	ParamName string
	Value     *Expr
	OutTarget *Expr // set instead of Value for OUT/INOUT bindings
}

// Expr is the lowered expression tree.
type Expr struct {
	Kind ExprKind
	Type types.TypeId
	Loc  trust.SourceLocation

	Lit storage.Value // ExprLiteral

	Name string // ExprNameRef, ExprField, ExprCall (callee), ExprAddrOf target name

	Op          string // ExprBinary/ExprUnary operator token
	Left, Right *Expr  // ExprBinary
	Operand     *Expr  // ExprUnary, ExprDeref, ExprAddrOf, ExprSizeOf

	Args []Arg // ExprCall

	Base    *Expr   // ExprIndex, ExprField
	Indices []*Expr // ExprIndex
}
