package eval

import (
	"testing"

	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

func nameRef(name string, t types.TypeId) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprNameRef, Name: name, Type: t}
}

func lit(v storage.Value) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprLiteral, Type: v.Type, Lit: v}
}

func newTestEvaluator() (*Evaluator, *storage.VariableStorage, *ir.Program) {
	reg := types.NewRegistry()
	prog := ir.NewProgram(reg)
	store := storage.NewVariableStorage()
	return NewEvaluator(store, prog), store, prog
}

func TestEvalBinaryArithmetic(t *testing.T) {
	ev, _, _ := newTestEvaluator()
	e := &ir.Expr{
		Kind: ir.ExprBinary, Op: "+", Type: types.Dint,
		Left:  lit(storage.Int(types.Dint, 2)),
		Right: lit(storage.Int(types.Dint, 3)),
	}
	v, err := ev.EvalExpr(nil, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if v.I != 5 {
		t.Errorf("expected 5, got %d", v.I)
	}
}

func TestEvalComparison(t *testing.T) {
	ev, _, _ := newTestEvaluator()
	e := &ir.Expr{
		Kind: ir.ExprBinary, Op: "<", Type: types.Bool,
		Left:  lit(storage.Int(types.Dint, 2)),
		Right: lit(storage.Int(types.Dint, 3)),
	}
	v, err := ev.EvalExpr(nil, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !v.B {
		t.Errorf("expected TRUE for 2 < 3")
	}
}

func TestAssignToGlobal(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	store.Globals.Set("X", storage.Int(types.Dint, 0))
	s := &ir.Stmt{
		Kind:   ir.StmtAssign,
		Target: nameRef("X", types.Dint),
		Value:  lit(storage.Int(types.Dint, 42)),
	}
	if _, _, err := ev.ExecStmt(nil, s); err != nil {
		t.Fatalf("ExecStmt: %v", err)
	}
	v, _ := store.Globals.Get("X")
	if v.I != 42 {
		t.Errorf("expected 42, got %d", v.I)
	}
}

func TestAssignMissingSlotFails(t *testing.T) {
	ev, _, _ := newTestEvaluator()
	s := &ir.Stmt{
		Kind:   ir.StmtAssign,
		Target: nameRef("NOPE", types.Dint),
		Value:  lit(storage.Int(types.Dint, 1)),
	}
	_, _, err := ev.ExecStmt(nil, s)
	if err == nil {
		t.Fatal("expected an error for an unresolved assignment target")
	}
	evErr, ok := err.(*Error)
	if !ok || evErr.Kind != ErrMissingSlot {
		t.Errorf("expected ErrMissingSlot, got %v", err)
	}
}

func TestForLoopAccumulates(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	store.Globals.Set("I", storage.Int(types.Dint, 0))
	store.Globals.Set("SUM", storage.Int(types.Dint, 0))
	body := []ir.Stmt{{
		Kind:   ir.StmtAssign,
		Target: nameRef("SUM", types.Dint),
		Value: &ir.Expr{
			Kind: ir.ExprBinary, Op: "+", Type: types.Dint,
			Left:  nameRef("SUM", types.Dint),
			Right: nameRef("I", types.Dint),
		},
	}}
	forStmt := &ir.Stmt{
		Kind:    ir.StmtFor,
		ForVar:  "I",
		ForFrom: lit(storage.Int(types.Dint, 1)),
		ForTo:   lit(storage.Int(types.Dint, 5)),
		ForBody: body,
	}
	if _, _, err := ev.ExecStmt(nil, forStmt); err != nil {
		t.Fatalf("ExecStmt: %v", err)
	}
	sum, _ := store.Globals.Get("SUM")
	if sum.I != 15 {
		t.Errorf("expected 1+2+3+4+5=15, got %d", sum.I)
	}
}

func TestForLoopExit(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	store.Globals.Set("I", storage.Int(types.Dint, 0))
	store.Globals.Set("HITS", storage.Int(types.Dint, 0))
	body := []ir.Stmt{
		{
			Kind: ir.StmtIf,
			Cond: &ir.Expr{
				Kind: ir.ExprBinary, Op: "=", Type: types.Bool,
				Left: nameRef("I", types.Dint), Right: lit(storage.Int(types.Dint, 3)),
			},
			Then: []ir.Stmt{{Kind: ir.StmtExit}},
		},
		{
			Kind:   ir.StmtAssign,
			Target: nameRef("HITS", types.Dint),
			Value: &ir.Expr{
				Kind: ir.ExprBinary, Op: "+", Type: types.Dint,
				Left: nameRef("HITS", types.Dint), Right: lit(storage.Int(types.Dint, 1)),
			},
		},
	}
	forStmt := &ir.Stmt{
		Kind: ir.StmtFor, ForVar: "I",
		ForFrom: lit(storage.Int(types.Dint, 1)), ForTo: lit(storage.Int(types.Dint, 10)),
		ForBody: body,
	}
	if _, _, err := ev.ExecStmt(nil, forStmt); err != nil {
		t.Fatalf("ExecStmt: %v", err)
	}
	hits, _ := store.Globals.Get("HITS")
	if hits.I != 2 {
		t.Errorf("expected EXIT at I=3 after 2 increments, got %d", hits.I)
	}
}

func TestCaseStatement(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	store.Globals.Set("SEL", storage.Int(types.Dint, 2))
	store.Globals.Set("OUT", storage.Int(types.Dint, 0))
	one := int64(1)
	s := &ir.Stmt{
		Kind:     ir.StmtCase,
		CaseExpr: nameRef("SEL", types.Dint),
		Cases: []ir.CaseArm{
			{Labels: []ir.CaseLabel{{Single: &one}}, Body: []ir.Stmt{{
				Kind: ir.StmtAssign, Target: nameRef("OUT", types.Dint), Value: lit(storage.Int(types.Dint, 100)),
			}}},
			{Labels: []ir.CaseLabel{{IsRange: true, RangeLow: 2, RangeHigh: 4}}, Body: []ir.Stmt{{
				Kind: ir.StmtAssign, Target: nameRef("OUT", types.Dint), Value: lit(storage.Int(types.Dint, 200)),
			}}},
		},
		CaseElse: []ir.Stmt{{
			Kind: ir.StmtAssign, Target: nameRef("OUT", types.Dint), Value: lit(storage.Int(types.Dint, -1)),
		}},
	}
	if _, _, err := ev.ExecStmt(nil, s); err != nil {
		t.Fatalf("ExecStmt: %v", err)
	}
	out, _ := store.Globals.Get("OUT")
	if out.I != 200 {
		t.Errorf("expected the 2..4 range arm (200), got %d", out.I)
	}
}

func TestCallFunctionReturnsByOwnName(t *testing.T) {
	ev, _, prog := newTestEvaluator()
	prog.Functions["DOUBLE"] = &ir.FunctionDef{
		Name:   "DOUBLE",
		Params: []ir.ParamDef{{Name: "X", Type: types.Dint}},
		Return: types.Dint,
		Body: []ir.Stmt{{
			Kind:   ir.StmtAssign,
			Target: nameRef("DOUBLE", types.Dint),
			Value: &ir.Expr{
				Kind: ir.ExprBinary, Op: "*", Type: types.Dint,
				Left: nameRef("X", types.Dint), Right: lit(storage.Int(types.Dint, 2)),
			},
		}},
	}
	call := &ir.Expr{
		Kind: ir.ExprCall, Name: "DOUBLE", Type: types.Dint,
		Args: []ir.Arg{{Value: lit(storage.Int(types.Dint, 21))}},
	}
	v, err := ev.EvalExpr(nil, call)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if v.I != 42 {
		t.Errorf("expected 42, got %d", v.I)
	}
}

func TestCallFunctionExplicitReturn(t *testing.T) {
	ev, _, prog := newTestEvaluator()
	prog.Functions["NEG"] = &ir.FunctionDef{
		Name:   "NEG",
		Params: []ir.ParamDef{{Name: "X", Type: types.Dint}},
		Return: types.Dint,
		Body: []ir.Stmt{{
			Kind:  ir.StmtReturn,
			Value: &ir.Expr{Kind: ir.ExprUnary, Op: "-", Type: types.Dint, Operand: nameRef("X", types.Dint)},
		}},
	}
	call := &ir.Expr{Kind: ir.ExprCall, Name: "NEG", Type: types.Dint, Args: []ir.Arg{{Value: lit(storage.Int(types.Dint, 7))}}}
	v, err := ev.EvalExpr(nil, call)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if v.I != -7 {
		t.Errorf("expected -7, got %d", v.I)
	}
}

func TestCallStandardFunction(t *testing.T) {
	ev, _, _ := newTestEvaluator()
	call := &ir.Expr{Kind: ir.ExprCall, Name: "ABS", Type: types.Dint, Args: []ir.Arg{{Value: lit(storage.Int(types.Dint, -9))}}}
	v, err := ev.EvalExpr(nil, call)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if v.I != 9 {
		t.Errorf("expected ABS(-9)=9, got %d", v.I)
	}
}

func TestBareStandardFBCall(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	instId := store.NewInstance("TON", nil)
	store.Instances[instId].Variables.Set("IN", storage.Bool(types.Bool, false))
	store.Instances[instId].Variables.Set("PT", storage.Duration(types.Time, 0))
	store.Globals.Set("TMR", storage.Instance(types.Void, instId))

	call := &ir.Expr{
		Kind: ir.ExprCall, Name: "TMR",
		Args: []ir.Arg{
			{ParamName: "IN", Value: lit(storage.Bool(types.Bool, true))},
		},
	}
	if _, err := ev.EvalExpr(nil, call); err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	in, ok := store.Instances[instId].Variables.Get("IN")
	if !ok || !in.B {
		t.Errorf("expected IN written through to the TON instance, got %+v ok=%v", in, ok)
	}
}

func TestDeadlineExceeded(t *testing.T) {
	ev, _, _ := newTestEvaluator()
	past := ev.now().Add(-1)
	ev.Deadline = past
	s := &ir.Stmt{Kind: ir.StmtExpr, Call: lit(storage.Int(types.Dint, 1))}
	_, _, err := ev.ExecStmt(nil, s)
	if err == nil {
		t.Fatal("expected ErrExecutionTimeout")
	}
	evErr, ok := err.(*Error)
	if !ok || evErr.Kind != ErrExecutionTimeout {
		t.Errorf("expected ErrExecutionTimeout, got %v", err)
	}
}

func TestVirtualDispatchOverride(t *testing.T) {
	ev, store, prog := newTestEvaluator()
	prog.Classes["Base"] = &ir.ClassDef{
		Name: "Base",
		Methods: []ir.MethodDef{{
			Name: "Speak", Return: types.Dint,
			Body: []ir.Stmt{{Kind: ir.StmtReturn, Value: lit(storage.Int(types.Dint, 1))}},
		}},
	}
	prog.Classes["Derived"] = &ir.ClassDef{
		Name: "Derived", Extends: "Base",
		Methods: []ir.MethodDef{{
			Name: "Speak", Return: types.Dint, IsOverride: true,
			Body: []ir.Stmt{{Kind: ir.StmtReturn, Value: lit(storage.Int(types.Dint, 2))}},
		}},
	}
	instId := store.NewInstance("Derived", nil)
	store.Globals.Set("OBJ", storage.Instance(types.Void, instId))

	call := &ir.Expr{Kind: ir.ExprCall, Name: "OBJ.Speak", Type: types.Dint}
	v, err := ev.EvalExpr(nil, call)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if v.I != 2 {
		t.Errorf("expected dynamic dispatch to Derived.Speak (2), got %d", v.I)
	}
}

func TestSuperBypassesOverride(t *testing.T) {
	ev, store, prog := newTestEvaluator()
	prog.Classes["Base"] = &ir.ClassDef{
		Name: "Base",
		Methods: []ir.MethodDef{{
			Name: "Speak", Return: types.Dint,
			Body: []ir.Stmt{{Kind: ir.StmtReturn, Value: lit(storage.Int(types.Dint, 1))}},
		}},
	}
	prog.Classes["Derived"] = &ir.ClassDef{
		Name: "Derived", Extends: "Base",
		Methods: []ir.MethodDef{{
			Name: "Speak", Return: types.Dint, IsOverride: true,
			Body: []ir.Stmt{{
				Kind:  ir.StmtReturn,
				Value: &ir.Expr{Kind: ir.ExprCall, Name: "SUPER.Speak", Type: types.Dint},
			}},
		}},
	}
	instId := store.NewInstance("Derived", nil)
	method, owner, ok := ev.resolveMethod("Derived", "Speak")
	if !ok {
		t.Fatal("expected to resolve Derived.Speak")
	}
	v, err := ev.CallMethod(nil, instId, method, owner, nil, method.Body[0].Loc)
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if v.I != 1 {
		t.Errorf("expected SUPER.Speak to reach Base.Speak (1), got %d", v.I)
	}
}

func TestArrayIndexAssignment(t *testing.T) {
	ev, store, _ := newTestEvaluator()
	dims := []types.ArrayDim{{Lower: 1, Upper: 3}}
	arrType := ev.typeReg().RegisterArray(types.Dint, dims)
	store.Globals.Set("ARR", storage.Array(arrType, dims, []storage.Value{
		storage.Int(types.Dint, 0), storage.Int(types.Dint, 0), storage.Int(types.Dint, 0),
	}))

	target := &ir.Expr{
		Kind: ir.ExprIndex, Type: types.Dint,
		Base:    &ir.Expr{Kind: ir.ExprNameRef, Name: "ARR", Type: arrType},
		Indices: []*ir.Expr{lit(storage.Int(types.Dint, 2))},
	}
	s := &ir.Stmt{Kind: ir.StmtAssign, Target: target, Value: lit(storage.Int(types.Dint, 77))}
	if _, _, err := ev.ExecStmt(nil, s); err != nil {
		t.Fatalf("ExecStmt: %v", err)
	}
	arr, _ := store.Globals.Get("ARR")
	if arr.Elem[1].I != 77 {
		t.Errorf("expected ARR[2] (flat index 1) == 77, got %d", arr.Elem[1].I)
	}
}
