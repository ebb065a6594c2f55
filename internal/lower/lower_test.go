package lower

import (
	"testing"

	"github.com/trust-automation/trust/internal/check"
	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func newLowerer() (*Lowerer, *symbols.Table) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	bag := &diag.Bag{}
	checker := &check.Checker{Reg: reg, Table: tbl, Bag: bag, File: "t.st"}
	return &Lowerer{Checker: checker, Bag: bag, File: "t.st"}, tbl
}

func intLit(v string) *cst.Node { return &cst.Node{Kind: cst.KindLiteral, Text: v} }

func TestLowerExprLiteralIntFitsSmallest(t *testing.T) {
	lw, _ := newLowerer()
	e := lw.LowerExpr(symbols.GLOBAL, intLit("10"))
	if e.Type != types.Sint {
		t.Fatalf("expected SINT for small literal, got %s", lw.Checker.Reg.TypeName(e.Type))
	}
	if e.Lit.I != 10 {
		t.Fatalf("expected literal value 10, got %d", e.Lit.I)
	}
}

func TestLowerCaseLabelsParsesRangesAndSingles(t *testing.T) {
	labels := parseCaseLabels("1,3,5..7")
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(labels))
	}
	if labels[0].Single == nil || *labels[0].Single != 1 {
		t.Fatalf("expected first label to be single 1")
	}
	if !labels[2].IsRange || labels[2].RangeLow != 5 || labels[2].RangeHigh != 7 {
		t.Fatalf("expected third label to be range 5..7, got %+v", labels[2])
	}
	if !labels[2].Matches(6) || labels[2].Matches(8) {
		t.Fatalf("range label Matches behaved unexpectedly: %+v", labels[2])
	}
}

func TestLowerForRejectsZeroStep(t *testing.T) {
	lw, tbl := newLowerer()
	varSym := &symbols.Symbol{Name: "i", Kind: symbols.KindVariable, TypeId: types.Dint}
	tbl.DefineInScope(symbols.GLOBAL, varSym)

	forNode := &cst.Node{
		Kind: cst.KindForStmt,
		Children: []*cst.Node{
			{Kind: cst.KindNameRef, Text: "i"},
			intLit("1"),
			intLit("10"),
			intLit("0"),
			{Kind: cst.KindStmtList},
		},
	}
	ctx := &StmtCtx{}
	lw.lowerFor(symbols.GLOBAL, forNode, ctx)
	found := false
	for _, d := range lw.Bag.Items() {
		if d.Code == diag.EZeroStep {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EZeroStep for a zero FOR step, got %v", lw.Bag.Items())
	}
}

func TestLowerForRejectsNegativeStepOnUnsignedControlVar(t *testing.T) {
	lw, tbl := newLowerer()
	varSym := &symbols.Symbol{Name: "i", Kind: symbols.KindVariable, TypeId: types.Udint}
	tbl.DefineInScope(symbols.GLOBAL, varSym)

	forNode := &cst.Node{
		Kind: cst.KindForStmt,
		Children: []*cst.Node{
			{Kind: cst.KindNameRef, Text: "i"},
			intLit("10"),
			intLit("1"),
			intLit("-1"),
			{Kind: cst.KindStmtList},
		},
	}
	ctx := &StmtCtx{}
	lw.lowerFor(symbols.GLOBAL, forNode, ctx)
	found := false
	for _, d := range lw.Bag.Items() {
		if d.Code == diag.EZeroStep {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a diagnostic for negative step on an unsigned control variable")
	}
}

func TestExitOutsideLoopIsRejected(t *testing.T) {
	lw, _ := newLowerer()
	ctx := &StmtCtx{}
	lw.LowerStmt(symbols.GLOBAL, &cst.Node{Kind: cst.KindExitStmt}, ctx)
	if !lw.Bag.HasErrors() {
		t.Fatalf("expected EXIT outside a loop to be rejected")
	}
}

func TestExitInsideLoopIsAccepted(t *testing.T) {
	lw, _ := newLowerer()
	ctx := &StmtCtx{}
	body := &cst.Node{Kind: cst.KindStmtList, Children: []*cst.Node{{Kind: cst.KindExitStmt}}}
	whileNode := &cst.Node{Kind: cst.KindWhileStmt, Children: []*cst.Node{{Kind: cst.KindLiteral, Text: "TRUE"}, body}}
	lw.LowerStmt(symbols.GLOBAL, whileNode, ctx)
	if lw.Bag.HasErrors() {
		t.Fatalf("did not expect errors for EXIT inside a loop: %v", lw.Bag.Items())
	}
}

func TestReturnWithValueRejectedWithoutReturnType(t *testing.T) {
	lw, _ := newLowerer()
	ctx := &StmtCtx{ReturnType: types.Void}
	retNode := &cst.Node{Kind: cst.KindReturnStmt, Children: []*cst.Node{intLit("1")}}
	lw.LowerStmt(symbols.GLOBAL, retNode, ctx)
	if !lw.Bag.HasErrors() {
		t.Fatalf("expected RETURN with a value in a void context to be rejected")
	}
}

func TestReturnWithValueAcceptedInFunctionContext(t *testing.T) {
	lw, _ := newLowerer()
	ctx := &StmtCtx{ReturnType: types.Dint, HasReturn: true}
	retNode := &cst.Node{Kind: cst.KindReturnStmt, Children: []*cst.Node{intLit("1")}}
	lw.LowerStmt(symbols.GLOBAL, retNode, ctx)
	if lw.Bag.HasErrors() {
		t.Fatalf("did not expect errors: %v", lw.Bag.Items())
	}
}

func TestLowerProjectRejectsDuplicateTopLevelNames(t *testing.T) {
	lw, tbl := newLowerer()
	sym1 := &symbols.Symbol{Name: "Main", Kind: symbols.KindProgram}
	id1 := tbl.DefineInScope(symbols.GLOBAL, sym1)
	tbl.NewScope(symbols.GLOBAL, "Main", &id1)

	progA := &cst.Node{Kind: cst.KindProgram, Children: []*cst.Node{{Kind: cst.KindName, Text: "Main"}, {Kind: cst.KindStmtList}}}
	progB := &cst.Node{Kind: cst.KindProgram, Children: []*cst.Node{{Kind: cst.KindName, Text: "Main"}, {Kind: cst.KindStmtList}}}

	prog := lw.LowerProject(lw.Checker.Reg, []*cst.Node{progA, progB})
	if len(prog.Programs) != 1 {
		t.Fatalf("expected exactly one surviving Main program, got %d", len(prog.Programs))
	}
	found := false
	for _, d := range lw.Bag.Items() {
		if d.Code == diag.EDuplicateDeclaration {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EDuplicateDeclaration for the second Main declaration")
	}
}

func TestLowerConfigurationParsesTaskAttributesAndProgramAssignment(t *testing.T) {
	lw, tbl := newLowerer()
	sym := &symbols.Symbol{Name: "Cfg", Kind: symbols.KindConfiguration}
	tbl.DefineInScope(symbols.GLOBAL, sym)

	taskNode := &cst.Node{
		Kind: cst.KindTaskConfig, Text: "INTERVAL=T#100ms PRIORITY=5",
		Children: []*cst.Node{{Kind: cst.KindName, Text: "Fast"}},
	}
	progNode := &cst.Node{
		Kind: cst.KindProgramConfig, Text: "WITH Fast",
		Children: []*cst.Node{{Kind: cst.KindName, Text: "inst1"}, {Kind: cst.KindName, Text: "Main"}},
	}
	resourceNode := &cst.Node{
		Kind: cst.KindResource, Text: "INPUT=16 OUTPUT=16 MEMORY=256",
		Children: []*cst.Node{{Kind: cst.KindName, Text: "R1"}, taskNode, progNode},
	}
	cfgNode := &cst.Node{Kind: cst.KindConfiguration, Children: []*cst.Node{{Kind: cst.KindName, Text: "Cfg"}, resourceNode}}

	cfg := lw.LowerConfiguration(cfgNode, sym)
	if len(cfg.Resources) != 1 {
		t.Fatalf("expected one resource, got %d", len(cfg.Resources))
	}
	r := cfg.Resources[0]
	if r.InputSize != 16 || r.OutputSize != 16 || r.MemorySize != 256 {
		t.Fatalf("unexpected resource sizes: %+v", r)
	}
	if len(r.Tasks) != 1 || r.Tasks[0].Name != "Fast" || r.Tasks[0].Priority != 5 {
		t.Fatalf("unexpected task lowering: %+v", r.Tasks)
	}
	if r.Tasks[0].Interval.String() != "100ms" {
		t.Fatalf("expected a 100ms interval, got %v", r.Tasks[0].Interval)
	}
	if len(r.ProgramAssigns) != 1 || r.ProgramAssigns[0].TaskName != "Fast" || r.ProgramAssigns[0].InstanceName != "inst1" {
		t.Fatalf("unexpected program assignment: %+v", r.ProgramAssigns)
	}
	if lw.Bag.HasErrors() {
		t.Fatalf("did not expect errors: %v", lw.Bag.Items())
	}
}

func TestLowerConfigurationFlagsUndeclaredTaskReference(t *testing.T) {
	lw, tbl := newLowerer()
	sym := &symbols.Symbol{Name: "Cfg", Kind: symbols.KindConfiguration}
	tbl.DefineInScope(symbols.GLOBAL, sym)

	progNode := &cst.Node{
		Kind: cst.KindProgramConfig, Text: "WITH Ghost",
		Children: []*cst.Node{{Kind: cst.KindName, Text: "inst1"}},
	}
	resourceNode := &cst.Node{
		Kind:     cst.KindResource,
		Children: []*cst.Node{{Kind: cst.KindName, Text: "R1"}, progNode},
	}
	cfgNode := &cst.Node{Kind: cst.KindConfiguration, Children: []*cst.Node{{Kind: cst.KindName, Text: "Cfg"}, resourceNode}}

	lw.LowerConfiguration(cfgNode, sym)
	found := false
	for _, d := range lw.Bag.Items() {
		if d.Code == diag.EUndefinedProgramRef {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EUndefinedProgramRef for a WITH clause naming an undeclared task")
	}
}
