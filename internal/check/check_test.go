package check

import (
	"testing"

	"github.com/trust-automation/trust/internal/diag"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func TestAssignableNumericWidening(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	if !AssignableWithin(reg, tbl, types.Dint, types.Int) {
		t.Errorf("INT should widen into DINT")
	}
	if AssignableWithin(reg, tbl, types.Int, types.Dint) {
		t.Errorf("DINT should not narrow into INT")
	}
}

func TestAssignableBitStringWidening(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	if !AssignableWithin(reg, tbl, types.Dword, types.Word) {
		t.Errorf("WORD should widen into DWORD")
	}
}

func TestAssignableAnyTag(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	if !AssignableWithin(reg, tbl, types.AnyInt, types.Dint) {
		t.Errorf("DINT should satisfy ANY_INT")
	}
	if AssignableWithin(reg, tbl, types.AnyInt, types.Real) {
		t.Errorf("REAL should not satisfy ANY_INT")
	}
}

func TestCheckExtendsKindMismatch(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	base := &symbols.Symbol{Name: "Base", Kind: symbols.KindInterface}
	baseId := tbl.DefineInScope(symbols.GLOBAL, base)
	tbl.NewScope(symbols.GLOBAL, "Base", &baseId)

	derived := &symbols.Symbol{Name: "Derived", Kind: symbols.KindClass, Extends: "Base"}
	tbl.DefineInScope(symbols.GLOBAL, derived)

	bag := &diag.Bag{}
	CheckOOP(reg, tbl, bag, "test.st")
	if !bag.HasErrors() {
		t.Fatalf("expected a kind-mismatch diagnostic for CLASS extending INTERFACE")
	}
}

func TestCheckExtendsCycleDetected(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	a := &symbols.Symbol{Name: "A", Kind: symbols.KindFunctionBlock, Extends: "B"}
	aId := tbl.DefineInScope(symbols.GLOBAL, a)
	tbl.NewScope(symbols.GLOBAL, "A", &aId)
	b := &symbols.Symbol{Name: "B", Kind: symbols.KindFunctionBlock, Extends: "A"}
	bId := tbl.DefineInScope(symbols.GLOBAL, b)
	tbl.NewScope(symbols.GLOBAL, "B", &bId)

	bag := &diag.Bag{}
	CheckOOP(reg, tbl, bag, "test.st")
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.ECyclicInheritance {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ECyclicInheritance, got %v", bag.Items())
	}
}

func TestCheckInstantiationRejectsAbstractAsPlainVariable(t *testing.T) {
	tbl := symbols.NewTable()
	abstractClass := &symbols.Symbol{Name: "Shape", Kind: symbols.KindClass, Modifiers: symbols.Modifiers{Abstract: true}}
	tbl.DefineInScope(symbols.GLOBAL, abstractClass)

	bag := &diag.Bag{}
	varSym := &symbols.Symbol{Name: "s", Kind: symbols.KindVariable, VarQualifier: symbols.QualLocal}
	CheckInstantiation(tbl, bag, "test.st", varSym, "Shape")
	if !bag.HasErrors() {
		t.Fatalf("expected EAbstractInstantiation")
	}

	bag2 := &diag.Bag{}
	paramSym := &symbols.Symbol{Name: "s", Kind: symbols.KindVariable, VarQualifier: symbols.QualInput}
	CheckInstantiation(tbl, bag2, "test.st", paramSym, "Shape")
	if bag2.HasErrors() {
		t.Fatalf("IN parameter of abstract type should be allowed: %v", bag2.Items())
	}
}

func TestRunAllCatchesAbstractInstantiationByTypeId(t *testing.T) {
	reg := types.NewRegistry()
	tbl := symbols.NewTable()
	shapeType := reg.RegisterClass("Shape")
	abstractClass := &symbols.Symbol{Name: "Shape", Kind: symbols.KindClass, TypeId: shapeType, Modifiers: symbols.Modifiers{Abstract: true}}
	tbl.DefineInScope(symbols.GLOBAL, abstractClass)
	plainVar := &symbols.Symbol{Name: "s", Kind: symbols.KindVariable, VarQualifier: symbols.QualLocal, TypeId: shapeType}
	tbl.DefineInScope(symbols.GLOBAL, plainVar)

	bag := &diag.Bag{}
	RunAll(reg, tbl, "test.st", bag)
	found := false
	for _, d := range bag.Items() {
		if d.Code == diag.EAbstractInstantiation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RunAll to report EAbstractInstantiation via the table-wide variable walk, got %v", bag.Items())
	}
}
