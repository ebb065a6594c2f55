package symbols

import (
	"testing"

	"github.com/trust-automation/trust/internal/types"
)

func TestCaseInsensitiveLookupPreservesSpelling(t *testing.T) {
	tbl := NewTable()
	tbl.DefineInScope(GLOBAL, &Symbol{Name: "MyVar", Kind: KindVariable, TypeId: types.Int})

	sym, ok := tbl.LookupInScope(GLOBAL, "myvar")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to succeed")
	}
	if sym.Name != "MyVar" {
		t.Fatalf("expected original spelling preserved, got %q", sym.Name)
	}
}

func TestScopeTreeWalkResolvesParent(t *testing.T) {
	tbl := NewTable()
	tbl.DefineInScope(GLOBAL, &Symbol{Name: "Count", Kind: KindVariable, TypeId: types.Int})
	fbScope := tbl.NewScope(GLOBAL, "MyFB", nil)

	sym, scope, ok := tbl.Resolve("Count", fbScope)
	if !ok {
		t.Fatalf("expected to resolve Count via parent walk")
	}
	if scope != GLOBAL {
		t.Fatalf("expected resolution in GLOBAL scope, got %d", scope)
	}
	_ = sym
}

func TestNamespaceCoalescingByDottedPath(t *testing.T) {
	tbl := NewTable()
	a := tbl.NewNamespaceScope("Acme.Utils")
	b := tbl.NewNamespaceScope("Acme.Utils")
	if a != b {
		t.Fatalf("expected identical dotted paths to coalesce, got %d and %d", a, b)
	}
}

func TestQualifiedLookup(t *testing.T) {
	tbl := NewTable()
	ns := tbl.NewNamespaceScope("Acme")
	tbl.DefineInScope(ns, &Symbol{Name: "Helper", Kind: KindFunctionBlock})

	sym, ok := tbl.ResolveQualified([]string{"Acme", "Helper"})
	if !ok || sym.Name != "Helper" {
		t.Fatalf("expected qualified resolution of Acme.Helper")
	}
}

func TestExtendsCycleDetection(t *testing.T) {
	tbl := NewTable()
	idA := tbl.DefineInScope(GLOBAL, &Symbol{Name: "A", Kind: KindClass})
	idB := tbl.DefineInScope(GLOBAL, &Symbol{Name: "B", Kind: KindClass})
	tbl.SetExtends(idA, "B")
	tbl.SetExtends(idB, "A")

	if !DetectExtendsCycle(tbl, idA) {
		t.Fatalf("expected cycle A->B->A to be detected")
	}
}

func TestExtendsAcyclic(t *testing.T) {
	tbl := NewTable()
	idA := tbl.DefineInScope(GLOBAL, &Symbol{Name: "A", Kind: KindClass})
	tbl.DefineInScope(GLOBAL, &Symbol{Name: "B", Kind: KindClass})
	tbl.SetExtends(idA, "B")

	if DetectExtendsCycle(tbl, idA) {
		t.Fatalf("expected no cycle for A->B")
	}
}

func TestVisibilityInheritance(t *testing.T) {
	if CanInherit(VisPrivate, true) {
		t.Fatalf("private must never be inherited")
	}
	if !CanInherit(VisInternal, true) {
		t.Fatalf("internal must be inherited within same namespace")
	}
	if CanInherit(VisInternal, false) {
		t.Fatalf("internal must not be inherited across namespaces")
	}
	if !CanInherit(VisPublic, false) {
		t.Fatalf("public must always be inherited")
	}
}

func TestMergeProjectSkipsPrivate(t *testing.T) {
	src := NewTable()
	src.DefineInScope(GLOBAL, &Symbol{Name: "Pub", Kind: KindProgram, Visibility: VisPublic})
	src.DefineInScope(GLOBAL, &Symbol{Name: "Priv", Kind: KindProgram, Visibility: VisPrivate})

	dst := NewTable()
	MergeProject(dst, src, "other.st")

	if _, ok := dst.LookupInScope(GLOBAL, "Pub"); !ok {
		t.Fatalf("expected public symbol to be imported")
	}
	if _, ok := dst.LookupInScope(GLOBAL, "Priv"); ok {
		t.Fatalf("private symbol must not be imported")
	}
	sym, _ := dst.LookupInScope(GLOBAL, "Pub")
	if sym.Origin == nil || sym.Origin.File != "other.st" {
		t.Fatalf("expected origin to be tagged with source file")
	}
}
