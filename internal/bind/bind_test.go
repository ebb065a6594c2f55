package bind

import (
	"testing"

	"github.com/trust-automation/trust/internal/cst"
	"github.com/trust-automation/trust/internal/hirdb"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func typeRef(name string) *cst.Node {
	return &cst.Node{Kind: cst.KindTypeRef, Children: []*cst.Node{{Kind: cst.KindName, Text: name}}}
}

func varDecl(name string, tr *cst.Node) *cst.Node {
	return &cst.Node{Kind: cst.KindVarDecl, Children: []*cst.Node{{Kind: cst.KindName, Text: name}, tr}}
}

func TestBuildProgramDeclaresVariable(t *testing.T) {
	reg := types.NewRegistry()
	prog := &cst.Node{
		Kind: cst.KindProgram,
		Children: []*cst.Node{
			{Kind: cst.KindName, Text: "Main"},
			{Kind: cst.KindVarBlock, Text: "VAR", Children: []*cst.Node{varDecl("Counter", typeRef("INT"))}},
		},
	}
	tbl := Build(reg, hirdb.FileInput{Path: "test.st", Tree: &cst.Node{Children: []*cst.Node{prog}}})

	sym, ok := tbl.LookupAny("Main")
	if !ok || sym.Kind != symbols.KindProgram {
		t.Fatalf("expected a bound PROGRAM symbol for Main, got %v, %v", sym, ok)
	}
	scope, ok := tbl.ScopeForOwner(sym.Id)
	if !ok {
		t.Fatalf("expected Main to own a scope")
	}
	v, ok := tbl.LookupInScope(scope, "Counter")
	if !ok {
		t.Fatalf("expected Counter declared in Main's scope")
	}
	if v.TypeId != types.Int {
		t.Errorf("expected Counter typed as INT, got %d", v.TypeId)
	}
	if v.VarQualifier != symbols.QualLocal {
		t.Errorf("expected Counter to be a plain local, got qualifier %d", v.VarQualifier)
	}
}

func TestBuildFunctionBlockExtendsAndMethod(t *testing.T) {
	reg := types.NewRegistry()
	method := &cst.Node{
		Kind: cst.KindMethod,
		Children: []*cst.Node{
			{Kind: cst.KindName, Text: "Step"},
			typeRef("BOOL"),
		},
	}
	fb := &cst.Node{
		Kind: cst.KindFunctionBlock,
		Children: []*cst.Node{
			{Kind: cst.KindName, Text: "Derived"},
			{Kind: cst.KindExtendsClause, Children: []*cst.Node{{Kind: cst.KindName, Text: "Base"}}},
			{Kind: cst.KindVarBlock, Text: "VAR_INPUT", Children: []*cst.Node{varDecl("Enable", typeRef("BOOL"))}},
			method,
		},
	}
	base := &cst.Node{Kind: cst.KindFunctionBlock, Children: []*cst.Node{{Kind: cst.KindName, Text: "Base"}}}

	tbl := Build(reg, hirdb.FileInput{Path: "test.st", Tree: &cst.Node{Children: []*cst.Node{base, fb}}})

	sym, ok := tbl.LookupAny("Derived")
	if !ok {
		t.Fatalf("expected a bound Derived symbol")
	}
	if base, ok := tbl.ExtendsName(sym.Id); !ok || base != "Base" {
		t.Errorf("expected Derived to extend Base, got %q, %v", base, ok)
	}

	scope, ok := tbl.ScopeForOwner(sym.Id)
	if !ok {
		t.Fatalf("expected Derived to own a scope")
	}
	enable, ok := tbl.LookupInScope(scope, "Enable")
	if !ok || enable.VarQualifier != symbols.QualInput {
		t.Fatalf("expected Enable bound as a VAR_INPUT, got %v, %v", enable, ok)
	}
	step, ok := tbl.LookupInScope(scope, "Step")
	if !ok || step.Kind != symbols.KindMethod {
		t.Fatalf("expected a Step method symbol, got %v, %v", step, ok)
	}
	if step.Method == nil || step.Method.Return != types.Bool {
		t.Fatalf("expected Step's MethodInfo.Return to be BOOL, got %+v", step.Method)
	}
}

func TestBuildInterfaceRecordsMultiExtendsAndFirstBase(t *testing.T) {
	reg := types.NewRegistry()
	iface := &cst.Node{
		Kind: cst.KindInterface,
		Children: []*cst.Node{
			{Kind: cst.KindName, Text: "Combined"},
			{Kind: cst.KindExtendsClause, Children: []*cst.Node{
				{Kind: cst.KindName, Text: "Readable"},
				{Kind: cst.KindName, Text: "Writable"},
			}},
		},
	}
	readable := &cst.Node{Kind: cst.KindInterface, Children: []*cst.Node{{Kind: cst.KindName, Text: "Readable"}}}
	writable := &cst.Node{Kind: cst.KindInterface, Children: []*cst.Node{{Kind: cst.KindName, Text: "Writable"}}}

	tbl := Build(reg, hirdb.FileInput{Path: "test.st", Tree: &cst.Node{Children: []*cst.Node{readable, writable, iface}}})

	sym, ok := tbl.LookupAny("Combined")
	if !ok {
		t.Fatalf("expected a bound Combined interface symbol")
	}
	if len(sym.Implements) != 2 || sym.Implements[0] != "Readable" || sym.Implements[1] != "Writable" {
		t.Fatalf("expected both EXTENDS bases recorded in Implements, got %v", sym.Implements)
	}
	if base, ok := tbl.ExtendsName(sym.Id); !ok || base != "Readable" {
		t.Errorf("expected the first EXTENDS base recorded via SetExtends, got %q, %v", base, ok)
	}
}

func TestBuildTypeDeclRegistersStructOnce(t *testing.T) {
	reg := types.NewRegistry()
	structDef := &cst.Node{
		Kind: cst.KindStructDef,
		Children: []*cst.Node{
			varDecl("X", typeRef("INT")),
			varDecl("Y", typeRef("INT")),
		},
	}
	decl := &cst.Node{
		Kind:     cst.KindTypeDecl,
		Children: []*cst.Node{{Kind: cst.KindName, Text: "Point"}, structDef},
	}

	tbl := Build(reg, hirdb.FileInput{Path: "test.st", Tree: &cst.Node{Children: []*cst.Node{decl}}})

	sym, ok := tbl.LookupType("Point")
	if !ok {
		t.Fatalf("expected a bound Point type symbol")
	}
	typ, ok := reg.Get(sym.TypeId)
	if !ok || typ.Kind != types.KindStruct {
		t.Fatalf("expected Point registered as a struct, got %+v, %v", typ, ok)
	}
	if len(typ.Fields) != 2 || typ.Fields[0].Name != "X" || typ.Fields[1].Name != "Y" {
		t.Fatalf("expected Point's two fields preserved, got %+v", typ.Fields)
	}
}

func TestBuildArrayTypeRef(t *testing.T) {
	reg := types.NewRegistry()
	arrRef := &cst.Node{
		Kind: cst.KindTypeRef,
		Children: []*cst.Node{
			{Kind: cst.KindArrayType, Text: "0:9", Children: []*cst.Node{typeRef("DINT")}},
		},
	}
	prog := &cst.Node{
		Kind: cst.KindProgram,
		Children: []*cst.Node{
			{Kind: cst.KindName, Text: "Main"},
			{Kind: cst.KindVarBlock, Text: "VAR", Children: []*cst.Node{varDecl("Buf", arrRef)}},
		},
	}
	tbl := Build(reg, hirdb.FileInput{Path: "test.st", Tree: &cst.Node{Children: []*cst.Node{prog}}})

	sym, _ := tbl.LookupAny("Main")
	scope, _ := tbl.ScopeForOwner(sym.Id)
	buf, ok := tbl.LookupInScope(scope, "Buf")
	if !ok {
		t.Fatalf("expected Buf declared")
	}
	typ, ok := reg.Get(buf.TypeId)
	if !ok || typ.Kind != types.KindArray {
		t.Fatalf("expected Buf typed as an array, got %+v, %v", typ, ok)
	}
	if len(typ.Dimensions) != 1 || typ.Dimensions[0].Lower != 0 || typ.Dimensions[0].Upper != 9 {
		t.Fatalf("expected dimension 0:9, got %+v", typ.Dimensions)
	}
	if typ.Element != types.Dint {
		t.Errorf("expected array element type DINT, got %d", typ.Element)
	}
}
