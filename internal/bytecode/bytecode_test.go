package bytecode

import (
	"testing"
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/symbols"
	"github.com/trust-automation/trust/internal/types"
)

func newTestProgram(t *testing.T) *ir.Program {
	t.Helper()
	reg := types.NewRegistry()
	prog := ir.NewProgram(reg)

	counterVar := ir.VarDef{Name: "counter", Type: types.Dint, Qualifier: symbols.QualLocal}
	doneVar := ir.VarDef{
		Name:        "done",
		Type:        types.Bool,
		Qualifier:   symbols.QualLocal,
		Initializer: &ir.Expr{Kind: ir.ExprLiteral, Type: types.Bool, Lit: storage.Bool(types.Bool, false)},
	}
	prog.Programs["MAIN"] = &ir.ProgramDef{
		Name: "MAIN",
		Vars: []ir.VarDef{counterVar, doneVar},
		Body: []ir.Stmt{
			{
				Kind:   ir.StmtAssign,
				Target: &ir.Expr{Kind: ir.ExprNameRef, Type: types.Dint, Name: "counter"},
				Value: &ir.Expr{
					Kind: ir.ExprBinary, Type: types.Dint, Op: "+",
					Left:  &ir.Expr{Kind: ir.ExprNameRef, Type: types.Dint, Name: "counter"},
					Right: &ir.Expr{Kind: ir.ExprLiteral, Type: types.Dint, Lit: storage.Int(types.Dint, 1)},
				},
			},
			{
				Kind: ir.StmtIf,
				Cond: &ir.Expr{Kind: ir.ExprNameRef, Type: types.Bool, Name: "done"},
				Then: []ir.Stmt{{Kind: ir.StmtReturn}},
			},
		},
	}

	prog.Config = &ir.ConfigurationDef{
		Name: "CONF",
		Resources: []ir.ResourceDef{
			{
				Name:       "RES",
				InputSize:  16,
				OutputSize: 16,
				Tasks: []ir.TaskConfig{
					{Name: "FAST", Interval: 10 * time.Millisecond, Priority: 1, Programs: []string{"MAIN"}},
				},
				ProgramAssigns: []ir.ProgramAssignment{
					{ProgramName: "MAIN", InstanceName: "MAIN", TaskName: "FAST"},
				},
			},
		},
	}

	return prog
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	prog := newTestProgram(t)
	addr, err := ioimage.ParseAddress("%IX0.0")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	bindings := []ioimage.Binding{
		{Address: addr, Type: types.Bool, Ref: storage.ValueRef{Location: storage.LocGlobal, Name: "done"}},
	}

	data, err := Encode(&Module{Program: prog, Bindings: bindings})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data[0:4]) != "STBC" {
		t.Fatalf("expected STBC magic, got %q", data[0:4])
	}

	mod, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, ok := mod.Program.Programs["MAIN"]
	if !ok {
		t.Fatalf("decoded program missing MAIN")
	}
	if len(got.Vars) != 2 {
		t.Fatalf("expected 2 vars, got %d", len(got.Vars))
	}
	if got.Vars[0].Name != "counter" || got.Vars[0].Type != types.Dint {
		t.Fatalf("unexpected first var: %+v", got.Vars[0])
	}
	if got.Vars[1].Initializer == nil || got.Vars[1].Initializer.Lit.B != false {
		t.Fatalf("expected done's initializer to round-trip as FALSE, got %+v", got.Vars[1].Initializer)
	}
	if len(got.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(got.Body))
	}
	if got.Body[0].Kind != ir.StmtAssign || got.Body[0].Value.Right.Lit.I != 1 {
		t.Fatalf("unexpected first statement: %+v", got.Body[0])
	}
	if got.Body[1].Kind != ir.StmtIf || len(got.Body[1].Then) != 1 {
		t.Fatalf("unexpected second statement: %+v", got.Body[1])
	}

	if mod.Program.Config == nil || mod.Program.Config.Name != "CONF" {
		t.Fatalf("expected configuration CONF, got %+v", mod.Program.Config)
	}
	res := mod.Program.Config.Resources[0]
	if res.Name != "RES" || len(res.Tasks) != 1 || res.Tasks[0].Name != "FAST" {
		t.Fatalf("unexpected resource: %+v", res)
	}
	if res.Tasks[0].Interval != 10*time.Millisecond {
		t.Fatalf("expected 10ms task interval, got %v", res.Tasks[0].Interval)
	}

	if len(mod.Bindings) != 1 || mod.Bindings[0].Address.String() != "%IX0.0" {
		t.Fatalf("unexpected io bindings: %+v", mod.Bindings)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	copy(data, "XXXX")
	_, err := Decode(data)
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
	bcErr, ok := err.(*Error)
	if !ok || bcErr.Kind != ErrInvalidMagic {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	prog := newTestProgram(t)
	data, err := Encode(&Module{Program: prog})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	_, err = Decode(data)
	if err == nil {
		t.Fatalf("expected checksum failure after corruption")
	}
	bcErr, ok := err.(*Error)
	if !ok || bcErr.Kind != ErrInvalidChecksum {
		t.Fatalf("expected ErrInvalidChecksum, got %v", err)
	}
}
