package control

import (
	"testing"

	"github.com/trust-automation/trust/internal/eval"
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

func newTestController() (*RuntimeController, *storage.VariableStorage) {
	reg := types.NewRegistry()
	prog := ir.NewProgram(reg)
	store := storage.NewVariableStorage()
	ev := eval.NewEvaluator(store, prog)
	img := ioimage.NewImage(1, 1, 0)
	return NewRuntimeController(ev, img, nil), store
}

func TestParseEndpoint(t *testing.T) {
	if net, addr, err := ParseEndpoint("tcp://127.0.0.1:9000"); err != nil || net != "tcp" || addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected: %v %v %v", net, addr, err)
	}
	if net, addr, err := ParseEndpoint("unix:///tmp/trust.sock"); err != nil || net != "unix" || addr != "/tmp/trust.sock" {
		t.Fatalf("unexpected: %v %v %v", net, addr, err)
	}
	if _, _, err := ParseEndpoint("bogus://x"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestPauseGateStartsRunning(t *testing.T) {
	c, _ := newTestController()
	st := c.State()
	if st.Paused {
		t.Fatalf("expected gate to start running")
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	st = c.State()
	if !st.Paused || st.LastStop == nil || st.LastStop.Reason != "pause" {
		t.Fatalf("expected paused state with reason=pause, got %+v", st)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.State().Paused {
		t.Fatalf("expected gate to resume")
	}
}

func TestPauseGateBeforeCycleBlocksWhilePaused(t *testing.T) {
	c, _ := newTestController()
	c.Pause()
	done := make(chan struct{})
	go func() {
		c.Gate.BeforeCycle(1)
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("expected BeforeCycle to block while paused")
	default:
	}
	c.Resume()
	<-done
}

func TestPauseGateStepRunsExactlyOneCycle(t *testing.T) {
	c, _ := newTestController()
	c.Pause()
	if err := c.StepOver(); err != nil {
		t.Fatalf("StepOver: %v", err)
	}
	c.Gate.BeforeCycle(5)
	c.Gate.AfterCycle()
	st := c.State()
	if !st.Paused || st.LastStop.Reason != "step" || st.LastStop.Cycle != 5 {
		t.Fatalf("expected re-paused at cycle 5 with reason=step, got %+v", st)
	}
}

func TestScopesAndVariables(t *testing.T) {
	c, store := newTestController()
	reg := types.NewRegistry()

	store.Globals.Set("Counter", storage.Int(types.Dint, 42))
	store.Retain.Set("SessionId", storage.Int(types.Dint, 7))

	frame := store.PushFrame("MAIN")
	defer store.PopFrame()
	frame.Variables.Set("Speed", storage.Real(types.Real, 3.5))
	fields := storage.NewOrderedMap()
	fields.Set("X", storage.Int(types.Int, 1))
	frame.Variables.Set("Point", storage.Struct(reg.RegisterStruct("POINT", nil), fields))

	scopes, err := c.Scopes(frame.Id)
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	names := map[string]int{}
	for _, s := range scopes {
		names[s.Name] = s.VariablesReference
	}
	if _, ok := names["Locals"]; !ok {
		t.Fatalf("expected a Locals scope, got %+v", scopes)
	}
	if _, ok := names["Globals"]; !ok {
		t.Fatalf("expected a Globals scope, got %+v", scopes)
	}
	if _, ok := names["Retain"]; !ok {
		t.Fatalf("expected a Retain scope, got %+v", scopes)
	}

	locals, err := c.Variables(names["Locals"])
	if err != nil {
		t.Fatalf("Variables(Locals): %v", err)
	}
	var speedVar, pointVar *Variable
	for i := range locals {
		switch locals[i].Name {
		case "Speed":
			speedVar = &locals[i]
		case "Point":
			pointVar = &locals[i]
		}
	}
	if speedVar == nil || speedVar.Value != "3.5" {
		t.Fatalf("expected Speed=3.5, got %+v", speedVar)
	}
	if pointVar == nil || pointVar.VariablesReference == 0 {
		t.Fatalf("expected Point to carry a struct variables_reference, got %+v", pointVar)
	}

	fieldsOut, err := c.Variables(pointVar.VariablesReference)
	if err != nil {
		t.Fatalf("Variables(Point): %v", err)
	}
	if len(fieldsOut) != 1 || fieldsOut[0].Name != "X" || fieldsOut[0].Value != "1" {
		t.Fatalf("expected Point.X=1, got %+v", fieldsOut)
	}

	globals, err := c.Variables(names["Globals"])
	if err != nil || len(globals) != 1 || globals[0].Value != "42" {
		t.Fatalf("expected Counter=42 in Globals, got %+v, %v", globals, err)
	}
}

func TestStackReturnsInnermostFirst(t *testing.T) {
	c, store := newTestController()
	outer := store.PushFrame("OUTER")
	inner := store.PushFrame("INNER")
	defer store.PopFrame()
	defer store.PopFrame()

	stack := c.Stack()
	if len(stack) != 2 || stack[0].Id != inner.Id || stack[1].Id != outer.Id {
		t.Fatalf("expected [INNER, OUTER], got %+v", stack)
	}
}

func TestEvaluateDottedPath(t *testing.T) {
	c, store := newTestController()
	reg := types.NewRegistry()
	frame := store.PushFrame("MAIN")
	defer store.PopFrame()

	fields := storage.NewOrderedMap()
	fields.Set("X", storage.Int(types.Int, 9))
	frame.Variables.Set("Point", storage.Struct(reg.RegisterStruct("POINT", nil), fields))
	store.Globals.Set("Mode", storage.Bool(types.Bool, true))

	v, err := c.Evaluate("Point.X", frame.Id)
	if err != nil || v.Value != "9" {
		t.Fatalf("Evaluate(Point.X) = %+v, %v", v, err)
	}

	v, err = c.Evaluate("Mode", frame.Id)
	if err != nil || v.Value != "true" {
		t.Fatalf("Evaluate(Mode) = %+v, %v", v, err)
	}

	if _, err := c.Evaluate("DoesNotExist", frame.Id); err == nil {
		t.Fatalf("expected error for unknown variable")
	}
}

func TestBreakpointsRecordedNotEnforced(t *testing.T) {
	c, _ := newTestController()
	resolved, err := c.SetBreakpoints("main.st", []int{3, 7})
	if err != nil || len(resolved) != 2 {
		t.Fatalf("SetBreakpoints: %+v, %v", resolved, err)
	}
	locs := c.BreakpointLocations("main.st", 3)
	if len(locs) != 1 || locs[0].Line != 3 {
		t.Fatalf("expected breakpoint at line 3 resolved, got %+v", locs)
	}
	if locs := c.BreakpointLocations("main.st", 99); len(locs) != 0 {
		t.Fatalf("expected no breakpoint at line 99, got %+v", locs)
	}
	if err := c.ClearBreakpoints("main.st"); err != nil {
		t.Fatalf("ClearBreakpoints: %v", err)
	}
	if locs := c.BreakpointLocations("main.st", 3); len(locs) != 0 {
		t.Fatalf("expected breakpoints cleared, got %+v", locs)
	}
}

func TestIoReadWrite(t *testing.T) {
	reg := types.NewRegistry()
	prog := ir.NewProgram(reg)
	store := storage.NewVariableStorage()
	ev := eval.NewEvaluator(store, prog)
	img := ioimage.NewImage(1, 1, 0)
	bindings := []ioimage.Binding{{Address: mustAddr(t, "%IX0.0"), Type: types.Bool}}
	c := NewRuntimeController(ev, img, bindings)

	if err := c.IoWrite("%IX0.0", "TRUE"); err != nil {
		t.Fatalf("IoWrite: %v", err)
	}
	entries, err := c.IoRead("%IX0.0")
	if err != nil || len(entries) != 1 || entries[0].Value != "TRUE" {
		t.Fatalf("IoRead: %+v, %v", entries, err)
	}

	all, err := c.IoRead("")
	if err != nil || len(all) != 1 {
		t.Fatalf("IoRead(all): %+v, %v", all, err)
	}

	if err := c.IoWrite("%QX0.0", "TRUE"); err == nil {
		t.Fatalf("expected write to an output address to be rejected")
	}
}

func mustAddr(t *testing.T, s string) ioimage.Address {
	t.Helper()
	addr, err := ioimage.ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return addr
}
