package control

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/trust-automation/trust/internal/eval"
	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/storage"
)

// PauseGate is the quiescent-point gate (§5): the driving cycle loop calls
// BeforeCycle once per tick, which blocks while paused, and AfterCycle
// right after RunCycle returns, which re-pauses after a one-shot step.
// Control commands never interrupt a cycle in flight — pause only takes
// effect at the next cycle boundary, matching §5's "no preemption... inside
// a statement" and the fact this evaluator has no per-statement debug
// hook.
type PauseGate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	oneShot  bool
	cycle    int64
	lastStop *StopReason
	history  []StopReason
}

// NewPauseGate creates a gate that starts running (not paused).
func NewPauseGate() *PauseGate {
	g := &PauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// BeforeCycle records the cycle number about to run and blocks while
// paused.
func (g *PauseGate) BeforeCycle(cycle int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cycle = cycle
	for g.paused {
		g.cond.Wait()
	}
}

// AfterCycle re-pauses if a one-shot step was requested for this cycle.
func (g *PauseGate) AfterCycle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.oneShot {
		g.oneShot = false
		g.setPausedLocked("step")
	}
}

func (g *PauseGate) setPausedLocked(reason string) {
	g.paused = true
	stop := StopReason{Reason: reason, Cycle: g.cycle}
	g.lastStop = &stop
	g.history = append(g.history, stop)
	if len(g.history) > 64 {
		g.history = g.history[len(g.history)-64:]
	}
}

// Pause requests a pause effective at the next cycle boundary.
func (g *PauseGate) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.setPausedLocked("pause")
	}
	return nil
}

// Resume releases a paused gate.
func (g *PauseGate) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = false
	g.oneShot = false
	g.cond.Broadcast()
	return nil
}

// Step runs exactly one more cycle, then pauses again. step_in/step_over/
// step_out all resolve to this cycle-boundary granularity (see the
// package doc's grounding note): the evaluator exposes no per-statement
// resumption point to step more finely than that.
func (g *PauseGate) Step() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.oneShot = true
	g.paused = false
	g.cond.Broadcast()
	return nil
}

func (g *PauseGate) State() DebugState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return DebugState{Paused: g.paused, LastStop: g.lastStop}
}

func (g *PauseGate) Stops() []StopReason {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]StopReason, len(g.history))
	copy(out, g.history)
	return out
}

// variableHandle is one allocation behind a debug.variables reference,
// mirroring the teacher's VariableHandle enum (trust-debug's
// adapter/variables/list.rs) but scoped to what this runtime model
// exposes: locals, one instance, globals, retain, one struct, one array.
type variableHandle struct {
	kind       string
	frameId    int
	instanceId storage.InstanceId
	structVal  *storage.OrderedMap
	arrayVal   []storage.Value
}

// RuntimeController implements Controller against one resource's
// Evaluator, I/O image, and bindings. It holds no goroutine of its own:
// every mutation (Pause/Resume/Step) only arms PauseGate, which the
// driving loop observes at the next cycle boundary.
type RuntimeController struct {
	Eval     *eval.Evaluator
	Image    *ioimage.Image
	Bindings []ioimage.Binding
	Gate     *PauseGate

	handlesMu  sync.Mutex
	handles    map[int]variableHandle
	nextHandle int

	bpMu        sync.Mutex
	breakpoints map[string]map[int]bool
}

// NewRuntimeController wires a controller to one evaluator/image/binding
// set, with its own PauseGate.
func NewRuntimeController(ev *eval.Evaluator, img *ioimage.Image, bindings []ioimage.Binding) *RuntimeController {
	return &RuntimeController{
		Eval:        ev,
		Image:       img,
		Bindings:    bindings,
		Gate:        NewPauseGate(),
		handles:     make(map[int]variableHandle),
		nextHandle:  1,
		breakpoints: make(map[string]map[int]bool),
	}
}

func (c *RuntimeController) allocHandle(h variableHandle) int {
	c.handlesMu.Lock()
	defer c.handlesMu.Unlock()
	id := c.nextHandle
	c.nextHandle++
	c.handles[id] = h
	return id
}

func (c *RuntimeController) State() DebugState   { return c.Gate.State() }
func (c *RuntimeController) Stops() []StopReason { return c.Gate.Stops() }
func (c *RuntimeController) Pause() error        { return c.Gate.Pause() }
func (c *RuntimeController) Resume() error       { return c.Gate.Resume() }
func (c *RuntimeController) StepIn() error       { return c.Gate.Step() }
func (c *RuntimeController) StepOver() error     { return c.Gate.Step() }
func (c *RuntimeController) StepOut() error      { return c.Gate.Step() }

// Stack returns the active call stack, innermost first (§6.4 debug.stack).
func (c *RuntimeController) Stack() []StackFrame {
	frames := c.Eval.Storage.Frames()
	out := make([]StackFrame, len(frames))
	for i, f := range frames {
		out[i] = StackFrame{Id: f.Id, Name: f.Owner}
	}
	return out
}

// Scopes lists the variable groups visible at frameId (§6.4 debug.scopes).
func (c *RuntimeController) Scopes(frameId int) ([]Scope, error) {
	frame := c.Eval.Storage.Frame(frameId)
	if frame == nil {
		return nil, fmt.Errorf("control: no active frame %d", frameId)
	}
	scopes := []Scope{
		{Name: "Locals", VariablesReference: c.allocHandle(variableHandle{kind: "locals", frameId: frameId})},
	}
	if frame.InstanceId != nil {
		scopes = append(scopes, Scope{
			Name:               "Instance",
			VariablesReference: c.allocHandle(variableHandle{kind: "instance", instanceId: *frame.InstanceId}),
		})
	}
	scopes = append(scopes,
		Scope{Name: "Globals", VariablesReference: c.allocHandle(variableHandle{kind: "globals"})},
		Scope{Name: "Retain", VariablesReference: c.allocHandle(variableHandle{kind: "retain"})},
	)
	return scopes, nil
}

// Variables resolves one debug.variables reference into its member
// variables.
func (c *RuntimeController) Variables(ref int) ([]Variable, error) {
	c.handlesMu.Lock()
	h, ok := c.handles[ref]
	c.handlesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("control: unknown variables_reference %d", ref)
	}
	switch h.kind {
	case "locals":
		frame := c.Eval.Storage.Frame(h.frameId)
		if frame == nil {
			return nil, fmt.Errorf("control: frame %d no longer active", h.frameId)
		}
		return c.variablesFromMap(frame.Variables), nil
	case "instance":
		inst, ok := c.Eval.Storage.Instances[h.instanceId]
		if !ok {
			return nil, fmt.Errorf("control: instance %d no longer exists", h.instanceId)
		}
		return c.variablesFromMap(inst.Variables), nil
	case "globals":
		return c.variablesFromMap(c.Eval.Storage.Globals), nil
	case "retain":
		return c.variablesFromMap(c.Eval.Storage.Retain), nil
	case "struct":
		return c.variablesFromMap(h.structVal), nil
	case "array":
		out := make([]Variable, len(h.arrayVal))
		for i, v := range h.arrayVal {
			out[i] = c.variableFromValue(fmt.Sprintf("[%d]", i), v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("control: unknown variable handle kind %q", h.kind)
	}
}

func (c *RuntimeController) variablesFromMap(m *storage.OrderedMap) []Variable {
	keys := m.Keys()
	out := make([]Variable, 0, len(keys))
	for _, k := range keys {
		v, _ := m.Get(k)
		out = append(out, c.variableFromValue(k, v))
	}
	return out
}

func (c *RuntimeController) variableFromValue(name string, v storage.Value) Variable {
	ref := 0
	switch v.Kind {
	case storage.KindStruct:
		ref = c.allocHandle(variableHandle{kind: "struct", structVal: v.St})
	case storage.KindArray:
		ref = c.allocHandle(variableHandle{kind: "array", arrayVal: v.Elem})
	}
	return Variable{
		Name:               name,
		Value:              v.String(),
		Type:               c.Eval.Program.Types.TypeName(v.Type),
		VariablesReference: ref,
	}
}

// Evaluate resolves a dotted variable path against frameId's locals, its
// owning instance, globals, and retain, in that order, then descends
// struct fields by name. This does not run the full ST expression
// evaluator (literals, operators, calls) — only variable-path lookups,
// since bringing the parser/lowerer into a live debug session is out of
// this endpoint's scope.
func (c *RuntimeController) Evaluate(expr string, frameId int) (Variable, error) {
	segs := strings.Split(strings.TrimSpace(expr), ".")
	if len(segs) == 0 || segs[0] == "" {
		return Variable{}, fmt.Errorf("control: empty expression")
	}

	var v storage.Value
	var found bool
	if frame := c.Eval.Storage.Frame(frameId); frame != nil {
		if val, ok := frame.Variables.Get(segs[0]); ok {
			v, found = val, true
		} else if frame.InstanceId != nil {
			if inst, ok := c.Eval.Storage.Instances[*frame.InstanceId]; ok {
				if val, ok := inst.Variables.Get(segs[0]); ok {
					v, found = val, true
				}
			}
		}
	}
	if !found {
		if val, ok := c.Eval.Storage.Globals.Get(segs[0]); ok {
			v, found = val, true
		}
	}
	if !found {
		if val, ok := c.Eval.Storage.Retain.Get(segs[0]); ok {
			v, found = val, true
		}
	}
	if !found {
		return Variable{}, fmt.Errorf("control: unknown variable %q", segs[0])
	}

	for _, field := range segs[1:] {
		if v.Kind != storage.KindStruct {
			return Variable{}, fmt.Errorf("control: %q is not a structured value", field)
		}
		next, ok := v.St.Get(field)
		if !ok {
			return Variable{}, fmt.Errorf("control: no field %q", field)
		}
		v = next
	}
	return c.variableFromValue(expr, v), nil
}

// SetBreakpoints records requested lines for source and reports them all
// resolved. There is no source-line→bytecode map at this layer (the
// evaluator walks the lowered ir.Stmt tree, not a line-addressed
// instruction stream), so "resolved" here means "recorded", not "verified
// against an executable line" — a debug adapter layered on top of this
// endpoint is expected to do that verification itself from the original
// syntax tree.
func (c *RuntimeController) SetBreakpoints(source string, lines []int) ([]BreakpointLocation, error) {
	c.bpMu.Lock()
	defer c.bpMu.Unlock()
	set := make(map[int]bool, len(lines))
	for _, l := range lines {
		set[l] = true
	}
	c.breakpoints[source] = set
	out := make([]BreakpointLocation, len(lines))
	for i, l := range lines {
		out[i] = BreakpointLocation{Line: l}
	}
	return out, nil
}

func (c *RuntimeController) ClearBreakpoints(source string) error {
	c.bpMu.Lock()
	defer c.bpMu.Unlock()
	delete(c.breakpoints, source)
	return nil
}

func (c *RuntimeController) BreakpointLocations(source string, line int) []BreakpointLocation {
	c.bpMu.Lock()
	defer c.bpMu.Unlock()
	if set, ok := c.breakpoints[source]; ok && set[line] {
		return []BreakpointLocation{{Line: line}}
	}
	return nil
}

// IoRead returns the current value of one I/O address, or every bound
// address when address is empty.
func (c *RuntimeController) IoRead(address string) ([]IoEntry, error) {
	if address == "" {
		out := make([]IoEntry, 0, len(c.Bindings))
		for _, b := range c.Bindings {
			entry, err := c.readBinding(b)
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
		return out, nil
	}
	addr, err := ioimage.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("control: invalid I/O address: %w", err)
	}
	entry, err := c.readAddress(addr)
	if err != nil {
		return nil, err
	}
	return []IoEntry{entry}, nil
}

func (c *RuntimeController) readBinding(b ioimage.Binding) (IoEntry, error) {
	return c.readAddress(b.Address)
}

func (c *RuntimeController) readAddress(addr ioimage.Address) (IoEntry, error) {
	if addr.Size == ioimage.SizeBit {
		v, err := c.Image.ReadBit(addr)
		if err != nil {
			return IoEntry{}, err
		}
		return IoEntry{Address: addr.String(), Value: boolLiteral(v)}, nil
	}
	v, err := c.Image.ReadWindow(addr)
	if err != nil {
		return IoEntry{}, err
	}
	return IoEntry{Address: addr.String(), Value: strconv.FormatUint(v, 10)}, nil
}

// IoWrite writes one literal value to an input address (§6.4 io.write);
// only the input area is writable from the control endpoint, matching the
// adapter's own `only input addresses can be written` rule — writing
// outputs or memory from the debug endpoint would race the next cycle's
// own output/memory writes.
func (c *RuntimeController) IoWrite(address, value string) error {
	addr, err := ioimage.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("control: invalid I/O address: %w", err)
	}
	if addr.Area != ioimage.AreaInput {
		return fmt.Errorf("control: only input addresses can be written")
	}
	if addr.Size == ioimage.SizeBit {
		b, err := parseBoolLiteral(value)
		if err != nil {
			return err
		}
		return c.Image.WriteBit(addr, b)
	}
	n, err := parseUintLiteral(value)
	if err != nil {
		return err
	}
	return c.Image.WriteWindow(addr, n)
}

func boolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func parseBoolLiteral(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE", "1":
		return true, nil
	case "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("control: bit inputs accept TRUE/FALSE or 0/1, got %q", s)
	}
}

func parseUintLiteral(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(trimmed, "0x"); ok {
		return strconv.ParseUint(hex, 16, 64)
	}
	if hex, ok := strings.CutPrefix(trimmed, "0X"); ok {
		return strconv.ParseUint(hex, 16, 64)
	}
	return strconv.ParseUint(trimmed, 10, 64)
}
