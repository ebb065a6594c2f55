package storage

import (
	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
)

// T returns the tracer this package logs to: the shared gtrace.SyntaxTracer.
func T() tracing.Trace {
	return gtrace.SyntaxTracer
}

// LocalFrame is one activation record on the evaluator's call stack,
// generalizing the teacher's runtime.DynamicMemoryFrame (Name/Scope/
// SymbolTable/Parent) from a scope-backed symbol table to a Value-backed
// variable map plus an optional return slot and owning instance.
type LocalFrame struct {
	Id         int
	Owner      string // POU/method name owning this frame, for debugging
	Variables  *OrderedMap
	ReturnValue *Value
	InstanceId *InstanceId
}

// InstanceData is the storage for one FB/Class instance.
type InstanceData struct {
	TypeName  string
	Variables *OrderedMap
	Parent    *InstanceId // base-class instance, if any
}

// VariableStorage owns every storage area the runtime model names (§3.3):
// globals, retain, a stack of local frames, and a map of instances.
type VariableStorage struct {
	Globals   *OrderedMap
	Retain    *OrderedMap
	frames    []*LocalFrame
	nextFrame int
	Instances map[InstanceId]*InstanceData
	nextInst  InstanceId
}

// NewVariableStorage creates empty storage areas.
func NewVariableStorage() *VariableStorage {
	return &VariableStorage{
		Globals:   NewOrderedMap(),
		Retain:    NewOrderedMap(),
		Instances: make(map[InstanceId]*InstanceData),
		nextInst:  1,
	}
}

// PushFrame creates and pushes a new LocalFrame. Invariant (i): every pushed
// frame must be popped by the evaluator on every code path, including
// early RETURN — callers use defer PopFrame() to guarantee this.
func (s *VariableStorage) PushFrame(owner string) *LocalFrame {
	f := &LocalFrame{Id: s.nextFrame, Owner: owner, Variables: NewOrderedMap()}
	s.nextFrame++
	s.frames = append(s.frames, f)
	T().P("frame", owner).Debugf("pushed frame %d", f.Id)
	return f
}

// PopFrame pops the most-recently-pushed frame.
func (s *VariableStorage) PopFrame() *LocalFrame {
	if len(s.frames) == 0 {
		panic("attempt to pop local frame from empty frame stack")
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	T().Debugf("popped frame %d [%s]", f.Id, f.Owner)
	return f
}

// Frame returns the frame with the given id, or nil.
func (s *VariableStorage) Frame(id int) *LocalFrame {
	for _, f := range s.frames {
		if f.Id == id {
			return f
		}
	}
	return nil
}

// CurrentFrame returns the top-of-stack frame, or nil if none is active.
func (s *VariableStorage) CurrentFrame() *LocalFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Frames returns the active call stack, innermost (top-of-stack) first —
// used by control/debug inspection to render a stack trace (§6.4
// debug.stack) without exposing the frame slice itself.
func (s *VariableStorage) Frames() []*LocalFrame {
	out := make([]*LocalFrame, len(s.frames))
	for i, f := range s.frames {
		out[len(s.frames)-1-i] = f
	}
	return out
}

// NewInstance allocates storage for a new FB/Class instance.
func (s *VariableStorage) NewInstance(typeName string, parent *InstanceId) InstanceId {
	id := s.nextInst
	s.nextInst++
	s.Instances[id] = &InstanceData{TypeName: typeName, Variables: NewOrderedMap(), Parent: parent}
	return id
}

// ResetRetainCold clears all retain values (cold restart, invariant (ii)).
func (s *VariableStorage) ResetRetainCold() {
	s.Retain = NewOrderedMap()
}

// CloneRetain returns a deep copy of the retain area, safe to persist
// without observing concurrent mutation (§5 retain persistence ordering).
func (s *VariableStorage) CloneRetain() *OrderedMap {
	return s.Retain.Clone()
}
