package storage

import (
	"testing"

	"github.com/trust-automation/trust/internal/types"
)

func TestFramePushPopOrder(t *testing.T) {
	s := NewVariableStorage()
	f1 := s.PushFrame("Main")
	f2 := s.PushFrame("Helper")
	if s.CurrentFrame().Id != f2.Id {
		t.Fatalf("expected top frame to be the most recently pushed")
	}
	popped := s.PopFrame()
	if popped.Id != f2.Id {
		t.Fatalf("expected to pop Helper frame first")
	}
	if s.CurrentFrame().Id != f1.Id {
		t.Fatalf("expected Main frame to remain after popping Helper")
	}
}

func TestAssignMissingFieldFails(t *testing.T) {
	s := NewVariableStorage()
	s.Globals.Set("Counter", Int(types.Dint, 0))

	ref := ValueRef{Location: LocGlobal, Name: "Counter", Path: []PathElem{Field("NoSuchField")}}
	if err := s.Assign(ref, Int(types.Dint, 1)); err == nil {
		t.Fatalf("expected assignment through missing field path to fail")
	}
}

func TestAssignStructField(t *testing.T) {
	s := NewVariableStorage()
	fields := NewOrderedMap()
	fields.Set("X", Int(types.Int, 1))
	fields.Set("Y", Int(types.Int, 2))
	s.Globals.Set("P", Struct(types.Unknown, fields))

	ref := ValueRef{Location: LocGlobal, Name: "P", Path: []PathElem{Field("X")}}
	if err := s.Assign(ref, Int(types.Int, 42)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := s.Globals.Get("P")
	x, _ := v.St.Get("X")
	if x.I != 42 {
		t.Fatalf("expected X=42, got %d", x.I)
	}
}

func TestCloneRetainIsolatesMutation(t *testing.T) {
	s := NewVariableStorage()
	s.Retain.Set("SessionId", Int(types.Dint, 7))
	clone := s.CloneRetain()
	s.Retain.Set("SessionId", Int(types.Dint, 9))

	cv, _ := clone.Get("SessionId")
	if cv.I != 7 {
		t.Fatalf("expected clone to retain snapshot value 7, got %d", cv.I)
	}
}

func TestResetRetainCold(t *testing.T) {
	s := NewVariableStorage()
	s.Retain.Set("SessionId", Int(types.Dint, 7))
	s.ResetRetainCold()
	if s.Retain.Len() != 0 {
		t.Fatalf("expected retain to be cleared on cold restart")
	}
}
