package types

import "testing"

func TestBuiltinIdsStable(t *testing.T) {
	r1 := NewRegistry()
	r2 := NewRegistry()
	id1, ok := r1.Lookup("INT")
	if ok {
		t.Fatalf("INT should not be a user type")
	}
	bid, ok := FromBuiltinName("INT")
	if !ok || bid != Int {
		t.Fatalf("expected Int builtin id, got %v ok=%v", bid, ok)
	}
	if _, ok := r1.Get(Int); !ok {
		t.Fatalf("registry 1 missing builtin INT")
	}
	if _, ok := r2.Get(Int); !ok {
		t.Fatalf("registry 2 missing builtin INT")
	}
	_ = id1
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	id1 := r.RegisterStruct("POINT", []StructField{{Name: "X", Type: Int}, {Name: "Y", Type: Int}})
	id2 := r.RegisterStruct("POINT", []StructField{{Name: "X", Type: Int}, {Name: "Y", Type: Int}})
	if id1 != id2 {
		t.Fatalf("expected idempotent registration, got %v and %v", id1, id2)
	}
}

func TestAliasChainResolution(t *testing.T) {
	r := NewRegistry()
	a := r.RegisterAlias("MyInt", Int)
	b := r.RegisterAlias("MyInt2", a)
	if got := r.ResolveAlias(b); got != Int {
		t.Fatalf("expected alias chain to resolve to Int, got %v", got)
	}
}

func TestSelfAliasTerminates(t *testing.T) {
	r := NewRegistry()
	key := "named:selfy:5"
	id := r.internKey(key, func() Type { return Type{Kind: KindAlias, Name: "Selfy"} })
	ty, _ := r.Get(id)
	ty.AliasTarget = id
	r.byId[id] = ty
	done := make(chan TypeId, 1)
	go func() { done <- r.ResolveAlias(id) }()
	select {
	case got := <-done:
		if got != id {
			t.Fatalf("expected self-alias to resolve to itself, got %v", got)
		}
	}
}

func TestArrayWildcardDimension(t *testing.T) {
	d := ArrayDim{Lower: 0, Upper: WildcardUpper}
	if !d.IsWildcard() {
		t.Fatalf("expected wildcard dimension")
	}
	if (ArrayDim{Lower: 1, Upper: 10}).IsWildcard() {
		t.Fatalf("concrete dimension should not be wildcard")
	}
}

func TestSatisfiesAnyInt(t *testing.T) {
	r := NewRegistry()
	if !r.Satisfies(AnyInt, Dint) {
		t.Fatalf("DINT should satisfy ANY_INT")
	}
	if r.Satisfies(AnyInt, Real) {
		t.Fatalf("REAL should not satisfy ANY_INT")
	}
	if !r.Satisfies(AnyNum, Real) {
		t.Fatalf("REAL should satisfy ANY_NUM")
	}
	alias := r.RegisterAlias("Counter", Dint)
	if !r.Satisfies(AnyInt, alias) {
		t.Fatalf("alias of DINT should satisfy ANY_INT")
	}
}

func TestStringDistinctLengthsDistinctIds(t *testing.T) {
	r := NewRegistry()
	s10 := r.RegisterStringWithLength(10, true, false)
	s20 := r.RegisterStringWithLength(20, true, false)
	if s10 == s20 {
		t.Fatalf("distinct max lengths must be distinct TypeIds")
	}
}
