package ioimage

import "testing"

func TestParseAddressBit(t *testing.T) {
	a, err := ParseAddress("%IX0.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Area != AreaInput || a.Size != SizeBit || a.Bit != 3 || len(a.Path) != 1 || a.Path[0] != 0 {
		t.Fatalf("unexpected decode: %+v", a)
	}
}

func TestParseAddressWildcard(t *testing.T) {
	a, err := ParseAddress("%Q*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Wildcard || a.Area != AreaOutput {
		t.Fatalf("unexpected decode: %+v", a)
	}
}

func TestParseAddressByte(t *testing.T) {
	a, err := ParseAddress("%MB3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Area != AreaMemory || a.Size != SizeByte || len(a.Path) != 1 || a.Path[0] != 3 {
		t.Fatalf("unexpected decode: %+v", a)
	}
}

func TestReadWriteBit(t *testing.T) {
	img := NewImage(1, 1, 1)
	addr, _ := ParseAddress("%QX0.0")
	if err := img.WriteBit(addr, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := img.ReadBit(addr)
	if err != nil || !v {
		t.Fatalf("expected bit set, got %v err=%v", v, err)
	}
}

func TestReadWriteWordWindow(t *testing.T) {
	img := NewImage(4, 4, 4)
	addr, _ := ParseAddress("%IW0")
	if err := img.WriteWindow(addr, 0x1234); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := img.ReadWindow(addr)
	if err != nil || v != 0x1234 {
		t.Fatalf("expected 0x1234, got %x err=%v", v, err)
	}
}

func TestApplySafeState(t *testing.T) {
	img := NewImage(0, 4, 0)
	qx, _ := ParseAddress("%QX0.1")
	err := img.ApplySafeState([]SafeStateEntry{{Address: qx, Value: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := img.ReadBit(qx)
	if !v {
		t.Fatalf("expected safe-state bit applied")
	}
}

func TestApplySafeStateRejectsNonOutput(t *testing.T) {
	img := NewImage(4, 4, 4)
	ix, _ := ParseAddress("%IX0.0")
	if err := img.ApplySafeState([]SafeStateEntry{{Address: ix}}); err == nil {
		t.Fatalf("expected safe_state on non-output address to be rejected")
	}
}
