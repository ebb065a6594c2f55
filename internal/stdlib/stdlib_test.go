package stdlib

import (
	"testing"
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

func TestConvertNarrowsWithTruncation(t *testing.T) {
	reg := types.NewRegistry()
	v := storage.Real(types.Lreal, 300.0)
	out, err := Convert(reg, types.Sint, v, true)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.I != (300 & 0xFF) {
		t.Errorf("expected masked value, got %d", out.I)
	}
}

func TestConvertRoundsTiesToEven(t *testing.T) {
	reg := types.NewRegistry()
	out, err := Convert(reg, types.Dint, storage.Real(types.Lreal, 2.5), false)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out.I != 2 {
		t.Errorf("expected round-ties-to-even(2.5)=2, got %d", out.I)
	}
}

func TestBCDRoundTrip(t *testing.T) {
	bcd, err := IntToBCD(1234)
	if err != nil {
		t.Fatalf("IntToBCD: %v", err)
	}
	back, err := BCDToInt(bcd)
	if err != nil {
		t.Fatalf("BCDToInt: %v", err)
	}
	if back != 1234 {
		t.Errorf("expected 1234, got %d", back)
	}
}

func TestDivisionByZero(t *testing.T) {
	reg := types.NewRegistry()
	_, err := Div(reg, storage.Int(types.Dint, 10), storage.Int(types.Dint, 0))
	if err != ErrDivisionByZero {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMidAndLeftRight(t *testing.T) {
	s, err := Mid("HELLOWORLD", 5, 6)
	if err != nil || s != "WORLD" {
		t.Errorf("MID: got %q, %v", s, err)
	}
	l, _ := Left("HELLO", 3)
	if l != "HEL" {
		t.Errorf("LEFT: got %q", l)
	}
	r, _ := Right("HELLO", 3)
	if r != "LLO" {
		t.Errorf("RIGHT: got %q", r)
	}
}

func TestCTUCountsOnRisingEdgeOnly(t *testing.T) {
	fields := storage.NewOrderedMap()
	fields.Set("CV", storage.Int(types.Dint, 0))

	q, cv := RunCTU(fields, true, false, 3, types.Dint, maxCVFor(types.Dint))
	if cv != 1 || q {
		t.Fatalf("first rising edge: cv=%d q=%v", cv, q)
	}
	// holding CU high must not re-count
	q, cv = RunCTU(fields, true, false, 3, types.Dint, maxCVFor(types.Dint))
	if cv != 1 {
		t.Fatalf("held CU re-counted: cv=%d", cv)
	}
	q, cv = RunCTU(fields, false, false, 3, types.Dint, maxCVFor(types.Dint))
	q, cv = RunCTU(fields, true, false, 3, types.Dint, maxCVFor(types.Dint))
	q, cv = RunCTU(fields, false, false, 3, types.Dint, maxCVFor(types.Dint))
	q, cv = RunCTU(fields, true, false, 3, types.Dint, maxCVFor(types.Dint))
	if cv != 3 || !q {
		t.Fatalf("expected cv=3 q=true, got cv=%d q=%v", cv, q)
	}
	q, cv = RunCTU(fields, false, true, 3, types.Dint, maxCVFor(types.Dint))
	if cv != 0 || q {
		t.Fatalf("reset failed: cv=%d q=%v", cv, q)
	}
}

func TestCTUDSimultaneousEdgeLeavesCVUnchanged(t *testing.T) {
	fields := storage.NewOrderedMap()
	fields.Set("CV", storage.Int(types.Dint, 5))

	_, _, cv := RunCTUD(fields, true, true, false, false, 10, types.Dint, maxCVFor(types.Dint))
	if cv != 5 {
		t.Errorf("expected simultaneous CU/CD edge to leave CV unchanged at 5, got %d", cv)
	}
}

func TestTONRequiresContinuousInput(t *testing.T) {
	fields := storage.NewOrderedMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, _ := RunTON(fields, true, 100*time.Millisecond, base)
	if q {
		t.Fatalf("TON fired immediately")
	}
	q, et := RunTON(fields, true, 100*time.Millisecond, base.Add(150*time.Millisecond))
	if !q || et != 100*time.Millisecond {
		t.Fatalf("TON did not latch after PT: q=%v et=%v", q, et)
	}
	q, _ = RunTON(fields, false, 100*time.Millisecond, base.Add(200*time.Millisecond))
	if q {
		t.Fatalf("TON stayed latched after IN dropped")
	}
}

func TestTOFHoldsUntilPTElapses(t *testing.T) {
	fields := storage.NewOrderedMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, _ := RunTOF(fields, true, 100*time.Millisecond, base)
	if !q {
		t.Fatalf("TOF should track IN=true immediately")
	}
	q, _ = RunTOF(fields, false, 100*time.Millisecond, base.Add(50*time.Millisecond))
	if !q {
		t.Fatalf("TOF dropped before PT elapsed")
	}
	q, _ = RunTOF(fields, false, 100*time.Millisecond, base.Add(150*time.Millisecond))
	if q {
		t.Fatalf("TOF failed to drop after PT elapsed")
	}
}

func TestTPStaysLatchedForFullPulseRegardlessOfIn(t *testing.T) {
	fields := storage.NewOrderedMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, _ := RunTP(fields, true, 100*time.Millisecond, base)
	if !q {
		t.Fatalf("TP should latch on rising edge")
	}
	q, _ = RunTP(fields, false, 100*time.Millisecond, base.Add(50*time.Millisecond))
	if !q {
		t.Fatalf("TP dropped before PT elapsed even though IN fell")
	}
	q, _ = RunTP(fields, false, 100*time.Millisecond, base.Add(150*time.Millisecond))
	if q {
		t.Fatalf("TP failed to drop after PT elapsed")
	}
}

func TestDispatchCallStandardArithmeticAndCompare(t *testing.T) {
	reg := types.NewRegistry()
	out, err := CallStandard(reg, "ADD", []storage.Value{
		storage.Int(types.Dint, 2), storage.Int(types.Dint, 3), storage.Int(types.Dint, 4),
	}, time.Now())
	if err != nil || out.I != 9 {
		t.Fatalf("ADD reduce: out=%v err=%v", out, err)
	}

	gt, err := CallStandard(reg, "GT", []storage.Value{
		storage.Int(types.Dint, 5), storage.Int(types.Dint, 3),
	}, time.Now())
	if err != nil || !gt.B {
		t.Fatalf("GT: out=%v err=%v", gt, err)
	}
}

func TestDispatchConversionPrefixes(t *testing.T) {
	reg := types.NewRegistry()
	out, err := CallStandard(reg, "TO_REAL", []storage.Value{storage.Int(types.Dint, 7)}, time.Now())
	if err != nil || out.F != 7.0 {
		t.Fatalf("TO_REAL: out=%v err=%v", out, err)
	}
	bcd, err := CallStandard(reg, "TO_BCD_DINT", []storage.Value{storage.Int(types.Dint, 99)}, time.Now())
	if err != nil {
		t.Fatalf("TO_BCD_DINT: %v", err)
	}
	back, err := CallStandard(reg, "BCD_TO_DINT", []storage.Value{bcd}, time.Now())
	if err != nil || back.I != 99 {
		t.Fatalf("BCD_TO_DINT round trip: out=%v err=%v", back, err)
	}
}

func TestIsStandardFBAndFunction(t *testing.T) {
	if !IsStandardFB("ton") {
		t.Errorf("expected TON to be a standard FB (case-insensitive)")
	}
	if IsStandardFB("ADD") {
		t.Errorf("ADD is a function, not a function block")
	}
	if !IsStandardFunction("to_dint") {
		t.Errorf("expected TO_DINT to be a standard function")
	}
	if !IsStandardFunction("concat") {
		t.Errorf("expected CONCAT to be a standard function")
	}
}
