package stdlib

import (
	"fmt"
	"time"

	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

// Standard function-block instances keep their edge/time state in the
// instance's field map under these well-known internal names, grounded on
// original_source/crates/trust-runtime/src/stdlib/fbs/{counters,time}.rs.
const (
	fieldPrevCU  = "__prev_cu"
	fieldPrevCD  = "__prev_cd"
	fieldPrevIn  = "__prev_in"
	fieldPrevClk = "__prev_clk"
	fieldTimerET = "__et_start" // wall-clock instant the current ET interval began
	fieldTimerQ  = "__q_latched"
)

func getField(fields *storage.OrderedMap, name string) (storage.Value, bool) {
	return fields.Get(name)
}

func setField(fields *storage.OrderedMap, name string, v storage.Value) {
	fields.Set(name, v)
}

func boolOf(fields *storage.OrderedMap, name string) bool {
	v, ok := getField(fields, name)
	return ok && v.Kind == storage.KindBool && v.B
}

// risingEdge reports whether cur is true and the stored previous value for
// name was false, then stores cur as the new previous value.
func risingEdge(fields *storage.OrderedMap, name string, cur bool) bool {
	prev := boolOf(fields, name)
	setField(fields, name, storage.Bool(types.Bool, cur))
	return cur && !prev
}

// RunRTrig implements R_TRIG: Q is TRUE for exactly one cycle on CLK's
// rising edge.
func RunRTrig(fields *storage.OrderedMap, clk bool) bool {
	return risingEdge(fields, fieldPrevClk, clk)
}

// RunFTrig implements F_TRIG: Q is TRUE for exactly one cycle on CLK's
// falling edge.
func RunFTrig(fields *storage.OrderedMap, clk bool) bool {
	prev := boolOf(fields, fieldPrevClk)
	setField(fields, fieldPrevClk, storage.Bool(types.Bool, clk))
	return !clk && prev
}

// RunRS implements RS (dominant reset): Q1 := NOT R1 AND (S OR Q1).
func RunRS(q1 bool, s, r1 bool) bool {
	if r1 {
		return false
	}
	return s || q1
}

// RunSR implements SR (dominant set): Q1 := S1 OR (NOT R AND Q1).
func RunSR(q1 bool, s1, r bool) bool {
	if s1 {
		return true
	}
	return !r && q1
}

// RunCTU implements CTU: CV counts up on each rising edge of CU, clamped at
// maxCV (maxCVFor gives the signed maximum of the counter's width, and
// 2^62-1 for 64-bit types); Q := CV >= PV. RESET forces CV to 0.
func RunCTU(fields *storage.OrderedMap, cu bool, reset bool, pv int64, cvType types.TypeId, maxCV int64) (q bool, cv int64) {
	cvVal, _ := getField(fields, "CV")
	cv = cvVal.I
	if reset {
		cv = 0
	} else if risingEdge(fields, fieldPrevCU, cu) && cv < maxCV {
		cv++
	}
	setField(fields, "CV", storage.Int(cvType, cv))
	return cv >= pv, cv
}

// RunCTD implements CTD: CV counts down on each rising edge of CD, clamped
// at 0; Q := CV <= 0. LOAD reloads CV from PV.
func RunCTD(fields *storage.OrderedMap, cd bool, load bool, pv int64, cvType types.TypeId) (q bool, cv int64) {
	cvVal, _ := getField(fields, "CV")
	cv = cvVal.I
	if load {
		cv = pv
	} else if risingEdge(fields, fieldPrevCD, cd) && cv > 0 {
		cv--
	}
	setField(fields, "CV", storage.Int(cvType, cv))
	return cv <= 0, cv
}

// RunCTUD implements CTUD. A simultaneous rising edge on CU and CD leaves CV
// unchanged, per the up/down counter's §4.7 simultaneity rule.
func RunCTUD(fields *storage.OrderedMap, cu, cd, reset, load bool, pv int64, cvType types.TypeId, maxCV int64) (qu, qd bool, cv int64) {
	cvVal, _ := getField(fields, "CV")
	cv = cvVal.I

	cuEdge := risingEdge(fields, fieldPrevCU, cu)
	cdEdge := risingEdge(fields, fieldPrevCD, cd)

	switch {
	case reset:
		cv = 0
	case load:
		cv = pv
	case cuEdge && cdEdge:
		// simultaneous edges: CV unchanged
	case cuEdge:
		if cv < maxCV {
			cv++
		}
	case cdEdge:
		if cv > 0 {
			cv--
		}
	}
	setField(fields, "CV", storage.Int(cvType, cv))
	return cv >= pv, cv <= 0, cv
}

// RunTP implements TP (pulse timer): Q goes TRUE on IN's rising edge and
// stays TRUE for PT regardless of IN afterward, then drops on its own.
func RunTP(fields *storage.OrderedMap, in bool, pt time.Duration, now time.Time) (q bool, et time.Duration) {
	edge := risingEdge(fields, fieldPrevIn, in)
	latched := boolOf(fields, fieldTimerQ)

	if edge && !latched {
		setField(fields, fieldTimerET, storage.DateTime(types.Time, now))
		setField(fields, fieldTimerQ, storage.Bool(types.Bool, true))
		latched = true
	}
	if !latched {
		return false, 0
	}
	startVal, _ := getField(fields, fieldTimerET)
	elapsed := now.Sub(startVal.T)
	if elapsed >= pt {
		setField(fields, fieldTimerQ, storage.Bool(types.Bool, false))
		return false, pt
	}
	return true, elapsed
}

// RunTON implements TON (on-delay timer): Q goes TRUE once IN has been held
// TRUE continuously for PT; Q resets as soon as IN drops.
func RunTON(fields *storage.OrderedMap, in bool, pt time.Duration, now time.Time) (q bool, et time.Duration) {
	if !in {
		setField(fields, fieldPrevIn, storage.Bool(types.Bool, false))
		return false, 0
	}
	edge := risingEdge(fields, fieldPrevIn, in)
	if edge {
		setField(fields, fieldTimerET, storage.DateTime(types.Time, now))
	}
	startVal, ok := getField(fields, fieldTimerET)
	if !ok {
		setField(fields, fieldTimerET, storage.DateTime(types.Time, now))
		startVal = storage.DateTime(types.Time, now)
	}
	elapsed := now.Sub(startVal.T)
	if elapsed >= pt {
		return true, pt
	}
	return false, elapsed
}

// RunTOF implements TOF (off-delay timer): Q drops to FALSE only after IN
// has been held FALSE continuously for PT; Q tracks IN TRUE immediately.
func RunTOF(fields *storage.OrderedMap, in bool, pt time.Duration, now time.Time) (q bool, et time.Duration) {
	if in {
		setField(fields, fieldPrevIn, storage.Bool(types.Bool, true))
		return true, 0
	}
	fallEdge := boolOf(fields, fieldPrevIn)
	setField(fields, fieldPrevIn, storage.Bool(types.Bool, false))
	if fallEdge {
		setField(fields, fieldTimerET, storage.DateTime(types.Time, now))
	}
	startVal, ok := getField(fields, fieldTimerET)
	if !ok {
		return false, 0
	}
	elapsed := now.Sub(startVal.T)
	if elapsed >= pt {
		return false, pt
	}
	return true, elapsed
}

// RunStandardFB dispatches one scan of a standard function-block instance by
// uppercase name (stripped of any _LTIME suffix, which only widens the PT/ET
// type, not the timing logic). fields is the instance's variable map;
// inputs holds IN-direction parameter values keyed by formal name.
func RunStandardFB(reg *types.Registry, name string, fields *storage.OrderedMap, inputs map[string]storage.Value, now time.Time) error {
	get := func(n string) storage.Value { return inputs[n] }
	switch baseName(name) {
	case "R_TRIG":
		setField(fields, "Q", storage.Bool(types.Bool, RunRTrig(fields, get("CLK").B)))
	case "F_TRIG":
		setField(fields, "Q", storage.Bool(types.Bool, RunFTrig(fields, get("CLK").B)))
	case "RS":
		q1Val, _ := getField(fields, "Q1")
		q1 := RunRS(q1Val.B, get("S").B, get("R1").B)
		setField(fields, "Q1", storage.Bool(types.Bool, q1))
	case "SR":
		q1Val, _ := getField(fields, "Q1")
		q1 := RunSR(q1Val.B, get("S1").B, get("R").B)
		setField(fields, "Q1", storage.Bool(types.Bool, q1))
	case "CTU":
		cvType := cvTypeOf(get("PV"))
		q, _ := RunCTU(fields, get("CU").B, get("R").B, get("PV").I, cvType, maxCVFor(cvType))
		setField(fields, "Q", storage.Bool(types.Bool, q))
	case "CTD":
		cvType := cvTypeOf(get("PV"))
		q, _ := RunCTD(fields, get("CD").B, get("LD").B, get("PV").I, cvType)
		setField(fields, "Q", storage.Bool(types.Bool, q))
	case "CTUD":
		cvType := cvTypeOf(get("PV"))
		qu, qd, _ := RunCTUD(fields, get("CU").B, get("CD").B, get("R").B, get("LD").B, get("PV").I, cvType, maxCVFor(cvType))
		setField(fields, "QU", storage.Bool(types.Bool, qu))
		setField(fields, "QD", storage.Bool(types.Bool, qd))
	case "TP":
		q, et := RunTP(fields, get("IN").B, get("PT").Dur, now)
		setField(fields, "Q", storage.Bool(types.Bool, q))
		setField(fields, "ET", storage.Duration(get("PT").Type, et))
	case "TON":
		q, et := RunTON(fields, get("IN").B, get("PT").Dur, now)
		setField(fields, "Q", storage.Bool(types.Bool, q))
		setField(fields, "ET", storage.Duration(get("PT").Type, et))
	case "TOF":
		q, et := RunTOF(fields, get("IN").B, get("PT").Dur, now)
		setField(fields, "Q", storage.Bool(types.Bool, q))
		setField(fields, "ET", storage.Duration(get("PT").Type, et))
	default:
		return fmt.Errorf("unknown standard function block %q", name)
	}
	return nil
}

func baseName(name string) string {
	for _, suf := range []string{"_LTIME"} {
		if len(name) > len(suf) && name[len(name)-len(suf):] == suf {
			return name[:len(name)-len(suf)]
		}
	}
	return name
}

func cvTypeOf(pv storage.Value) types.TypeId {
	if pv.Type == types.Unknown {
		return types.Dint
	}
	return pv.Type
}

func maxCVFor(cvType types.TypeId) int64 {
	switch cvType {
	case types.Sint, types.Usint, types.Byte:
		return 1<<7 - 1
	case types.Int, types.Uint, types.Word:
		return 1<<15 - 1
	case types.Lint, types.Ulint, types.Lword:
		return 1<<62 - 1
	default:
		return 1<<31 - 1
	}
}
