package retain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
	"github.com/trust-automation/trust/internal/storage"
	"github.com/trust-automation/trust/internal/types"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"none": ModeNone, "memory": ModeMemory, "file": ModeFile}
	for s, want := range cases {
		got, err := ParseMode(s)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestParseWatchdogActionAndFaultPolicy(t *testing.T) {
	if a, err := ParseWatchdogAction("safe_stop"); err != nil || a != ActionSafeStop {
		t.Fatalf("unexpected: %v, %v", a, err)
	}
	if _, err := ParseWatchdogAction("bogus"); err == nil {
		t.Fatalf("expected error")
	}
	if p, err := ParseFaultPolicy("safe_state"); err != nil || p != FaultSafeState {
		t.Fatalf("unexpected: %v, %v", p, err)
	}
	if _, err := ParseFaultPolicy("bogus"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	reg := types.NewRegistry()
	vars := storage.NewOrderedMap()
	vars.Set("SessionId", storage.Int(types.Dint, 7))
	vars.Set("Armed", storage.Bool(types.Bool, true))
	fields := storage.NewOrderedMap()
	fields.Set("X", storage.Int(types.Int, 1))
	vars.Set("Point", storage.Struct(reg.RegisterStruct("POINT", nil), fields))

	data, err := EncodeSnapshot(vars, reg)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	decoded, warnings, err := DecodeSnapshot(data, reg)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	sid, ok := decoded.Get("SessionId")
	if !ok || sid.I != 7 {
		t.Fatalf("expected SessionId=7, got %+v, %v", sid, ok)
	}
	armed, ok := decoded.Get("Armed")
	if !ok || !armed.B {
		t.Fatalf("expected Armed=true, got %+v, %v", armed, ok)
	}
	point, ok := decoded.Get("Point")
	if !ok || point.St == nil {
		t.Fatalf("expected Point struct, got %+v, %v", point, ok)
	}
	x, _ := point.St.Get("X")
	if x.I != 1 {
		t.Fatalf("expected Point.X=1, got %d", x.I)
	}
}

func TestSnapshotWarnsOnUnknownType(t *testing.T) {
	producer := types.NewRegistry()
	vars := storage.NewOrderedMap()
	vars.Set("Ghost", storage.Struct(producer.RegisterStruct("GHOST_TYPE", nil), storage.NewOrderedMap()))

	data, err := EncodeSnapshot(vars, producer)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	consumer := types.NewRegistry() // never registers GHOST_TYPE
	_, warnings, err := DecodeSnapshot(data, consumer)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one schema-mismatch warning, got %v", warnings)
	}
}

func TestManagerFileModeWarmAndCold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retain.bin")
	reg := types.NewRegistry()

	s1 := storage.NewVariableStorage()
	s1.Retain.Set("SessionId", storage.Int(types.Dint, 7))
	mgr1, err := NewManager(s1, reg, ModeFile, path, 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr1.SnapshotNow(); err != nil {
		t.Fatalf("SnapshotNow: %v", err)
	}

	// Warm restart: fresh storage, same process, loads the persisted file.
	s2 := storage.NewVariableStorage()
	mgr2, err := NewManager(s2, reg, ModeFile, path, 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := s2.Retain.Get("SessionId")
	if !ok || v.I != 7 {
		t.Fatalf("expected warm restart to restore SessionId=7, got %+v, %v", v, ok)
	}

	// Cold restart: ResetCold clears storage and removes the snapshot.
	if err := mgr2.ResetCold(); err != nil {
		t.Fatalf("ResetCold: %v", err)
	}
	if s2.Retain.Len() != 0 {
		t.Fatalf("expected retain cleared after cold restart")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected snapshot file removed after cold restart")
	}
}

func TestManagerModeFileRequiresPath(t *testing.T) {
	s := storage.NewVariableStorage()
	reg := types.NewRegistry()
	if _, err := NewManager(s, reg, ModeFile, "", 0); err == nil {
		t.Fatalf("expected error for mode=file with empty path")
	}
}

func TestWatchdogOverrunAndTrip(t *testing.T) {
	wd := NewWatchdog(WatchdogPolicy{Enabled: true, Timeout: 10 * time.Millisecond, Action: ActionSafeStop})
	start := time.Now()
	wd.Feed(start)
	if wd.Overrun(start.Add(5 * time.Millisecond)) {
		t.Fatalf("did not expect overrun before timeout")
	}
	if !wd.Overrun(start.Add(20 * time.Millisecond)) {
		t.Fatalf("expected overrun after timeout")
	}

	img := ioimage.NewImage(1, 1, 0)
	addr, err := ioimage.ParseAddress("%QX0.0")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	halt, err := wd.Trip(img, []ioimage.SafeStateEntry{{Address: addr, Value: 1}}, nil)
	if err != nil {
		t.Fatalf("Trip: %v", err)
	}
	if !halt {
		t.Fatalf("expected ActionSafeStop to request a halt")
	}
}

func TestWatchdogDisabledNeverOverruns(t *testing.T) {
	wd := NewWatchdog(WatchdogPolicy{Enabled: false, Timeout: time.Millisecond})
	wd.Feed(time.Now())
	if wd.Overrun(time.Now().Add(time.Hour)) {
		t.Fatalf("expected a disabled watchdog to never report an overrun")
	}
}
