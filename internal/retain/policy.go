// Package retain implements retain persistence and the watchdog/fault
// policy layer ([L], §5, §6.2, §9 "Retain file format"): the modes a
// RESOURCE can configure for its RETAIN variables, a self-describing
// snapshot file format for mode=file, and the timeout/action and
// fault/safe-state policies a running resource enforces between cycles.
//
// Mode/action/policy parsing is match-or-error on the exact lowercase value;
// input is neither trimmed nor case-folded.
package retain

import (
	"fmt"
	"time"
)

// Mode is the persistence mode for a resource's retain area (§6.2
// runtime.toml "retain.mode").
type Mode uint8

const (
	// ModeNone disables retain entirely: RETAIN-qualified variables behave
	// like ordinary variables and are reinitialized on every restart.
	ModeNone Mode = iota
	// ModeMemory keeps retain values alive only within the running
	// process; a warm restart (the VariableStorage instance survives)
	// preserves them, a cold restart (a fresh VariableStorage) does not.
	ModeMemory
	// ModeFile additionally persists retain to a snapshot file at Path, so
	// values survive a process restart too.
	ModeFile
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeMemory:
		return "memory"
	case ModeFile:
		return "file"
	default:
		return "invalid"
	}
}

// ParseMode parses a runtime.toml retain.mode value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "none":
		return ModeNone, nil
	case "memory":
		return ModeMemory, nil
	case "file":
		return ModeFile, nil
	default:
		return 0, fmt.Errorf("retain: invalid mode %q, want none|memory|file", s)
	}
}

// WatchdogAction is the action taken when a cycle exceeds its watchdog
// timeout (§6.2 "watchdog.action").
type WatchdogAction uint8

const (
	// ActionNone logs the overrun but takes no corrective action.
	ActionNone WatchdogAction = iota
	// ActionSafeStop applies the configured I/O safe state and halts the
	// resource's tasks.
	ActionSafeStop
	// ActionReset applies the safe state and clears the retain area as a
	// cold restart does; like ActionSafeStop, it requests a halt.
	ActionReset
)

func (a WatchdogAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSafeStop:
		return "safe_stop"
	case ActionReset:
		return "reset"
	default:
		return "invalid"
	}
}

// ParseWatchdogAction parses a runtime.toml watchdog.action value.
func ParseWatchdogAction(s string) (WatchdogAction, error) {
	switch s {
	case "none":
		return ActionNone, nil
	case "safe_stop":
		return ActionSafeStop, nil
	case "reset":
		return ActionReset, nil
	default:
		return 0, fmt.Errorf("retain: invalid watchdog action %q, want none|safe_stop|reset", s)
	}
}

// FaultPolicy governs the response to a runtime fault outside the watchdog
// (an evaluator error, a driver I/O failure) that the resource cannot
// recover from within the current cycle.
type FaultPolicy uint8

const (
	// FaultIgnore logs the fault and lets the resource continue ticking.
	FaultIgnore FaultPolicy = iota
	// FaultSafeState applies the configured I/O safe state and halts.
	FaultSafeState
	// FaultHalt halts immediately without touching outputs.
	FaultHalt
)

func (p FaultPolicy) String() string {
	switch p {
	case FaultIgnore:
		return "ignore"
	case FaultSafeState:
		return "safe_state"
	case FaultHalt:
		return "halt"
	default:
		return "invalid"
	}
}

// ParseFaultPolicy parses a runtime.toml fault.policy value.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "ignore":
		return FaultIgnore, nil
	case "safe_state":
		return FaultSafeState, nil
	case "halt":
		return FaultHalt, nil
	default:
		return 0, fmt.Errorf("retain: invalid fault policy %q, want ignore|safe_state|halt", s)
	}
}

// WatchdogPolicy is the parsed §6.2 "watchdog" section.
type WatchdogPolicy struct {
	Enabled bool
	Timeout time.Duration
	Action  WatchdogAction
}
