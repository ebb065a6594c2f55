package retain

import (
	"sync"
	"time"

	"github.com/trust-automation/trust/internal/ioimage"
)

// Watchdog is a soft guard layered on top of the scheduler cycle (§5): the
// driving loop calls Feed with a cycle's start time once its RunCycle has
// completed, then Overrun with the current time before sleeping to the next
// tick. If a cycle overruns Timeout, the configured action fires at that
// scheduling point rather than mid-cycle.
type Watchdog struct {
	Policy WatchdogPolicy

	mu       sync.Mutex
	lastFeed time.Time
	fed      bool
}

// NewWatchdog starts disarmed; the first Feed establishes the baseline.
func NewWatchdog(policy WatchdogPolicy) *Watchdog {
	return &Watchdog{Policy: policy}
}

// Feed records that a cycle has just completed at now.
func (w *Watchdog) Feed(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastFeed = now
	w.fed = true
}

// Overrun reports whether more than Policy.Timeout has elapsed since the
// last Feed. A disabled or unfed watchdog never reports an overrun.
func (w *Watchdog) Overrun(now time.Time) bool {
	if !w.Policy.Enabled {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.fed {
		return false
	}
	return now.Sub(w.lastFeed) > w.Policy.Timeout
}

// Trip applies Policy.Action: ActionNone logs nothing and returns false (no
// halt requested); ActionSafeStop and ActionReset both apply the I/O safe
// state, and report true so the driving loop stops scheduling new cycles.
// ActionReset additionally asks retainMgr to clear retain for the restart
// that follows, matching a cold restart's effect on retain (invariant (ii)).
func (w *Watchdog) Trip(img *ioimage.Image, safeState []ioimage.SafeStateEntry, retainMgr *Manager) (halt bool, err error) {
	switch w.Policy.Action {
	case ActionNone:
		return false, nil
	case ActionSafeStop:
		return true, img.ApplySafeState(safeState)
	case ActionReset:
		if err := img.ApplySafeState(safeState); err != nil {
			return true, err
		}
		if retainMgr != nil {
			if err := retainMgr.ResetCold(); err != nil {
				return true, err
			}
		}
		return true, nil
	default:
		return true, nil
	}
}

// ApplyFault runs the §9 fault policy for a runtime error the evaluator or
// a driver surfaced mid-cycle: FaultIgnore lets the resource keep ticking,
// FaultSafeState and FaultHalt both stop it, FaultSafeState additionally
// driving outputs to their configured safe values first.
func ApplyFault(policy FaultPolicy, img *ioimage.Image, safeState []ioimage.SafeStateEntry) (halt bool, err error) {
	switch policy {
	case FaultIgnore:
		return false, nil
	case FaultSafeState:
		return true, img.ApplySafeState(safeState)
	case FaultHalt:
		return true, nil
	default:
		return true, nil
	}
}
