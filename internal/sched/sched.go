// Package sched implements the task scheduler ([I], §4.8): a priority+FIFO
// cyclic scheduler firing periodic and single-triggered TASKs over a
// RESOURCE's PROGRAM instances and FB-instance references, plus the
// implicit background pass for programs attached to no task.
//
// The run-queue's ordered-container shape is grounded on the teacher's
// lr/tables.go CFSM, which keeps its state set in a
// github.com/emirpasic/gods/sets/treeset ordered by a custom comparator
// (stateComparator) and its edge list in an arraylist; here the treeset
// orders one cycle's ready tasks by (priority, next_due, declaration index)
// (§5 ordering guarantee (c)) and each task's own arraylist holds the
// ready-tokens §4.8 step 1 enqueues before step 2 builds the run queue.
package sched

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"

	"github.com/trust-automation/trust"
	"github.com/trust-automation/trust/internal/eval"
	"github.com/trust-automation/trust/internal/ir"
	"github.com/trust-automation/trust/internal/storage"
)

// programInstance binds one configured PROGRAM instance to its runtime
// storage and the definition its body comes from.
type programInstance struct {
	name   string
	def    *ir.ProgramDef
	instId storage.InstanceId
}

// taskState is the per-task scheduling state spec.md §4.8 names: next_due,
// last_sample (edge memory for a SINGLE trigger), ready_count, overrun_count.
type taskState struct {
	cfg       ir.TaskConfig
	declIndex int
	programs  []programInstance

	nextDue     time.Time
	haveNextDue bool
	lastSample  bool

	readyCount   int
	overrunCount int

	// tokens holds this cycle's coalesced ready-tokens, enqueued by
	// sampleTask and drained once the run queue fires the task.
	tokens *arraylist.List
}

// TaskStats is a point-in-time snapshot of one task's counters, for
// control/debug inspection (§5 "quiescent-point mutation", §6.2).
type TaskStats struct {
	Name         string
	ReadyCount   int
	OverrunCount int
	NextDue      time.Time
}

// Scheduler runs one RESOURCE's tasks and background programs. It owns no
// goroutine or clock itself: RunCycle is called once per tick by the
// driving loop, which also owns the read-inputs/write-outputs edges around
// it (ioimage.Image.RunCycleIO) — the only concurrency §5 permits around a
// scheduler cycle is between cycles, never within one.
type Scheduler struct {
	Eval *eval.Evaluator

	tasks      []*taskState
	background []programInstance
}

// NewScheduler builds a Scheduler for one resource: it instantiates every
// PROGRAM the resource assigns (in ProgramAssigns declaration order) and
// partitions the instances between their TASK, keyed by
// ProgramAssignment.TaskName, and the implicit background pass for
// instances naming no task (§4.8 step 4).
func NewScheduler(ev *eval.Evaluator, res *ir.ResourceDef) (*Scheduler, error) {
	s := &Scheduler{Eval: ev}
	byTask := make(map[string][]programInstance)
	for _, pa := range res.ProgramAssigns {
		def, ok := ev.Program.Programs[pa.ProgramName]
		if !ok {
			return nil, fmt.Errorf("resource %q: program instance %q names undeclared PROGRAM %q", res.Name, pa.InstanceName, pa.ProgramName)
		}
		instId, err := ev.InitializeProgramInstance(pa.InstanceName, pa.ProgramName)
		if err != nil {
			return nil, err
		}
		pi := programInstance{name: pa.InstanceName, def: def, instId: instId}
		if pa.TaskName == "" {
			s.background = append(s.background, pi)
			continue
		}
		byTask[pa.TaskName] = append(byTask[pa.TaskName], pi)
	}
	for i, tc := range res.Tasks {
		s.tasks = append(s.tasks, &taskState{
			cfg:       tc,
			declIndex: i,
			programs:  byTask[tc.Name],
			tokens:    arraylist.New(),
		})
	}
	return s, nil
}

// runQueueComparator orders one cycle's ready tasks by (priority ascending,
// next_due ascending, declaration index ascending) — §5 ordering guarantee
// (c). Priority is IEC-style: the smaller number wins.
func runQueueComparator(a, b interface{}) int {
	x, y := a.(*taskState), b.(*taskState)
	if x.cfg.Priority != y.cfg.Priority {
		return utils.IntComparator(x.cfg.Priority, y.cfg.Priority)
	}
	switch {
	case x.nextDue.Before(y.nextDue):
		return -1
	case y.nextDue.Before(x.nextDue):
		return 1
	}
	return utils.IntComparator(x.declIndex, y.declIndex)
}

// RunCycle executes one scheduler tick at time now: §4.8 steps 1-4 in
// order — sample every task's trigger, build the priority+FIFO run queue
// from whichever tasks produced a ready-token, fire them in that order
// (programs in declaration order, then FB instances by ValueRef), then run
// every background program once.
func (s *Scheduler) RunCycle(now time.Time) error {
	ready := treeset.NewWith(runQueueComparator)
	for _, t := range s.tasks {
		s.sampleTask(t, now)
		if !t.tokens.Empty() {
			ready.Add(t)
		}
	}
	for _, v := range ready.Values() {
		t := v.(*taskState)
		t.readyCount += t.tokens.Size()
		t.tokens.Clear()
		if err := s.fireTask(t); err != nil {
			return err
		}
	}
	return s.runBackground()
}

// sampleTask updates t's edge/interval state and enqueues at most one
// coalesced ready-token (§4.8 step 1): simultaneous rising edges or missed
// periods between two samples collapse into a single fire this cycle.
func (s *Scheduler) sampleTask(t *taskState, now time.Time) {
	hasSingle := t.cfg.Single != ""
	hasInterval := t.cfg.Interval > 0

	switch {
	case hasSingle && hasInterval:
		// §4.8 step 5: with both configured, only SINGLE gates the fire;
		// the periodic interval never fires it on its own.
		if s.readBoolGlobal(t.cfg.Single) {
			t.tokens.Add(now)
		}
	case hasSingle:
		sample := s.readBoolGlobal(t.cfg.Single)
		if sample && !t.lastSample {
			t.tokens.Add(now)
		}
		t.lastSample = sample
	case hasInterval:
		if !t.haveNextDue {
			t.nextDue, t.haveNextDue = now, true
		}
		if !now.Before(t.nextDue) {
			missed := int64(now.Sub(t.nextDue)/t.cfg.Interval) + 1
			t.overrunCount += int(missed - 1)
			t.nextDue = t.nextDue.Add(time.Duration(missed) * t.cfg.Interval)
			t.tokens.Add(now)
		}
	}
}

func (s *Scheduler) readBoolGlobal(name string) bool {
	v, ok := s.Eval.Storage.Globals.Get(name)
	return ok && v.Kind == storage.KindBool && v.B
}

// fireTask runs one ready task's programs, then its FB-instance references,
// both in declaration order (§5 ordering guarantee (d)).
func (s *Scheduler) fireTask(t *taskState) error {
	for _, pi := range t.programs {
		if err := s.Eval.CallProgram(pi.instId, pi.def); err != nil {
			return fmt.Errorf("task %q, program %q: %w", t.cfg.Name, pi.name, err)
		}
	}
	for _, ref := range t.cfg.FbInstances {
		if err := s.fireFbInstance(ref); err != nil {
			return fmt.Errorf("task %q, FB instance %v: %w", t.cfg.Name, ref, err)
		}
	}
	return nil
}

func (s *Scheduler) fireFbInstance(ref storage.ValueRef) error {
	v, err := s.Eval.Storage.Resolve(ref)
	if err != nil {
		return err
	}
	if v.Kind != storage.KindInstance {
		return fmt.Errorf("reference %v does not name a function block instance", ref)
	}
	_, err = s.Eval.CallFB(nil, v.Inst, nil, trust.SourceLocation{})
	return err
}

// runBackground runs every program attached to no task, once per cycle
// (§4.8 step 4): these advance on every RunCycle regardless of any task's
// trigger state.
func (s *Scheduler) runBackground() error {
	for _, pi := range s.background {
		if err := s.Eval.CallProgram(pi.instId, pi.def); err != nil {
			return fmt.Errorf("background program %q: %w", pi.name, err)
		}
	}
	return nil
}

// Stats returns a snapshot of every task's counters, in declaration order.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = TaskStats{Name: t.cfg.Name, ReadyCount: t.readyCount, OverrunCount: t.overrunCount, NextDue: t.nextDue}
	}
	return out
}
