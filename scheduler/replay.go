package scheduler

import (
	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
	"github.com/psharp-go/psharp/trace"
)

// Replay reproduces a previously recorded ScheduleTrace exactly, in order:
// scheduling decisions and nondeterministic choices are answered by
// replaying the corresponding point, and any call whose point kind does
// not match (or whose chosen machine is no longer enabled) is a
// ReplayDivergence, reported immediately. Grounded on the teacher's
// scheduler.Replay/runReplay.
type Replay struct {
	trace *trace.ScheduleTrace
	idx   int
	done  bool
}

// NewReplay creates a Replay strategy that will reproduce tr exactly once;
// PrepareNextIteration returns false on every call after the first.
func NewReplay(tr *trace.ScheduleTrace) *Replay {
	return &Replay{trace: tr}
}

func (r *Replay) Name() string { return "replay" }
func (r *Replay) Seed() uint64 { return r.trace.Seed }

func (r *Replay) next() (trace.ChoicePoint, error) {
	if r.idx >= len(r.trace.Points) {
		return trace.ChoicePoint{}, pserrors.New(pserrors.ReplayDivergence, "replay: schedule trace exhausted but program requested another choice")
	}
	p := r.trace.Points[r.idx]
	r.idx++
	return p, nil
}

func (r *Replay) NextOperation(enabled []event.MachineId) (event.MachineId, error) {
	p, err := r.next()
	if err != nil {
		return event.MachineId{}, err
	}
	if p.Kind != trace.SchedulingStep {
		return event.MachineId{}, pserrors.New(pserrors.ReplayDivergence, "replay: expected a scheduling step at trace index %d, found a choice point", r.idx-1)
	}
	for _, id := range enabled {
		if id.Seq == p.MachineSeq {
			return id, nil
		}
	}
	return event.MachineId{}, pserrors.New(pserrors.ReplayDivergence, "replay: recorded machine seq %d is not in the enabled set", p.MachineSeq)
}

func (r *Replay) NextBool(max uint32) bool {
	p, err := r.next()
	if err != nil {
		panic(err)
	}
	if p.Kind != trace.BoolChoice {
		panic(pserrors.New(pserrors.ReplayDivergence, "replay: expected a bool choice at trace index %d", r.idx-1))
	}
	return p.Bool
}

func (r *Replay) NextInt(max uint32) uint32 {
	p, err := r.next()
	if err != nil {
		panic(err)
	}
	if p.Kind != trace.IntChoice {
		panic(pserrors.New(pserrors.ReplayDivergence, "replay: expected an int choice at trace index %d", r.idx-1))
	}
	return p.Int
}

func (r *Replay) PrepareNextIteration() bool {
	if r.done {
		return false
	}
	r.done = true
	r.idx = 0
	return true
}
