package scheduler

import (
	"github.com/psharp-go/psharp/trace"
)

// Oracle routes every nondeterministic choice a running machine makes
// through the active Strategy and records the result in the schedule
// trace, so that a Replay built from that trace reproduces the exact same
// values. Not present in the teacher, whose events are never internally
// nondeterministic; built in the same call shape as the rest of this
// package so random_bool/random_int are just another kind of
// scheduler-mediated choice.
type Oracle struct {
	strategy Strategy
	schedule *trace.ScheduleTrace
}

// NewOracle creates an Oracle that draws values from strategy and records
// them into schedule.
func NewOracle(strategy Strategy, schedule *trace.ScheduleTrace) *Oracle {
	return &Oracle{strategy: strategy, schedule: schedule}
}

func (o *Oracle) NextRandomBool(max uint32) bool {
	v := o.strategy.NextBool(max)
	o.schedule.AppendBool(v)
	return v
}

func (o *Oracle) NextRandomInt(max uint32) uint32 {
	v := o.strategy.NextInt(max)
	o.schedule.AppendInt(v)
	return v
}
