package scheduler

import (
	"math/rand"
	"sort"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// PriorityFunc assigns an integer priority to a machine id; higher values
// are preferred. Machines with no opinion should return 0.
type PriorityFunc func(id event.MachineId) int

// Priority prefers the highest-priority enabled machine at each decision,
// breaking ties with an injected random stream, rather than the uniform
// choice Random makes. This is the strategy class the core contract calls
// out as efficient at finding ordering bugs (the PCT family): high-priority
// machines run to completion ahead of low-priority ones except where the
// random tiebreak reshuffles a tied group, which is what surfaces bugs that
// depend on a specific relative ordering of two "equally important"
// machines. Not present in the teacher; built in the same
// GlobalScheduler/RunScheduler shape as Random, delegating priority lookup
// the way scheduler.GuidedSearch delegates to an inner strategy.
type Priority struct {
	seed       int64
	rng        *rand.Rand
	priorityOf PriorityFunc
	maxSteps   int
	stepCount  int
	iterations int
	maxIter    int
}

// NewPriority creates a Priority strategy. priorityOf may be nil, in which
// case every machine is treated as equal priority and ties are broken
// purely at random (degenerating to Random's behavior).
func NewPriority(seed int64, priorityOf PriorityFunc, maxSteps, maxIterations int) *Priority {
	if priorityOf == nil {
		priorityOf = func(event.MachineId) int { return 0 }
	}
	return &Priority{
		seed:       seed,
		rng:        rand.New(rand.NewSource(seed)),
		priorityOf: priorityOf,
		maxSteps:   maxSteps,
		maxIter:    maxIterations,
	}
}

func (p *Priority) Name() string { return "pct" }
func (p *Priority) Seed() uint64 { return uint64(p.seed) }

func (p *Priority) NextOperation(enabled []event.MachineId) (event.MachineId, error) {
	if len(enabled) == 0 {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "pct: no enabled machines to choose from")
	}
	if p.maxSteps > 0 && p.stepCount >= p.maxSteps {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "pct: step bound %d exceeded", p.maxSteps)
	}
	p.stepCount++

	best := p.priorityOf(enabled[0])
	for _, id := range enabled[1:] {
		if pr := p.priorityOf(id); pr > best {
			best = pr
		}
	}
	var tied []event.MachineId
	for _, id := range enabled {
		if p.priorityOf(id) == best {
			tied = append(tied, id)
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i].Seq < tied[j].Seq })
	return tied[p.rng.Intn(len(tied))], nil
}

func (p *Priority) NextBool(max uint32) bool {
	if max == 0 {
		max = 2
	}
	return p.rng.Intn(int(max)) != 0
}

func (p *Priority) NextInt(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	return uint32(p.rng.Intn(int(max)))
}

func (p *Priority) PrepareNextIteration() bool {
	p.iterations++
	if p.maxIter > 0 && p.iterations >= p.maxIter {
		return false
	}
	p.stepCount = 0
	p.rng = rand.New(rand.NewSource(p.seed + int64(p.iterations)))
	return true
}
