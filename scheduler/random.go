package scheduler

import (
	"math/rand"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// Random uniformly picks among the enabled machines at every scheduling
// decision. Useful when the state space is too large for an exhaustive
// search: it gives no completeness guarantee, but in exchange explores a
// broad spread of interleavings cheaply. Grounded on the teacher's
// scheduler.Random/randomRun.
type Random struct {
	seed       int64
	rng        *rand.Rand
	maxSteps   int
	stepCount  int
	iterations int
	maxIter    int
}

// NewRandom creates a Random strategy seeded with seed, bounded to at most
// maxSteps scheduling decisions per run and maxIterations runs overall (0
// means "no bound" for either).
func NewRandom(seed int64, maxSteps, maxIterations int) *Random {
	return &Random{
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)),
		maxSteps: maxSteps,
		maxIter:  maxIterations,
	}
}

func (r *Random) Name() string  { return "random" }
func (r *Random) Seed() uint64  { return uint64(r.seed) }

func (r *Random) NextOperation(enabled []event.MachineId) (event.MachineId, error) {
	if len(enabled) == 0 {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "random: no enabled machines to choose from")
	}
	if r.maxSteps > 0 && r.stepCount >= r.maxSteps {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "random: step bound %d exceeded", r.maxSteps)
	}
	r.stepCount++
	return enabled[r.rng.Intn(len(enabled))], nil
}

func (r *Random) NextBool(max uint32) bool {
	if max == 0 {
		max = 2
	}
	return r.rng.Intn(int(max)) != 0
}

func (r *Random) NextInt(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	return uint32(r.rng.Intn(int(max)))
}

// PrepareNextIteration reseeds deterministically from the original seed
// combined with the iteration count, so each run is distinct but the whole
// sequence of runs is reproducible from the original seed.
func (r *Random) PrepareNextIteration() bool {
	r.iterations++
	if r.maxIter > 0 && r.iterations >= r.maxIter {
		return false
	}
	r.stepCount = 0
	r.rng = rand.New(rand.NewSource(r.seed + int64(r.iterations)))
	return true
}
