package scheduler

import (
	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

type run []event.MachineId

// DFS explores every enabled-sequence up to a step bound, depth first, by
// maintaining an explicit stack of unexplored prefixes: at each branch
// point it commits to the first enabled choice and pushes every remaining
// alternative, as a one-step-longer prefix, for a later iteration.
// Grounded on the teacher's scheduler.Prefix/runPrefix, simplified from its
// concurrent multi-goroutine form (needed there because several run
// schedulers raced to add events) to a single sequential stack, since this
// runtime's step loop is itself single-threaded and hands DFS the full
// enabled set synchronously at each decision.
type DFS struct {
	pending    []run
	currentRun run
	idx        int
	maxSteps   int
	iterations int

	root *tree[event.MachineId]
	node *tree[event.MachineId]
}

// NewDFS creates a DFS strategy bounded to at most maxSteps scheduling
// decisions per run (0 means unbounded, which only terminates for
// inherently finite programs).
func NewDFS(maxSteps int) *DFS {
	root := newTree(event.MachineId{}, event.MachineId.Equal)
	return &DFS{pending: []run{{}}, maxSteps: maxSteps, root: root, node: root}
}

// Export renders every branch this strategy has visited so far as Newick
// text, the same state-space export GoMC offers for its own explored
// prefix tree.
func (d *DFS) Export() string {
	return d.root.newick()
}

func (d *DFS) Name() string { return "dfs" }
func (d *DFS) Seed() uint64 { return 0 }

func (d *DFS) NextOperation(enabled []event.MachineId) (event.MachineId, error) {
	if len(enabled) == 0 {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "dfs: no enabled machines to choose from")
	}
	if d.maxSteps > 0 && d.idx >= d.maxSteps {
		return event.MachineId{}, pserrors.New(pserrors.InternalError, "dfs: step bound %d exceeded", d.maxSteps)
	}

	if d.idx < len(d.currentRun) {
		want := d.currentRun[d.idx]
		if !containsID(enabled, want) {
			return event.MachineId{}, pserrors.New(pserrors.InternalError, "dfs: machine %s from prefix is no longer enabled", want)
		}
		d.idx++
		d.node = d.descend(want)
		return want, nil
	}

	chosen := enabled[0]
	for _, alt := range enabled[1:] {
		next := make(run, len(d.currentRun)+1)
		copy(next, d.currentRun)
		next[len(d.currentRun)] = alt
		d.pending = append(d.pending, next)
		d.descend(alt)
	}
	d.currentRun = append(d.currentRun, chosen)
	d.idx++
	d.node = d.descend(chosen)
	return chosen, nil
}

// descend records id as a child of the current tree position without
// moving into it, returning the (possibly newly created) child node; it
// is the caller's job to assign the result to d.node when it is actually
// the path being followed, so that alternatives explored later but not
// taken now still appear in the exported tree.
func (d *DFS) descend(id event.MachineId) *tree[event.MachineId] {
	if child := d.node.getChild(id); child != nil {
		return child
	}
	return d.node.addChild(id)
}

// NextBool and NextInt always answer the lowest value in range. DFS's
// exhaustiveness guarantee in this implementation covers scheduling order
// only; branching over nondeterministic choice values as well would
// require folding them into the same prefix-stack, which is left to the
// Priority/Random strategies for value-space exploration.
func (d *DFS) NextBool(max uint32) bool {
	return false
}

func (d *DFS) NextInt(max uint32) uint32 {
	return 0
}

func (d *DFS) PrepareNextIteration() bool {
	d.iterations++
	if len(d.pending) == 0 {
		return false
	}
	d.currentRun = d.pending[len(d.pending)-1]
	d.pending = d.pending[:len(d.pending)-1]
	d.idx = 0
	d.node = d.root
	return true
}

func containsID(ids []event.MachineId, want event.MachineId) bool {
	for _, id := range ids {
		if id.Equal(want) {
			return true
		}
	}
	return false
}
