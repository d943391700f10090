package scheduler

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/machine"
	"github.com/psharp-go/psharp/monitor"
	"github.com/psharp-go/psharp/network"
	"github.com/psharp-go/psharp/pserrors"
	"github.com/psharp-go/psharp/reliable"
	"github.com/psharp-go/psharp/trace"
)

// Logger is the minimal structured-logging surface the scheduler needs for
// its own diagnostics (dropped sends, failed deferred creates, injected
// crashes). pslog.Logger implements it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// FailureInjector decides, before a step is about to be granted to id,
// whether that step should instead be treated as an external crash: the
// machine is marked halted without running it, and the run continues as
// though the machine had failed between steps. Folds in GoMC's
// PerfectFailureManager concept; off by default and never consulted
// unless set via WithFailureInjector.
type FailureInjector func(id event.MachineId) bool

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}

// Outcome classifies how a Run call ended.
type Outcome int

const (
	OutcomeQuiescent Outcome = iota
	OutcomeBug
)

// RunResult summarizes one completed run.
type RunResult struct {
	Outcome Outcome
	Err     error
	Steps   int
}

// Scheduler owns the run-queue of machine instances, the monitor registry,
// and the active exploration strategy, and drives the step loop described
// in §4.3. It implements machine.Environment so that a running instance's
// trapped sends, creates, random choices, and monitor invocations all flow
// back through one place. Grounded directly on the teacher's
// simulator.Simulator.executeRun step loop and its two-tier scheduler
// split, generalized from "pick an event" to "pick an enabled machine,
// then run exactly one step".
type Scheduler struct {
	machineTypes map[string]*machine.MachineType
	monitorTypes map[string]*monitor.MonitorType

	machines map[event.MachineId]*machine.Instance
	order    []event.MachineId
	monitors map[string]*monitor.Instance

	nextSeq uint64

	strategy Strategy
	oracle   *Oracle
	schedule *trace.ScheduleTrace
	bug      *trace.BugTrace
	log      Logger

	onDrop func(target event.MachineId, evtType event.EventType)

	failureInjector FailureInjector
	ignorePanics    bool

	store        reliable.StateStore
	storeRetries int

	netProvider network.Provider

	stopRequested atomic.Bool
}

// NewScheduler creates a Scheduler bound to the given type registries and
// exploration strategy. logger may be nil, in which case diagnostics are
// discarded.
func NewScheduler(machineTypes map[string]*machine.MachineType, monitorTypes map[string]*monitor.MonitorType, strategy Strategy, logger Logger) *Scheduler {
	if logger == nil {
		logger = nopLogger{}
	}
	bt := trace.NewBugTrace()
	st := trace.NewScheduleTrace(strategy.Name(), strategy.Seed(), 0)
	return &Scheduler{
		machineTypes: machineTypes,
		monitorTypes: monitorTypes,
		machines:     make(map[event.MachineId]*machine.Instance),
		monitors:     make(map[string]*monitor.Instance),
		strategy:     strategy,
		oracle:       NewOracle(strategy, st),
		schedule:     st,
		bug:          bt,
		log:          logger,
	}
}

// ScheduleTrace returns the trace of scheduling and nondeterministic
// choices made so far.
func (s *Scheduler) ScheduleTrace() *trace.ScheduleTrace { return s.schedule }

// Trace implements machine.Environment.
func (s *Scheduler) Trace() *trace.BugTrace { return s.bug }

// Reset prepares the scheduler for a fresh run with a new iteration of the
// strategy's schedule, discarding all machine and monitor state.
func (s *Scheduler) Reset(iteration int) {
	s.machines = make(map[event.MachineId]*machine.Instance)
	s.order = nil
	s.monitors = make(map[string]*monitor.Instance)
	s.nextSeq = 0
	s.schedule = trace.NewScheduleTrace(s.strategy.Name(), s.strategy.Seed(), iteration)
	s.bug = trace.NewBugTrace()
	s.oracle = NewOracle(s.strategy, s.schedule)
	s.stopRequested.Store(false)
}

// AllocateMachineId implements machine.Environment.
func (s *Scheduler) AllocateMachineId(typeName, friendlyName string) event.MachineId {
	s.nextSeq++
	return event.MachineId{
		Seq:          s.nextSeq,
		UID:          uuid.New(),
		TypeName:     typeName,
		FriendlyName: friendlyName,
		Partition:    s.localPartition(),
	}
}

// CreateMachine instantiates typeName under id (already allocated via
// AllocateMachineId; the id is used exactly as given), optionally delivering initial as the first inbox event, and inserts the
// new instance into the run-queue.
func (s *Scheduler) CreateMachine(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) error {
	mt, ok := s.machineTypes[typeName]
	if !ok {
		return pserrors.New(pserrors.ConfigurationError, "scheduler: unknown machine type %q", typeName)
	}
	inst := machine.NewInstance(id, mt, opGroup)
	inst.SetIgnorePanics(s.ignorePanics)
	s.machines[id] = inst
	s.order = append(s.order, id)
	s.bug.CreateMachine(creator.String(), id.String())
	if initial != nil {
		envl := event.EventEnvelope{Event: *initial, Sender: creator, OperationGroupID: opGroup}
		envl.SendSeq = inst.Inbox().NextSendSeq(creator)
		inst.Inbox().Enqueue(envl)
	}
	return nil
}

// DeliverCreate implements machine.Environment.
func (s *Scheduler) DeliverCreate(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) {
	if err := s.CreateMachine(id, typeName, initial, creator, opGroup); err != nil {
		s.log.Warnf("scheduler: deferred create of %s failed: %v", id, err)
	}
}

// DeliverSend implements machine.Environment: enqueues env into target's
// inbox preserving per-sender FIFO, honoring must_handle and
// assert_at_most_n, or drops silently (but logged) on a halted target. A
// target whose partition isn't this scheduler's own is the send_remote case
// from spec.md §4.7: delegated whole to the configured network.Provider
// rather than looked up in the local machine table.
func (s *Scheduler) DeliverSend(target event.MachineId, envl event.EventEnvelope, opts event.SendOptions) error {
	inst, ok := s.machines[target]
	if !ok && s.netProvider != nil && target.Partition != "" && target.Partition != s.localPartition() {
		return s.netProvider.SendRemote(target, envl.Event, opts)
	}
	if !ok || inst.Halted() {
		if opts.MustHandle {
			return pserrors.New(pserrors.AssertionFailure, "must_handle send of %q to halted/unknown machine %s was dropped", envl.Event.Type, target)
		}
		s.log.Infof("scheduler: dropped %q sent to halted machine %s", envl.Event.Type, target)
		if s.onDrop != nil {
			s.onDrop(target, envl.Event.Type)
		}
		return nil
	}
	envl.SendSeq = inst.Inbox().NextSendSeq(envl.Sender)
	inst.Inbox().Enqueue(envl)
	if opts.AssertAtMostN != nil {
		if n := inst.Inbox().CountOfType(envl.Event.Type); uint32(n) > *opts.AssertAtMostN {
			return pserrors.New(pserrors.AssertionFailure, "target %s inbox holds %d events of type %q, exceeding assert_at_most_n=%d", target, n, envl.Event.Type, *opts.AssertAtMostN)
		}
	}
	return nil
}

// RegisterMonitor constructs and registers a monitor instance of typeName,
// running its start state's entry handler immediately.
func (s *Scheduler) RegisterMonitor(typeName string) error {
	mt, ok := s.monitorTypes[typeName]
	if !ok {
		return pserrors.New(pserrors.ConfigurationError, "scheduler: unknown monitor type %q", typeName)
	}
	inst, err := monitor.NewInstance(mt, s.bug)
	if err != nil {
		return err
	}
	s.monitors[typeName] = inst
	return nil
}

// InvokeMonitor implements machine.Environment. A monitor assertion
// failure is fatal and propagates as a panic, caught by the calling
// machine's runProtected wrapper exactly like a direct ctx.Assert would.
func (s *Scheduler) InvokeMonitor(monitorType string, evt event.Event, sender event.MachineId) {
	inst, ok := s.monitors[monitorType]
	if !ok {
		panic(pserrors.New(pserrors.ConfigurationError, "scheduler: monitor %q was never registered", monitorType))
	}
	if err := inst.Invoke(s.bug, evt); err != nil {
		panic(err)
	}
}

// NextRandomBool implements machine.Environment.
func (s *Scheduler) NextRandomBool(max uint32) bool { return s.oracle.NextRandomBool(max) }

// NextRandomInt implements machine.Environment.
func (s *Scheduler) NextRandomInt(max uint32) uint32 { return s.oracle.NextRandomInt(max) }

// LivenessViolations reports every registered monitor currently sitting in
// a hot state, checked at the end of a fairness-bounded run.
func (s *Scheduler) LivenessViolations() []string {
	var hot []string
	for name, inst := range s.monitors {
		if inst.IsHot() {
			hot = append(hot, name)
		}
	}
	return hot
}

// Machine returns the running instance for id, if any.
func (s *Scheduler) Machine(id event.MachineId) (*machine.Instance, bool) {
	inst, ok := s.machines[id]
	return inst, ok
}

// RequestStop asks Run to stop granting further steps once the
// in-progress one finishes.
func (s *Scheduler) RequestStop() { s.stopRequested.Store(true) }

// SetFailureInjector installs (or clears, with nil) the hook Run consults
// before granting each step.
func (s *Scheduler) SetFailureInjector(f FailureInjector) { s.failureInjector = f }

// SetIgnorePanics controls whether a handler panic in every machine created
// from this point on is recovered and reported (the default) or left to
// propagate uncaught, per psoptions.IgnorePanics. Machines already created
// before this call keep whatever setting they were created under.
func (s *Scheduler) SetIgnorePanics(ignore bool) { s.ignorePanics = ignore }

// SetStateStore installs (or clears, with a nil store) the durable-state-
// machine overlay backing every granted step. Per spec.md §4.6, once set,
// Step runs each instance through reliable.NewOverlay(inst, store,
// maxRetries) instead of stepping it directly, so the step's stack write
// commits durably (or retries, or fails) before the step's sends and creates
// reach their targets; inbox contents are not part of that transaction.
func (s *Scheduler) SetStateStore(store reliable.StateStore, maxRetries int) {
	s.store = store
	s.storeRetries = maxRetries
}

// SetNetworkProvider installs (or clears, with nil) the boundary DeliverSend
// consults for a send whose target's partition differs from this
// scheduler's own, and that AllocateMachineId tags newly created machines'
// Partition with, per spec.md §4.7.
func (s *Scheduler) SetNetworkProvider(p network.Provider) { s.netProvider = p }

// localPartition names the partition this scheduler's own machines belong
// to: the configured network.Provider's endpoint, or "local" with none
// configured.
func (s *Scheduler) localPartition() string {
	if s.netProvider != nil {
		return s.netProvider.LocalEndpoint()
	}
	return "local"
}

// Step runs inst's granted step, through the configured durable-state-store
// overlay when one is set, or directly against this Scheduler (as
// machine.Environment) otherwise. Both Run's step loop and a caller driving
// a single machine synchronously (Runtime.driveUntilIdle's await
// primitives) go through this so a configured store backs every step, not
// only the ones Run itself grants.
func (s *Scheduler) Step(inst *machine.Instance) error {
	if s.store != nil {
		return reliable.NewOverlay(inst, s.store, s.storeRetries).Step(s)
	}
	return inst.Step(s)
}

// stateSpaceExporter is implemented by strategies that keep enough of
// their own exploration history to export it; currently only DFS.
type stateSpaceExporter interface {
	Export() string
}

// ExportStateSpace renders the active strategy's explored prefix tree as
// Newick text, the same offline-inspection export GoMC's state.StateSpace
// offers. ok is false for strategies (Random, Priority, Replay) that don't
// keep a full history to export.
func (s *Scheduler) ExportStateSpace() (newick string, ok bool) {
	e, ok := s.strategy.(stateSpaceExporter)
	if !ok {
		return "", false
	}
	return e.Export(), true
}

// PrepareNextIteration delegates to the active strategy, per Campaign's use
// of it to decide whether another iteration remains to explore.
func (s *Scheduler) PrepareNextIteration() bool { return s.strategy.PrepareNextIteration() }

// enabledSet returns the ids of every currently-enabled machine, in
// creation order, for deterministic iteration regardless of Go's
// unordered map iteration.
func (s *Scheduler) enabledSet() []event.MachineId {
	var enabled []event.MachineId
	for _, id := range s.order {
		if inst, ok := s.machines[id]; ok && inst.IsEnabled() {
			enabled = append(enabled, id)
		}
	}
	return enabled
}

// Run drives the step loop until quiescence, a reported bug, or maxSteps
// scheduling decisions (0 means unbounded).
func (s *Scheduler) Run(maxSteps int) *RunResult {
	steps := 0
	for {
		if s.stopRequested.Load() {
			return &RunResult{Outcome: OutcomeQuiescent, Steps: steps}
		}
		enabled := s.enabledSet()
		if len(enabled) == 0 {
			if id, waitFor, deadlocked := s.deadlocked(); deadlocked {
				err := pserrors.New(pserrors.Deadlock, "machine %s blocked on receive with no matching event; expected one of %v", id, waitFor).At(id, string(s.machines[id].CurrentState()))
				return &RunResult{Outcome: OutcomeBug, Err: err, Steps: steps}
			}
			if hot := s.LivenessViolations(); len(hot) > 0 {
				err := pserrors.New(pserrors.LivenessViolation, "monitor(s) %v left in a hot state at quiescence", hot)
				return &RunResult{Outcome: OutcomeBug, Err: err, Steps: steps}
			}
			return &RunResult{Outcome: OutcomeQuiescent, Steps: steps}
		}

		choice, err := s.strategy.NextOperation(enabled)
		if err != nil {
			return &RunResult{Outcome: OutcomeBug, Err: err, Steps: steps}
		}
		inst := s.machines[choice]

		if s.failureInjector != nil && s.failureInjector(choice) {
			s.bug.Halt(choice.String(), string(inst.CurrentState()))
			inst.Crash()
			s.log.Infof("scheduler: injected crash of %s", choice)
			continue
		}

		s.schedule.AppendStep(choice.Seq)
		steps++

		if err := s.Step(inst); err != nil {
			return &RunResult{Outcome: OutcomeBug, Err: err, Steps: steps}
		}
		if maxSteps > 0 && steps >= maxSteps {
			return &RunResult{Outcome: OutcomeQuiescent, Steps: steps}
		}
	}
}

func (s *Scheduler) deadlocked() (event.MachineId, map[event.EventType]struct{}, bool) {
	for _, id := range s.order {
		inst, ok := s.machines[id]
		if !ok {
			continue
		}
		if blocked, waitFor := inst.HasUnmatchedReceive(); blocked {
			return id, waitFor, true
		}
	}
	return event.MachineId{}, nil, false
}
