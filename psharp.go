// Package psharp is the public entry point: register machine and monitor
// types, then build a Runtime with NewRuntime and Run it under an
// exploration strategy. It plays the role erthbison-GoMC's top-level gomc
// package plays for a simulation — PrepareSimulation/Simulation.Run there,
// NewRuntime/Runtime.Run here — generalized from "one distributed-system configuration, run many
// times against a fixed scheduler" to "one hierarchical-state-machine
// program, run many iterations of a chosen exploration strategy, one of
// which might reproduce an earlier failure exactly".
package psharp

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/machine"
	"github.com/psharp-go/psharp/monitor"
	"github.com/psharp-go/psharp/network"
	"github.com/psharp-go/psharp/pserrors"
	"github.com/psharp-go/psharp/psoptions"
	"github.com/psharp-go/psharp/reliable"
	"github.com/psharp-go/psharp/scheduler"
	"github.com/psharp-go/psharp/trace"
)

// Assembly is the set of machine and monitor types a test program declares
// before any run starts. ConfigurationError conditions (bad state graphs)
// are caught here, at registration, never mid-run.
type Assembly struct {
	machines map[string]*machine.MachineType
	monitors map[string]*monitor.MonitorType
}

// NewAssembly creates an empty Assembly.
func NewAssembly() *Assembly {
	return &Assembly{
		machines: make(map[string]*machine.MachineType),
		monitors: make(map[string]*monitor.MonitorType),
	}
}

// RegisterMachine validates and adds mt to the assembly.
func (a *Assembly) RegisterMachine(mt *machine.MachineType) error {
	if err := mt.Validate(); err != nil {
		return err
	}
	if _, exists := a.machines[mt.Name]; exists {
		return pserrors.New(pserrors.ConfigurationError, "assembly: machine type %q already registered", mt.Name)
	}
	a.machines[mt.Name] = mt
	return nil
}

// RegisterMonitorType validates and adds mt to the assembly. Use
// Runtime.RegisterMonitor to instantiate a registered type for a run.
func (a *Assembly) RegisterMonitorType(mt *monitor.MonitorType) error {
	if err := mt.Validate(); err != nil {
		return err
	}
	if _, exists := a.monitors[mt.Name]; exists {
		return pserrors.New(pserrors.ConfigurationError, "assembly: monitor type %q already registered", mt.Name)
	}
	a.monitors[mt.Name] = mt
	return nil
}

// Runtime is one prepared, runnable configuration of an Assembly: a bound
// Scheduler, the resolved psoptions.Config, and the await-primitive
// bookkeeping described in §5. Campaign reuses one Runtime across all of its
// iterations, resetting its scheduler between them; a standalone caller that
// just wants "run this once" can use NewRuntime directly.
type Runtime struct {
	assembly *Assembly
	cfg      psoptions.Config
	sched    *scheduler.Scheduler
	net      network.Provider

	onFailure func(error)

	awaiting map[event.MachineId]struct{}
}

// NewRuntime builds one Runtime from assembly and opts, constructing the
// exploration strategy the resolved StrategyKind names.
func NewRuntime(assembly *Assembly, opts ...psoptions.Option) (*Runtime, error) {
	cfg := psoptions.Prepare(opts...)
	strat, err := buildStrategy(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.NewScheduler(assembly.machines, assembly.monitors, strat, cfg.Logger)
	sched.SetFailureInjector(cfg.FailureInject)
	sched.SetStateStore(cfg.Store, 0)
	sched.SetNetworkProvider(cfg.Network)
	sched.SetIgnorePanics(cfg.IgnorePanics)
	return &Runtime{
		assembly: assembly,
		cfg:      cfg,
		sched:    sched,
		net:      cfg.Network,
		awaiting: make(map[event.MachineId]struct{}),
	}, nil
}

func buildStrategy(cfg psoptions.Config) (scheduler.Strategy, error) {
	switch cfg.StrategyKind {
	case "", "random":
		return scheduler.NewRandom(cfg.Seed, cfg.MaxSteps, cfg.MaxIterations), nil
	case "dfs":
		return scheduler.NewDFS(cfg.MaxSteps), nil
	case "pct":
		return scheduler.NewPriority(cfg.Seed, cfg.PriorityOf, cfg.MaxSteps, cfg.MaxIterations), nil
	case "replay":
		if cfg.ReplayTrace == nil {
			return nil, pserrors.New(pserrors.ConfigurationError, "psharp: strategy \"replay\" requires WithReplayTrace")
		}
		tr, err := trace.ReadScheduleTrace(bytes.NewReader(cfg.ReplayTrace))
		if err != nil {
			return nil, pserrors.Wrap(pserrors.ConfigurationError, err, "psharp: parsing replay trace")
		}
		return scheduler.NewReplay(tr), nil
	default:
		return nil, pserrors.New(pserrors.ConfigurationError, "psharp: unknown strategy %q", cfg.StrategyKind)
	}
}

// OnFailure registers the callback invoked with the terminating error (if
// any) at the end of Run, mirroring the on_failure hook.
func (rt *Runtime) OnFailure(f func(error)) { rt.onFailure = f }

// CreateMachine allocates a fresh id, instantiates typeName, and delivers
// initial (if non-nil) as its first inbox event.
func (rt *Runtime) CreateMachine(typeName string, initial *event.Event) (event.MachineId, error) {
	id := rt.sched.AllocateMachineId(typeName, "")
	opGroup := event.NewOperationGroupID()
	if err := rt.sched.CreateMachine(id, typeName, initial, event.MachineId{}, opGroup); err != nil {
		return event.MachineId{}, err
	}
	return id, nil
}

// CreateMachineWithID instantiates typeName under an id obtained from
// CreateMachineID, for callers that need to hand the id to a peer before
// the machine itself exists.
func (rt *Runtime) CreateMachineWithID(id event.MachineId, typeName string, initial *event.Event) error {
	return rt.sched.CreateMachine(id, typeName, initial, event.MachineId{}, event.NewOperationGroupID())
}

// CreateMachineID allocates an id for typeName without instantiating it.
func (rt *Runtime) CreateMachineID(typeName, friendlyName string) event.MachineId {
	return rt.sched.AllocateMachineId(typeName, friendlyName)
}

// CreateRemoteMachine instantiates typeName in targetPartition through the
// configured network.Provider, the create_remote primitive spec.md §4.7
// names; it errors with ConfigurationError if no Provider was installed via
// psoptions.WithNetworkProvider. A send whose target's Partition differs
// from this Runtime's own is likewise delegated to the Provider, by
// Scheduler.DeliverSend, so SendEvent needs no remote-specific counterpart.
func (rt *Runtime) CreateRemoteMachine(targetPartition, typeName string, initial event.Event) (event.MachineId, error) {
	if rt.net == nil {
		return event.MachineId{}, pserrors.New(pserrors.ConfigurationError, "psharp: create_remote requires WithNetworkProvider")
	}
	return rt.net.CreateRemote(targetPartition, typeName, initial, event.SendOptions{OperationGroupID: event.NewOperationGroupID()})
}

// SendEvent enqueues evt into target's inbox, honoring opts.
func (rt *Runtime) SendEvent(target event.MachineId, evt event.Event, opts event.SendOptions) error {
	envl := event.EventEnvelope{Event: evt, OperationGroupID: opts.OperationGroupID}
	return rt.sched.DeliverSend(target, envl, opts)
}

// CreateAndExecute creates typeName and then synchronously drives it until
// it halts or blocks, per §5's await primitives: the scheduler recursively
// runs the target's step loop without interleaving any other machine.
func (rt *Runtime) CreateAndExecute(typeName string, initial *event.Event) (event.MachineId, error) {
	id, err := rt.CreateMachine(typeName, initial)
	if err != nil {
		return event.MachineId{}, err
	}
	if err := rt.driveUntilIdle(id); err != nil {
		return event.MachineId{}, err
	}
	return id, nil
}

// SendAndExecute sends evt to target and synchronously drives target until
// it halts or blocks, returning whether the event was consumed before
// quiescence. If target is already being awaited by an enclosing call, it
// returns the await-deadlock AssertionFailure without sending evt.
func (rt *Runtime) SendAndExecute(target event.MachineId, evt event.Event) (bool, error) {
	if _, cycle := rt.awaiting[target]; cycle {
		return false, pserrors.New(pserrors.AssertionFailure, "await deadlock: %s is already being awaited by an enclosing create_and_execute/send_and_execute", target)
	}
	if err := rt.SendEvent(target, evt, event.SendOptions{}); err != nil {
		return false, err
	}
	queued := rt.instanceQueueLen(target)
	if err := rt.driveUntilIdle(target); err != nil {
		return false, err
	}
	return rt.instanceQueueLen(target) < queued, nil
}

func (rt *Runtime) instanceQueueLen(id event.MachineId) int {
	inst, ok := rt.sched.Machine(id)
	if !ok {
		return 0
	}
	return inst.Inbox().Len()
}

// driveUntilIdle repeatedly steps id until it halts or is no longer
// enabled, detecting the await-cycle case described in §5 as a fatal
// AssertionFailure rather than an infinite recursion.
func (rt *Runtime) driveUntilIdle(id event.MachineId) error {
	if _, cycle := rt.awaiting[id]; cycle {
		return pserrors.New(pserrors.AssertionFailure, "await deadlock: %s is already being awaited by an enclosing create_and_execute/send_and_execute", id)
	}
	rt.awaiting[id] = struct{}{}
	defer delete(rt.awaiting, id)

	inst, ok := rt.sched.Machine(id)
	if !ok {
		return pserrors.New(pserrors.InternalError, "psharp: driveUntilIdle on unknown machine %s", id)
	}
	for inst.IsEnabled() {
		if err := rt.sched.Step(inst); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMonitor instantiates a previously-validated monitor type for
// this run, running its start state's entry handler immediately.
func (rt *Runtime) RegisterMonitor(typeName string) error {
	return rt.sched.RegisterMonitor(typeName)
}

// InvokeMonitor delivers evt to the named monitor, synchronously to
// quiescence, as a machine's ctx.Monitor call would.
func (rt *Runtime) InvokeMonitor(typeName string, evt event.Event) {
	rt.sched.InvokeMonitor(typeName, evt, event.MachineId{})
}

// RandomBool and RandomInt let test-driver code (outside any machine) draw
// from the same nondeterminism oracle a running machine would, so a
// top-level setup choice is still recorded into the schedule trace.
func (rt *Runtime) RandomBool(max uint32) bool  { return rt.sched.NextRandomBool(max) }
func (rt *Runtime) RandomInt(max uint32) uint32 { return rt.sched.NextRandomInt(max) }

// GetOperationGroupID returns the correlation id a, if it exists, is
// currently tagged with; the zero UUID if unknown.
func (rt *Runtime) GetOperationGroupID(id event.MachineId) uuid.UUID {
	inst, ok := rt.sched.Machine(id)
	if !ok {
		return uuid.Nil
	}
	return inst.OperationGroupID()
}

// Stop requests that the runtime not grant further steps once the
// in-progress one finishes; Run checks for it before granting each step and
// then returns OutcomeQuiescent.
func (rt *Runtime) Stop() { rt.sched.RequestStop() }

// Run drives the scheduler's step loop to completion for one iteration and
// invokes the failure callback (if any) with the terminating error. If
// cfg.Timeout is set, a watchdog requests a stop (per §5's cancellation
// policy: stop granting new steps, let the in-progress one finish) once it
// elapses, rather than preempting the in-progress step.
func (rt *Runtime) Run() *scheduler.RunResult {
	if rt.cfg.Timeout > 0 {
		timer := time.AfterFunc(rt.cfg.Timeout, rt.sched.RequestStop)
		defer timer.Stop()
	}
	res := rt.sched.Run(rt.cfg.MaxSteps)
	if res.Err != nil && rt.onFailure != nil {
		rt.onFailure(res.Err)
	}
	return res
}

// ScheduleTrace and BugTrace expose the current iteration's traces for
// export to a --replay file or the JSON bug-trace format.
func (rt *Runtime) ScheduleTrace() *trace.ScheduleTrace { return rt.sched.ScheduleTrace() }
func (rt *Runtime) BugTrace() *trace.BugTrace           { return rt.sched.Trace() }

// ExportStateSpace renders the active strategy's explored prefix tree as
// Newick text for offline inspection, when the strategy (currently only
// "dfs") keeps one; ok is false otherwise.
func (rt *Runtime) ExportStateSpace() (string, bool) { return rt.sched.ExportStateSpace() }

// Campaign drives one Runtime through up to cfg.MaxIterations iterations,
// resetting its scheduler (discarding machine/monitor state but keeping the
// exploration strategy's own progress) between each, stopping at the first
// reported bug or when the strategy's PrepareNextIteration declines to
// continue. This mirrors the teacher's Simulator.Simulate outer loop, which
// likewise reuses one scheduler across many runs rather than rebuilding it.
type Campaign struct {
	rt *Runtime
}

// NewCampaign prepares a Campaign around a single long-lived Runtime.
func NewCampaign(assembly *Assembly, opts ...psoptions.Option) (*Campaign, error) {
	rt, err := NewRuntime(assembly, opts...)
	if err != nil {
		return nil, err
	}
	return &Campaign{rt: rt}, nil
}

// CampaignResult summarizes one Campaign.Run call.
type CampaignResult struct {
	Iterations int
	Outcome    scheduler.Outcome
	Err        error
}

// Run executes the campaign, calling setup once per iteration to build the
// program's initial machines against the (freshly reset) Runtime.
func (c *Campaign) Run(setup func(*Runtime) error) (*CampaignResult, error) {
	iteration := 0
	for {
		if iteration > 0 {
			c.rt.sched.Reset(iteration)
		}
		if err := setup(c.rt); err != nil {
			return nil, pserrors.Wrap(pserrors.ConfigurationError, err, "psharp: campaign setup for iteration %d", iteration)
		}
		res := c.rt.Run()
		iteration++
		if res.Outcome == scheduler.OutcomeBug {
			return &CampaignResult{Iterations: iteration, Outcome: res.Outcome, Err: res.Err}, nil
		}
		if c.rt.cfg.MaxIterations > 0 && iteration >= c.rt.cfg.MaxIterations {
			return &CampaignResult{Iterations: iteration, Outcome: res.Outcome}, nil
		}
		if !c.rt.sched.PrepareNextIteration() {
			return &CampaignResult{Iterations: iteration, Outcome: res.Outcome}, nil
		}
	}
}

// ExportStateSpace renders the campaign's underlying Runtime's explored
// prefix tree as Newick text, when the active strategy keeps one.
func (c *Campaign) ExportStateSpace() (string, bool) { return c.rt.ExportStateSpace() }

// Build constructs the Assembly and the setup function (the test's initial
// create_machine calls) for one named, registered test program.
type Build func() (*Assembly, func(*Runtime) error)

var registry = make(map[string]Build)

// RegisterAssembly names build under name so cmd/pstest's --assembly flag
// can find it. Go has no dynamic module loading, so where the original
// runtime this is modeled on would load an external assembly file by path,
// this runtime's test binaries instead register every program they embed
// at init time and the CLI just looks the name up.
func RegisterAssembly(name string, build Build) {
	registry[name] = build
}

// LookupAssembly returns the Build registered under name, if any.
func LookupAssembly(name string) (Build, bool) {
	b, ok := registry[name]
	return b, ok
}

// StateStoreFor wraps inst with the Campaign/Runtime's configured reliable
// overlay, or returns nil if no StateStore was configured. Run and the
// await primitives already route every granted step of every instance
// through an equivalent overlay on their own (via Scheduler.Step); this
// exists for a caller that wants to step inst directly, outside Run, with
// the same durability.
func (rt *Runtime) StateStoreFor(inst *machine.Instance) *reliable.Overlay {
	if rt.cfg.Store == nil {
		return nil
	}
	return reliable.NewOverlay(inst, rt.cfg.Store, 0)
}

