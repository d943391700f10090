// Package monitor implements specification monitors: state machines driven
// synchronously from the invoking machine's step, with no inbox and no
// scheduling decision, used to express safety and liveness properties.
// Built in the idiom of the machine package's Instance, minus inbox and
// scheduling, since GoMC itself has no synchronous specification-monitor
// concept to ground this on.
package monitor

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// StateName identifies a state within a MonitorType.
type StateName string

// EntryFunc runs when a monitor state is entered.
type EntryFunc func(ctx Context)

// ExitFunc runs when a monitor state is about to be exited.
type ExitFunc func(ctx Context)

// ActionFunc runs a do-action handler for an event without changing the
// monitor's stack.
type ActionFunc func(ctx Context, evt event.Event)

// State is one monitor state's metadata. Hot marks a liveness-sensitive
// state: if the monitor is still in a Hot state at the end of a
// fairness-bounded run, a liveness bug is reported. Cold marks a state
// that discharges any pending liveness obligation.
type State struct {
	Name     StateName
	Parent   StateName
	IsStart  bool
	Hot      bool
	Cold     bool
	Entry    EntryFunc
	Exit     ExitFunc
	Actions  map[event.EventType]ActionFunc
	Gotos    map[event.EventType]StateName
	Pushes   map[event.EventType]StateName
	Ignored  map[event.EventType]bool
}

type flatHandlers struct {
	actions map[event.EventType]ActionFunc
	gotos   map[event.EventType]StateName
	pushes  map[event.EventType]StateName
	ignored map[event.EventType]bool
}

// MonitorType is the registry of a monitor's state graph, built via
// AddState and validated at registration time, mirroring
// machine.MachineType.
type MonitorType struct {
	Name   string
	states map[StateName]*State
	start  StateName

	flatMu sync.Mutex
	flat   map[StateName]*flatHandlers
}

// NewMonitorType begins registration of a monitor type named name.
func NewMonitorType(name string) *MonitorType {
	return &MonitorType{
		Name:   name,
		states: make(map[StateName]*State),
		flat:   make(map[StateName]*flatHandlers),
	}
}

// AddState registers one state's metadata.
func (mt *MonitorType) AddState(s State) error {
	if s.Name == "" {
		return pserrors.New(pserrors.ConfigurationError, "monitor %s: state name must not be empty", mt.Name)
	}
	if _, exists := mt.states[s.Name]; exists {
		return pserrors.New(pserrors.ConfigurationError, "monitor %s: duplicate state %q", mt.Name, s.Name)
	}
	if s.Hot && s.Cold {
		return pserrors.New(pserrors.ConfigurationError, "monitor %s: state %q cannot be both hot and cold", mt.Name, s.Name)
	}
	if s.Actions == nil {
		s.Actions = map[event.EventType]ActionFunc{}
	}
	if s.Gotos == nil {
		s.Gotos = map[event.EventType]StateName{}
	}
	if s.Pushes == nil {
		s.Pushes = map[event.EventType]StateName{}
	}
	if s.Ignored == nil {
		s.Ignored = map[event.EventType]bool{}
	}
	cp := s
	mt.states[s.Name] = &cp
	if s.IsStart {
		mt.start = s.Name
	}
	return nil
}

// Validate checks for a missing start state, an unknown parent, and an
// unknown goto/push target. Unlike machine.MachineType.Validate, it does not
// reject competing handlers for one event or a cyclic parent chain.
func (mt *MonitorType) Validate() error {
	if mt.start == "" {
		return pserrors.New(pserrors.ConfigurationError, "monitor %s: no start state declared", mt.Name)
	}
	for name, s := range mt.states {
		if s.Parent != "" {
			if _, ok := mt.states[s.Parent]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "monitor %s: state %q names unknown parent %q", mt.Name, name, s.Parent)
			}
		}
		for et, target := range s.Gotos {
			if _, ok := mt.states[target]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "monitor %s: state %q goto on %q targets unknown state %q", mt.Name, name, et, target)
			}
		}
		for et, target := range s.Pushes {
			if _, ok := mt.states[target]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "monitor %s: state %q push on %q targets unknown state %q", mt.Name, name, et, target)
			}
		}
	}
	return nil
}

func (mt *MonitorType) resolve(name StateName) *flatHandlers {
	mt.flatMu.Lock()
	defer mt.flatMu.Unlock()
	if f, ok := mt.flat[name]; ok {
		return f
	}
	var chain []*State
	for cur := name; cur != ""; {
		s := mt.states[cur]
		if s == nil {
			break
		}
		chain = append(chain, s)
		cur = s.Parent
	}
	f := &flatHandlers{
		actions: map[event.EventType]ActionFunc{},
		gotos:   map[event.EventType]StateName{},
		pushes:  map[event.EventType]StateName{},
		ignored: map[event.EventType]bool{},
	}
	for i := len(chain) - 1; i >= 0; i-- {
		s := chain[i]
		maps.Copy(f.actions, s.Actions)
		maps.Copy(f.gotos, s.Gotos)
		maps.Copy(f.pushes, s.Pushes)
		maps.Copy(f.ignored, s.Ignored)
	}
	mt.flat[name] = f
	return f
}

func (mt *MonitorType) state(name StateName) *State { return mt.states[name] }
