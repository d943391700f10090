// Package machine implements the state-definition registry and the
// per-actor runtime instance described by the machine object model: state
// hierarchy, event dispatch, the inbox, and the one-step execution loop the
// scheduler drives.
package machine

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// StateName identifies a state within a MachineType. Names are unique
// within a type; the empty string is never a valid state name.
type StateName string

// EntryFunc runs when a state is pushed onto the stack (initial entry or
// via goto/push).
type EntryFunc func(ctx Context)

// ExitFunc runs when a state is about to be popped (via pop or goto),
// before the pop takes effect.
type ExitFunc func(ctx Context, evt event.Event)

// ActionFunc runs a do-action handler for an event without changing the
// stack.
type ActionFunc func(ctx Context, evt event.Event)

// State is the metadata for one named state of a MachineType: its entry and
// exit handlers, its event-routing maps, and the deferred/ignored sets.
// Child states inherit their parent's maps, overriding on conflicting keys,
// per the state-hierarchy model.
type State struct {
	Name     StateName
	Parent   StateName
	IsStart  bool
	Entry    EntryFunc
	Exit     ExitFunc
	Actions  map[event.EventType]ActionFunc
	Gotos    map[event.EventType]StateName
	Pushes   map[event.EventType]StateName
	Deferred map[event.EventType]bool
	Ignored  map[event.EventType]bool
}

// flatHandlers is the memoized, parent-walked view of a state's handler
// maps: the union of every ancestor's maps with children taking priority.
type flatHandlers struct {
	actions  map[event.EventType]ActionFunc
	gotos    map[event.EventType]StateName
	pushes   map[event.EventType]StateName
	deferred map[event.EventType]bool
	ignored  map[event.EventType]bool
}

// MachineType is the reflection-free registry of a machine's state graph,
// built once via AddState and validated at registration time. It replaces
// attribute/decorator scanning with an explicit data structure that can be
// validated up front and handed to the Replay strategy unchanged.
type MachineType struct {
	Name   string
	states map[StateName]*State
	start  StateName

	flatMu sync.Mutex
	flat   map[StateName]*flatHandlers
}

// NewMachineType begins the registration of a machine type named name.
func NewMachineType(name string) *MachineType {
	return &MachineType{
		Name:   name,
		states: make(map[StateName]*State),
		flat:   make(map[StateName]*flatHandlers),
	}
}

// AddState registers one state's metadata. Maps left nil are treated as
// empty. Returns a ConfigurationError immediately for a duplicate name.
func (mt *MachineType) AddState(s State) error {
	if s.Name == "" {
		return pserrors.New(pserrors.ConfigurationError, "machine %s: state name must not be empty", mt.Name)
	}
	if _, exists := mt.states[s.Name]; exists {
		return pserrors.New(pserrors.ConfigurationError, "machine %s: duplicate state %q", mt.Name, s.Name)
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
	if s.Deferred == nil {
		s.Deferred = map[event.EventType]bool{}
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

// Validate checks the state graph for the ConfigurationError conditions
// named in the error-handling design: a missing start state, an unknown
// parent, an unknown goto/push target, or two handlers competing for the
// same event at the same inherited level.
func (mt *MachineType) Validate() error {
	if mt.start == "" {
		return pserrors.New(pserrors.ConfigurationError, "machine %s: no start state declared", mt.Name)
	}
	for name, s := range mt.states {
		if s.Parent != "" {
			if _, ok := mt.states[s.Parent]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q names unknown parent %q", mt.Name, name, s.Parent)
			}
		}
		for et, target := range s.Gotos {
			if _, ok := mt.states[target]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q goto on %q targets unknown state %q", mt.Name, name, et, target)
			}
			if _, dup := s.Actions[et]; dup {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q has both action and goto for event %q", mt.Name, name, et)
			}
			if _, dup := s.Pushes[et]; dup {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q has both goto and push for event %q", mt.Name, name, et)
			}
		}
		for et, target := range s.Pushes {
			if _, ok := mt.states[target]; !ok {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q push on %q targets unknown state %q", mt.Name, name, et, target)
			}
			if _, dup := s.Actions[et]; dup {
				return pserrors.New(pserrors.ConfigurationError, "machine %s: state %q has both action and push for event %q", mt.Name, name, et)
			}
		}
		if err := checkParentCycle(mt.states, name); err != nil {
			return err
		}
	}
	return nil
}

func checkParentCycle(states map[StateName]*State, start StateName) error {
	seen := map[StateName]bool{}
	cur := start
	for {
		if seen[cur] {
			return pserrors.New(pserrors.ConfigurationError, "state %q has a cyclic parent chain", start)
		}
		seen[cur] = true
		s := states[cur]
		if s.Parent == "" {
			return nil
		}
		cur = s.Parent
	}
}

// resolve returns the memoized, parent-walked handler map for state name.
func (mt *MachineType) resolve(name StateName) *flatHandlers {
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
		actions:  map[event.EventType]ActionFunc{},
		gotos:    map[event.EventType]StateName{},
		pushes:   map[event.EventType]StateName{},
		deferred: map[event.EventType]bool{},
		ignored:  map[event.EventType]bool{},
	}
	// Walk from the root ancestor down to name so children override parents.
	for i := len(chain) - 1; i >= 0; i-- {
		s := chain[i]
		maps.Copy(f.actions, s.Actions)
		maps.Copy(f.gotos, s.Gotos)
		maps.Copy(f.pushes, s.Pushes)
		maps.Copy(f.deferred, s.Deferred)
		maps.Copy(f.ignored, s.Ignored)
	}
	mt.flat[name] = f
	return f
}

func (mt *MachineType) state(name StateName) *State {
	return mt.states[name]
}

func (mt *MachineType) String() string {
	return fmt.Sprintf("MachineType(%s, %d states)", mt.Name, len(mt.states))
}
