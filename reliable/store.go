// Package reliable implements the reliable-state-machine overlay: a
// transactional wrapper around one step of one machine, backed by an
// abstract StateStore, that holds back a step's sends and creates until its
// stack write commits and retries that commit on a transient storage
// failure. GoMC has
// no transactional storage layer of its own; the shape here (begin/commit,
// retry-on-conflict, "all or nothing" durability) is grounded on
// dogmatiq/verity's persistence-provider abstraction, the nearest analogue
// in the full retrieval pack, with a package-local in-memory StateStore per
// spec.md's explicit design note to provide one for tests.
package reliable

import (
	"sync"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/machine"
	"github.com/psharp-go/psharp/pserrors"
)

// Tx is a handle to an open transaction against a StateStore.
type Tx interface {
	// Commit finalizes the transaction. A TransientStorageFailure error
	// marks a failure that Overlay.Step retries; any other error is a
	// fatal storage error.
	Commit() error
	// Rollback discards the transaction without applying anything.
	Rollback()
}

// StateStore is the abstract persistence boundary the overlay writes
// through: a transaction factory, a persistent ordered stack of state
// names per machine, and a persistent FIFO inbox per machine.
type StateStore interface {
	Begin(id event.MachineId) (Tx, error)

	// ReadStack returns the durable state stack for id, or a single-entry
	// stack naming startState if none has been written yet.
	ReadStack(id event.MachineId, startState machine.StateName) ([]machine.StateName, error)
	// WriteStack durably replaces id's state stack within tx.
	WriteStack(tx Tx, id event.MachineId, stack []machine.StateName) error

	// DequeueInbox durably pops and returns the head of id's persistent
	// inbox within tx, or ok=false if it is empty.
	DequeueInbox(tx Tx, id event.MachineId) (event.EventEnvelope, bool, error)
	// EnqueueInbox durably appends env to target's persistent inbox
	// within tx.
	EnqueueInbox(tx Tx, target event.MachineId, env event.EventEnvelope) error
}

// InMemoryStore is a StateStore backed by process memory, used by the
// tests. A Runtime built without psoptions.WithStateStore uses no
// StateStore at all.
type InMemoryStore struct {
	mu     sync.Mutex
	stacks map[event.MachineId][]machine.StateName
	inbox  map[event.MachineId][]event.EventEnvelope

	// failNextCommit, when non-zero for a given machine, causes the next
	// Commit on that machine's transaction to fail with
	// TransientStorageFailure and decrements the counter. Used to drive
	// the reliable-retry scenario in tests without a real storage fault.
	failNextCommit map[event.MachineId]int
}

// NewInMemoryStore creates an empty in-memory StateStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		stacks:         make(map[event.MachineId][]machine.StateName),
		inbox:          make(map[event.MachineId][]event.EventEnvelope),
		failNextCommit: make(map[event.MachineId]int),
	}
}

// InjectTransientFailure arranges for the next n commits of id's step to
// fail with TransientStorageFailure.
func (s *InMemoryStore) InjectTransientFailure(id event.MachineId, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit[id] = n
}

type memTx struct {
	store    *InMemoryStore
	id       event.MachineId
	writes   func()
	rolled   bool
}

func (t *memTx) Commit() error {
	t.store.mu.Lock()
	if n := t.store.failNextCommit[t.id]; n > 0 {
		t.store.failNextCommit[t.id] = n - 1
		t.store.mu.Unlock()
		return pserrors.New(pserrors.TransientStorageFailure, "in-memory store: injected commit failure for %s", t.id)
	}
	t.store.mu.Unlock()
	if t.writes != nil {
		t.writes()
	}
	return nil
}

func (t *memTx) Rollback() { t.rolled = true }

func (s *InMemoryStore) Begin(id event.MachineId) (Tx, error) {
	return &memTx{store: s, id: id}, nil
}

func (s *InMemoryStore) ReadStack(id event.MachineId, startState machine.StateName) ([]machine.StateName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stk, ok := s.stacks[id]; ok {
		out := make([]machine.StateName, len(stk))
		copy(out, stk)
		return out, nil
	}
	return []machine.StateName{startState}, nil
}

func (s *InMemoryStore) WriteStack(tx Tx, id event.MachineId, stack []machine.StateName) error {
	mt, ok := tx.(*memTx)
	if !ok {
		return pserrors.New(pserrors.InternalError, "reliable: foreign Tx passed to InMemoryStore")
	}
	snapshot := make([]machine.StateName, len(stack))
	copy(snapshot, stack)
	prev := mt.writes
	mt.writes = func() {
		if prev != nil {
			prev()
		}
		s.mu.Lock()
		s.stacks[id] = snapshot
		s.mu.Unlock()
	}
	return nil
}

func (s *InMemoryStore) DequeueInbox(tx Tx, id event.MachineId) (event.EventEnvelope, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.inbox[id]
	if len(q) == 0 {
		return event.EventEnvelope{}, false, nil
	}
	head := q[0]
	mt, ok := tx.(*memTx)
	if !ok {
		return event.EventEnvelope{}, false, pserrors.New(pserrors.InternalError, "reliable: foreign Tx passed to InMemoryStore")
	}
	prev := mt.writes
	mt.writes = func() {
		if prev != nil {
			prev()
		}
		s.mu.Lock()
		if len(s.inbox[id]) > 0 {
			s.inbox[id] = s.inbox[id][1:]
		}
		s.mu.Unlock()
	}
	return head, true, nil
}

func (s *InMemoryStore) EnqueueInbox(tx Tx, target event.MachineId, env event.EventEnvelope) error {
	mt, ok := tx.(*memTx)
	if !ok {
		return pserrors.New(pserrors.InternalError, "reliable: foreign Tx passed to InMemoryStore")
	}
	prev := mt.writes
	mt.writes = func() {
		if prev != nil {
			prev()
		}
		s.mu.Lock()
		s.inbox[target] = append(s.inbox[target], env)
		s.mu.Unlock()
	}
	return nil
}
