package reliable

import (
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/machine"
	"github.com/psharp-go/psharp/pserrors"
)

// Environment is the subset of machine.Environment the overlay needs to
// drive one underlying step; scheduler.Scheduler satisfies it.
type Environment = machine.Environment

// Overlay wraps one machine instance with a durability boundary: every call
// to Step first moves any durably-queued inbox events into the in-memory
// inbox (each dequeue committed in its own transaction), runs the underlying
// step, and then commits the new state stack in one transaction; the live
// inbox is not written back to the store. A TransientStorageFailure on
// Commit starts another attempt, until MaxRetries commits have failed; an
// attempt neither rolls the instance back nor re-reads the stored stack, and
// the step's buffered side effects are kept rather than discarded (see
// Step). Any other commit error is fatal. Grounded on spec.md §4.6's "begin
// transaction, run step, durable write set, commit-or-retry" shape, which
// has no analogue in GoMC (the teacher's state machines are entirely
// in-memory); the transaction/retry wiring here follows
// dogmatiq/verity's persistence-provider-backed aggregate root, the nearest
// durable-actor pattern among the retrieval pack's event-sourcing libraries.
type Overlay struct {
	Instance   *machine.Instance
	Store      StateStore
	MaxRetries int
}

// NewOverlay wraps inst with durability backed by store. maxRetries<=0
// means retry indefinitely on TransientStorageFailure.
func NewOverlay(inst *machine.Instance, store StateStore, maxRetries int) *Overlay {
	return &Overlay{Instance: inst, Store: store, MaxRetries: maxRetries}
}

// Step runs exactly one durable step of the wrapped instance: it drains the
// store's persistent inbox into the instance's live inbox, steps behind a
// bufferedEnv that queues every send/create the handler issues, and commits
// the resulting stack durably before any of those queued calls reach the
// rest of the system. On a transient commit failure the same instance and
// the same bufferedEnv are used again: the durable inbox is drained again,
// Instance.Step runs again (usually a no-op, since the instance already
// advanced on the failed attempt), and the current stack is written and
// committed again. The in-memory instance is neither rolled back nor rebuilt
// from the stored stack, and the buffered calls are flushed once, after the
// first commit that succeeds; if the retries run out they are never
// flushed. A send produced during the step and destined for
// another Overlay-wrapped instance is durable only once its sender's
// Environment routes DeliverSend through EnqueueDurable before that peer's
// own Step observes it; Step itself only owns this instance's stack and
// inbox.
func (o *Overlay) Step(env Environment) error {
	// One bufferedEnv spans every attempt of this call: a retried Step is
	// frequently a no-op (the instance already dequeued and advanced on the
	// attempt whose commit failed), so the queued send/create from that
	// earlier attempt must survive to be flushed once a later attempt's
	// commit actually succeeds, rather than being discarded with it.
	buffered := &bufferedEnv{Environment: env}
	attempt := 0
	for {
		if err := o.drainDurableInbox(); err != nil {
			return err
		}

		stepErr := o.Instance.Step(buffered)

		tx, err := o.Store.Begin(o.Instance.Id)
		if err != nil {
			return pserrors.Wrap(pserrors.TransientStorageFailure, err, "reliable: begin tx for %s", o.Instance.Id)
		}
		if err := o.Store.WriteStack(tx, o.Instance.Id, o.Instance.StackSnapshot()); err != nil {
			tx.Rollback()
			return multierr.Append(stepErr, pserrors.Wrap(pserrors.InternalError, err, "reliable: write stack"))
		}

		commitErr := tx.Commit()
		if commitErr == nil {
			if err := buffered.flush(); err != nil {
				return multierr.Append(stepErr, err)
			}
			return stepErr
		}
		if !pserrors.IsTransient(commitErr) {
			tx.Rollback()
			return multierr.Append(stepErr, commitErr)
		}

		attempt++
		if o.MaxRetries > 0 && attempt >= o.MaxRetries {
			return pserrors.Wrap(pserrors.TransientStorageFailure, commitErr, "reliable: exhausted %d retries for %s", o.MaxRetries, o.Instance.Id)
		}
	}
}

// bufferedEnv decorates an Environment so that every send/create a step
// issues is queued instead of applied immediately: peers must not observe
// them until the step that produced them has durably committed. Every other
// Environment method (random choices, monitor invocation, id allocation,
// trace) passes straight through via embedding, since only send/create are
// the "out-of-transaction work" spec.md §4.6 asks to be buffered.
type bufferedEnv struct {
	Environment
	sends   []bufferedSend
	creates []bufferedCreate
}

type bufferedSend struct {
	target event.MachineId
	envl   event.EventEnvelope
	opts   event.SendOptions
}

type bufferedCreate struct {
	id       event.MachineId
	typeName string
	initial  *event.Event
	creator  event.MachineId
	opGroup  uuid.UUID
}

func (b *bufferedEnv) DeliverSend(target event.MachineId, envl event.EventEnvelope, opts event.SendOptions) error {
	b.sends = append(b.sends, bufferedSend{target: target, envl: envl, opts: opts})
	return nil
}

func (b *bufferedEnv) DeliverCreate(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) {
	b.creates = append(b.creates, bufferedCreate{id: id, typeName: typeName, initial: initial, creator: creator, opGroup: opGroup})
}

// flush forwards every buffered call to the real Environment, in the order
// the step issued them, once the step's commit has succeeded.
func (b *bufferedEnv) flush() error {
	var err error
	for _, s := range b.sends {
		if e := b.Environment.DeliverSend(s.target, s.envl, s.opts); e != nil {
			err = multierr.Append(err, e)
		}
	}
	for _, c := range b.creates {
		b.Environment.DeliverCreate(c.id, c.typeName, c.initial, c.creator, c.opGroup)
	}
	return err
}

// drainDurableInbox moves every event the store holds for this instance
// into its live inbox, so a restarted or retried instance sees exactly the
// events it would have seen had it never lost in-memory state.
func (o *Overlay) drainDurableInbox() error {
	for {
		tx, err := o.Store.Begin(o.Instance.Id)
		if err != nil {
			return pserrors.Wrap(pserrors.TransientStorageFailure, err, "reliable: begin tx to drain inbox for %s", o.Instance.Id)
		}
		envl, ok, err := o.Store.DequeueInbox(tx, o.Instance.Id)
		if err != nil {
			tx.Rollback()
			return pserrors.Wrap(pserrors.InternalError, err, "reliable: dequeue durable inbox")
		}
		if !ok {
			tx.Rollback()
			return nil
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		o.Instance.Inbox().Enqueue(envl)
	}
}

// EnqueueDurable records env durably for target before it is ever visible
// to target's live inbox, so a send survives a crash between enqueue and
// delivery. scheduler.Scheduler.DeliverSend does not call it: with a
// StateStore configured, a send still goes straight into the target's live
// inbox.
func EnqueueDurable(store StateStore, target event.MachineId, envl event.EventEnvelope) error {
	tx, err := store.Begin(target)
	if err != nil {
		return pserrors.Wrap(pserrors.TransientStorageFailure, err, "reliable: begin tx to enqueue durable send to %s", target)
	}
	if err := store.EnqueueInbox(tx, target, envl); err != nil {
		tx.Rollback()
		return pserrors.Wrap(pserrors.InternalError, err, "reliable: enqueue durable inbox")
	}
	return tx.Commit()
}
