// Package kernel implements the serializing scheduler kernel: the data
// structures and synchronization protocol that freeze a multi-threaded
// program under test into a sequence of single-stepped decisions. Exactly
// one registered operation ever runs application code between two kernel
// calls; every other operation is parked on its own condition variable,
// all of them sharing the kernel's single mutex.
package kernel

import (
	"errors"
	"sync"

	"github.com/weftsched/weft/internal/strategy"
)

// Kernel owns every piece of scheduler state: the operation table, the
// enabled set, the resource table, and the strategy it consults at every
// scheduling decision. A Kernel is an instance, not a singleton — a
// process may run several concurrently, each with its own mutex.
type Kernel struct {
	mu sync.Mutex

	cfg      strategy.Config
	strategy strategy.Strategy

	operations map[OperationID]*Operation
	enabled    *EnabledSet
	resources  map[ResourceID]*Resource

	scheduledID       OperationID
	pendingStartCount int
	pendingCond       *sync.Cond

	isAttached bool
	iteration  int
	mainID     OperationID
	lastError  ErrorCode
}

// New constructs a Kernel for the given strategy configuration. A
// configuration with Type == strategy.None builds successfully but leaves
// the kernel permanently disabled: every entry point that returns an
// ErrorCode returns SchedulerDisabled, and NextBoolean, NextInteger and
// RandomSeed return zero values, without ever touching the strategy.
func New(cfg strategy.Config) (*Kernel, error) {
	k := &Kernel{
		cfg:        cfg,
		operations: make(map[OperationID]*Operation),
		resources:  make(map[ResourceID]*Resource),
		enabled:    newEnabledSet(),
		mainID:     OperationID(0),
	}
	k.pendingCond = sync.NewCond(&k.mu)

	if cfg.Type != strategy.None {
		s, err := strategy.New(cfg)
		if err != nil {
			return nil, err
		}
		k.strategy = s
	}
	return k, nil
}

// Disabled reports whether this kernel was configured with
// exploration_strategy == None.
func (k *Kernel) Disabled() bool {
	return k.cfg.Type == strategy.None
}

// fail records err's code on lastError and returns it. err is always a
// *Error produced by this package; anything else is a programmer mistake,
// mapped defensively to InternalError rather than panicking.
func (k *Kernel) fail(err error) ErrorCode {
	var kerr *Error
	if errors.As(err, &kerr) {
		k.lastError = kerr.Code
		return kerr.Code
	}
	k.lastError = InternalError
	return InternalError
}

func toStrategyIDs(ids []OperationID) []strategy.OperationID {
	out := make([]strategy.OperationID, len(ids))
	for i, id := range ids {
		out[i] = strategy.OperationID(id)
	}
	return out
}

// Attach is the initial call per iteration: it resets per-iteration state,
// advances the strategy to the next iteration (from the second onward),
// and creates+starts the main operation so that it holds the token on
// return.
func (k *Kernel) Attach() ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.isAttached {
		k.lastError = ClientAttached
		return ClientAttached
	}

	k.isAttached = true
	k.iteration++
	k.lastError = Success

	if k.iteration > 1 {
		k.strategy.PrepareNextIteration(k.iteration)
	}

	if err := k.createOperationInner(k.mainID); err != nil {
		return k.fail(err)
	}
	if err := k.startOperationInner(k.mainID); err != nil {
		return k.fail(err)
	}

	k.lastError = Success
	return Success
}

// Detach ends the current iteration: it completes and disables every
// operation, wakes anything parked so it unwinds with ClientNotAttached,
// and clears all kernel maps for the next attach.
func (k *Kernel) Detach() ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	k.isAttached = false

	for _, op := range k.operations {
		if op.status != StatusCompleted {
			op.status = StatusCompleted
			k.enabled.Disable(op.id)
		}
		// Every operation's wakeup is signalled regardless of status: a
		// parked goroutine (waiting its turn as either a joiner or a
		// displaced token holder) must be woken so it can observe
		// is_attached == false and unwind with ClientNotAttached. This
		// includes the main operation itself, which can be parked here
		// exactly like any other if it gave up the token via a join or a
		// resource wait before detaching.
		op.isScheduled = true
		op.cv.Broadcast()
	}

	k.operations = make(map[OperationID]*Operation)
	k.enabled.Clear()
	k.resources = make(map[ResourceID]*Resource)
	k.pendingStartCount = 0
	k.pendingCond.Broadcast()

	k.lastError = Success
	return Success
}

// createOperationInner inserts a fresh or revived Operation record and
// bumps pending_start_count. It performs a single insertion — the
// reference implementation's double insertion (spec.md §9 Open Questions)
// is treated as the bug it is.
func (k *Kernel) createOperationInner(id OperationID) error {
	op, exists := k.operations[id]
	if !exists {
		op = newOperation(id, &k.mu)
		k.operations[id] = op
		if len(k.operations) == 1 {
			k.scheduledID = id
			op.isScheduled = true
		}
	} else if op.status == StatusCompleted {
		op.reset()
	} else {
		return &Error{Code: DuplicateOperation}
	}

	k.pendingStartCount++
	return nil
}

// CreateOperation registers a new operation with the kernel, or revives a
// previously completed id back to StatusNone.
func (k *Kernel) CreateOperation(id OperationID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}
	if id == k.mainID {
		k.lastError = MainOperationExplicitlyCreated
		return MainOperationExplicitlyCreated
	}

	if err := k.createOperationInner(id); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// startOperationInner transitions id to Enabled, inserts it into the
// enabled set, and parks the calling goroutine until the strategy grants
// it the token. Must be called with k.mu held.
func (k *Kernel) startOperationInner(id OperationID) error {
	op, exists := k.operations[id]
	if !exists {
		return &Error{Code: NotExistingOperation}
	}
	if op.status == StatusCompleted {
		return &Error{Code: OperationAlreadyCompleted}
	}
	if op.status != StatusNone {
		return &Error{Code: OperationAlreadyStarted}
	}

	k.pendingStartCount--
	if k.pendingStartCount == 0 {
		k.pendingCond.Broadcast()
	}

	op.status = StatusEnabled
	if err := k.enabled.Insert(id); err != nil {
		return err
	}

	op.cv.Broadcast()
	for !op.isScheduled {
		op.cv.Wait()
		if !k.isAttached {
			return &Error{Code: ClientNotAttached}
		}
	}
	return nil
}

// StartOperation starts a previously created operation and blocks the
// calling goroutine until the strategy hands it the token.
func (k *Kernel) StartOperation(id OperationID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}
	if id == k.mainID {
		k.lastError = MainOperationExplicitlyStarted
		return MainOperationExplicitlyStarted
	}

	if err := k.startOperationInner(id); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// JoinOperation blocks the caller until target completes, or returns
// immediately if target has already completed or does not exist as a
// pending wait (it must exist as a registered operation, though).
func (k *Kernel) JoinOperation(target OperationID) ErrorCode {
	return k.joinOperations([]OperationID{target}, JoinAll)
}

// JoinOperations blocks the caller on a set of targets under the given
// mode (JoinAny: unblocks on the first completion; JoinAll: unblocks only
// once every target has completed).
func (k *Kernel) JoinOperations(ids []OperationID, mode JoinMode) ErrorCode {
	return k.joinOperations(ids, mode)
}

func (k *Kernel) joinOperations(ids []OperationID, mode JoinMode) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	pending := make([]OperationID, 0, len(ids))
	for _, id := range ids {
		op, exists := k.operations[id]
		if !exists {
			k.lastError = NotExistingOperation
			return NotExistingOperation
		}
		if op.status != StatusCompleted {
			pending = append(pending, id)
		}
	}

	if len(pending) == 0 {
		k.lastError = Success
		return Success
	}

	caller := k.operations[k.scheduledID]
	for _, id := range pending {
		k.operations[id].joiners[k.scheduledID] = struct{}{}
	}
	caller.joinOn(pending, mode)
	k.enabled.Disable(caller.id)

	if err := k.scheduleNextInner(); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// CompleteOperation marks id as completed, wakes any joiners whose
// predicate is now satisfied, and passes the token to the next enabled
// operation.
func (k *Kernel) CompleteOperation(id OperationID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}
	if id == k.mainID {
		k.lastError = MainOperationExplicitlyCompleted
		return MainOperationExplicitlyCompleted
	}

	op, exists := k.operations[id]
	if !exists {
		k.lastError = NotExistingOperation
		return NotExistingOperation
	}
	if op.status == StatusCompleted {
		k.lastError = OperationAlreadyCompleted
		return OperationAlreadyCompleted
	}
	if op.status == StatusNone {
		k.lastError = OperationNotStarted
		return OperationNotStarted
	}

	op.status = StatusCompleted
	k.enabled.Remove(op.id)

	for joinerID := range op.joiners {
		joiner, exists := k.operations[joinerID]
		if !exists {
			continue
		}
		if joiner.onJoinComplete(id) {
			k.enabled.Enable(joiner.id)
		}
	}
	op.joiners = make(map[OperationID]struct{})

	if err := k.scheduleNextInner(); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// CreateResource registers a new waitable resource.
func (k *Kernel) CreateResource(id ResourceID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}
	if _, exists := k.resources[id]; exists {
		k.lastError = DuplicateResource
		return DuplicateResource
	}

	k.resources[id] = newResource(id)
	k.lastError = Success
	return Success
}

// DeleteResource removes a resource. Any operation currently blocked on it
// is left blocked — deleting a resource out from under waiters is a
// misuse the caller is responsible for avoiding, per the round-trip law in
// spec.md §8 ("create_resource; delete_resource restores the resource
// table to its prior state").
func (k *Kernel) DeleteResource(id ResourceID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}
	if _, exists := k.resources[id]; !exists {
		k.lastError = NotExistingResource
		return NotExistingResource
	}

	delete(k.resources, id)
	k.lastError = Success
	return Success
}

// WaitResource blocks the caller until res is signalled.
func (k *Kernel) WaitResource(res ResourceID) ErrorCode {
	return k.waitResources([]ResourceID{res}, JoinAll)
}

// WaitResources blocks the caller on a set of resources under the given
// mode.
func (k *Kernel) WaitResources(ids []ResourceID, mode JoinMode) ErrorCode {
	return k.waitResources(ids, mode)
}

func (k *Kernel) waitResources(ids []ResourceID, mode JoinMode) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	for _, id := range ids {
		if _, exists := k.resources[id]; !exists {
			k.lastError = NotExistingResource
			return NotExistingResource
		}
	}

	caller := k.operations[k.scheduledID]
	caller.waitOn(ids, mode)
	k.enabled.Disable(caller.id)
	for _, id := range ids {
		k.resources[id].addBlocked(caller.id)
	}

	if err := k.scheduleNextInner(); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// SignalResource wakes every operation blocked on res whose wait predicate
// is now satisfied, and clears res's blocked set. The signaller keeps the
// token.
func (k *Kernel) SignalResource(res ResourceID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	r, exists := k.resources[res]
	if !exists {
		k.lastError = NotExistingResource
		return NotExistingResource
	}

	for _, opID := range r.blockedIDs() {
		op, exists := k.operations[opID]
		if !exists {
			continue
		}
		if op.onResourceSignal(res) {
			k.enabled.Enable(op.id)
		}
	}
	r.clearBlocked()

	k.lastError = Success
	return Success
}

// SignalResourceTo wakes at most one specific operation blocked on res.
// The signaller keeps the token.
func (k *Kernel) SignalResourceTo(res ResourceID, target OperationID) ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	r, exists := k.resources[res]
	if !exists {
		k.lastError = NotExistingResource
		return NotExistingResource
	}

	if _, blocked := r.blocked[target]; blocked {
		if op, exists := k.operations[target]; exists {
			if op.onResourceSignal(res) {
				k.enabled.Enable(op.id)
			}
		}
		r.removeBlocked(target)
	}

	k.lastError = Success
	return Success
}

// scheduleNextInner is the heart of the kernel: it waits out any pending
// start race, detects exhaustion/deadlock, asks the strategy for the next
// operation, and performs the handoff. Must be called with k.mu held.
func (k *Kernel) scheduleNextInner() error {
	for k.pendingStartCount > 0 {
		k.pendingCond.Wait()
		if !k.isAttached {
			return &Error{Code: ClientNotAttached}
		}
	}

	if k.enabled.Size(true) == 0 {
		if k.enabled.Size(false) > 0 {
			return &Error{Code: DeadlockDetected}
		}
		return &Error{Code: Success}
	}

	enabledIDs := toStrategyIDs(k.enabled.EnabledIDs())
	nextID, err := k.strategy.NextOperation(enabledIDs, strategy.OperationID(k.scheduledID))
	if err != nil {
		return &Error{Code: InternalError}
	}

	prevID := k.scheduledID
	k.scheduledID = OperationID(nextID)

	if k.scheduledID != prevID {
		nextOp, exists := k.operations[k.scheduledID]
		if !exists {
			return &Error{Code: InternalError}
		}
		nextOp.isScheduled = true
		nextOp.cv.Broadcast()

		prevOp, exists := k.operations[prevID]
		if exists && prevOp.status != StatusCompleted {
			prevOp.isScheduled = false
			for !prevOp.isScheduled {
				prevOp.cv.Wait()
				if !k.isAttached {
					return &Error{Code: ClientNotAttached}
				}
			}
		}
	}

	return nil
}

// ScheduleNext asks the strategy to pick the next operation to run and
// performs the handoff, or reports Success (schedule exhausted) or
// DeadlockDetected.
func (k *Kernel) ScheduleNext() ErrorCode {
	if k.Disabled() {
		return SchedulerDisabled
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.isAttached {
		k.lastError = ClientNotAttached
		return ClientNotAttached
	}

	if err := k.scheduleNextInner(); err != nil {
		return k.fail(err)
	}
	k.lastError = Success
	return Success
}

// NextBoolean, NextInteger, and RandomSeed delegate directly to the
// strategy. spec.md §5 notes these need no locking because only the token
// holder ever calls them; this implementation still takes the kernel lock
// briefly so that `go test -race` sees the synchronization explicitly —
// the critical section is negligible and the observable behavior is
// unchanged.
func (k *Kernel) NextBoolean() bool {
	if k.Disabled() {
		return false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.strategy.NextBoolean()
}

func (k *Kernel) NextInteger(max int) int {
	if k.Disabled() {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.strategy.NextInteger(max)
}

func (k *Kernel) RandomSeed() uint64 {
	if k.Disabled() {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.strategy.RandomSeed()
}

// ScheduledOperationID returns the id of the operation currently holding
// the token.
func (k *Kernel) ScheduledOperationID() OperationID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.scheduledID
}

// LastError returns the error code recorded by the most recent entry
// point call.
func (k *Kernel) LastError() ErrorCode {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastError
}
