package kernel

import "sync"

// OperationID is the caller-supplied handle for a registered thread of
// execution. The original C++ scheduler keys everything off a size_t;
// uint64 is the direct Go analogue and serializes cleanly over the HTTP
// transport adaptor.
type OperationID uint64

// Status is the lifecycle state of an Operation record.
type Status int

const (
	StatusNone Status = iota
	StatusEnabled
	StatusBlocked
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusEnabled:
		return "Enabled"
	case StatusBlocked:
		return "Blocked"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// JoinMode selects whether a wait over multiple targets is satisfied by any
// one of them completing/signalling, or only once all of them have.
type JoinMode int

const (
	JoinAny JoinMode = iota
	JoinAll
)

// joinWait records what a blocked operation is waiting for when it is
// parked on join_operation(s).
type joinWait struct {
	mode    JoinMode
	remain  map[OperationID]struct{}
}

// resourceWait records what a blocked operation is waiting for when it is
// parked on wait_resource(s).
type resourceWait struct {
	mode   JoinMode
	remain map[ResourceID]struct{}
}

// Operation is the per-thread record the kernel owns for every registered
// operation. All fields are mutable only while the kernel lock is held; the
// id is immutable for the operation's lifetime (it may be reused only after
// the prior incarnation reaches StatusCompleted, per create_operation's
// revival rule).
type Operation struct {
	id          OperationID
	status      Status
	isScheduled bool

	// cv is shared with the kernel's single mutex: waiting on it releases
	// the kernel lock and reacquires it on wake, exactly like the
	// std::condition_variable + std::mutex pairing in the original
	// scheduler and the permit-channel translation used by comparable
	// deterministic schedulers in the wild.
	cv *sync.Cond

	joiners map[OperationID]struct{}

	joinTarget     *joinWait
	waitingResources *resourceWait
}

func newOperation(id OperationID, mu *sync.Mutex) *Operation {
	return &Operation{
		id:      id,
		status:  StatusNone,
		cv:      sync.NewCond(mu),
		joiners: make(map[OperationID]struct{}),
	}
}

// reset returns a completed operation record to StatusNone so its id can be
// reused by a fresh create_operation call, per spec.md's revival rule (S4).
func (o *Operation) reset() {
	o.status = StatusNone
	o.isScheduled = false
	o.joinTarget = nil
	o.waitingResources = nil
	// joiners is intentionally left as-is: joiners is drained when the
	// prior incarnation completed, so it is already empty by the time a
	// reset is possible.
}

// joinOn records that this operation is now blocked waiting for targets to
// complete, under the given mode.
func (o *Operation) joinOn(targets []OperationID, mode JoinMode) {
	remain := make(map[OperationID]struct{}, len(targets))
	for _, t := range targets {
		remain[t] = struct{}{}
	}
	o.joinTarget = &joinWait{mode: mode, remain: remain}
	o.status = StatusBlocked
}

// onJoinComplete notifies this operation that target has completed. It
// returns true iff the operation's join predicate is now satisfied and it
// should be re-enabled.
func (o *Operation) onJoinComplete(target OperationID) bool {
	jt := o.joinTarget
	if jt == nil {
		return false
	}
	if _, waiting := jt.remain[target]; !waiting {
		return false
	}

	if jt.mode == JoinAny {
		o.joinTarget = nil
		o.status = StatusEnabled
		return true
	}

	delete(jt.remain, target)
	if len(jt.remain) == 0 {
		o.joinTarget = nil
		o.status = StatusEnabled
		return true
	}
	return false
}

// waitOn records that this operation is now blocked waiting for resources to
// be signalled, under the given mode.
func (o *Operation) waitOn(resources []ResourceID, mode JoinMode) {
	remain := make(map[ResourceID]struct{}, len(resources))
	for _, r := range resources {
		remain[r] = struct{}{}
	}
	o.waitingResources = &resourceWait{mode: mode, remain: remain}
	o.status = StatusBlocked
}

// onResourceSignal notifies this operation that resource has been signalled.
// It returns true iff the operation's wait predicate is now satisfied and it
// should be re-enabled.
func (o *Operation) onResourceSignal(resource ResourceID) bool {
	rw := o.waitingResources
	if rw == nil {
		return false
	}
	if _, waiting := rw.remain[resource]; !waiting {
		return false
	}

	if rw.mode == JoinAny {
		o.waitingResources = nil
		o.status = StatusEnabled
		return true
	}

	delete(rw.remain, resource)
	if len(rw.remain) == 0 {
		o.waitingResources = nil
		o.status = StatusEnabled
		return true
	}
	return false
}
