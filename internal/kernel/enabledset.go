package kernel

// EnabledSet is an ordered collection of operation ids with O(1) membership
// testing and a stable, deterministic traversal order. disable removes an
// id from the enabled view but keeps it a member (for deadlock detection —
// size(false) still counts it); remove erases it entirely.
//
// Order is insertion order: the first insert for a given id fixes its slot,
// and later enable/disable toggles never move it. This is the minimum
// contract spec.md §4.B asks for, and it is what makes a fixed strategy
// seed reproduce an identical schedule across runs.
type EnabledSet struct {
	order   []OperationID
	index   map[OperationID]int
	enabled map[OperationID]bool
}

func newEnabledSet() *EnabledSet {
	return &EnabledSet{
		index:   make(map[OperationID]int),
		enabled: make(map[OperationID]bool),
	}
}

// Insert adds id as an enabled member. Inserting an id that is already an
// enabled member is an internal error — the kernel never does this itself,
// so a caller hitting it indicates a bug in the kernel's own bookkeeping.
func (s *EnabledSet) Insert(id OperationID) error {
	_, present := s.index[id]
	if present && s.enabled[id] {
		return &Error{Code: InternalError}
	}
	if !present {
		s.index[id] = len(s.order)
		s.order = append(s.order, id)
	}
	s.enabled[id] = true
	return nil
}

// Enable flips id back into the enabled view. id must already be a member
// (inserted at some point); enabling a non-member is a no-op.
func (s *EnabledSet) Enable(id OperationID) {
	if _, present := s.index[id]; present {
		s.enabled[id] = true
	}
}

// Disable removes id from the enabled view while retaining membership.
func (s *EnabledSet) Disable(id OperationID) {
	if _, present := s.index[id]; present {
		s.enabled[id] = false
	}
}

// Remove erases id entirely.
func (s *EnabledSet) Remove(id OperationID) {
	idx, present := s.index[id]
	if !present {
		return
	}
	delete(s.index, id)
	delete(s.enabled, id)
	s.order = append(s.order[:idx:idx], s.order[idx+1:]...)
	for i := idx; i < len(s.order); i++ {
		s.index[s.order[i]] = i
	}
}

// Size returns the count of enabled members when enabledOnly is true, or
// the total membership (enabled and disabled) otherwise. The kernel
// distinguishes "schedule finished" (both zero) from "deadlocked" (total
// positive, enabled zero) using the difference between the two.
func (s *EnabledSet) Size(enabledOnly bool) int {
	if !enabledOnly {
		return len(s.order)
	}
	n := 0
	for _, id := range s.order {
		if s.enabled[id] {
			n++
		}
	}
	return n
}

// EnabledIDs returns the enabled members in their deterministic traversal
// order. The returned slice is a fresh copy, safe for the strategy to read
// without holding the kernel lock for the duration of its decision.
func (s *EnabledSet) EnabledIDs() []OperationID {
	ids := make([]OperationID, 0, len(s.order))
	for _, id := range s.order {
		if s.enabled[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clear empties the set entirely, used by detach.
func (s *EnabledSet) Clear() {
	s.order = nil
	s.index = make(map[OperationID]int)
	s.enabled = make(map[OperationID]bool)
}
