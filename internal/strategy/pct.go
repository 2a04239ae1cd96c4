package strategy

import "math/rand/v2"

// pctStrategy implements Probabilistic Concurrency Testing: it assigns a
// random priority to every operation the first time it becomes enabled,
// and at a small number of randomly chosen step indices ("change points")
// it demotes whichever operation currently holds the highest priority to
// the back of the list. A bug that requires d specific orderings is found
// with probability at least 1/(n*k^(d-1)) where n is the number of steps
// and k is the number of operations — see spec.md §4.E.
//
// This is a direct translation of coyote's PCTStrategy: priority list as a
// doubly-linked ordering (here a slice), known-operations set, and a set of
// change points re-shuffled via Fisher-Yates at the start of every
// iteration but the first.
type pctStrategy struct {
	rng           *rand.Rand
	iterationSeed uint64
	baseSeed      uint64

	maxPrioritySwitches uint

	priorityList []OperationID
	knownOps     map[OperationID]struct{}
	changePoints map[int]struct{}

	scheduledSteps int
	scheduleLength int
}

func newPCTStrategy(seed uint64, maxPrioritySwitches uint) *pctStrategy {
	return &pctStrategy{
		rng:                 rand.New(rand.NewPCG(seed, seed)),
		iterationSeed:       seed,
		baseSeed:            seed,
		maxPrioritySwitches: maxPrioritySwitches,
		knownOps:            make(map[OperationID]struct{}),
		changePoints:        make(map[int]struct{}),
	}
}

// NextOperation implements the decision procedure of spec.md §4.E steps 1-4.
func (s *pctStrategy) NextOperation(enabled []OperationID, current OperationID) (OperationID, error) {
	if len(enabled) == 0 {
		return 0, errInternal("NextOperation called with empty enabled set")
	}

	s.assignNewPriorities(enabled, current)
	s.considerPriorityChange(enabled)
	s.scheduledSteps++

	return s.highestPriorityEnabled(enabled)
}

// assignNewPriorities is step 1: seed the priority list with current if it
// is still empty, then give every enabled id not yet known a uniformly
// random rank in [1, len(priorityList)] (never preempting position 0,
// which belongs to whichever operation was already on top).
func (s *pctStrategy) assignNewPriorities(enabled []OperationID, current OperationID) {
	if len(s.priorityList) == 0 {
		s.priorityList = append(s.priorityList, current)
		s.knownOps[current] = struct{}{}
	}

	for _, id := range enabled {
		if _, known := s.knownOps[id]; known {
			continue
		}

		// Index in [1, len(priorityList)], inclusive of the tail slot —
		// advanceable to end() but never beyond, per spec.md §9.
		idx := 1 + s.rng.IntN(len(s.priorityList))
		s.priorityList = insertAt(s.priorityList, idx, id)
		s.knownOps[id] = struct{}{}
	}
}

// considerPriorityChange is step 2: if there is more than one enabled
// operation and the current step is a scheduled change point, demote the
// currently highest-priority enabled operation to the tail of the list.
func (s *pctStrategy) considerPriorityChange(enabled []OperationID) {
	if len(enabled) <= 1 {
		return
	}
	if _, isChangePoint := s.changePoints[s.scheduledSteps]; !isChangePoint {
		return
	}

	top, err := s.highestPriorityEnabled(enabled)
	if err != nil {
		return
	}
	s.priorityList = removeID(s.priorityList, top)
	s.priorityList = append(s.priorityList, top)
}

// highestPriorityEnabled is step 4: scan the priority list front-to-back
// and return the first id that is also present in enabled.
func (s *pctStrategy) highestPriorityEnabled(enabled []OperationID) (OperationID, error) {
	enabledSet := make(map[OperationID]struct{}, len(enabled))
	for _, id := range enabled {
		enabledSet[id] = struct{}{}
	}
	for _, id := range s.priorityList {
		if _, ok := enabledSet[id]; ok {
			return id, nil
		}
	}
	return 0, errInternal("no priority-list entry is enabled")
}

func (s *pctStrategy) NextBoolean() bool {
	s.scheduledSteps++
	return s.rng.IntN(2) == 1
}

func (s *pctStrategy) NextInteger(max int) int {
	s.scheduledSteps++
	return s.rng.IntN(max)
}

func (s *pctStrategy) RandomSeed() uint64 {
	return s.iterationSeed
}

// PrepareNextIteration implements spec.md §4.E's iteration reset. The first
// iteration (i == 1) is deliberately left with no change points at all:
// schedule_length has no observation to seed from yet, and the original
// author explicitly declined to bootstrap it from a heuristic (spec.md §9
// Open Questions).
func (s *pctStrategy) PrepareNextIteration(iteration int) {
	if iteration <= 1 {
		return
	}

	if s.scheduledSteps > s.scheduleLength {
		s.scheduleLength = s.scheduledSteps
	}
	s.scheduledSteps = 0
	s.priorityList = nil
	s.knownOps = make(map[OperationID]struct{})
	s.changePoints = make(map[int]struct{})

	s.iterationSeed = s.baseSeed ^ uint64(iteration)*0x9E3779B97F4A7C15
	s.rng = rand.New(rand.NewPCG(s.iterationSeed, s.baseSeed))

	s.shuffleChangePoints()
}

// shuffleChangePoints builds [1, scheduleLength), Fisher-Yates shuffles it
// with the iteration's rng, and keeps the first maxPrioritySwitches entries
// as this iteration's change points.
func (s *pctStrategy) shuffleChangePoints() {
	if s.scheduleLength <= 1 {
		return
	}

	points := make([]int, s.scheduleLength-1)
	for i := range points {
		points[i] = i + 1
	}

	for i := len(points) - 1; i >= 1; i-- {
		j := s.rng.IntN(i + 1)
		points[i], points[j] = points[j], points[i]
	}

	count := int(s.maxPrioritySwitches)
	if count > len(points) {
		count = len(points)
	}
	for i := 0; i < count; i++ {
		s.changePoints[points[i]] = struct{}{}
	}
}

// insertAt inserts id at position idx in list, where idx may equal
// len(list) to append at the tail.
func insertAt(list []OperationID, idx int, id OperationID) []OperationID {
	if idx >= len(list) {
		return append(list, id)
	}
	list = append(list, 0)
	copy(list[idx+1:], list[idx:])
	list[idx] = id
	return list
}

func removeID(list []OperationID, id OperationID) []OperationID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
