package strategy

import "math/rand/v2"

// randomStrategy picks uniformly among the enabled operations at every
// step. It is the minimal "real" implementation of the auxiliary
// strategies spec.md names but leaves out of scope; it exists because
// Random is a first-class value of the exploration_strategy configuration
// option (spec.md §6), not merely an interface contract.
type randomStrategy struct {
	seed          uint64
	iterationSeed uint64
	rng           *rand.Rand
}

func newRandomStrategy(seed uint64) *randomStrategy {
	return &randomStrategy{
		seed:          seed,
		iterationSeed: seed,
		rng:           rand.New(rand.NewPCG(seed, seed)),
	}
}

func (s *randomStrategy) NextOperation(enabled []OperationID, _ OperationID) (OperationID, error) {
	if len(enabled) == 0 {
		return 0, errInternal("NextOperation called with empty enabled set")
	}
	idx := s.rng.IntN(len(enabled))
	return enabled[idx], nil
}

func (s *randomStrategy) NextBoolean() bool {
	return s.rng.IntN(2) == 1
}

func (s *randomStrategy) NextInteger(max int) int {
	return s.rng.IntN(max)
}

func (s *randomStrategy) RandomSeed() uint64 {
	return s.iterationSeed
}

// PrepareNextIteration reseeds deterministically from the base seed and the
// iteration number, so repeated runs with the same configured seed produce
// the same per-iteration sequences (spec.md §8 determinism property).
func (s *randomStrategy) PrepareNextIteration(iteration int) {
	mixed := s.seed ^ uint64(iteration)*0x9E3779B97F4A7C15
	s.iterationSeed = mixed
	s.rng = rand.New(rand.NewPCG(mixed, s.seed))
}
