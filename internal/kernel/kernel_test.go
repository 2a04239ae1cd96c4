package kernel_test

import (
	"sync"
	"testing"

	"github.com/weftsched/weft/internal/kernel"
	"github.com/weftsched/weft/internal/strategy"
)

func mustNewKernel(t *testing.T, cfg strategy.Config) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(cfg)
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	return k
}

func randomConfig(seed uint64) strategy.Config {
	return strategy.Config{Type: strategy.Random, RandomSeed: seed}
}

func pctConfig(seed uint64, bound uint) strategy.Config {
	return strategy.Config{Type: strategy.PCT, ExplorationStrategyBound: bound, RandomSeed: seed}
}

func TestSchedulerDisabledShortCircuitsEveryEntryPoint(t *testing.T) {
	k := mustNewKernel(t, strategy.Config{Type: strategy.None})

	if code := k.Attach(); code != kernel.SchedulerDisabled {
		t.Fatalf("Attach: got %v, want SchedulerDisabled", code)
	}
	if code := k.CreateOperation(1); code != kernel.SchedulerDisabled {
		t.Fatalf("CreateOperation: got %v, want SchedulerDisabled", code)
	}
	if code := k.ScheduleNext(); code != kernel.SchedulerDisabled {
		t.Fatalf("ScheduleNext: got %v, want SchedulerDisabled", code)
	}
	if code := k.Detach(); code != kernel.SchedulerDisabled {
		t.Fatalf("Detach: got %v, want SchedulerDisabled", code)
	}
}

func TestDoubleAttachRejected(t *testing.T) {
	k := mustNewKernel(t, randomConfig(1))

	if code := k.Attach(); code != kernel.Success {
		t.Fatalf("first Attach: got %v, want Success", code)
	}
	if code := k.Attach(); code != kernel.ClientAttached {
		t.Fatalf("second Attach: got %v, want ClientAttached", code)
	}
	if code := k.Detach(); code != kernel.Success {
		t.Fatalf("Detach: got %v, want Success", code)
	}
}

func TestDetachWithoutAttachRejected(t *testing.T) {
	k := mustNewKernel(t, randomConfig(1))

	if code := k.Detach(); code != kernel.ClientNotAttached {
		t.Fatalf("Detach: got %v, want ClientNotAttached", code)
	}
}

// TestTwoOperationsCompleteUnderJoinAll exercises the straight-line path:
// two worker operations are created, started, and completed by their own
// goroutines while the main operation blocks on JoinOperations(JoinAll)
// until both are done.
func TestTwoOperationsCompleteUnderJoinAll(t *testing.T) {
	k := mustNewKernel(t, randomConfig(7))

	if code := k.Attach(); code != kernel.Success {
		t.Fatalf("Attach: got %v", code)
	}

	var mu sync.Mutex
	var ran []kernel.OperationID

	worker := func(id kernel.OperationID) {
		if code := k.StartOperation(id); code != kernel.Success {
			t.Errorf("StartOperation(%d): got %v", id, code)
			return
		}
		mu.Lock()
		ran = append(ran, id)
		mu.Unlock()
		if code := k.CompleteOperation(id); code != kernel.Success {
			t.Errorf("CompleteOperation(%d): got %v", id, code)
		}
	}

	for _, id := range []kernel.OperationID{1, 2} {
		if code := k.CreateOperation(id); code != kernel.Success {
			t.Fatalf("CreateOperation(%d): got %v", id, code)
		}
	}

	var wg sync.WaitGroup
	for _, id := range []kernel.OperationID{1, 2} {
		wg.Add(1)
		go func(id kernel.OperationID) {
			defer wg.Done()
			worker(id)
		}(id)
	}

	if code := k.JoinOperations([]kernel.OperationID{1, 2}, kernel.JoinAll); code != kernel.Success {
		t.Fatalf("JoinOperations: got %v", code)
	}
	wg.Wait()

	if len(ran) != 2 {
		t.Fatalf("expected both operations to run exactly once, got %v", ran)
	}

	if code := k.Detach(); code != kernel.Success {
		t.Fatalf("Detach: got %v", code)
	}
}

// TestCyclicJoinDeadlock has two started operations join on each other.
// Exactly one of the three participants (main, op 1, op 2) discovers the
// deadlock; the other two are left parked until Detach unwinds them with
// ClientNotAttached.
func TestCyclicJoinDeadlock(t *testing.T) {
	k := mustNewKernel(t, randomConfig(3))

	if code := k.Attach(); code != kernel.Success {
		t.Fatalf("Attach: got %v", code)
	}

	for _, id := range []kernel.OperationID{1, 2} {
		if code := k.CreateOperation(id); code != kernel.Success {
			t.Fatalf("CreateOperation(%d): got %v", id, code)
		}
	}

	results := make(chan kernel.ErrorCode, 2)
	runJoiner := func(self, other kernel.OperationID) {
		if code := k.StartOperation(self); code != kernel.Success {
			results <- code
			return
		}
		results <- k.JoinOperation(other)
	}

	go runJoiner(1, 2)
	go runJoiner(2, 1)

	// main's own JoinOperations call blocks until the cycle resolves, so
	// it must run on its own goroutine too — this test thread is the only
	// one free to call Detach and unblock everyone left parked.
	mainResultCh := make(chan kernel.ErrorCode, 1)
	go func() {
		mainResultCh <- k.JoinOperations([]kernel.OperationID{1, 2}, kernel.JoinAll)
	}()

	// Exactly one of the two joiners discovers the deadlock synchronously
	// (the second of the pair to reach JoinOperation); the other, and
	// main, stay parked until Detach wakes them.
	first := <-results

	if code := k.Detach(); code != kernel.Success {
		t.Fatalf("Detach: got %v", code)
	}

	second := <-results
	mainResult := <-mainResultCh

	codes := []kernel.ErrorCode{mainResult, first, second}
	deadlocks := 0
	for _, c := range codes {
		if c == kernel.DeadlockDetected {
			deadlocks++
		} else if c != kernel.ClientNotAttached {
			t.Fatalf("unexpected result among %v: %v", codes, c)
		}
	}
	if deadlocks != 1 {
		t.Fatalf("expected exactly one DeadlockDetected among %v", codes)
	}
}

// TestOperationIDRevivalAfterCompletion checks that a completed operation
// id can be reused by a later CreateOperation call within the same
// attached session, rather than being rejected as a duplicate.
func TestOperationIDRevivalAfterCompletion(t *testing.T) {
	k := mustNewKernel(t, randomConfig(11))

	if code := k.Attach(); code != kernel.Success {
		t.Fatalf("Attach: got %v", code)
	}

	runOnce := func(id kernel.OperationID) {
		if code := k.CreateOperation(id); code != kernel.Success {
			t.Fatalf("CreateOperation(%d): got %v", id, code)
		}
		go func() {
			if code := k.StartOperation(id); code != kernel.Success {
				t.Errorf("StartOperation(%d): got %v", id, code)
				return
			}
			if code := k.CompleteOperation(id); code != kernel.Success {
				t.Errorf("CompleteOperation(%d): got %v", id, code)
			}
		}()
		if code := k.JoinOperation(id); code != kernel.Success {
			t.Fatalf("JoinOperation(%d): got %v", id, code)
		}
	}

	runOnce(1)
	runOnce(1) // revival: id 1 was completed above, this must not be DuplicateOperation.

	if code := k.CreateOperation(1); code != kernel.Success {
		t.Fatalf("CreateOperation after second completion: got %v", code)
	}
	if code := k.Detach(); code != kernel.Success {
		t.Fatalf("Detach: got %v", code)
	}
}

// runLockedCounterScenario creates n worker operations that each acquire a
// resource-backed mutex, increment a shared counter, release the mutex, and
// complete. It returns the final counter value and the order in which
// workers entered the critical section.
func runLockedCounterScenario(t *testing.T, k *kernel.Kernel, n int) (int, []kernel.OperationID) {
	t.Helper()

	const lockRes kernel.ResourceID = 1

	if code := k.Attach(); code != kernel.Success {
		t.Fatalf("Attach: got %v", code)
	}
	if code := k.CreateResource(lockRes); code != kernel.Success {
		t.Fatalf("CreateResource: got %v", code)
	}

	var held bool
	counter := 0
	order := make([]kernel.OperationID, 0, n)

	acquire := func() {
		for held {
			k.WaitResource(lockRes)
		}
		held = true
	}
	release := func() {
		held = false
		k.SignalResource(lockRes)
	}

	ids := make([]kernel.OperationID, n)
	for i := 0; i < n; i++ {
		ids[i] = kernel.OperationID(i + 1)
		if code := k.CreateOperation(ids[i]); code != kernel.Success {
			t.Fatalf("CreateOperation(%d): got %v", ids[i], code)
		}
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id kernel.OperationID) {
			defer wg.Done()
			if code := k.StartOperation(id); code != kernel.Success {
				t.Errorf("StartOperation(%d): got %v", id, code)
				return
			}
			acquire()
			counter++
			order = append(order, id)
			release()
			if code := k.CompleteOperation(id); code != kernel.Success {
				t.Errorf("CompleteOperation(%d): got %v", id, code)
			}
		}(id)
	}

	if code := k.JoinOperations(ids, kernel.JoinAll); code != kernel.Success {
		t.Fatalf("JoinOperations: got %v", code)
	}
	wg.Wait()

	if code := k.DeleteResource(lockRes); code != kernel.Success {
		t.Fatalf("DeleteResource: got %v", code)
	}
	if code := k.Detach(); code != kernel.Success {
		t.Fatalf("Detach: got %v", code)
	}

	return counter, order
}

// TestBoundedWorkersUnderPCT runs the locked-counter scenario across many
// iterations under the PCT strategy and checks the invariant that every
// worker enters the critical section exactly once per iteration,
// regardless of which interleaving PCT chose.
func TestBoundedWorkersUnderPCT(t *testing.T) {
	const workers = 5
	const iterations = 20

	k := mustNewKernel(t, pctConfig(42, 3))

	for i := 0; i < iterations; i++ {
		counter, order := runLockedCounterScenario(t, k, workers)
		if counter != workers {
			t.Fatalf("iteration %d: counter = %d, want %d", i, counter, workers)
		}
		if len(order) != workers {
			t.Fatalf("iteration %d: order = %v, want %d entries", i, order, workers)
		}
		seen := make(map[kernel.OperationID]bool, workers)
		for _, id := range order {
			if seen[id] {
				t.Fatalf("iteration %d: operation %d entered the critical section twice", i, id)
			}
			seen[id] = true
		}
	}
}

// TestPCTScheduleIsReproducible re-runs the same locked-counter scenario
// from a fresh kernel with the same seed and bound and checks that the
// observed execution order is identical both times.
func TestPCTScheduleIsReproducible(t *testing.T) {
	const workers = 6

	k1 := mustNewKernel(t, pctConfig(99, 2))
	_, order1 := runLockedCounterScenario(t, k1, workers)

	k2 := mustNewKernel(t, pctConfig(99, 2))
	_, order2 := runLockedCounterScenario(t, k2, workers)

	if len(order1) != len(order2) {
		t.Fatalf("order lengths differ: %v vs %v", order1, order2)
	}
	for i := range order1 {
		if order1[i] != order2[i] {
			t.Fatalf("schedules diverge at step %d: %v vs %v", i, order1, order2)
		}
	}
}
