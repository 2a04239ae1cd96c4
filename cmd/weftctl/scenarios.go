package main

import (
	"fmt"
	"sync"

	"github.com/weftsched/weft/internal/kernel"
)

// mustAttach panics on an unexpected Attach failure — a demo scenario
// assumes a freshly constructed or previously detached kernel, never one
// still attached from a prior iteration.
func mustAttach(k *kernel.Kernel) {
	if code := k.Attach(); code != kernel.Success {
		panic(fmt.Sprintf("attach: %s", code))
	}
}

// pingPongIteration implements S1: operations 1 and 2 are created, each
// calls schedule_next once and completes, and main joins both.
func pingPongIteration(k *kernel.Kernel) kernel.ErrorCode {
	mustAttach(k)

	const opA, opB kernel.OperationID = 1, 2
	if code := k.CreateOperation(opA); code != kernel.Success {
		panic(fmt.Sprintf("create_operation(%d): %s", opA, code))
	}
	if code := k.CreateOperation(opB); code != kernel.Success {
		panic(fmt.Sprintf("create_operation(%d): %s", opB, code))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	run := func(id kernel.OperationID) {
		defer wg.Done()
		if code := k.StartOperation(id); code != kernel.Success {
			panic(fmt.Sprintf("start_operation(%d): %s", id, code))
		}
		if code := k.ScheduleNext(); code != kernel.Success {
			panic(fmt.Sprintf("schedule_next from %d: %s", id, code))
		}
		if code := k.CompleteOperation(id); code != kernel.Success {
			panic(fmt.Sprintf("complete_operation(%d): %s", id, code))
		}
	}
	go run(opA)
	go run(opB)

	code := k.JoinOperations([]kernel.OperationID{opA, opB}, kernel.JoinAll)
	wg.Wait()

	outcome := k.LastError()
	k.Detach()
	if code != kernel.Success {
		return code
	}
	return outcome
}

// cyclicJoinIteration implements S2: operation 1 joins operation 2, and
// operation 2 joins operation 1, forming a cycle the kernel must report as
// a deadlock. Exactly one of the three joiners (main included) resolves
// synchronously with DeadlockDetected; the other two remain parked until
// detach wakes them with ClientNotAttached, which is expected and not a
// scenario failure.
func cyclicJoinIteration(k *kernel.Kernel) kernel.ErrorCode {
	mustAttach(k)

	const opA, opB kernel.OperationID = 1, 2
	if code := k.CreateOperation(opA); code != kernel.Success {
		panic(fmt.Sprintf("create_operation(%d): %s", opA, code))
	}
	if code := k.CreateOperation(opB); code != kernel.Success {
		panic(fmt.Sprintf("create_operation(%d): %s", opB, code))
	}

	results := make(chan kernel.ErrorCode, 3)

	join := func(id, target kernel.OperationID) {
		if code := k.StartOperation(id); code != kernel.Success {
			panic(fmt.Sprintf("start_operation(%d): %s", id, code))
		}
		results <- k.JoinOperation(target)
	}
	go join(opA, opB)
	go join(opB, opA)

	mainResult := make(chan kernel.ErrorCode, 1)
	go func() {
		mainResult <- k.JoinOperations([]kernel.OperationID{opA, opB}, kernel.JoinAll)
	}()

	first := <-results
	k.Detach()
	second := <-results
	main := <-mainResult

	deadlocks := 0
	for _, code := range []kernel.ErrorCode{first, second, main} {
		if code == kernel.DeadlockDetected {
			deadlocks++
		} else if code != kernel.ClientNotAttached {
			panic(fmt.Sprintf("unexpected outcome in cyclic join: %s", code))
		}
	}
	if deadlocks != 1 {
		panic(fmt.Sprintf("expected exactly one DeadlockDetected, got %d", deadlocks))
	}
	return kernel.DeadlockDetected
}

// boundedSemaphoreIteration implements S3: three worker operations contend
// for a 2-permit semaphore built from wait_resource/signal_resource, and
// the scenario panics if more than 2 are ever admitted concurrently. Only
// the token holder ever runs at a time, so current/maxObserved need no
// synchronization of their own beyond the kernel's handoff protocol.
func boundedSemaphoreIteration(k *kernel.Kernel) kernel.ErrorCode {
	mustAttach(k)

	const permits = 2
	const sem kernel.ResourceID = 1
	if code := k.CreateResource(sem); code != kernel.Success {
		panic(fmt.Sprintf("create_resource: %s", code))
	}

	current := 0
	maxObserved := 0

	acquire := func() {
		for current >= permits {
			k.WaitResource(sem)
		}
		current++
		if current > maxObserved {
			maxObserved = current
		}
	}
	release := func() {
		current--
		k.SignalResource(sem)
	}

	ids := []kernel.OperationID{1, 2, 3}
	for _, id := range ids {
		if code := k.CreateOperation(id); code != kernel.Success {
			panic(fmt.Sprintf("create_operation(%d): %s", id, code))
		}
	}

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		go func(id kernel.OperationID) {
			defer wg.Done()
			if code := k.StartOperation(id); code != kernel.Success {
				panic(fmt.Sprintf("start_operation(%d): %s", id, code))
			}
			acquire()
			release()
			if code := k.CompleteOperation(id); code != kernel.Success {
				panic(fmt.Sprintf("complete_operation(%d): %s", id, code))
			}
		}(id)
	}

	code := k.JoinOperations(ids, kernel.JoinAll)
	wg.Wait()

	if maxObserved > permits {
		panic(fmt.Sprintf("observed %d concurrent permit holders, want <= %d", maxObserved, permits))
	}

	outcome := k.LastError()
	k.Detach()
	if code != kernel.Success {
		return code
	}
	return outcome
}
