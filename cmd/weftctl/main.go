// Command weftctl is an in-process exerciser for the scheduler kernel: it
// builds a kernel.Kernel directly, with no HTTP hop, and drives it through
// one of the built-in demo scenarios (or all of them) for a configurable
// number of iterations. It exits 0 only if every iteration of every
// scenario run matched that scenario's expected outcome.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/weftsched/weft/internal/kernel"
	"github.com/weftsched/weft/internal/strategy"
)

type demoScenario struct {
	name     string
	expected kernel.ErrorCode
	run      func(k *kernel.Kernel) kernel.ErrorCode
}

var scenarios = []demoScenario{
	{name: "ping-pong", expected: kernel.Success, run: pingPongIteration},
	{name: "deadlock", expected: kernel.DeadlockDetected, run: cyclicJoinIteration},
	{name: "bounded-semaphore", expected: kernel.Success, run: boundedSemaphoreIteration},
}

func main() {
	strategyType := flag.String("strategy", "pct", "exploration strategy: none, random, pct")
	bound := flag.Uint("bound", 3, "exploration strategy bound (pct priority-change budget)")
	seed := flag.Uint64("seed", 1, "random seed")
	iterations := flag.Int("iterations", 20, "iterations per scenario")
	which := flag.String("scenario", "all", "scenario to run: ping-pong, deadlock, bounded-semaphore, all")
	flag.Parse()

	typ, err := strategy.ParseType(*strategyType)
	if err != nil {
		log.Fatalf("invalid -strategy: %v", err)
	}
	cfg := strategy.Config{Type: typ, ExplorationStrategyBound: *bound, RandomSeed: *seed}

	selected := scenarios
	if *which != "all" {
		selected = nil
		for _, sc := range scenarios {
			if sc.name == *which {
				selected = append(selected, sc)
			}
		}
		if len(selected) == 0 {
			log.Fatalf("unknown scenario %q", *which)
		}
	}

	allPassed := true
	for _, sc := range selected {
		k, err := kernel.New(cfg)
		if err != nil {
			log.Fatalf("construct kernel for %s: %v", sc.name, err)
		}

		matched := 0
		for i := 0; i < *iterations; i++ {
			outcome := sc.run(k)
			if outcome != sc.expected {
				fmt.Printf("%s: iteration %d outcome %s, want %s\n", sc.name, i+1, outcome, sc.expected)
				allPassed = false
				continue
			}
			matched++
		}
		fmt.Printf("%s: %d/%d iterations matched expected outcome %s\n", sc.name, matched, *iterations, sc.expected)
	}

	if !allPassed {
		os.Exit(1)
	}
}
