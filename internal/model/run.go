package model

import "time"

// Run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// validRunTransitions maps each run status to the set of statuses it may
// transition to.
var validRunTransitions = map[string]map[string]bool{
	RunStatusRunning: {
		RunStatusCompleted: true,
		RunStatusFailed:    true,
	},
}

// ValidRunTransition reports whether transitioning a run from one status to
// another is allowed.
func ValidRunTransition(from, to string) bool {
	targets, ok := validRunTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Run is one exploration session: a sequence of attach/detach iterations
// driven by a single strategy configuration.
type Run struct {
	ID             string     `json:"id"`
	StrategyType   string     `json:"strategy_type"`
	StrategyBound  uint       `json:"strategy_bound"`
	RandomSeed     uint64     `json:"random_seed"`
	Status         string     `json:"status"`
	IterationCount int        `json:"iteration_count"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// IterationOutcome is the closed set of ways a single attach/detach cycle
// can end, as recorded for post-hoc triage.
const (
	IterationOutcomeSuccess  = "success"
	IterationOutcomeDeadlock = "deadlock"
	IterationOutcomeError    = "error"
)

// IterationRecord is one attach->detach cycle within a Run, captured for the
// reproducibility property: re-supplying RandomSeed and StrategyBound against
// the same scenario must reproduce the same TokenSequence.
type IterationRecord struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	Iteration      int       `json:"iteration"`
	Outcome        string    `json:"outcome"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ScheduledSteps int       `json:"scheduled_steps"`
	ScheduleLength int       `json:"schedule_length"`
	TokenSequence  []uint64  `json:"token_sequence"`
	CreatedAt      time.Time `json:"created_at"`
}
