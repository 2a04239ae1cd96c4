package strategy

import "errors"

// errInternal marks a strategy-side invariant violation. The kernel never
// triggers these in normal operation; they exist to fail loudly if a future
// change breaks the "enabled is never empty" contract between kernel and
// strategy.
func errInternal(msg string) error {
	return errors.New("strategy: internal error: " + msg)
}
