package embedder

import (
	"time"

	"github.com/dshills/hybridsearch/internal/registry"
)

// State enumerates the backend-selection states within one embed call.
type State int

const (
	// StateTrying means the current backend is about to be attempted.
	StateTrying State = iota
	// StateRetrying means the current backend failed transiently and
	// will be attempted again after a backoff delay.
	StateRetrying
	// StateFailedOver means retries on the previous backend were
	// exhausted and the next backend in priority order is current.
	StateFailedOver
	// StateSuccess is terminal: a backend produced a result.
	StateSuccess
	// StateExhausted is terminal: no backends remain.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateTrying:
		return "trying"
	case StateRetrying:
		return "retrying"
	case StateFailedOver:
		return "failed_over"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// maxBackoff caps the exponential retry delay regardless of how a
// backend's RetryDelay is configured.
const maxBackoff = 30 * time.Second

// failover drives backend selection for one embed call as an explicit
// state machine over a snapshot of enabled backends, so the logic is
// testable without a gateway or any sleeping.
//
// Transitions: trying -> retrying (transient failure, retries left),
// retrying -> trying-equivalent attempt of the same backend,
// trying/retrying -> failed_over (retries exhausted or permanent
// failure), failed_over -> next backend attempt, and the terminals
// success and exhausted.
type failover struct {
	backends  []registry.Descriptor
	idx       int
	attempt   int // retries consumed on the current backend
	state     State
	failovers int
	lastErr   error
}

// newFailover starts the machine at the primary backend, or exhausted
// when the snapshot is empty.
func newFailover(backends []registry.Descriptor) *failover {
	f := &failover{backends: backends}
	if len(backends) == 0 {
		f.state = StateExhausted
	}
	return f
}

// Current returns the backend to attempt next.
func (f *failover) Current() (registry.Descriptor, bool) {
	if f.state == StateExhausted || f.state == StateSuccess {
		return registry.Descriptor{}, false
	}
	return f.backends[f.idx], true
}

// State returns the machine's current state.
func (f *failover) State() State { return f.state }

// Failovers returns how many backend switches have happened.
func (f *failover) Failovers() int { return f.failovers }

// LastErr returns the most recent attempt failure.
func (f *failover) LastErr() error { return f.lastErr }

// Attempt returns the retry count consumed on the current backend.
func (f *failover) Attempt() int { return f.attempt }

// Succeed moves to the terminal success state.
func (f *failover) Succeed() {
	f.state = StateSuccess
}

// Fail records an attempt failure. Transient failures retry the same
// backend until its MaxRetries budget is spent; permanent failures
// fail over immediately.
func (f *failover) Fail(err error, transient bool) {
	f.lastErr = err

	if transient && f.attempt < f.backends[f.idx].MaxRetries {
		f.attempt++
		f.state = StateRetrying
		return
	}

	f.idx++
	f.attempt = 0
	if f.idx >= len(f.backends) {
		f.state = StateExhausted
		return
	}
	f.state = StateFailedOver
	f.failovers++
}

// Backoff returns the exponential delay before the next retry of the
// current backend: RetryDelay doubled per consumed attempt, capped.
func (f *failover) Backoff() time.Duration {
	base := f.backends[f.idx].RetryDelay
	delay := base
	for i := 1; i < f.attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
