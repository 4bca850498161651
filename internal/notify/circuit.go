package notify

import (
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

const (
	failureThreshold = 3
	openDuration     = 60 * time.Second
)

// breaker is a per-provider circuit breaker. CLOSED counts consecutive
// failures; at the threshold it OPENs for openDuration, then admits a
// single HALF_OPEN probe. A successful probe closes it, a failed probe
// reopens it.
type breaker struct {
	mu       sync.Mutex
	state    string
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

func newBreaker() *breaker {
	return &breaker{state: StateClosed, now: time.Now}
}

// Allow reports whether a send may proceed. In HALF_OPEN only one
// caller at a time gets the probe slot.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < openDuration {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = StateOpen
	b.failures = 0
	b.probing = false
	b.openedAt = b.now()
}

func (b *breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
