package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the breaker's position in its open/closed cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards calls to an external service. After maxFailures consecutive
// failures it opens, rejecting calls until cooldown has passed; then it lets a
// limited number of probe calls through before closing again.
type Breaker struct {
	name          string
	maxFailures   uint32
	cooldown      time.Duration
	halfOpenProbe uint32
	logger        *logrus.Logger

	mu          sync.Mutex
	state       State
	failures    uint32
	successes   uint32
	probeCalls  uint32
	openedAt    time.Time
	lastFailure time.Time
}

// New creates a breaker named for the service it guards.
func New(name string, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:          name,
		maxFailures:   maxFailures,
		cooldown:      cooldown,
		halfOpenProbe: 2,
		state:         StateClosed,
		logger:        logger,
	}
}

// Execute runs fn if the breaker permits it. When the breaker is open an
// *OpenError is returned without running fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return &OpenError{Name: b.name, State: b.State()}
	}

	if err := fn(ctx); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.successes = 0
		b.logger.WithFields(logrus.Fields{
			"breaker": b.name,
			"state":   StateHalfOpen.String(),
		}).Info("Circuit breaker probing after cooldown")
		fallthrough
	case StateHalfOpen:
		if b.probeCalls >= b.halfOpenProbe {
			return false
		}
		b.probeCalls++
		return true
	default:
		return false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenProbe {
			b.state = StateClosed
			b.failures = 0
			b.probeCalls = 0
			b.logger.WithFields(logrus.Fields{
				"breaker": b.name,
				"state":   StateClosed.String(),
			}).Info("Circuit breaker closed after recovery")
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

// trip must be called with the mutex held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.logger.WithFields(logrus.Fields{
		"breaker":  b.name,
		"failures": b.failures,
		"state":    StateOpen.String(),
	}).Warn("Circuit breaker opened")
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of the breaker's counters.
type Stats struct {
	Name        string
	State       State
	Failures    uint32
	LastFailure time.Time
}

// GetStats returns a snapshot of the breaker's counters.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// OpenError is returned when a call is rejected by an open breaker.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpenError reports whether err came from a rejecting breaker.
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}
