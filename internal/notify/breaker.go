package notify

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	MaxFailures      int           `json:"max_failures"`
	Cooldown         time.Duration `json:"cooldown"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`
}

func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// Breaker stops calling Redis after MaxFailures consecutive errors and probes
// again once Cooldown has passed.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
	config      BreakerConfig
	now         func() time.Time
}

func NewBreaker(config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{config: *config, now: time.Now}
}

func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}

	if err := fn(); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.config.Cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		return true
	case BreakerHalfOpen:
		return b.probes < b.config.HalfOpenMaxCalls
	default:
		return true
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == BreakerHalfOpen || b.failures >= b.config.MaxFailures {
		b.state = BreakerOpen
		b.probes = 0
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerHalfOpen {
		b.failures = 0
		return
	}

	b.probes++
	if b.probes >= b.config.HalfOpenMaxCalls {
		b.state = BreakerClosed
		b.failures = 0
		b.probes = 0
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"state":            b.state.String(),
		"failure_count":    b.failures,
		"last_failure":     b.lastFailure.Unix(),
		"max_failures":     b.config.MaxFailures,
		"cooldown_seconds": b.config.Cooldown.Seconds(),
	}
}
