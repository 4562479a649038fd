package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// before it reached the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the current state of a provider circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows all requests to pass through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all requests immediately after too many
	// consecutive transient failures.
	CircuitOpen
	// CircuitHalfOpen allows one request through to test recovery after
	// the cooldown expires.
	CircuitHalfOpen
)

// circuitBreakerLLM shields a provider that is failing repeatedly.
// Only transient failures count toward opening the circuit; terminal
// errors such as an exceeded cost ceiling say nothing about provider
// health and pass through without affecting state.
type circuitBreakerLLM struct {
	next CoreLLM

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	maxFailures  int
	cooldown     time.Duration
	lastFailure  time.Time
}

// CircuitBreakerMiddleware creates middleware that opens after maxFailures
// consecutive transient failures and stays open for the cooldown duration
// before testing recovery with a single request.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{
			next:        next,
			state:       CircuitClosed,
			maxFailures: maxFailures,
			cooldown:    cooldown,
		}
	}
}

// DoRequest executes the request through the circuit breaker. When the
// circuit is open it fails immediately without calling the provider.
func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := c.admit(); err != nil {
		return "", 0, 0, err
	}

	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	c.record(err)
	return response, tokensIn, tokensOut, err
}

// admit decides whether a request may proceed given the current state.
func (c *circuitBreakerLLM) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitOpen {
		if time.Since(c.lastFailure) < c.cooldown {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
	}
	return nil
}

// record updates circuit state from a call outcome. Terminal errors are
// ignored for state purposes.
func (c *circuitBreakerLLM) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.failureCount = 0
		c.state = CircuitClosed
		return
	}

	if !IsRetryableError(err) {
		return
	}

	c.failureCount++
	c.lastFailure = time.Now()
	if c.state == CircuitHalfOpen || c.failureCount >= c.maxFailures {
		c.state = CircuitOpen
	}
}

// State returns the current circuit state for monitoring.
func (c *circuitBreakerLLM) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakerLLM) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
