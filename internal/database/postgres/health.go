package postgres

import (
	"context"
	"time"
)

// HealthChecker is the interface for checking connection pool health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
	GetStats() PoolStats
	IsHealthy() bool
	LastCheckTime() time.Time
}

// DefaultHealthChecker checks health via a simple SQL probe query.
type DefaultHealthChecker struct {
	pool      *PostgresPool
	lastCheck time.Time
	isHealthy bool
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(pool *PostgresPool) HealthChecker {
	return &DefaultHealthChecker{
		pool:      pool,
		lastCheck: time.Now(),
		isHealthy: false,
	}
}

// CheckHealth probes the database connection.
func (h *DefaultHealthChecker) CheckHealth(ctx context.Context) error {
	// bound the probe so a wedged connection can't hang this call forever.
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// run a trivial query to confirm the connection works.
	rows, err := h.pool.pool.Query(checkCtx, "SELECT 1")
	if err != nil {
		h.pool.metrics.RecordHealthCheck(false)
		h.isHealthy = false
		h.lastCheck = time.Now()
		return err
	}
	defer rows.Close()

	// confirm the query actually returned a row.
	if !rows.Next() {
		h.pool.metrics.RecordHealthCheck(false)
		h.isHealthy = false
		h.lastCheck = time.Now()
		return ErrHealthCheckFailed
	}

	var result int
	if err := rows.Scan(&result); err != nil {
		h.pool.metrics.RecordHealthCheck(false)
		h.isHealthy = false
		h.lastCheck = time.Now()
		return err
	}

	// confirm the row holds the expected value.
	if result != 1 {
		h.pool.metrics.RecordHealthCheck(false)
		h.isHealthy = false
		h.lastCheck = time.Now()
		return ErrHealthCheckFailed
	}

	h.pool.metrics.RecordHealthCheck(true)
	h.isHealthy = true
	h.lastCheck = time.Now()
	return nil
}

// GetStats returns the pool's current statistics.
func (h *DefaultHealthChecker) GetStats() PoolStats {
	return h.pool.metrics.Snapshot()
}

// IsHealthy reports the last known health state.
func (h *DefaultHealthChecker) IsHealthy() bool {
	return h.isHealthy
}

// LastCheckTime returns when the last health check ran.
func (h *DefaultHealthChecker) LastCheckTime() time.Time {
	return h.lastCheck
}

// PeriodicHealthChecker runs health checks on a fixed interval.
type PeriodicHealthChecker struct {
	checker   HealthChecker
	interval  time.Duration
	stopCh    chan struct{}
	isRunning bool
}

// NewPeriodicHealthChecker creates a periodic health checker.
func NewPeriodicHealthChecker(checker HealthChecker, interval time.Duration) *PeriodicHealthChecker {
	return &PeriodicHealthChecker{
		checker:   checker,
		interval:  interval,
		stopCh:    make(chan struct{}),
		isRunning: false,
	}
}

// Start begins the periodic health check loop.
func (p *PeriodicHealthChecker) Start(ctx context.Context) {
	if p.isRunning {
		return
	}

	p.isRunning = true

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.isRunning = false
				return
			case <-p.stopCh:
				p.isRunning = false
				return
			case <-ticker.C:
				// run the health check in the background.
				checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

				_ = p.checker.CheckHealth(checkCtx)

				cancel()
			}
		}
	}()
}

// Stop ends the periodic health check loop.
func (p *PeriodicHealthChecker) Stop() {
	if !p.isRunning {
		return
	}

	select {
	case p.stopCh <- struct{}{}:
	default:
		// channel already closed or full
	}
}

// IsRunning reports whether the periodic loop is active.
func (p *PeriodicHealthChecker) IsRunning() bool {
	return p.isRunning
}

// CircuitBreakerHealthChecker wraps a HealthChecker with a circuit breaker,
// so a wedged database stops being hammered with probes.
type CircuitBreakerHealthChecker struct {
	checker      HealthChecker
	failureCount int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	state        CircuitBreakerState
}

// CircuitBreakerState is the circuit breaker's current state.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// NewCircuitBreakerHealthChecker wraps checker with a circuit breaker.
func NewCircuitBreakerHealthChecker(checker HealthChecker, maxFailures int, resetTimeout time.Duration) *CircuitBreakerHealthChecker {
	return &CircuitBreakerHealthChecker{
		checker:      checker,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// CheckHealth probes health, honoring the circuit breaker's state.
func (c *CircuitBreakerHealthChecker) CheckHealth(ctx context.Context) error {
	switch c.state {
	case StateOpen:
		// past the reset timeout, allow one probe through (half-open).
		if time.Since(c.lastFailure) > c.resetTimeout {
			c.state = StateHalfOpen
		} else {
			return ErrCircuitBreakerOpen
		}
	case StateHalfOpen:
		fallthrough
	case StateClosed:
		break
	}

	// run the underlying probe.
	err := c.checker.CheckHealth(ctx)

	if err != nil {
		c.failureCount++
		c.lastFailure = time.Now()

		if c.failureCount >= c.maxFailures {
			c.state = StateOpen
		}
		return err
	}

	// probe succeeded: reset the breaker.
	c.failureCount = 0
	c.state = StateClosed
	return nil
}

// GetStats returns the underlying checker's statistics.
func (c *CircuitBreakerHealthChecker) GetStats() PoolStats {
	return c.checker.GetStats()
}

// IsHealthy reports health, treating an open breaker as unhealthy.
func (c *CircuitBreakerHealthChecker) IsHealthy() bool {
	return c.checker.IsHealthy() && c.state != StateOpen
}

// LastCheckTime returns when the underlying checker last ran.
func (c *CircuitBreakerHealthChecker) LastCheckTime() time.Time {
	return c.checker.LastCheckTime()
}

// GetState returns the circuit breaker's current state.
func (c *CircuitBreakerHealthChecker) GetState() CircuitBreakerState {
	return c.state
}

// GetFailureCount returns the consecutive-failure count.
func (c *CircuitBreakerHealthChecker) GetFailureCount() int {
	return c.failureCount
}
