package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the result of a health check.
type HealthCheckResult struct {
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthChecker performs a single health check.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthRegistry runs the health checks of a process.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// OverallHealth summarizes every registered check.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Check runs all checks concurrently. One unhealthy component makes the
// whole process unhealthy; a degraded one only degrades it.
func (r *HealthRegistry) Check(ctx context.Context) OverallHealth {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]HealthCheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			start := time.Now()
			result := checker(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overall := OverallHealth{Status: HealthStatusHealthy, Timestamp: time.Now(), Checks: results}
	for _, result := range results {
		switch result.Status {
		case HealthStatusUnhealthy:
			overall.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall.Status == HealthStatusHealthy {
				overall.Status = HealthStatusDegraded
			}
		}
	}
	return overall
}

// PingChecker reports failure when ping errors. failure is the status
// used for an unreachable component.
func PingChecker(component string, ping func(ctx context.Context) error, failure HealthStatus) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  failure,
				Message: component + " connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: component + " connection healthy"}
	}
}

// LagChecker degrades when lag exceeds max.
func LagChecker(lag func() time.Duration, max time.Duration) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		current := lag()
		if current > max {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("lag %s exceeds %s", current.Round(time.Second), max),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy}
	}
}
