package health

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/circuitbreaker"
)

// RedisChecker probes the session store.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisChecker {
	return &RedisChecker{wrapper: wrapper, logger: logger, timeout: 5 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Critical: true}

	if r.wrapper.Open() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(start)
		return result
	}

	err := r.wrapper.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{
		"latency_ms": result.Duration.Milliseconds(),
	}
	return result
}

// DatabaseChecker probes the preference and result store.
type DatabaseChecker struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

func NewDatabaseChecker(db *sqlx.DB, logger *zap.Logger) *DatabaseChecker {
	return &DatabaseChecker{db: db, logger: logger, timeout: 5 * time.Second}
}

func (d *DatabaseChecker) Name() string           { return "database" }
func (d *DatabaseChecker) IsCritical() bool       { return true }
func (d *DatabaseChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "database", Critical: true}

	err := d.db.PingContext(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Database ping failed"
		return result
	}

	stats := d.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		result.Status = StatusDegraded
		result.Message = "Database connection pool exhausted"
	} else if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Database responding with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Database healthy"
	}
	result.Details = map[string]interface{}{
		"latency_ms":       result.Duration.Milliseconds(),
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}
	return result
}

// TemporalChecker probes the workflow service frontend.
type TemporalChecker struct {
	client  client.Client
	logger  *zap.Logger
	timeout time.Duration
}

func NewTemporalChecker(c client.Client, logger *zap.Logger) *TemporalChecker {
	return &TemporalChecker{client: c, logger: logger, timeout: 5 * time.Second}
}

func (t *TemporalChecker) Name() string           { return "temporal" }
func (t *TemporalChecker) IsCritical() bool       { return true }
func (t *TemporalChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "temporal", Critical: true}

	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Temporal frontend unreachable"
		return result
	}

	result.Status = StatusHealthy
	result.Message = "Temporal healthy"
	result.Details = map[string]interface{}{
		"latency_ms": result.Duration.Milliseconds(),
	}
	return result
}

// CheckFunc adapts a plain function into a Checker.
type CheckFunc struct {
	name     string
	critical bool
	timeout  time.Duration
	fn       func(ctx context.Context) CheckResult
}

func NewCheckFunc(name string, critical bool, timeout time.Duration, fn func(ctx context.Context) CheckResult) *CheckFunc {
	return &CheckFunc{name: name, critical: critical, timeout: timeout, fn: fn}
}

func (c *CheckFunc) Name() string                          { return c.name }
func (c *CheckFunc) IsCritical() bool                      { return c.critical }
func (c *CheckFunc) Timeout() time.Duration                { return c.timeout }
func (c *CheckFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
