// Package health provides periodic health probing for pipeline providers.
// Each provider (diarizer, recognizer) gets its own Checker running probes
// at a configurable interval with a consecutive-failure threshold.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Probe is the subset of a provider's surface the checker needs. Both the
// diarization and recognition backends satisfy it.
type Probe interface {
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}

// ServiceStatus is the current health state of a monitored provider.
// All fields serialize to JSON for the provider-health endpoint.
type ServiceStatus struct {
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent probe ran.
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts probes that failed in a row. Reset to 0 on
	// the first success.
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage holds the last probe error, empty when healthy.
	ErrorMessage string `json:"error_message"`
}

// Checker runs periodic health probes against a single provider.
//
// All public methods are safe for concurrent use.
type Checker struct {
	probe         Probe
	logger        *slog.Logger
	status        *ServiceStatus
	mu            sync.RWMutex
	checkInterval time.Duration
	failThreshold int
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewChecker creates a checker for the given provider. checkInterval is the
// time between probes; failThreshold is how many consecutive failures mark
// the provider unhealthy. The checker starts optimistic (healthy) until the
// first probe says otherwise. Call Start to begin probing.
func NewChecker(probe Probe, logger *slog.Logger, checkInterval time.Duration, failThreshold int) *Checker {
	return &Checker{
		probe:         probe,
		logger:        logger,
		checkInterval: checkInterval,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		status: &ServiceStatus{
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
	}
}

// Start probes immediately, then at every interval until Stop is called or
// the context is cancelled. It blocks; run it in its own goroutine.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	c.performCheck(ctx)

	for {
		select {
		case <-ticker.C:
			c.performCheck(ctx)
		case <-c.stopChan:
			c.logger.Info("health checker stopped", "provider", c.probe.Name())
			return
		case <-ctx.Done():
			c.logger.Info("health checker context cancelled", "provider", c.probe.Name())
			return
		}
	}
}

func (c *Checker) performCheck(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	isHealthy, err := c.probe.HealthCheck(checkCtx)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.LastCheckTime = time.Now()

	if isHealthy {
		c.status.IsHealthy = true
		c.status.ConsecutiveFails = 0
		c.status.ErrorMessage = ""
		c.logger.Debug("health check passed", "provider", c.probe.Name())
		return
	}

	c.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	c.status.ErrorMessage = fmt.Sprintf("health check failed: %s", errMsg)

	if c.status.ConsecutiveFails >= c.failThreshold {
		c.status.IsHealthy = false
		c.logger.Error("provider marked unhealthy",
			"provider", c.probe.Name(),
			"consecutive_fails", c.status.ConsecutiveFails)
	} else {
		c.logger.Warn("health check failed",
			"provider", c.probe.Name(),
			"fails", c.status.ConsecutiveFails,
			"threshold", c.failThreshold,
			"error", errMsg)
	}
}

// GetStatus returns a copy of the current status.
func (c *Checker) GetStatus() ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.status
}

// Stop terminates the probe loop. Safe to call more than once.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
