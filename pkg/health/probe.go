package health

import (
	"context"
	"time"

	"github.com/cuemby/coupe-sentinel/pkg/errs"
)

// Config bounds a WaitReady call: each attempt gets PerAttempt to
// answer, BetweenAttempts is the pause after a failed attempt, and the
// whole call gives up once TotalDeadline has elapsed since it started.
type Config struct {
	PerAttempt     time.Duration
	BetweenAttempts time.Duration
	TotalDeadline  time.Duration
}

// DefaultConfig is the schedule used on the cold-start path: 2s per
// attempt, 200ms between attempts, 15s total.
func DefaultConfig() Config {
	return Config{
		PerAttempt:      2 * time.Second,
		BetweenAttempts: 200 * time.Millisecond,
		TotalDeadline:   15 * time.Second,
	}
}

// Probe waits for a function's health endpoint to answer successfully
// after a cold start.
type Probe struct {
	Config Config
}

// NewProbe builds a Probe using DefaultConfig.
func NewProbe() *Probe {
	return &Probe{Config: DefaultConfig()}
}

// WaitReady polls url until it answers 2xx, or returns a
// HealthcheckTimeout error once TotalDeadline has elapsed.
func (p *Probe) WaitReady(ctx context.Context, url string) error {
	deadline := time.Now().Add(p.Config.TotalDeadline)
	checker := NewHTTPChecker(url).WithTimeout(p.Config.PerAttempt)

	var lastMessage string
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.Config.PerAttempt)
		result := checker.Check(attemptCtx)
		cancel()

		if result.Healthy {
			return nil
		}
		lastMessage = result.Message

		select {
		case <-ctx.Done():
			return errs.Wrap(errs.HealthcheckTimeout, "wait for "+url+" to become healthy", ctx.Err())
		case <-time.After(p.Config.BetweenAttempts):
		}
	}

	return errs.New(errs.HealthcheckTimeout, "healthcheck for "+url+" never succeeded: "+lastMessage)
}
