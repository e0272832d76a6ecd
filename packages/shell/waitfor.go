package shell

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/invoker"
)

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultWaitInterval = time.Second
)

// WaitFor polls command until it exits with code zero or timeout elapses.
func (r *Runner) WaitFor(ctx context.Context, command string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = DefaultWaitInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		_, err := r.Run(ctx, command, nil)
		if err == nil {
			r.logger.Debug("wait condition met", zap.String("command", command), zap.Int("attempts", attempt))
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("%q not ready after %v: %w", command, timeout, lastErr)
		case <-ticker.C:
		}
	}
}

// WaitStep returns a binding function polling command with the *Runner it is invoked with.
func WaitStep(command string, timeout, interval time.Duration) invoker.Func {
	return func(ctx context.Context, instance any, _ invoker.Args) error {
		r, err := runnerOf(instance)
		if err != nil {
			return err
		}
		return r.WaitFor(ctx, command, timeout, interval)
	}
}
