package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "buildpulse/pkg/logx"
)

// ErrNotReady reports an exhausted readiness budget. Startup treats it as fatal.
var ErrNotReady = errors.New("remote: service never became ready")

// WaitReady polls the health endpoint up to retries times with a fixed backoff
// between attempts. Any 200 answer within the budget wins.
func (c *Client) WaitReady(ctx context.Context, retries int, backoff time.Duration) error {
	if retries <= 0 {
		retries = 1
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	for attempt := 1; attempt <= retries; attempt++ {
		if err := c.Health(ctx); err == nil {
			c.log.Info("build-counter service is ready", logx.Int("attempt", attempt))
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else {
			c.log.Debug("service not ready yet",
				logx.Int("attempt", attempt),
				logx.Int("retries", retries),
				logx.Err(err))
		}

		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotReady, retries)
}
