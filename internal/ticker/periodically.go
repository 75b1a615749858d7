package ticker

import (
	"context"
	"fmt"
	"time"
)

// Periodically runs task once immediately and then at the specified interval, until the context is done or the task returns an error.
func Periodically(ctx context.Context, interval time.Duration, task func(context.Context) error) error {
	if err := task(ctx); err != nil {
		return fmt.Errorf("periodic task failed: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := task(ctx); err != nil {
				return fmt.Errorf("periodic task failed: %w", err)
			}
		}
	}
}
