package engine

import (
	"context"
)

// Interface for a type that can post moderation log lines to an external channel
type Notifier interface {
	SendModLog(ctx context.Context, text string) error
}
