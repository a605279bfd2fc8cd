package ports

import (
	"context"

	"github.com/clearmesh/agentgate/core"
)

// EventPublisher notifies other instances about lifecycle changes.
// Publishing is best effort: callers log failures and move on.
type EventPublisher interface {
	PublishTaskStatus(ctx context.Context, task *core.Task) error
	PublishSessionInvalidated(ctx context.Context, address, sessionID string) error
}
