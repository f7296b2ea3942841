package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Notifier enqueues cache invalidation for changed profiles. It implements
// bulk.Notifier so the processor stays unaware of the queue.
type Notifier struct {
	client *asynq.Client
}

// NewNotifier constructs a Notifier over an Asynq client.
func NewNotifier(client *asynq.Client) *Notifier {
	return &Notifier{client: client}
}

// ProfilesChanged enqueues an invalidation task for the given profiles.
func (n *Notifier) ProfilesChanged(ctx context.Context, profileIDs []int64) error {
	if n == nil || n.client == nil || len(profileIDs) == 0 {
		return nil
	}
	task, err := NewInvalidateTask(InvalidatePayload{ProfileIDs: profileIDs})
	if err != nil {
		return fmt.Errorf("jobs: build invalidate task: %w", err)
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue invalidate: %w", err)
	}
	return nil
}
