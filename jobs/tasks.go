package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tavolo-app/tavolo/internal/resolve"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzInvalidate fans out cache invalidation for profiles whose
	// grants changed in a bulk batch.
	TaskAuthzInvalidate = "authz:invalidate"
)

// InvalidatePayload carries the profiles to invalidate.
type InvalidatePayload struct {
	ProfileIDs []int64 `json:"profile_ids"`
}

// NewInvalidateTask constructs an Asynq task.
func NewInvalidateTask(payload InvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzInvalidate, data), nil
}

// NewInvalidateHandler returns the worker handler for TaskAuthzInvalidate.
// metrics may be nil.
func NewInvalidateHandler(cache *resolve.Cache, metrics *Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskAuthzInvalidate)
		var payload InvalidatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if err := cache.InvalidateProfiles(ctx, payload.ProfileIDs); err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("invalidated profile cache", slog.Int("profiles", len(payload.ProfileIDs)))
		}
		return tracker.End(nil)
	}
}
