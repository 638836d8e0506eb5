// Package sandbox provides per-test-task isolation for the Memory storage
// backend: each logical test task can check out its own pair of in-memory
// containers (buckets, objects) instead of sharing the process-wide store.
//
// Go has no introspectable goroutine identity, so "the current task" is
// never inferred. It is minted once with NewTaskID and carried explicitly on
// every context.Context that reaches the storage layer.
package sandbox

import (
	"context"

	"github.com/google/uuid"
)

// TaskID identifies a caller for sandbox purposes: an HTTP request, a test
// goroutine, or an owner spawned by StartOwner.
type TaskID string

// NewTaskID mints a fresh, collision-resistant task identity.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

type contextKey struct{}

// WithTask attaches a TaskID to ctx, overriding any TaskID already present.
func WithTask(ctx context.Context, id TaskID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// TaskFromContext retrieves the TaskID attached by WithTask, if any.
func TaskFromContext(ctx context.Context) (TaskID, bool) {
	id, ok := ctx.Value(contextKey{}).(TaskID)
	return id, ok
}
