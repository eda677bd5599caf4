// Package outbound defines the outbound port interfaces the core depends
// on: the task broker, the result backend, and the push-proxy publisher.
package outbound

import (
	"context"
	"errors"
)

// TaskState is the lifecycle state of a broker task.
type TaskState string

const (
	// TaskPending means the task has been enqueued but not picked up, or
	// has never been seen by the backend at all.
	TaskPending TaskState = "pending"

	// TaskRunning means a worker is executing the task.
	TaskRunning TaskState = "running"

	// TaskSucceeded is terminal: the task completed and its payload is the
	// result value.
	TaskSucceeded TaskState = "succeeded"

	// TaskFailed is terminal: the task raised and its payload is the error
	// string.
	TaskFailed TaskState = "failed"

	// TaskRevoked is terminal: the task was cancelled before completing.
	TaskRevoked TaskState = "revoked"

	// TaskProgress is the custom non-terminal state used to relay client
	// progress notifications to the worker polling a response task id.
	// The payload is a JSON-serialized progress notification.
	TaskProgress TaskState = "ODINMCP_PROGRESS"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskRevoked
}

// Task is one unit of work flowing through the broker.
type Task struct {
	// ID identifies the task. Empty on enqueue means the broker assigns
	// one; response tasks carry the deterministic rendezvous id.
	ID string `json:"id"`

	// Name selects the worker handler (handle_mcp_request, ...).
	Name string `json:"name"`

	// Args are the JSON-string arguments, in positional order.
	Args []string `json:"args"`
}

// ErrNoTask is returned by Dequeue when the wait was cut short without a
// task becoming available.
var ErrNoTask = errors.New("no task available")

// Broker is the task queue between the HTTP tier and the worker plane.
type Broker interface {
	// Enqueue submits a task. When task.ID is empty the broker assigns a
	// random id; the returned id is always the effective one.
	Enqueue(ctx context.Context, task Task) (string, error)

	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)

	// Revoke marks a task cancelled. A task that already reached a terminal
	// state keeps its state and result, but the revocation is still
	// recorded, so IsRevoked reports true afterwards.
	Revoke(ctx context.Context, taskID string) error

	// IsRevoked reports whether the task has been revoked.
	IsRevoked(ctx context.Context, taskID string) (bool, error)
}

// Result is the backend's view of one task.
type Result struct {
	State   TaskState
	Payload string
}

// ResultBackend is the shared medium where task outcomes rendezvous with
// their readers. It is the only cross-process correlation channel in the
// system.
type ResultBackend interface {
	// StoreResult writes the state and payload for a task id. Writing a
	// non-terminal state over a terminal one must be rejected or ignored,
	// never applied.
	StoreResult(ctx context.Context, taskID string, state TaskState, payload string) error

	// GetResult reads the current state for a task id. Unknown ids report
	// TaskPending with an empty payload.
	GetResult(ctx context.Context, taskID string) (*Result, error)
}
