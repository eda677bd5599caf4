// Package redisbroker implements the task broker and result backend over
// Redis. The queue is a list, task results are per-task hashes, and
// revocations are a set. This is the deployment driver for multi-node
// installs: every web and worker process points at the same Redis.
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
)

const (
	queueKey     = "odinmcp:queue"
	resultPrefix = "odinmcp:result:"
	revokedKey   = "odinmcp:revoked"
)

// dequeueBlock is how long each BRPOP blocks before re-checking ctx.
const dequeueBlock = time.Second

// storeResultScript writes state and payload unless the task has already
// reached a terminal state. Terminal results are immutable.
var storeResultScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'state')
if current == 'succeeded' or current == 'failed' or current == 'revoked' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'payload', ARGV[2])
return 1
`)

// Broker is the Redis-backed task queue.
type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBroker connects a broker to the given Redis URL.
func NewBroker(url string, logger *slog.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: redis.NewClient(opts), logger: logger}, nil
}

// Enqueue pushes a task onto the queue, assigning an id when none is set.
func (b *Broker) Enqueue(ctx context.Context, task outbound.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshaling task: %w", err)
	}
	if err := b.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return "", fmt.Errorf("pushing task: %w", err)
	}
	return task.ID, nil
}

// Dequeue blocks until a task is available or ctx is done.
func (b *Broker) Dequeue(ctx context.Context) (*outbound.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := b.client.BRPop(ctx, dequeueBlock, queueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("popping task: %w", err)
		}
		// BRPOP returns [key, value].
		if len(entry) != 2 {
			continue
		}
		var task outbound.Task
		if err := json.Unmarshal([]byte(entry[1]), &task); err != nil {
			b.logger.Error("dropping undecodable task", "error", err)
			continue
		}
		return &task, nil
	}
}

// Revoke marks the task cancelled unless it already reached a terminal
// state, and records it in the revocation set either way.
func (b *Broker) Revoke(ctx context.Context, taskID string) error {
	if err := b.client.SAdd(ctx, revokedKey, taskID).Err(); err != nil {
		return fmt.Errorf("recording revocation: %w", err)
	}
	err := storeResultScript.Run(ctx, b.client,
		[]string{resultPrefix + taskID},
		string(outbound.TaskRevoked), "").Err()
	if err != nil {
		return fmt.Errorf("marking task revoked: %w", err)
	}
	return nil
}

// IsRevoked reports membership in the revocation set.
func (b *Broker) IsRevoked(ctx context.Context, taskID string) (bool, error) {
	revoked, err := b.client.SIsMember(ctx, revokedKey, taskID).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return revoked, nil
}

// Close releases the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Backend is the Redis-backed result backend. It may share a Redis with the
// broker or point at a different one.
type Backend struct {
	client *redis.Client
}

// NewBackend connects a result backend to the given Redis URL.
func NewBackend(url string) (*Backend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	return &Backend{client: redis.NewClient(opts)}, nil
}

// StoreResult writes the state and payload for a task. Terminal states win:
// attempts to overwrite them are ignored.
func (s *Backend) StoreResult(ctx context.Context, taskID string, state outbound.TaskState, payload string) error {
	err := storeResultScript.Run(ctx, s.client,
		[]string{resultPrefix + taskID},
		string(state), payload).Err()
	if err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	return nil
}

// GetResult reads the current state for a task. Unknown ids are pending.
func (s *Backend) GetResult(ctx context.Context, taskID string) (*outbound.Result, error) {
	fields, err := s.client.HGetAll(ctx, resultPrefix+taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	if len(fields) == 0 {
		return &outbound.Result{State: outbound.TaskPending}, nil
	}
	return &outbound.Result{
		State:   outbound.TaskState(fields["state"]),
		Payload: fields["payload"],
	}, nil
}

// Close releases the Redis connection.
func (s *Backend) Close() error {
	return s.client.Close()
}

// Compile-time interface checks.
var (
	_ outbound.Broker        = (*Broker)(nil)
	_ outbound.ResultBackend = (*Backend)(nil)
)
