package sqlitebroker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := store.Enqueue(ctx, outbound.Task{Name: name, Args: []string{name}}); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", name, err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		task, err := store.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error: %v", err)
		}
		if task.Name != want {
			t.Errorf("Dequeue() = %q, want %q", task.Name, want)
		}
		if len(task.Args) != 1 || task.Args[0] != want {
			t.Errorf("task.Args = %v, want [%s]", task.Args, want)
		}
	}
}

func TestEnqueue_ExplicitID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, outbound.Task{ID: "explicit", Name: "t", Args: []string{}})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if id != "explicit" {
		t.Errorf("Enqueue() id = %q, want %q", id, "explicit")
	}

	generated, err := store.Enqueue(ctx, outbound.Task{Name: "t", Args: []string{}})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if generated == "" {
		t.Error("Enqueue() did not assign an id")
	}
}

func TestDequeue_ContextCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := store.Dequeue(ctx); err == nil {
		t.Error("Dequeue() on empty queue returned without error after ctx done")
	}
}

func TestStoreResult_States(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unknown task is pending.
	result, err := store.GetResult(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetResult() error: %v", err)
	}
	if result.State != outbound.TaskPending {
		t.Errorf("state = %q, want pending", result.State)
	}

	// Progress then success.
	if err := store.StoreResult(ctx, "t1", outbound.TaskProgress, `{"progress":1}`); err != nil {
		t.Fatalf("StoreResult(progress) error: %v", err)
	}
	result, _ = store.GetResult(ctx, "t1")
	if result.State != outbound.TaskProgress || result.Payload != `{"progress":1}` {
		t.Errorf("result = %+v, want progress with payload", result)
	}

	if err := store.StoreResult(ctx, "t1", outbound.TaskSucceeded, `{"ok":true}`); err != nil {
		t.Fatalf("StoreResult(succeeded) error: %v", err)
	}

	// Terminal states are immutable.
	if err := store.StoreResult(ctx, "t1", outbound.TaskProgress, `{"progress":2}`); err != nil {
		t.Fatalf("StoreResult() over terminal error: %v", err)
	}
	result, _ = store.GetResult(ctx, "t1")
	if result.State != outbound.TaskSucceeded {
		t.Errorf("state = %q, terminal state was overwritten", result.State)
	}
}

func TestRevoke(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Revoke(ctx, "t1"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "t1")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if !revoked {
		t.Error("IsRevoked() = false after Revoke()")
	}
	result, _ := store.GetResult(ctx, "t1")
	if result.State != outbound.TaskRevoked {
		t.Errorf("state = %q, want revoked", result.State)
	}
}

func TestRevoke_TerminalIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StoreResult(ctx, "t1", outbound.TaskSucceeded, "done"); err != nil {
		t.Fatalf("StoreResult() error: %v", err)
	}
	if err := store.Revoke(ctx, "t1"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	result, _ := store.GetResult(ctx, "t1")
	if result.State != outbound.TaskSucceeded || result.Payload != "done" {
		t.Errorf("result = %+v, revoke clobbered a terminal state", result)
	}
}
