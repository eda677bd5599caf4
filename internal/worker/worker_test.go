package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory broker + result backend for tests.
type memStore struct {
	mu      sync.Mutex
	queue   []outbound.Task
	results map[string]outbound.Result
	revoked map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		results: make(map[string]outbound.Result),
		revoked: make(map[string]bool),
	}
}

func (s *memStore) Enqueue(_ context.Context, task outbound.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = "generated"
	}
	s.queue = append(s.queue, task)
	return task.ID, nil
}

func (s *memStore) Dequeue(ctx context.Context) (*outbound.Task, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			task := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return &task, nil
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *memStore) Revoke(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[taskID] = true
	if !s.results[taskID].State.Terminal() {
		s.results[taskID] = outbound.Result{State: outbound.TaskRevoked}
	}
	return nil
}

func (s *memStore) IsRevoked(_ context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[taskID], nil
}

func (s *memStore) StoreResult(_ context.Context, taskID string, state outbound.TaskState, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results[taskID].State.Terminal() {
		return nil
	}
	s.results[taskID] = outbound.Result{State: state, Payload: payload}
	return nil
}

func (s *memStore) GetResult(_ context.Context, taskID string) (*outbound.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[taskID]
	if !ok {
		return &outbound.Result{State: outbound.TaskPending}, nil
	}
	return &result, nil
}

// isRevokedLocked is a test-only helper that reads the revocation map under
// the store's lock.
func (s *memStore) isRevokedLocked(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[taskID]
}

// memPublisher records published frames.
type memPublisher struct {
	mu     sync.Mutex
	frames []publishedFrame
	closed []string
}

type publishedFrame struct {
	channel string
	content []byte
}

func (p *memPublisher) Publish(_ context.Context, channel string, content []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, publishedFrame{channel: channel, content: content})
	return nil
}

func (p *memPublisher) CloseChannel(_ context.Context, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, channel)
	return nil
}

func (p *memPublisher) frameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *memPublisher) frame(i int) publishedFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[i]
}

// waitFrames blocks until the publisher holds at least n frames.
func (p *memPublisher) waitFrames(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.frameCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published frames (have %d)", n, p.frameCount())
}

// decodeFrame strips the SSE framing and parses the JSON payload.
func decodeFrame(t *testing.T, frame publishedFrame) map[string]json.RawMessage {
	t.Helper()
	content := frame.content
	if !bytes.HasPrefix(content, []byte("event: message\ndata: ")) {
		t.Fatalf("frame %q is not SSE framed", content)
	}
	payload := bytes.TrimPrefix(content, []byte("event: message\ndata: "))
	payload = bytes.TrimSuffix(payload, []byte("\n\n"))
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshaling frame payload %q: %v", payload, err)
	}
	return decoded
}

func testUser() *identity.User {
	return &identity.User{UserID: "u1", SessionID: "s1", Scope: []string{"mcp"}}
}

func testInitOptions() mcp.InitializationOptions {
	return mcp.InitializationOptions{
		ServerInfo:   mcp.Implementation{Name: "odin-test", Version: "0.0.1"},
		Capabilities: mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
		Instructions: "test server",
	}
}

func newTestSession(store *memStore, publisher *memPublisher) *Session {
	return NewSession("chan-1", testUser(), testInitOptions(), nil, publisher, store, store, nil)
}
