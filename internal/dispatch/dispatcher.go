// Package dispatch enqueues typed worker tasks for inbound MCP traffic and
// defines the deterministic task id that correlates server-initiated
// requests with their responses across processes.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// Task names understood by the worker runtime.
const (
	TaskHandleMCPRequest      = "handle_mcp_request"
	TaskHandleMCPNotification = "handle_mcp_notification"
	TaskHandleMCPResponse     = "handle_mcp_response"
	TaskTerminateSession      = "terminate_session"
)

// ResponseTaskID derives the deterministic task id under which the response
// to a server-initiated request rendezvouses. The worker that issues the
// request and the HTTP handler that receives the correlating response must
// agree on this function byte for byte.
func ResponseTaskID(requestID string, user *identity.User, channel string) string {
	sum := sha256.Sum256([]byte("response_" + user.UserID + "_" + channel + "_" + requestID))
	return hex.EncodeToString(sum[:])
}

// Dispatcher enqueues worker tasks on behalf of the HTTP transport.
type Dispatcher struct {
	broker outbound.Broker
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given broker.
func NewDispatcher(broker outbound.Broker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{broker: broker, logger: logger}
}

// HandleMCPRequest enqueues a client request for asynchronous execution.
func (d *Dispatcher) HandleMCPRequest(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error {
	return d.enqueue(ctx, TaskHandleMCPRequest, "", msg, channel, user)
}

// HandleMCPNotification enqueues a client notification.
func (d *Dispatcher) HandleMCPNotification(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error {
	return d.enqueue(ctx, TaskHandleMCPNotification, "", msg, channel, user)
}

// HandleMCPResponse enqueues a client response under the deterministic task
// id so the worker polling that id observes completion via the backend.
func (d *Dispatcher) HandleMCPResponse(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) error {
	taskID := ResponseTaskID(msg.IDString(), user, channel)
	return d.enqueue(ctx, TaskHandleMCPResponse, taskID, msg, channel, user)
}

// TerminateSession enqueues a session close for the channel.
func (d *Dispatcher) TerminateSession(ctx context.Context, channel string, user *identity.User) error {
	userJSON, err := user.MarshalJSONString()
	if err != nil {
		return err
	}
	_, err = d.broker.Enqueue(ctx, outbound.Task{
		Name: TaskTerminateSession,
		Args: []string{channel, userJSON},
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", TaskTerminateSession, err)
	}
	return nil
}

// enqueue serializes the message, channel, and user into a task payload.
func (d *Dispatcher) enqueue(ctx context.Context, name, taskID string, msg *mcp.Message, channel string, user *identity.User) error {
	userJSON, err := user.MarshalJSONString()
	if err != nil {
		return err
	}
	id, err := d.broker.Enqueue(ctx, outbound.Task{
		ID:   taskID,
		Name: name,
		Args: []string{string(msg.Raw), channel, userJSON},
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", name, err)
	}
	d.logger.Debug("task enqueued", "task", name, "task_id", id, "method", msg.Method())
	return nil
}
