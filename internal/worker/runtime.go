package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/theNullP0inter/odinmcp/internal/dispatch"
	"github.com/theNullP0inter/odinmcp/internal/identity"
	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
	"github.com/theNullP0inter/odinmcp/pkg/mcp"
)

// UserDecoder reconstitutes a user from a task payload. Deployments with a
// subtyped user model install their own decoder.
type UserDecoder func(raw []byte) (*identity.User, error)

// Runtime consumes broker tasks and executes them: client requests through
// the handler tables, notifications through the control translations, and
// the response/terminate bookkeeping tasks.
type Runtime struct {
	broker      outbound.Broker
	backend     outbound.ResultBackend
	publisher   outbound.Publisher
	handlers    *Handlers
	tokens      *identity.ChannelTokens
	initOptions mcp.InitializationOptions

	userDecoder UserDecoder
	lifespan    Lifespan
	logger      *slog.Logger
	tracer      trace.Tracer
	tasksTotal  *prometheus.CounterVec
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = logger }
}

// WithLifespan sets the lifespan scope opened around each request task.
func WithLifespan(lifespan Lifespan) RuntimeOption {
	return func(r *Runtime) { r.lifespan = lifespan }
}

// WithUserDecoder sets the decoder for task user payloads.
func WithUserDecoder(decoder UserDecoder) RuntimeOption {
	return func(r *Runtime) { r.userDecoder = decoder }
}

// WithMetricsRegistry registers the runtime's task metrics with reg.
func WithMetricsRegistry(reg prometheus.Registerer) RuntimeOption {
	return func(r *Runtime) {
		r.tasksTotal = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odinmcp",
				Name:      "worker_tasks_total",
				Help:      "Total worker tasks executed",
			},
			[]string{"task", "outcome"},
		)
	}
}

// NewRuntime creates a worker runtime over the given infrastructure.
func NewRuntime(
	broker outbound.Broker,
	backend outbound.ResultBackend,
	publisher outbound.Publisher,
	handlers *Handlers,
	tokens *identity.ChannelTokens,
	initOptions mcp.InitializationOptions,
	opts ...RuntimeOption,
) *Runtime {
	r := &Runtime{
		broker:      broker,
		backend:     backend,
		publisher:   publisher,
		handlers:    handlers,
		tokens:      tokens,
		initOptions: initOptions,
		userDecoder: identity.UserFromJSON,
		lifespan:    NoopLifespan,
		logger:      slog.Default(),
		tracer:      otel.Tracer("odinmcp/worker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes and executes tasks until ctx is cancelled. Tasks run
// one-at-a-time; within a task, handlers may block on publishes and broker
// polls.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("worker runtime started")
	for {
		task, err := r.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("worker runtime stopping")
				return nil
			}
			return fmt.Errorf("dequeueing task: %w", err)
		}
		r.executeTask(ctx, task)
	}
}

// executeTask runs one task and records its outcome in the result backend.
// A failed task stores its error string; it never leaves a half-written
// response under its id.
func (r *Runtime) executeTask(ctx context.Context, task *outbound.Task) {
	ctx, span := r.tracer.Start(ctx, "worker.task",
		trace.WithAttributes(attribute.String("task.name", task.Name)))
	defer span.End()

	if err := r.backend.StoreResult(ctx, task.ID, outbound.TaskRunning, ""); err != nil {
		r.logger.Error("marking task running", "task_id", task.ID, "error", err)
	}

	payload, err := r.dispatchTask(ctx, task)
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		r.logger.Error("task failed", "task", task.Name, "task_id", task.ID, "error", err)
		if storeErr := r.backend.StoreResult(ctx, task.ID, outbound.TaskFailed, err.Error()); storeErr != nil {
			r.logger.Error("storing task failure", "task_id", task.ID, "error", storeErr)
		}
	} else {
		if storeErr := r.backend.StoreResult(ctx, task.ID, outbound.TaskSucceeded, payload); storeErr != nil {
			r.logger.Error("storing task result", "task_id", task.ID, "error", storeErr)
		}
	}
	if r.tasksTotal != nil {
		r.tasksTotal.WithLabelValues(task.Name, outcome).Inc()
	}
}

// dispatchTask routes a task by name. The returned payload is the task's
// result value.
func (r *Runtime) dispatchTask(ctx context.Context, task *outbound.Task) (string, error) {
	switch task.Name {
	case dispatch.TaskHandleMCPRequest:
		return "", r.handleRequestTask(ctx, task)
	case dispatch.TaskHandleMCPNotification:
		return "", r.handleNotificationTask(ctx, task)
	case dispatch.TaskHandleMCPResponse:
		// The task body is the identity function over the response JSON.
		// Its value is the side effect: the broker records success with
		// this payload and the coroutine polling this id observes it.
		if len(task.Args) < 1 {
			return "", errors.New("response task missing payload")
		}
		return task.Args[0], nil
	case dispatch.TaskTerminateSession:
		return "", r.handleTerminateTask(ctx, task)
	default:
		return "", fmt.Errorf("unknown task %q", task.Name)
	}
}

// taskContext decodes the common (message, channel, user) argument triple.
func (r *Runtime) taskContext(task *outbound.Task) (*mcp.Message, string, *identity.User, error) {
	if len(task.Args) < 3 {
		return nil, "", nil, fmt.Errorf("task %s has %d args, want 3", task.Name, len(task.Args))
	}
	msg, err := mcp.Decode([]byte(task.Args[0]))
	if err != nil {
		return nil, "", nil, fmt.Errorf("decoding task message: %w", err)
	}
	user, err := r.userDecoder([]byte(task.Args[2]))
	if err != nil {
		return nil, "", nil, fmt.Errorf("decoding task user: %w", err)
	}
	return msg, task.Args[1], user, nil
}

// newSession reconstitutes the worker session for a channel and user.
func (r *Runtime) newSession(channel string, user *identity.User) *Session {
	return NewSession(
		channel,
		user,
		r.initOptions,
		r.tokens.ClientParams(user, channel),
		r.publisher,
		r.backend,
		r.broker,
		r.logger,
	)
}

// handleRequestTask executes a client request through the handler table and
// always emits either a response or an error on the channel.
func (r *Runtime) handleRequestTask(ctx context.Context, task *outbound.Task) error {
	msg, channel, user, err := r.taskContext(task)
	if err != nil {
		return err
	}

	lifespanValue, release, err := r.lifespan(ctx)
	if err != nil {
		return fmt.Errorf("opening lifespan scope: %w", err)
	}
	defer release()

	session := r.newSession(channel, user)

	var (
		result  any
		errData *mcp.ErrorData
	)
	handler, ok := r.handlers.Request(msg.Method())
	if !ok {
		errData = &mcp.ErrorData{Code: mcp.HandlerNotFound, Message: "Handler not found"}
	} else {
		reqCtx := WithRequestContext(ctx, &RequestContext{
			RequestID: msg.RawID(),
			Meta:      msg.Meta(),
			Session:   session,
			Lifespan:  lifespanValue,
		})
		func() {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%v", p)
				}
			}()
			result, err = handler(reqCtx, msg.Params())
		}()
		if err != nil {
			var mcpErr *mcp.Error
			if errors.As(err, &mcpErr) {
				errData = &mcpErr.Data
			} else {
				errData = &mcp.ErrorData{Code: mcp.HandlerNotFound, Message: err.Error()}
			}
		}
	}

	return session.sendResponse(ctx, msg.RawID(), result, errData)
}

// handleNotificationTask translates protocol notifications into broker
// control operations and dispatches the rest to registered handlers.
func (r *Runtime) handleNotificationTask(ctx context.Context, task *outbound.Task) error {
	msg, channel, user, err := r.taskContext(task)
	if err != nil {
		return err
	}

	switch msg.Method() {
	case mcp.MethodNotificationsCancel:
		r.handleCancelled(ctx, msg, channel, user)
	case mcp.MethodNotificationsProgress:
		r.handleProgress(ctx, msg, channel, user)
	}

	if handler, ok := r.handlers.Notification(msg.Method()); ok {
		session := r.newSession(channel, user)
		notifCtx := WithRequestContext(ctx, &RequestContext{
			Meta:    msg.Meta(),
			Session: session,
		})
		if err := handler(notifCtx, msg.Params()); err != nil {
			// Notification handlers have no reply channel; swallow.
			r.logger.Warn("notification handler error", "method", msg.Method(), "error", err)
		}
	}
	return nil
}

// handleCancelled revokes the rendezvous task for the cancelled request id,
// unless it already finished.
func (r *Runtime) handleCancelled(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) {
	var params mcp.CancelledParams
	if err := json.Unmarshal(msg.Params(), &params); err != nil {
		r.logger.Warn("undecodable cancelled notification", "error", err)
		return
	}
	taskID := dispatch.ResponseTaskID(mcp.IDString(params.RequestID), user, channel)
	result, err := r.backend.GetResult(ctx, taskID)
	if err != nil {
		r.logger.Error("reading task state for cancellation", "task_id", taskID, "error", err)
		return
	}
	if result.State == outbound.TaskSucceeded || result.State == outbound.TaskFailed {
		return
	}
	if err := r.broker.Revoke(ctx, taskID); err != nil {
		r.logger.Error("revoking task", "task_id", taskID, "error", err)
	}
}

// handleProgress relays a client progress notification to the worker
// polling the corresponding rendezvous task. Progress for a task that
// already finished (or was revoked) is dropped.
func (r *Runtime) handleProgress(ctx context.Context, msg *mcp.Message, channel string, user *identity.User) {
	var params mcp.ProgressParams
	if err := json.Unmarshal(msg.Params(), &params); err != nil {
		r.logger.Warn("undecodable progress notification", "error", err)
		return
	}
	taskID := dispatch.ResponseTaskID(mcp.IDString(params.ProgressToken), user, channel)
	result, err := r.backend.GetResult(ctx, taskID)
	if err != nil {
		r.logger.Error("reading task state for progress", "task_id", taskID, "error", err)
		return
	}
	if result.State.Terminal() {
		return
	}
	// Store the whole notification so the poller can decode params.
	if err := r.backend.StoreResult(ctx, taskID, outbound.TaskProgress, string(msg.Raw)); err != nil {
		r.logger.Error("storing progress", "task_id", taskID, "error", err)
	}
}

// handleTerminateTask publishes the channel-close control.
func (r *Runtime) handleTerminateTask(ctx context.Context, task *outbound.Task) error {
	if len(task.Args) < 2 {
		return fmt.Errorf("terminate task has %d args, want 2", len(task.Args))
	}
	user, err := r.userDecoder([]byte(task.Args[1]))
	if err != nil {
		return fmt.Errorf("decoding task user: %w", err)
	}
	session := r.newSession(task.Args[0], user)
	return session.Terminate(ctx)
}
