// Package action implements the Action/ActionChain execution layer:
// guarded, timestamped, exception-safe invocation of a unit of work
// triggered by a bus event.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/eventbus"
	"github.com/monoco-dev/fabric/pkg/logger"
)

// Status is an ActionResult's detailed execution status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of invoking an Action.
type Result struct {
	Success     bool
	Status      Status
	Output      any
	Error       string
	Metadata    map[string]any
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SuccessResult builds a success Result carrying output.
func SuccessResult(output any, metadata map[string]any) Result {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}

	return Result{Success: true, Status: StatusSuccess, Output: output, Metadata: metadata, CompletedAt: &now}
}

// FailureResult builds a failed Result carrying an error message.
func FailureResult(err string, metadata map[string]any) Result {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}

	return Result{Success: false, Status: StatusFailed, Error: err, Metadata: metadata, CompletedAt: &now}
}

// SkippedResult builds a skipped Result, success=true since skipping is
// not a failure.
func SkippedResult(reason string, metadata map[string]any) Result {
	now := time.Now().UTC()

	m := map[string]any{"reason": reason}
	for k, v := range metadata {
		m[k] = v
	}

	return Result{Success: true, Status: StatusSkipped, Metadata: m, CompletedAt: &now}
}

// Action is a named unit of work invoked by the router in response to
// a bus event.
type Action interface {
	Name() string
	CanExecute(ctx context.Context, event eventbus.Event) (bool, error)
	Execute(ctx context.Context, event eventbus.Event) (Result, error)
}

// Invoke is the implicit wrapping every Action gets when called through
// the router: timestamp, guard, execute, and wrap any error/panic as a
// failure result rather than letting it propagate.
func Invoke(ctx context.Context, a Action, event eventbus.Event, c clock.Clock) (result Result) {
	if c == nil {
		c = clock.New()
	}

	started := c.Now()

	defer func() {
		if r := recover(); r != nil {
			result = FailureResult(fmt.Sprintf("%v", r), map[string]any{"action": a.Name(), "event_type": string(event.Type)})
		}

		if result.StartedAt == nil {
			result.StartedAt = &started
		}
	}()

	ok, err := a.CanExecute(ctx, event)
	if err != nil {
		logger.CtxErr(ctx, err).Errorw("can_execute failed", "action", a.Name())
		return FailureResult(err.Error(), map[string]any{"action": a.Name(), "event_type": string(event.Type)})
	}

	if !ok {
		return SkippedResult("Conditions not met", map[string]any{"action": a.Name(), "event_type": string(event.Type)})
	}

	res, err := a.Execute(ctx, event)
	if err != nil {
		logger.CtxErr(ctx, err).Errorw("action failed", "action", a.Name())
		return FailureResult(err.Error(), map[string]any{"action": a.Name(), "event_type": string(event.Type)})
	}

	return res
}

// ConditionalAction wraps a name, predicate, and body function so a
// caller can define an Action declaratively without a dedicated type.
type ConditionalAction struct {
	ActionName string
	Condition  func(ctx context.Context, event eventbus.Event) (bool, error)
	Body       func(ctx context.Context, event eventbus.Event) (any, error)
}

func (a *ConditionalAction) Name() string { return a.ActionName }

func (a *ConditionalAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	if a.Condition == nil {
		return true, nil
	}

	return a.Condition(ctx, event)
}

func (a *ConditionalAction) Execute(ctx context.Context, event eventbus.Event) (Result, error) {
	out, err := a.Body(ctx, event)
	if err != nil {
		return Result{}, err
	}

	if res, ok := out.(Result); ok {
		return res, nil
	}

	return SuccessResult(out, nil), nil
}

// Registry is a name -> Action lookup, used by the router to track
// every action wired in through register().
type Registry struct {
	mu      sync.Mutex
	actions map[string]Action
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

func (r *Registry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[a.Name()] = a
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.actions, name)
}

func (r *Registry) Get(name string) (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[name]

	return a, ok
}

func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}

	return names
}
