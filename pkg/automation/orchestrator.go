package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
	"github.com/monoco-dev/fabric/pkg/logger"
	"github.com/monoco-dev/fabric/pkg/router"
)

// ActionFactory builds the named action from a trigger's params.
// Returning (nil, nil) means "this action needs a collaborator this
// deployment didn't provide" (e.g. SpawnAgentAction with no Scheduler
// wired), not an error.
type ActionFactory func(params map[string]any) (action.Action, error)

// Stats is a point-in-time snapshot of orchestrator activity.
type Stats struct {
	Running       bool
	Watchers      int
	WatcherNames  []string
	ConfigTriggers int
	Router        router.Stats
}

// Orchestrator wires watchers, the event bus, and the action router
// together from a declarative Config: each enabled trigger names a
// watcher and one or more actions, registered on the router under the
// trigger's event type, field/condition gate, and priority. Grounded on
// AutomationOrchestrator (monoco/core/automation/orchestrator.py).
type Orchestrator struct {
	Bus    *eventbus.Bus
	Router *router.ActionRouter

	Scheduler action.Scheduler

	watcherFactories map[string]WatcherFactory
	actionFactories  map[string]ActionFactory

	mu       sync.Mutex
	config   Config
	watchers map[string]Watcher
	running  bool
}

// New constructs an Orchestrator bound to bus, seeded with the built-in
// watcher/action registries.
func New(bus *eventbus.Bus) *Orchestrator {
	o := &Orchestrator{
		Bus:              bus,
		Router:           router.NewActionRouter("automation", bus, nil),
		watcherFactories: WatcherClasses(),
		watchers:         map[string]Watcher{},
	}
	o.actionFactories = o.defaultActionFactories()

	return o
}

// AddWatcherFactory registers a custom watcher constructor under name,
// extending (or overriding) the built-in registry - the Go analog of
// add_watcher/WATCHER_CLASSES mutation in the original.
func (o *Orchestrator) AddWatcherFactory(name string, factory WatcherFactory) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.watcherFactories[name] = factory
}

// AddActionFactory registers a custom action constructor under name,
// the Go analog of add_action_class.
func (o *Orchestrator) AddActionFactory(name string, factory ActionFactory) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.actionFactories[name] = factory
}

// Configure builds a watcher per distinct trigger.watcher name and
// registers router rules for every enabled trigger's actions, wiring
// each watcher's publisher so its FileEvents reach the bus. Configure
// may be called again to reconfigure before Start; it is not safe to
// call while running.
func (o *Orchestrator) Configure(cfg Config, projectRoot string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.config = cfg
	pollInterval := defaultPollInterval(cfg.Settings)

	for _, trigger := range cfg.EnabledTriggers() {
		if err := o.setupTrigger(trigger, projectRoot, pollInterval); err != nil {
			return fmt.Errorf("configuring trigger %q: %w", trigger.Name, err)
		}
	}

	return nil
}

// defaultPollInterval reads settings["default_poll_interval"] (seconds,
// as config.py's create_default_config seeds it), falling back to the
// watcher framework's own default (the zero value) when absent or of an
// unexpected type.
func defaultPollInterval(settings map[string]any) time.Duration {
	switch v := settings["default_poll_interval"].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

func (o *Orchestrator) setupTrigger(trigger TriggerSpec, projectRoot string, pollInterval time.Duration) error {
	w, err := o.ensureWatcherLocked(trigger.Watcher, projectRoot, pollInterval)
	if err != nil {
		return err
	}

	if w == nil {
		logger.Ctx(context.Background()).Warnw("unknown or unavailable watcher", "watcher", trigger.Watcher, "trigger", trigger.Name)
		return nil
	}

	var actions []action.Action

	for _, spec := range trigger.Actions {
		a, err := o.createAction(spec)
		if err != nil {
			return fmt.Errorf("creating action %q: %w", spec.Type, err)
		}

		if a != nil {
			actions = append(actions, a)
		}
	}

	if len(actions) == 0 || trigger.EventType == "" {
		return nil
	}

	var condition func(eventbus.Event) bool
	if trigger.Condition != "" {
		condition = parseCondition(trigger.Condition, trigger.Field)
	}

	eventTypes := []eventbus.EventType{eventbus.EventType(trigger.EventType)}

	if len(actions) == 1 {
		o.Router.Register(eventTypes, actions[0], condition, trigger.Priority)
		return nil
	}

	chain := action.NewChain(trigger.Name, nil)
	for _, a := range actions {
		chain.Add(a)
	}

	o.Router.Register(eventTypes, chain, condition, trigger.Priority)

	return nil
}

// ensureWatcherLocked returns the already-built watcher for watcherName,
// constructing and wiring it on first use. Caller must hold o.mu.
func (o *Orchestrator) ensureWatcherLocked(watcherName, projectRoot string, pollInterval time.Duration) (Watcher, error) {
	if w, ok := o.watchers[watcherName]; ok {
		return w, nil
	}

	factory, ok := o.watcherFactories[watcherName]
	if !ok {
		return nil, nil
	}

	w, err := factory(projectRoot, pollInterval)
	if err != nil {
		return nil, fmt.Errorf("building watcher %q: %w", watcherName, err)
	}

	if w == nil {
		return nil, nil
	}

	w.SetPublisher(publisherFor(watcherName, o.Bus))
	o.watchers[watcherName] = w

	return w, nil
}

func (o *Orchestrator) createAction(spec ActionSpec) (action.Action, error) {
	factory, ok := o.actionFactories[spec.Type]
	if !ok {
		logger.Ctx(context.Background()).Warnw("unknown action type", "type", spec.Type)
		return nil, nil
	}

	a, err := factory(spec.Params)
	if err != nil {
		return nil, err
	}

	if a == nil {
		logger.Ctx(context.Background()).Warnw("action factory declined (missing collaborator)", "type", spec.Type)
	}

	return a, nil
}

// Start starts the router and every configured watcher. Calling Start
// twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}

	o.running = true
	watchers := make(map[string]Watcher, len(o.watchers))
	for name, w := range o.watchers {
		watchers[name] = w
	}
	o.mu.Unlock()

	o.Router.Start(ctx)

	for name, w := range watchers {
		w.Start(ctx)
		logger.Ctx(ctx).Infow("started watcher", "watcher", name)
	}

	logger.Ctx(ctx).Infow("automation orchestrator started", "watchers", len(watchers))
}

// Stop stops every configured watcher and the router. Calling Stop when
// not running is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}

	o.running = false
	watchers := make(map[string]Watcher, len(o.watchers))
	for name, w := range o.watchers {
		watchers[name] = w
	}
	o.mu.Unlock()

	for name, w := range watchers {
		w.Stop()
		logger.Ctx(context.Background()).Infow("stopped watcher", "watcher", name)
	}

	o.Router.Stop()
}

// Stats returns a point-in-time snapshot of orchestrator activity.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	names := make([]string, 0, len(o.watchers))
	for name := range o.watchers {
		names = append(names, name)
	}
	running := o.running
	triggers := len(o.config.Triggers)
	o.mu.Unlock()

	return Stats{
		Running:        running,
		Watchers:       len(names),
		WatcherNames:   names,
		ConfigTriggers: triggers,
		Router:         o.Router.Stats(),
	}
}

// defaultActionFactories is the Go analog of ACTION_CLASSES: one entry
// per built-in action in pkg/action. SpawnAgentAction and its role
// variants require a Scheduler collaborator; when none is wired the
// factory logs and declines (nil, nil) rather than failing Configure.
func (o *Orchestrator) defaultActionFactories() map[string]ActionFactory {
	spawnRole := func(role string) ActionFactory {
		return func(params map[string]any) (action.Action, error) {
			if o.Scheduler == nil {
				return nil, nil
			}

			r := paramString(params, "role", role)

			return action.NewSpawnAgentAction(r, o.Scheduler), nil
		}
	}

	return map[string]ActionFactory{
		"SpawnAgentAction":    spawnRole("Engineer"),
		"SpawnArchitectAction": func(params map[string]any) (action.Action, error) {
			if o.Scheduler == nil {
				return nil, nil
			}

			return action.NewSpawnArchitectAction(o.Scheduler), nil
		},
		"SpawnEngineerAction": func(params map[string]any) (action.Action, error) {
			if o.Scheduler == nil {
				return nil, nil
			}

			return action.NewSpawnEngineerAction(o.Scheduler), nil
		},
		"SpawnReviewerAction": func(params map[string]any) (action.Action, error) {
			if o.Scheduler == nil {
				return nil, nil
			}

			return action.NewSpawnReviewerAction(o.Scheduler), nil
		},
		"GitCommitAction": func(params map[string]any) (action.Action, error) {
			return &action.GitCommitAction{
				MessageTemplate: paramString(params, "message_template", "automation: {issue_id}"),
				Files:           paramStringSlice(params, "files"),
				AddAll:          paramBool(params, "add_all", true),
				WorkingDir:      paramString(params, "working_dir", "."),
				Timeout:         paramDuration(params, "timeout_seconds", 30*time.Second),
			}, nil
		},
		"GitPushAction": func(params map[string]any) (action.Action, error) {
			return &action.GitPushAction{
				Remote:     paramString(params, "remote", "origin"),
				Branch:     paramString(params, "branch", ""),
				Force:      paramBool(params, "force", false),
				WorkingDir: paramString(params, "working_dir", "."),
				Timeout:    paramDuration(params, "timeout_seconds", 60*time.Second),
			}, nil
		},
		"RunTestAction": func(params map[string]any) (action.Action, error) {
			return &action.RunTestAction{
				Command:    paramStringSlice(params, "command"),
				Path:       paramString(params, "path", "./..."),
				Verbose:    paramBool(params, "verbose", false),
				Timeout:    paramDuration(params, "timeout_seconds", 300*time.Second),
				WorkingDir: paramString(params, "working_dir", "."),
			}, nil
		},
		"SendNotificationAction": func(params map[string]any) (action.Action, error) {
			return &action.SendNotificationAction{
				Mode:            action.NotifyMode(paramString(params, "mode", "console")),
				MessageTemplate: paramString(params, "message_template", ""),
				WebhookURL:      paramString(params, "webhook_url", ""),
				FilePath:        paramString(params, "file_path", ""),
				Timeout:         paramDuration(params, "timeout_seconds", 10*time.Second),
			}, nil
		},
	}
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}

	return def
}

func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}

	return def
}

func paramDuration(params map[string]any, key string, def time.Duration) time.Duration {
	switch v := params[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return def
	}
}

func paramStringSlice(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))

	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
