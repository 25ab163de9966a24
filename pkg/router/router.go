// Package router implements the priority-ordered event-to-action
// routing layer that sits between the bus and the action executor.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
	"github.com/monoco-dev/fabric/pkg/logger"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// Runnable is anything Execute-able against an event: either a single
// action.Action or an action.Chain.
type Runnable interface {
	Execute(ctx context.Context, event eventbus.Event) []action.Result
}

// singleAction adapts an action.Action into a Runnable, producing a
// one-element result slice.
type singleAction struct {
	a     action.Action
	clock clock.Clock
}

func (s singleAction) Execute(ctx context.Context, event eventbus.Event) []action.Result {
	return []action.Result{action.Invoke(ctx, s.a, event, s.clock)}
}

// RoutingRule maps a set of event types to a Runnable, optionally
// gated by an extra condition and ordered by priority (higher first).
type RoutingRule struct {
	EventTypes []eventbus.EventType
	Run        Runnable
	Condition  func(event eventbus.Event) bool
	Priority   int
	actionName string
}

// Matches reports whether rule applies to event.
func (r *RoutingRule) Matches(event eventbus.Event) bool {
	matched := false

	for _, t := range r.EventTypes {
		if t == event.Type {
			matched = true
			break
		}
	}

	if !matched {
		return false
	}

	if r.Condition != nil {
		return r.Condition(event)
	}

	return true
}

// ResultStats summarizes the router's bounded result history.
type ResultStats struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// Stats is a point-in-time snapshot of router activity.
type Stats struct {
	Name              string
	Running           bool
	Rules             int
	RegisteredActions []string
	EventsReceived    int
	EventsRouted      int
	Results           ResultStats
}

// ActionRouter subscribes to an eventbus.Bus and dispatches matching
// events to registered actions/chains in priority order.
type ActionRouter struct {
	Name string

	bus      *eventbus.Bus
	clock    clock.Clock
	registry *action.Registry
	metrics  *metrics.Collectors

	mu               sync.Mutex
	rules            []*RoutingRule
	running          bool
	subscriptions    map[eventbus.EventType]eventbus.Subscription
	eventCount       int
	routedCount      int
	results          []action.Result
	maxResultHistory int
}

// NewActionRouter constructs a router bound to bus.
func NewActionRouter(name string, bus *eventbus.Bus, c clock.Clock) *ActionRouter {
	if c == nil {
		c = clock.New()
	}

	return &ActionRouter{
		Name:             name,
		bus:              bus,
		clock:            c,
		registry:         action.NewRegistry(),
		subscriptions:    make(map[eventbus.EventType]eventbus.Subscription),
		maxResultHistory: 100,
	}
}

// Register adds a rule routing eventTypes to a (action.Action|*action.Chain).
// Whatever is passed must already satisfy Runnable, or be an
// action.Action which this method adapts automatically.
func (r *ActionRouter) Register(eventTypes []eventbus.EventType, run any, condition func(eventbus.Event) bool, priority int) *ActionRouter {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule := &RoutingRule{EventTypes: eventTypes, Condition: condition, Priority: priority}

	switch v := run.(type) {
	case action.Action:
		rule.Run = singleAction{a: v, clock: r.clock}
		rule.actionName = v.Name()
		r.registry.Register(v)
	case *action.Chain:
		rule.Run = v
		rule.actionName = v.ChainName
		for _, a := range v.Actions {
			r.registry.Register(a)
		}
	case Runnable:
		rule.Run = v
	default:
		panic(fmt.Sprintf("router: unsupported runnable type %T", run))
	}

	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority > r.rules[j].Priority })

	return r
}

// WithMetrics attaches a Collectors instance the router reports
// event/result counters to. Passing nil (the default) disables
// reporting entirely.
func (r *ActionRouter) WithMetrics(m *metrics.Collectors) *ActionRouter {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics = m

	return r
}

// Unregister removes every rule whose action/chain is named actionName,
// returning whether anything was removed.
func (r *ActionRouter) Unregister(actionName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.rules)
	kept := r.rules[:0:0]

	for _, rule := range r.rules {
		if rule.actionName != actionName {
			kept = append(kept, rule)
		}
	}

	r.rules = kept
	r.registry.Unregister(actionName)

	return len(r.rules) < before
}

// Start subscribes the router's handler to every event type mentioned
// across its registered rules. Calling Start twice is a no-op.
func (r *ActionRouter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.running = true

	seen := map[eventbus.EventType]bool{}
	for _, rule := range r.rules {
		for _, t := range rule.EventTypes {
			if seen[t] {
				continue
			}

			seen[t] = true
			r.subscriptions[t] = r.bus.Subscribe(t, r.handleEvent)
		}
	}

	logger.Ctx(ctx).Infow("router started", "name", r.Name, "rules", len(r.rules))
}

// Stop unsubscribes from every event type this router was listening
// on. Calling Stop when not running is a no-op.
func (r *ActionRouter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.running = false

	for t, sub := range r.subscriptions {
		r.bus.Unsubscribe(sub)
		delete(r.subscriptions, t)
	}
}

func (r *ActionRouter) handleEvent(ctx context.Context, event eventbus.Event) error {
	r.mu.Lock()
	r.eventCount++
	rules := make([]*RoutingRule, len(r.rules))
	copy(rules, r.rules)
	m := r.metrics
	r.mu.Unlock()

	if m != nil {
		m.RouterEventsReceived.WithLabelValues(r.Name).Inc()
	}

	matched := false

	for _, rule := range rules {
		if !rule.Matches(event) {
			continue
		}

		matched = true

		results := rule.Run.Execute(ctx, event)
		for _, res := range results {
			r.recordResult(res)

			if m != nil {
				m.RouterActionResults.WithLabelValues(r.Name, string(res.Status)).Inc()
			}
		}

		r.mu.Lock()
		r.routedCount++
		r.mu.Unlock()

		if m != nil {
			m.RouterEventsRouted.WithLabelValues(r.Name).Inc()
		}
	}

	if !matched {
		logger.Ctx(ctx).Debugw("no matching rules", "event_type", string(event.Type))
	}

	return nil
}

func (r *ActionRouter) recordResult(res action.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)

	if len(r.results) > r.maxResultHistory {
		r.results = r.results[len(r.results)-r.maxResultHistory:]
	}
}

// Route synchronously dispatches event against current rules without
// going through the bus, returning every produced result. Useful for
// tests and manual replays.
func (r *ActionRouter) Route(ctx context.Context, event eventbus.Event) []action.Result {
	r.mu.Lock()
	rules := make([]*RoutingRule, len(r.rules))
	copy(rules, r.rules)
	r.mu.Unlock()

	var results []action.Result

	for _, rule := range rules {
		if !rule.Matches(event) {
			continue
		}

		results = append(results, rule.Run.Execute(ctx, event)...)
	}

	return results
}

// Stats returns a snapshot of router activity and bounded result
// history tallies.
func (r *ActionRouter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var success, failed, skipped int

	for _, res := range r.results {
		switch {
		case res.Success && res.Status == action.StatusSuccess:
			success++
		case !res.Success:
			failed++
		case res.Status == action.StatusSkipped:
			skipped++
		}
	}

	return Stats{
		Name:              r.Name,
		Running:           r.running,
		Rules:             len(r.rules),
		RegisteredActions: r.registry.List(),
		EventsReceived:    r.eventCount,
		EventsRouted:      r.routedCount,
		Results: ResultStats{
			Total:   len(r.results),
			Success: success,
			Failed:  failed,
			Skipped: skipped,
		},
	}
}
