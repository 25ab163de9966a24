package router

import "github.com/monoco-dev/fabric/pkg/eventbus"

// ConditionalRouter adds field/payload matching sugar on top of
// ActionRouter's general condition function.
type ConditionalRouter struct {
	*ActionRouter
}

// NewConditionalRouter constructs a ConditionalRouter bound to bus.
func NewConditionalRouter(name string, bus *eventbus.Bus) *ConditionalRouter {
	return &ConditionalRouter{ActionRouter: NewActionRouter(name, bus, nil)}
}

// RegisterFieldCondition registers run for eventTypes, gated on a
// single payload field equaling expected.
func (c *ConditionalRouter) RegisterFieldCondition(eventTypes []eventbus.EventType, run any, field string, expected any, priority int) *ConditionalRouter {
	condition := func(event eventbus.Event) bool {
		v, ok := event.Get(field)
		return ok && v == expected
	}

	c.Register(eventTypes, run, condition, priority)

	return c
}

// RegisterPayloadCondition registers run for eventTypes, gated on
// every field/value pair in matcher equaling the event's payload.
func (c *ConditionalRouter) RegisterPayloadCondition(eventTypes []eventbus.EventType, run any, matcher map[string]any, priority int) *ConditionalRouter {
	condition := func(event eventbus.Event) bool {
		for k, want := range matcher {
			got, ok := event.Get(k)
			if !ok || got != want {
				return false
			}
		}

		return true
	}

	c.Register(eventTypes, run, condition, priority)

	return c
}
