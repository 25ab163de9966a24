package action

import (
	"context"
	"fmt"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// Chain runs its member Actions sequentially against one event, over a
// context map shared across members. Once any member fails, every
// remaining member is recorded as skipped rather than executed.
type Chain struct {
	ChainName string
	Actions   []Action
	clock     clock.Clock
}

// NewChain returns an empty named Chain.
func NewChain(name string, c clock.Clock) *Chain {
	if c == nil {
		c = clock.New()
	}

	return &Chain{ChainName: name, clock: c}
}

// Add appends action to the chain, returning the chain for fluent use.
func (c *Chain) Add(a Action) *Chain {
	c.Actions = append(c.Actions, a)
	return c
}

// Execute runs every member in order against event, returning one
// Result per member. A member's output is made available to later
// members' condition/body closures via
// event.Payload["chain_context"][<name>_output].
func (c *Chain) Execute(ctx context.Context, event eventbus.Event) []Result {
	results := make([]Result, 0, len(c.Actions))
	chainCtx := map[string]any{"chain_name": c.ChainName}

	for _, a := range c.Actions {
		if len(results) > 0 && !results[len(results)-1].Success {
			results = append(results, SkippedResult("Previous action in chain failed", map[string]any{"action": a.Name()}))
			continue
		}

		memberEvent := event
		memberEvent.Payload = cloneContext(event.Payload)
		memberEvent.Payload["chain_context"] = cloneContext(chainCtx)

		res := Invoke(ctx, a, memberEvent, c.clock)
		if res.Metadata == nil {
			res.Metadata = map[string]any{}
		}

		res.Metadata["chain_context"] = cloneContext(chainCtx)
		results = append(results, res)

		if res.Success && res.Output != nil {
			chainCtx[fmt.Sprintf("%s_output", a.Name())] = res.Output
		}
	}

	return results
}

func cloneContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
