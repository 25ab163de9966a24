// Package fault implements a recoverable-error aggregation bus.
//
// The watcher framework and the action router both need "one failing
// callback/rule must not halt the rest of the batch" semantics. Rather
// than scatter ad-hoc slices of errors through every component, each
// collects into a fault.Bus and inspects it (or its Failure()) once the
// batch completes.
package fault

import (
	"context"
	"sync"

	"github.com/alcionai/clues"
	"golang.org/x/exp/slices"

	"github.com/monoco-dev/fabric/pkg/logger"
)

// Bus aggregates errors encountered while processing a batch of
// independent items (a watcher scan tick, a router dispatch round).
type Bus struct {
	mu *sync.Mutex

	// failure is the non-recoverable error for this bus, if any. Once
	// set, callers are expected to treat the owning operation as
	// aborted.
	failure error

	// recoverable accumulates errors that did not abort the batch.
	recoverable []error

	// if failFast is true, the first recoverable addition is also
	// promoted into failure.
	failFast bool
}

// New constructs an empty Bus.
func New(failFast bool) *Bus {
	return &Bus{
		mu:          &sync.Mutex{},
		recoverable: []error{},
		failFast:    failFast,
	}
}

// FailFast reports whether this bus promotes the first recoverable
// error to Failure.
func (b *Bus) FailFast() bool {
	return b.failFast
}

// Failure returns the non-recoverable error, if the batch was aborted.
func (b *Bus) Failure() error {
	return b.failure
}

// Recovered returns a defensive copy of the recoverable errors seen so far.
func (b *Bus) Recovered() []error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.recoverable)
}

// Fail sets the bus's non-recoverable error. A second call does not
// overwrite the first failure; the later error is folded into
// Recovered() instead, so no error is silently dropped.
func (b *Bus) Fail(err error) *Bus {
	if err == nil {
		return b
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.setFailure(err)
}

func (b *Bus) setFailure(err error) *Bus {
	if b.failure == nil {
		b.failure = err
		return b
	}

	b.recoverable = append(b.recoverable, err)

	return b
}

// AddRecoverable records err without aborting the batch, unless
// failFast is set, in which case the first addition is promoted to
// Failure.
func (b *Bus) AddRecoverable(ctx context.Context, err error) {
	if err == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	isFail := b.addRecoverableErr(err)

	log := logger.CtxErr(ctx, err)
	if isFail {
		log.Error("non-recoverable error, failing fast")
	} else {
		log.Debug("recoverable error")
	}
}

func (b *Bus) addRecoverableErr(err error) bool {
	var isFail bool

	if b.failure == nil && b.failFast {
		b.setFailure(err)

		isFail = true
	}

	b.recoverable = append(b.recoverable, err)

	return isFail
}

// Len returns the number of errors aggregated, failure included.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.recoverable)
	if b.failure != nil {
		n++
	}

	return n
}

// Errors flattens the bus into a plain, lock-free snapshot suitable for
// serialization or assertion in tests.
func (b *Bus) Errors() *Errors {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &Errors{
		Failure:   clues.ToCore(b.failure),
		Recovered: coreSlice(b.recoverable),
		FailFast:  b.failFast,
	}
}

func coreSlice(errs []error) []*clues.ErrCore {
	out := make([]*clues.ErrCore, 0, len(errs))
	for _, e := range errs {
		out = append(out, clues.ToCore(e))
	}

	return out
}

// Errors is the plain-data snapshot of a Bus, safe to marshal or
// compare in tests once processing completes.
type Errors struct {
	Failure   *clues.ErrCore   `json:"failure"`
	Recovered []*clues.ErrCore `json:"recovered"`
	FailFast  bool             `json:"failFast"`
}

// Local constructs a scoped sub-bus for a single unit of work (e.g. one
// watcher tick). The caller should return local.Failure() upstream;
// local busses must not be handed further down the call stack.
func (b *Bus) Local() *LocalBus {
	return &LocalBus{mu: &sync.Mutex{}, bus: b}
}

// LocalBus narrows Bus to the scope of a single operation while still
// feeding every error back into the parent Bus.
type LocalBus struct {
	mu      *sync.Mutex
	bus     *Bus
	current error
}

// AddRecoverable records err on both the local and parent bus.
func (l *LocalBus) AddRecoverable(ctx context.Context, err error) {
	if err == nil {
		return
	}

	l.mu.Lock()
	if l.current == nil && l.bus.failFast {
		l.current = err
	}
	l.mu.Unlock()

	l.bus.AddRecoverable(ctx, err)
}

// Failure returns the error recorded on this local scope only.
func (l *LocalBus) Failure() error {
	return l.current
}
