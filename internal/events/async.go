package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type asyncRegistration struct {
	registration
	async bool
}

// AsyncEmitter is structurally identical to Emitter — same registration
// surface, same per-handler isolation, same batching semantics — except
// that handlers registered via the Async variants run concurrently with
// each other on every emission, while handlers registered via the
// synchronous variants (OnType/OnCategory/OnAll) still run inline before
// any async handler is scheduled.
type AsyncEmitter struct {
	registrations []asyncRegistration
}

// NewAsyncEmitter creates an empty async emitter.
func NewAsyncEmitter() *AsyncEmitter {
	return &AsyncEmitter{}
}

// OnType registers a synchronous handler for a single event type.
func (e *AsyncEmitter) OnType(typ Type, label string, h Handler) {
	e.add(label, h, func(evt Event) bool { return evt.Type == typ }, false)
}

// OnCategory registers a synchronous handler for every event in a category.
func (e *AsyncEmitter) OnCategory(cat Category, label string, h Handler) {
	e.add(label, h, func(evt Event) bool { return evt.Category == cat }, false)
}

// OnAll registers a synchronous handler invoked for every event.
func (e *AsyncEmitter) OnAll(label string, h Handler) {
	e.add(label, h, func(Event) bool { return true }, false)
}

// OnTypeAsync registers a handler for a single event type that runs
// concurrently with other async handlers on each emission.
func (e *AsyncEmitter) OnTypeAsync(typ Type, label string, h Handler) {
	e.add(label, h, func(evt Event) bool { return evt.Type == typ }, true)
}

// OnCategoryAsync registers a handler for a category that runs concurrently
// with other async handlers on each emission.
func (e *AsyncEmitter) OnCategoryAsync(cat Category, label string, h Handler) {
	e.add(label, h, func(evt Event) bool { return evt.Category == cat }, true)
}

// OnAllAsync registers a handler for every event that runs concurrently with
// other async handlers on each emission.
func (e *AsyncEmitter) OnAllAsync(label string, h Handler) {
	e.add(label, h, func(Event) bool { return true }, true)
}

func (e *AsyncEmitter) add(label string, h Handler, match func(Event) bool, async bool) {
	e.registrations = append(e.registrations, asyncRegistration{
		registration: registration{label: label, handler: h, match: match},
		async:        async,
	})
}

// Emit runs every matching synchronous handler inline, in registration
// order, then runs every matching async handler concurrently and waits for
// all of them to finish. Errors from both groups are collected and returned
// together; a failing handler never prevents any other handler — sync or
// async — from running.
func (e *AsyncEmitter) Emit(ctx context.Context, evt Event) []error {
	var errs []error

	var asyncMatches []asyncRegistration
	for _, reg := range e.registrations {
		if !reg.match(evt) {
			continue
		}
		if reg.async {
			asyncMatches = append(asyncMatches, reg)
			continue
		}
		if err := reg.handler(ctx, evt); err != nil {
			log.Error().Err(err).Str("handler", reg.label).Str("event_type", string(evt.Type)).Msg("sync event handler failed")
			errs = append(errs, fmt.Errorf("handler %s: %w", reg.label, err))
		}
	}

	if len(asyncMatches) == 0 {
		return errs
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	wg.Add(len(asyncMatches))
	for _, reg := range asyncMatches {
		reg := reg
		go func() {
			defer wg.Done()
			if err := reg.handler(ctx, evt); err != nil {
				log.Error().Err(err).Str("handler", reg.label).Str("event_type", string(evt.Type)).Msg("async event handler failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("handler %s: %w", reg.label, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errs
}

// EmitAll dispatches a slice of events in order, collecting every handler
// error across every event.
func (e *AsyncEmitter) EmitAll(ctx context.Context, evts []Event) []error {
	var errs []error
	for _, evt := range evts {
		errs = append(errs, e.Emit(ctx, evt)...)
	}
	return errs
}

// WithBatch mirrors Emitter.WithBatch: events added during fn are only
// delivered if fn returns nil, and the batch is discarded entirely on error.
func (e *AsyncEmitter) WithBatch(ctx context.Context, fn func(b *Batch) error) ([]error, error) {
	b := &Batch{}
	if err := fn(b); err != nil {
		return nil, err
	}
	return e.EmitAll(ctx, b.events), nil
}
