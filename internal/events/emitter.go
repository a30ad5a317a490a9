package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Handler processes a single emitted event. A returned error is logged and
// collected by the emitter; it never stops delivery to the remaining
// handlers.
type Handler func(ctx context.Context, evt Event) error

type registration struct {
	label   string
	handler Handler
	match   func(Event) bool
}

// Emitter dispatches events to handlers registered by exact type, by
// category, or for every event. Handlers run synchronously, in the order
// they were registered, and a failing handler never suppresses delivery to
// the others — their errors are collected and returned to the caller.
type Emitter struct {
	registrations []registration
}

// NewEmitter creates an empty synchronous emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// OnType registers a handler for a single event type.
func (e *Emitter) OnType(typ Type, label string, h Handler) {
	e.registrations = append(e.registrations, registration{
		label: label, handler: h, match: func(evt Event) bool { return evt.Type == typ },
	})
}

// OnCategory registers a handler for every event in a category.
func (e *Emitter) OnCategory(cat Category, label string, h Handler) {
	e.registrations = append(e.registrations, registration{
		label: label, handler: h, match: func(evt Event) bool { return evt.Category == cat },
	})
}

// OnAll registers a handler invoked for every event regardless of type.
func (e *Emitter) OnAll(label string, h Handler) {
	e.registrations = append(e.registrations, registration{
		label: label, handler: h, match: func(Event) bool { return true },
	})
}

// Emit dispatches a single event to every matching handler in registration
// order. Handler errors are logged individually and returned as a slice;
// a nil/empty slice means every handler succeeded.
func (e *Emitter) Emit(ctx context.Context, evt Event) []error {
	var errs []error
	for _, reg := range e.registrations {
		if !reg.match(evt) {
			continue
		}
		if err := reg.handler(ctx, evt); err != nil {
			log.Error().
				Err(err).
				Str("handler", reg.label).
				Str("event_type", string(evt.Type)).
				Str("tenant_id", evt.Metadata.TenantID).
				Msg("event handler failed")
			errs = append(errs, fmt.Errorf("handler %s: %w", reg.label, err))
		}
	}
	return errs
}

// EmitAll dispatches a slice of events in order, collecting every handler
// error across every event.
func (e *Emitter) EmitAll(ctx context.Context, evts []Event) []error {
	var errs []error
	for _, evt := range evts {
		errs = append(errs, e.Emit(ctx, evt)...)
	}
	return errs
}

// Batch accumulates events for atomic, ordered emission. Use via WithBatch
// rather than constructing directly.
type Batch struct {
	emitter *Emitter
	events  []Event
}

// Add appends an event to the batch in call order. It is not delivered to
// handlers until the batch commits.
func (b *Batch) Add(evt Event) {
	b.events = append(b.events, evt)
}

// Events returns the events accumulated so far, in order.
func (b *Batch) Events() []Event {
	return append([]Event(nil), b.events...)
}

// WithBatch runs fn with a fresh Batch. If fn returns nil, every event added
// to the batch is emitted, in order, and the handler errors collected along
// the way are returned. If fn returns a non-nil error, the batch is
// discarded — zero events reach any handler — and that error is returned
// with a nil error slice.
func (e *Emitter) WithBatch(ctx context.Context, fn func(b *Batch) error) ([]error, error) {
	b := &Batch{emitter: e}
	if err := fn(b); err != nil {
		return nil, err
	}
	return e.EmitAll(ctx, b.events), nil
}
