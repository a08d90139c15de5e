package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/metrics"
)

// Handler consumes events of the types it declares. Handlers must be
// idempotent: the outbox processor may re-deliver an event the synchronous
// dispatcher already handled.
type Handler interface {
	Name() string
	EventTypes() []string
	Handle(ctx context.Context, evt event.Event) error
}

// Registry maps event types to an ordered list of handlers. It is built once
// at startup and passed by reference; there is no ambient registration state.
type Registry struct {
	handlers map[string][]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string][]Handler)}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

func (r *Registry) Register(h Handler) {
	for _, t := range h.EventTypes() {
		r.handlers[t] = append(r.handlers[t], h)
	}
}

func (r *Registry) HandlersFor(eventType string) []Handler {
	return r.handlers[eventType]
}

// Deliver runs every handler for the event and stops at the first failure.
// This is the strict path used by the outbox processor, which needs the error
// back to drive retries; the request path uses Dispatcher instead.
func (r *Registry) Deliver(ctx context.Context, evt event.Event) error {
	for _, h := range r.handlers[evt.EventType()] {
		if err := invoke(ctx, h, evt); err != nil {
			return fmt.Errorf("%s: %w", h.Name(), err)
		}
	}
	return nil
}

// Dispatcher fans an event out to all registered handlers in the calling
// context. It is best-effort: the triggering transaction already committed,
// so a handler failure is logged and never propagated to the caller.
type Dispatcher struct {
	reg *Registry
	log *zap.SugaredLogger
}

func NewDispatcher(reg *Registry, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log}
}

// Dispatch invokes every handler registered for the event's type. A failing
// handler does not prevent its siblings from running.
func (d *Dispatcher) Dispatch(ctx context.Context, evt event.Event) {
	d.dispatchOne(ctx, evt)
}

// DispatchBatch dispatches events in order and logs a success/total count.
func (d *Dispatcher) DispatchBatch(ctx context.Context, evts []event.Event) {
	if len(evts) == 0 {
		return
	}
	ok := 0
	for _, evt := range evts {
		if d.dispatchOne(ctx, evt) {
			ok++
		}
	}
	d.log.Infof("dispatched batch: %d/%d events succeeded", ok, len(evts))
}

func (d *Dispatcher) dispatchOne(ctx context.Context, evt event.Event) bool {
	hs := d.reg.HandlersFor(evt.EventType())
	if len(hs) == 0 {
		d.log.Debugf("no handlers for %s id=%s", evt.EventType(), evt.EventID())
		return true
	}
	d.log.Debugf("dispatching %s id=%s to %d handler(s)", evt.EventType(), evt.EventID(), len(hs))
	ok := true
	for _, h := range hs {
		if err := invoke(ctx, h, evt); err != nil {
			metrics.DispatchFailures.WithLabelValues(h.Name()).Inc()
			d.log.Errorf("handler %s failed for %s id=%s: %v", h.Name(), evt.EventType(), evt.EventID(), err)
			ok = false
		}
	}
	return ok
}

// invoke converts a handler panic into an error so one bad handler cannot
// take down the request thread or the processor loop.
func invoke(ctx context.Context, h Handler, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, evt)
}
