// Package bus provides the typed in-process event bus for the session core.
//
// The bus is transient publish/subscribe: events are not persisted, not
// replayed, and delivery order across independent listeners is not
// guaranteed. Listeners registered for the same event type run concurrently
// and Emit waits for all of them before returning, so callers that need
// ordering must await Emit before proceeding.
//
// Import rules:
//   - CAN import: std lib, zerolog, errgroup
//   - MUST NOT import: other internal packages (leaf component)
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EventType identifies one kind of event. The set of types is closed; see
// the Event* constants in events.go.
type EventType string

// Event is an immutable (type, payload) pair. The payload shape is fixed per
// type and defined by the emitting component.
type Event struct {
	Type    EventType
	Payload any
}

// Listener handles one event. Errors returned by a listener are logged by
// the bus and never prevent other listeners of the same event from running.
type Listener func(ctx context.Context, e Event) error

// handle is one registered listener.
type handle struct {
	id   uint64
	fn   Listener
	once bool
}

// Subscription identifies a registered listener so it can be removed.
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        uint64
}

// Unsubscribe removes the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Off(s)
}

// Bus is a typed event registry: a map from event type to an ordered list of
// listener handles. The zero value is not usable; construct with New.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]*handle
	disabled  atomic.Bool
	logger    zerolog.Logger
}

// New creates an event bus that logs listener failures through the given logger.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[EventType][]*handle),
		logger:    logger.With().Str("component", "bus").Logger(),
	}
}

// On registers a listener for the given event type and returns its subscription.
func (b *Bus) On(t EventType, fn Listener) *Subscription {
	return b.register(t, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (b *Bus) Once(t EventType, fn Listener) *Subscription {
	return b.register(t, fn, true)
}

func (b *Bus) register(t EventType, fn Listener, once bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	h := &handle{id: b.nextID, fn: fn, once: once}
	b.listeners[t] = append(b.listeners[t], h)

	return &Subscription{bus: b, eventType: t, id: h.id}
}

// Off removes a previously registered listener. Unknown subscriptions are a no-op.
func (b *Bus) Off(s *Subscription) {
	if s == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s.eventType, s.id)
}

// removeLocked removes the handle with the given id. Caller must hold b.mu.
func (b *Bus) removeLocked(t EventType, id uint64) {
	hs := b.listeners[t]
	for i, h := range hs {
		if h.id == id {
			b.listeners[t] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to all listeners registered for its type. Listeners
// run concurrently; Emit returns after every listener has completed. Listener
// errors are logged and do not abort delivery to the remaining listeners.
//
// When the bus is disabled Emit is a no-op.
func (b *Bus) Emit(ctx context.Context, t EventType, payload any) error {
	if b.disabled.Load() {
		return nil
	}

	// Snapshot the listener list; once-listeners are deregistered before
	// invocation so they fire at most one time even under concurrent emits.
	b.mu.Lock()
	hs := b.listeners[t]
	snapshot := make([]*handle, len(hs))
	copy(snapshot, hs)
	for _, h := range snapshot {
		if h.once {
			b.removeLocked(t, h.id)
		}
	}
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	e := Event{Type: t, Payload: payload}

	// Plain errgroup (no WithContext): one listener failing must not cancel
	// its siblings. Errors are surfaced in the log, not returned.
	g := new(errgroup.Group)
	for _, h := range snapshot {
		h := h
		g.Go(func() error {
			if err := h.fn(ctx, e); err != nil {
				b.logger.Warn().
					Err(err).
					Str("event_type", string(t)).
					Uint64("listener_id", h.id).
					Msg("event listener failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// Disable turns Emit into a no-op. Used for test isolation.
func (b *Bus) Disable() {
	b.disabled.Store(true)
}

// Enable restores normal Emit behavior after Disable.
func (b *Bus) Enable() {
	b.disabled.Store(false)
}

// ListenerCount returns the number of listeners registered for the type.
func (b *Bus) ListenerCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t])
}
