package qof

import "slices"

// EventType classifies entity lifecycle events.
type EventType int

const (
	EventCreate EventType = iota + 1
	EventModify
	EventDestroy
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDestroy:
		return "destroy"
	}
	return "unknown"
}

// Event is delivered to book subscribers.
type Event struct {
	Type   EventType
	Entity Entity
}

// EventHandler receives book events.
type EventHandler func(Event)

// Subscribe registers fn and returns an id for Unsubscribe.
func (b *Book) Subscribe(fn EventHandler) int {
	b.nextEvent++
	b.handlers[b.nextEvent] = fn
	return b.nextEvent
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Book) Unsubscribe(id int) {
	delete(b.handlers, id)
}

// Notify delivers an event to every handler in subscription order.
func (b *Book) Notify(t EventType, e Entity) {
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ev := Event{Type: t, Entity: e}
	for _, id := range ids {
		if fn, ok := b.handlers[id]; ok {
			fn(ev)
		}
	}
}
