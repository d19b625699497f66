// Package activity models the input signals a signed-in browser reports to show
// that a person is still at the keyboard, and an in-memory source that fans
// them out to subscribers.
package activity

import (
	"fmt"
	"time"
)

// EventType names a qualifying input signal
type EventType string

const (
	EventPointerDown EventType = "pointerdown"
	EventPointerMove EventType = "pointermove"
	EventKeyDown     EventType = "keydown"
	EventScroll      EventType = "scroll"
	EventTouchStart  EventType = "touchstart"
	EventClick       EventType = "click"
)

var knownEventTypes = map[EventType]struct{}{
	EventPointerDown: {},
	EventPointerMove: {},
	EventKeyDown:     {},
	EventScroll:      {},
	EventTouchStart:  {},
	EventClick:       {},
}

// DefaultEventTypes returns every signal that counts as the user being present
func DefaultEventTypes() []EventType {
	return []EventType{
		EventPointerDown,
		EventPointerMove,
		EventKeyDown,
		EventScroll,
		EventTouchStart,
		EventClick,
	}
}

// ParseEventType validates a name received from a client
func ParseEventType(name string) (EventType, error) {
	t := EventType(name)
	if _, ok := knownEventTypes[t]; !ok {
		return "", fmt.Errorf("unknown activity event %q", name)
	}
	return t, nil
}

// Event is a single observed input signal
type Event struct {
	Type EventType
	At   time.Time
}

// Handler receives events. Implementations must be comparable (typically a
// pointer) because Unsubscribe matches handlers by identity.
type Handler interface {
	HandleActivity(Event)
}

// Source is anything a monitor can subscribe to for activity
type Source interface {
	Subscribe(types []EventType, h Handler)
	Unsubscribe(types []EventType, h Handler)
}
