package model

import (
	"context"
	"sync"

	"github.com/object-layer/object-layer/store"
)

// Event names a lifecycle moment of an item or a collection.
type Event uint8

// Lifecycle events. The will* events run before the operation inside its
// transaction; an error aborts the operation and rolls the transaction back.
const (
	DidCreate Event = iota + 1
	WillSave
	DidSave
	WillDelete
	DidDelete
	WillDestroy
	DidDestroy
)

func (e Event) String() string {
	switch e {
	case DidCreate:
		return "didCreate"
	case WillSave:
		return "willSave"
	case DidSave:
		return "didSave"
	case WillDelete:
		return "willDelete"
	case DidDelete:
		return "didDelete"
	case WillDestroy:
		return "willDestroy"
	case DidDestroy:
		return "didDestroy"
	default:
		return "unknown"
	}
}

// HookEvent carries the context of a fired lifecycle event. Item is nil for
// the collection-level destroy events.
type HookEvent struct {
	Event   Event
	Model   *Model
	Item    *Item
	Options *store.Options
}

// HookFunc handles a lifecycle event.
type HookFunc func(ctx context.Context, e *HookEvent) error

// hookRegistry holds the ordered hook callbacks of a model. It is shared
// between a model and its transaction copies.
type hookRegistry struct {
	lock  sync.RWMutex
	hooks map[Event][]HookFunc
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{
		hooks: make(map[Event][]HookFunc),
	}
}

func (hr *hookRegistry) add(e Event, fn HookFunc) {
	hr.lock.Lock()
	defer hr.lock.Unlock()
	hr.hooks[e] = append(hr.hooks[e], fn)
}

// fire runs the callbacks registered for the event in registration order,
// stopping at the first error.
func (hr *hookRegistry) fire(ctx context.Context, event *HookEvent) error {
	hr.lock.RLock()
	fns := hr.hooks[event.Event]
	hr.lock.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
