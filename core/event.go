// Package core provides the fundamental building blocks of the golem ORM.
// This file defines lifecycle events emitted after successful core
// operations.
package core

import "sync"

// Event represents a lifecycle event emitted by a model.
type Event string

const (
	EventInsert    Event = "insert"
	EventUpdate    Event = "update"
	EventDelete    Event = "delete"
	EventFind      Event = "find"
	EventAggregate Event = "aggregate"
)

// EventHandler is the callback signature for event listeners. The payload
// type depends on the event (InsertPayload, UpdatePayload, ...).
type EventHandler func(payload any)

// EventDispatcher keeps event handlers and runs them on Emit.
//
// Models only emit to the dispatcher given through WithEvents; there is no
// process-wide dispatcher.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlerList: make(map[Event][]EventHandler)}
}

// On registers handler for event.
//
// Example:
//
//	events.On(core.EventInsert, func(payload any) {
//		if p, ok := payload.(core.InsertPayload[Item]); ok {
//			logger.Info("item inserted", zap.String("name", p.Doc.Name))
//		}
//	})
func (d *EventDispatcher) On(event Event, handler EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handlerList[event] = append(d.handlerList[event], handler)
}

// Emit runs every handler registered for event, each in its own goroutine.
func (d *EventDispatcher) Emit(event Event, payload any) {
	if d == nil {
		return
	}
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	for _, h := range d.handlerList[event] {
		go h(payload)
	}
}

// InsertPayload is passed to EventInsert handlers.
type InsertPayload[T any] struct {
	Schema *SchemaCore
	Doc    *T
}

// UpdatePayload is passed to EventUpdate handlers.
type UpdatePayload struct {
	Schema    *SchemaCore
	Condition *Condition
	Changes   Changes
	Modified  int64
}

// DeletePayload is passed to EventDelete handlers.
type DeletePayload struct {
	Schema    *SchemaCore
	Condition *Condition
	Deleted   int64
}

// FindOnePayload is passed to EventFind handlers for single results.
type FindOnePayload[T any] struct {
	Schema *SchemaCore
	Where  *Where
	Doc    *T
}

// FindManyPayload is passed to EventFind handlers for multiple results.
type FindManyPayload[T any] struct {
	Schema  *SchemaCore
	Where   *Where
	DocList []T
}

// AggregatePayload is passed to EventAggregate handlers.
type AggregatePayload struct {
	Schema   *SchemaCore
	Pipeline Pipeline
	Result   []Document
}
