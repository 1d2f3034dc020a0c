// Package core provides the fundamental building blocks of the golem ORM.
// This file defines the hook registry that stores ordered pre/post callbacks
// per operation name.
package core

import (
	"context"
	"sync"
)

type hookKey struct {
	operation Operation
	phase     Phase
}

type hookEntry struct {
	fn     HookFunc
	origin Origin // empty = every origin
}

func (entry hookEntry) matches(origin Origin) bool {
	return entry.origin == "" || entry.origin == origin
}

// HookRegistry stores hooks per (operation, phase) in registration order.
//
// Registrations happen at schema definition time; firings read a snapshot so a
// late registration never races with a running chain.
type HookRegistry struct {
	mutex     sync.RWMutex
	entryList map[hookKey][]hookEntry
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{entryList: make(map[hookKey][]hookEntry)}
}

// Register appends fn to the chain for (op, phase).
func (r *HookRegistry) Register(op Operation, phase Phase, fn HookFunc, opts ...HookOption) {
	entry := hookEntry{fn: fn}
	for _, opt := range opts {
		opt(&entry)
	}
	key := hookKey{operation: op, phase: phase}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entryList[key] = append(r.entryList[key], entry)
}

// Len returns how many hooks are registered for (op, phase), any origin.
func (r *HookRegistry) Len(op Operation, phase Phase) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entryList[hookKey{operation: op, phase: phase}])
}

// matching returns the hooks that apply to a firing from origin.
func (r *HookRegistry) matching(op Operation, phase Phase, origin Origin) []HookFunc {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	entryList := r.entryList[hookKey{operation: op, phase: phase}]
	fnList := make([]HookFunc, 0, len(entryList))
	for _, entry := range entryList {
		if entry.matches(origin) {
			fnList = append(fnList, entry.fn)
		}
	}
	return fnList
}

// Fire invokes every hook matching hc in registration order and returns the
// number of hooks that ran. The first failing hook stops the chain; its error
// is wrapped in a *HookAbortError.
func (r *HookRegistry) Fire(ctx context.Context, hc *HookContext) (int, error) {
	fnList := r.matching(hc.Operation, hc.Phase, hc.Origin)
	for i, fn := range fnList {
		if err := fn(ctx, hc); err != nil {
			return i + 1, &HookAbortError{
				Operation: hc.Operation,
				Phase:     hc.Phase,
				Origin:    hc.Origin,
				Kind:      hc.Kind,
				Err:       err,
			}
		}
	}
	return len(fnList), nil
}
