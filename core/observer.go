// Package core provides the fundamental building blocks of the golem ORM.
// This file defines observation of hook firings.
package core

import "sync"

// Observer is notified once per hook-set firing, after the hooks ran.
// Count is the number of hooks that executed (zero when none matched).
type Observer interface {
	HookFired(hc HookContext, count int)
}

// Firing is one entry of a Recorder trace.
type Firing struct {
	Operation Operation
	Phase     Phase
	Kind      ContextKind
	Origin    Origin
	Count     int
}

// Recorder is an Observer that keeps an ordered trace of firings.
type Recorder struct {
	mutex      sync.Mutex
	firingList []Firing
}

// HookFired implements Observer.
func (r *Recorder) HookFired(hc HookContext, count int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.firingList = append(r.firingList, Firing{
		Operation: hc.Operation,
		Phase:     hc.Phase,
		Kind:      hc.Kind,
		Origin:    hc.Origin,
		Count:     count,
	})
}

// Firings returns a copy of the trace.
func (r *Recorder) Firings() []Firing {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Firing(nil), r.firingList...)
}

// Reset clears the trace.
func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.firingList = nil
}

type multiObserver []Observer

func (l multiObserver) HookFired(hc HookContext, count int) {
	for _, o := range l {
		o.HookFired(hc, count)
	}
}
