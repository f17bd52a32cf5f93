package stats

import (
	"sync"
	"sync/atomic"
)

// Registry maps target URLs to their Target.
//
// Readers get an immutable snapshot slice that is replaced wholesale on
// reconcile, so iteration never observes a partially updated list. Writers
// are serialized by mu.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]*Target]
}

// ReconcileResult describes what a Reconcile call changed.
type ReconcileResult struct {
	Added    []string
	Removed  []*Target
	Retained int
}

// Changed reports whether the target set changed.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&[]*Target{})
	return r
}

// Snapshot returns the current targets. The slice must not be modified.
func (r *Registry) Snapshot() []*Target {
	return *r.snapshot.Load()
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.Snapshot())
}

// Get returns the target for url, or nil.
func (r *Registry) Get(url string) *Target {
	for _, t := range r.Snapshot() {
		if t.URL == url {
			return t
		}
	}
	return nil
}

// Reconcile makes the registry hold exactly urls.
//
// Retained targets keep their identity and counters, missing ones are
// dropped (in-flight probes finish against the detached object) and new
// ones start zeroed. Retained targets keep their previous order; new ones
// are appended in the order given. Reconciling the same list twice is a
// no-op.
func (r *Registry) Reconcile(urls []string) ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.Snapshot()

	wanted := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		wanted[u] = struct{}{}
	}

	var result ReconcileResult
	next := make([]*Target, 0, len(urls))
	existing := make(map[string]struct{}, len(old))
	for _, t := range old {
		existing[t.URL] = struct{}{}
		if _, ok := wanted[t.URL]; ok {
			next = append(next, t)
			result.Retained++
		} else {
			result.Removed = append(result.Removed, t)
		}
	}

	for _, u := range urls {
		if _, ok := existing[u]; ok {
			continue
		}
		existing[u] = struct{}{}
		next = append(next, NewTarget(u))
		result.Added = append(result.Added, u)
	}

	if result.Changed() {
		r.snapshot.Store(&next)
	}
	return result
}
