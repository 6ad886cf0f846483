// Package registry implements the in-process per-instance Processor
// registry: a sync.Map keyed by instance_id storing a wake channel, with
// registration rejecting duplicates so at most one Processor runs per
// instance per node, and exit always releasing the slot.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"ledger-core/internal/metrics"
)

// Handle is what a registered Processor holds: Wake signals "a new ready
// item may exist, check again" (coalesced — a full channel buffer of 1 is
// never blocked on). Registry.Release frees the registry slot on exit.
type Handle struct {
	wake chan struct{}
}

func (h *Handle) Wake() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Chan exposes the wake channel for the registered Processor to select
// on; Wake is the only allowed sender.
func (h *Handle) Chan() <-chan struct{} {
	return h.wake
}

// Registry tracks the single active Processor handle per instance.
type Registry struct {
	entries sync.Map // uuid.UUID -> *Handle
}

func New() *Registry {
	return &Registry{}
}

// Register attempts to claim the slot for instanceID. ok is false if a
// Processor is already registered for that instance; the caller (the
// Monitor) treats that as a no-op, not an error.
func (r *Registry) Register(instanceID uuid.UUID) (handle *Handle, ok bool) {
	h := &Handle{wake: make(chan struct{}, 1)}
	actual, loaded := r.entries.LoadOrStore(instanceID, h)
	if loaded {
		return actual.(*Handle), false
	}
	metrics.ActiveProcessors.Inc()
	return h, true
}

// Release frees instanceID's slot. Safe to call even if nothing is
// registered.
func (r *Registry) Release(instanceID uuid.UUID) {
	if _, loaded := r.entries.LoadAndDelete(instanceID); loaded {
		metrics.ActiveProcessors.Dec()
	}
}

// WakeIfRegistered signals an already-running Processor instead of
// spawning a second one for the same instance.
func (r *Registry) WakeIfRegistered(instanceID uuid.UUID) bool {
	v, ok := r.entries.Load(instanceID)
	if !ok {
		return false
	}
	v.(*Handle).Wake()
	return true
}
