// Package dispatcher implements the per-instance Processor pattern: a
// single Monitor polls for instances with ready work and registers one
// Processor goroutine per instance via internal/registry, so two
// instances never contend for the same account locks but a busy instance
// isn't starved behind an idle one.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ledger-core/internal/config"
	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
	"ledger-core/internal/pkg/logging"
	"ledger-core/internal/registry"
	"ledger-core/internal/scheduler"
	"ledger-core/internal/workers"
)

// idleTimeout bounds how long a drained Processor waits for a wake signal
// before releasing its registry slot; the Monitor's next poll tick will
// re-register it if work is still ready.
const idleTimeout = 2 * time.Second

// Store is the subset of postgres.Store the dispatcher needs, mirrored
// here so tests can substitute a fake.
type Store interface {
	ListReadyInstances(ctx context.Context) ([]uuid.UUID, error)
	ClaimNextReady(ctx context.Context, instanceID uuid.UUID) (*model.CommandQueueItem, error)
	UpdateQueueItemCAS(ctx context.Context, item *model.CommandQueueItem) *apierr.Error
	GetCommandByID(ctx context.Context, id uuid.UUID) (*model.Command, error)
	ListStalledProcessing(ctx context.Context, threshold time.Duration) ([]model.CommandQueueItem, error)
}

// Dispatcher owns the Monitor loop and hands claimed work to Workers.
type Dispatcher struct {
	store       Store
	registry    *registry.Registry
	workers     *workers.Workers
	queueCfg    config.QueueConfig
	processorID string
}

// version identifies this build for the queue item's processor_version
// column; claimed items record it for post-incident forensics.
const version = "1"

func New(store Store, reg *registry.Registry, w *workers.Workers, queueCfg config.QueueConfig, processorID string) *Dispatcher {
	return &Dispatcher{store: store, registry: reg, workers: w, queueCfg: queueCfg, processorID: processorID}
}

// Run is the Monitor: it polls ListReadyInstances every poll_interval and
// spawns a Processor for each instance not already registered, until ctx
// is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.queueCfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	SweepStalled(ctx, d.store, d.queueCfg.StallThreshold)

	instances, err := d.store.ListReadyInstances(ctx)
	if err != nil {
		logging.Error("list ready instances failed", err, nil)
		return
	}
	for _, instanceID := range instances {
		if d.registry.WakeIfRegistered(instanceID) {
			continue
		}
		handle, ok := d.registry.Register(instanceID)
		if !ok {
			continue
		}
		go d.runProcessor(ctx, instanceID, handle)
	}
}

// runProcessor drains ready work for one instance, claiming items one at
// a time so no two goroutines ever touch the same instance's accounts. It
// exits (releasing the registry slot) once nothing is ready and no wake
// arrives within idleTimeout; the Monitor re-registers it on its next
// tick if work shows up after that.
func (d *Dispatcher) runProcessor(ctx context.Context, instanceID uuid.UUID, handle *registry.Handle) {
	defer d.registry.Release(instanceID)

	for {
		if ctx.Err() != nil {
			return
		}

		item, err := d.store.ClaimNextReady(ctx, instanceID)
		if err != nil {
			logging.Error("claim next ready failed", err, map[string]interface{}{"instance_id": instanceID.String()})
			return
		}
		if item == nil {
			select {
			case <-handle.Chan():
				continue
			case <-time.After(idleTimeout):
				return
			case <-ctx.Done():
				return
			}
		}

		d.processOne(ctx, instanceID, *item)
	}
}

func (d *Dispatcher) processOne(ctx context.Context, instanceID uuid.UUID, item model.CommandQueueItem) {
	now := time.Now().UTC()
	claimed, cerr := scheduler.Claim(item, d.processorID, version, now)
	if cerr != nil {
		// Lost the race to another processor; try the next item.
		return
	}
	if err := d.store.UpdateQueueItemCAS(ctx, &claimed); err != nil {
		return
	}

	cmd, err := d.store.GetCommandByID(ctx, claimed.CommandID)
	if err != nil {
		logging.Error("load command for claimed queue item failed", err, map[string]interface{}{
			"command_id": claimed.CommandID.String(),
		})
		return
	}

	updated := d.workers.Process(ctx, claimed, *cmd)
	if werr := d.store.UpdateQueueItemCAS(ctx, &updated); werr != nil {
		logging.Error("persist processed queue item failed", werr, map[string]interface{}{
			"command_id": claimed.CommandID.String(),
		})
	}
}

// SweepStalled requeues processing items whose processor died mid-claim:
// anything still "processing" past StallThreshold is reset to pending so a
// Processor picks it back up. It does not know why the original processor
// stopped, so it trusts the same retry/dead-letter bookkeeping as any other
// reclaim. Run from the Monitor's own tick rather than a separate ticker,
// since one periodic goroutine per concern is already the pattern here.
func SweepStalled(ctx context.Context, store Store, threshold time.Duration) {
	stalled, err := store.ListStalledProcessing(ctx, threshold)
	if err != nil {
		logging.Error("list stalled processing items failed", err, nil)
		return
	}
	now := time.Now().UTC()
	for _, item := range stalled {
		item.Status = model.QueueStatusPending
		item.ProcessorID = ""
		item.ProcessorVersion = ""
		item.ProcessingStartedAt = nil
		item.UpdatedAt = now
		item = scheduler.AppendError(item, "reclaimed after stall threshold exceeded", now)
		if werr := store.UpdateQueueItemCAS(ctx, &item); werr != nil {
			logging.Error("requeue stalled item failed", werr, map[string]interface{}{"queue_item_id": item.ID.String()})
		}
	}
}
