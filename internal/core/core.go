// Package core implements the two external entry points: a durable async
// enqueue and a synchronous process-and-return variant. Everything below
// this layer (validation, posting, persistence) already lives in
// internal/domain/command, internal/domain/posting, and internal/workers;
// core just resolves an instance address, computes the idempotency key,
// and picks which of the two paths a caller gets.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ledger-core/internal/domain/command"
	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
	"ledger-core/internal/pkg/idempotency"
	"ledger-core/internal/workers"
)

// Store is the subset of postgres.Store core needs.
type Store interface {
	GetInstanceByAddress(ctx context.Context, address string) (*model.Instance, bool, error)
	InsertCommandWithIdempotency(ctx context.Context, cmd *model.Command, item *model.CommandQueueItem, keyHash string) *apierr.Error
	InsertCommand(ctx context.Context, cmd *model.Command) error
	InsertQueueItemForCommand(ctx context.Context, item *model.CommandQueueItem) error
}

// Waker notifies the dispatcher that instanceID may have new ready work,
// so a synchronous enqueue doesn't have to wait for the next poll tick.
// A closure calling internal/registry.Registry.WakeIfRegistered fills this
// role (see internal/pkg/components); a nil Waker
// just means the Monitor picks the item up on its next tick.
type Waker func(instanceID uuid.UUID)

// OnError selects process_from_params's failure handling: fail returns
// the validation error directly without touching the queue,
// retry persists the command like create_from_params and processes it
// immediately, falling back to the normal retry/dead-letter path on error.
type OnError string

const (
	OnErrorFail  OnError = "fail"
	OnErrorRetry OnError = "retry"
)

// ProcessOpts configures ProcessFromParams.
type ProcessOpts struct {
	OnError OnError
}

type Core struct {
	store   Store
	workers *workers.Workers
	wake    Waker
}

func New(store Store, w *workers.Workers, wake Waker) *Core {
	return &Core{store: store, workers: w, wake: wake}
}

func actionFromParams(params map[string]any) command.Action {
	a, _ := params["action"].(string)
	return command.Action(a)
}

func isSupportedAction(a command.Action) bool {
	switch a {
	case command.ActionCreateAccount, command.ActionUpdateAccount,
		command.ActionCreateTransaction, command.ActionUpdateTransaction:
		return true
	}
	return false
}

// validateShape runs whatever validation doesn't require a resolved
// account set: full account-command validation for create/update_account,
// envelope-only validation for create/update_transaction (their entry and
// balance checks need accounts the worker resolves once it dequeues).
func validateShape(action command.Action, params map[string]any) *apierr.Error {
	switch action {
	case command.ActionCreateAccount:
		_, verr := command.DecodeAccountCommand(params, true)
		return verr
	case command.ActionUpdateAccount:
		_, verr := command.DecodeAccountCommand(params, false)
		return verr
	default:
		return command.ValidateEnvelope(command.DecodeEnvelope(params))
	}
}

// CreateFromParams durably enqueues params and returns immediately with
// the accepted command; the queue processes it asynchronously.
func (c *Core) CreateFromParams(ctx context.Context, params map[string]any) (*model.Command, *apierr.Error) {
	action := actionFromParams(params)
	if !isSupportedAction(action) {
		return nil, apierr.Validation("action_not_supported", "unrecognized command action")
	}

	envelope := command.DecodeEnvelope(params)
	inst, found, err := c.store.GetInstanceByAddress(ctx, envelope.InstanceAddress)
	if err != nil {
		return nil, apierr.New(apierr.KindTransientDB, "instance_lookup_failed", err.Error())
	}
	if !found {
		return nil, apierr.NotFound("instance_not_found", "no instance with that address")
	}

	if verr := validateShape(action, params); verr != nil {
		return nil, verr
	}

	now := time.Now().UTC()
	cmd := &model.Command{ID: uuid.New(), InstanceID: inst.ID, CommandMap: params, CreatedAt: now}
	item := &model.CommandQueueItem{ID: uuid.New(), CommandID: cmd.ID, Status: model.QueueStatusPending, CreatedAt: now, UpdatedAt: now}
	keyHash := idempotency.Key(string(action), envelope.Source, envelope.SourceIdempK, envelope.UpdateIdempK)

	if verr := c.store.InsertCommandWithIdempotency(ctx, cmd, item, keyHash); verr != nil {
		return nil, verr
	}

	if c.wake != nil {
		c.wake(inst.ID)
	}
	return cmd, nil
}

// ProcessFromParams validates and runs params synchronously, inserting a
// commands row up front so every accepted command keeps a permanent
// write-ahead log entry whether or not it ends up in the pending queue.
// A structural failure (unsupported action, bad shape, unknown instance)
// never reaches that insert and comes back as a changeset-shaped error
// with no command. A failure from the worker itself comes back paired
// with the command that was attempted; opts.OnError decides whether that
// command also gets a pending queue item so the dispatcher retries it in
// the background (retry) or is left exactly as attempted (fail).
func (c *Core) ProcessFromParams(ctx context.Context, params map[string]any, opts ProcessOpts) (any, *model.Command, *apierr.Error) {
	action := actionFromParams(params)
	if !isSupportedAction(action) {
		return nil, nil, apierr.Validation("action_not_supported", "unrecognized command action")
	}

	envelope := command.DecodeEnvelope(params)
	inst, found, err := c.store.GetInstanceByAddress(ctx, envelope.InstanceAddress)
	if err != nil {
		return nil, nil, apierr.New(apierr.KindTransientDB, "instance_lookup_failed", err.Error())
	}
	if !found {
		return nil, nil, apierr.NotFound("instance_not_found", "no instance with that address")
	}

	if verr := validateShape(action, params); verr != nil {
		return nil, nil, verr
	}

	now := time.Now().UTC()
	cmd := &model.Command{ID: uuid.New(), InstanceID: inst.ID, CommandMap: params, CreatedAt: now}
	if err := c.store.InsertCommand(ctx, cmd); err != nil {
		return nil, nil, apierr.New(apierr.KindTransientDB, "command_insert_failed", err.Error())
	}

	projection, verr := c.workers.ProcessNoSaveOnError(ctx, inst.ID, cmd.ID, params)
	if verr == nil {
		return projection, cmd, nil
	}

	if opts.OnError == OnErrorRetry {
		item := &model.CommandQueueItem{ID: uuid.New(), CommandID: cmd.ID, Status: model.QueueStatusPending, CreatedAt: now, UpdatedAt: now}
		if qerr := c.store.InsertQueueItemForCommand(ctx, item); qerr != nil {
			return nil, cmd, apierr.New(apierr.KindTransientDB, "queue_item_insert_failed", qerr.Error())
		}
		if c.wake != nil {
			c.wake(inst.ID)
		}
	}
	return nil, cmd, verr
}
