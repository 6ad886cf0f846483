// Package workers implements the four command workers: CreateAccount,
// UpdateAccount, CreateTransaction, UpdateTransaction. Each runs the
// shared pipeline - validate against current instance state, compute an
// atomic posting plan, execute it under the OCC retry wrapper, persist
// alongside its JournalEvent and link rows, and fan the event out - and
// reports its outcome as a transitioned model.CommandQueueItem that the
// caller persists with a lock_version compare-and-set.
package workers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledger-core/internal/domain/command"
	"ledger-core/internal/domain/model"
	"ledger-core/internal/domain/posting"
	"ledger-core/internal/infrastructure/messaging"
	"ledger-core/internal/infrastructure/messaging/kafka"
	"ledger-core/internal/lookup"
	"ledger-core/internal/metrics"
	"ledger-core/internal/occ"
	"ledger-core/internal/pkg/apierr"
	"ledger-core/internal/scheduler"
)

// Store is the subset of internal/infrastructure/postgres.Store the workers
// need, kept as an interface so this package can be tested against a fake.
type Store interface {
	GetAccountByAddress(ctx context.Context, instanceID uuid.UUID, address string) (*model.Account, bool, error)
	GetAccountsByAddresses(ctx context.Context, instanceID uuid.UUID, addresses []string) (map[string]*model.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, bool, error)
	CreateAccountTx(ctx context.Context, tx pgx.Tx, a *model.Account) error
	UpdateAccountFieldsTx(ctx context.Context, tx pgx.Tx, a *model.Account) error
	UpdateAccountCAS(ctx context.Context, tx pgx.Tx, a *model.Account) error

	CreateTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error
	GetTransaction(ctx context.Context, instanceID, id uuid.UUID) (*model.Transaction, bool, error)
	UpdateTransactionStatusCAS(ctx context.Context, tx pgx.Tx, t *model.Transaction) error
	GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Entry, error)
	InsertEntry(ctx context.Context, tx pgx.Tx, e *model.Entry) error
	InsertBalanceHistoryEntry(ctx context.Context, tx pgx.Tx, h *model.BalanceHistoryEntry) error

	GetQueueItemByCommandID(ctx context.Context, commandID uuid.UUID) (*model.CommandQueueItem, error)

	InsertJournalEvent(ctx context.Context, tx pgx.Tx, j *model.JournalEvent) error
	LinkJournalEventCommand(ctx context.Context, tx pgx.Tx, journalEventID, commandID uuid.UUID) error
	LinkJournalEventTransaction(ctx context.Context, tx pgx.Tx, journalEventID, transactionID uuid.UUID) error
	LinkJournalEventAccount(ctx context.Context, tx pgx.Tx, journalEventID, accountID uuid.UUID) error

	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Deps bundles everything a Workers instance needs to run the pipeline.
type Deps struct {
	Store       Store
	Lookup      *lookup.Lookup
	Publisher   messaging.JournalPublisher
	OCCPolicy   occ.Policy
	QueuePolicy scheduler.BackoffPolicy
}

type Workers struct {
	deps Deps
}

func New(deps Deps) *Workers {
	return &Workers{deps: deps}
}

// Process runs the full pipeline for an already-claimed queue item and
// returns the transitioned item. It never persists the result; the caller
// (internal/dispatcher) writes it back with scheduler's lock_version CAS.
func (w *Workers) Process(ctx context.Context, item model.CommandQueueItem, cmd model.Command) model.CommandQueueItem {
	action, _ := cmd.CommandMap["action"].(string)
	now := time.Now().UTC()

	if command.Action(action) == command.ActionUpdateTransaction {
		_, occAttempts, verr, requeueAt := w.updateTransaction(ctx, cmd)
		if requeueAt != nil {
			item.Status = model.QueueStatusPending
			item.NextRetryAfter = requeueAt
			item.UpdatedAt = now
			metrics.RecordCommandOutcome(action, "requeued_pending")
			return item
		}
		item.OCCRetryCount = occAttempts
		return w.finish(item, action, verr, now)
	}

	var verr *apierr.Error
	var occAttempts int
	switch command.Action(action) {
	case command.ActionCreateAccount:
		_, verr = w.createAccount(ctx, cmd)
	case command.ActionUpdateAccount:
		_, verr = w.updateAccount(ctx, cmd)
	case command.ActionCreateTransaction:
		_, occAttempts, verr = w.createTransaction(ctx, cmd)
	default:
		verr = apierr.Validation("action_not_supported", "command carries an unrecognized action")
	}
	item.OCCRetryCount = occAttempts
	return w.finish(item, action, verr, now)
}

// ProcessNoSaveOnError runs an account or transaction command's validation
// and posting logic against an already-persisted Command row without ever
// creating a CommandQueueItem, for the synchronous core.ProcessFromParams
// path: a failure is returned to the caller directly instead of being
// recorded as a dead-letter queue transition. Whether that failure then
// gets a queue item for background retry is core's decision, not this
// function's.
func (w *Workers) ProcessNoSaveOnError(ctx context.Context, instanceID, syntheticCommandID uuid.UUID, commandMap map[string]any) (any, *apierr.Error) {
	action, _ := commandMap["action"].(string)
	cmd := model.Command{ID: syntheticCommandID, InstanceID: instanceID, CommandMap: commandMap, CreatedAt: time.Now().UTC()}

	switch command.Action(action) {
	case command.ActionCreateAccount:
		acc, verr := w.createAccount(ctx, cmd)
		return acc, verr
	case command.ActionUpdateAccount:
		acc, verr := w.updateAccount(ctx, cmd)
		return acc, verr
	case command.ActionCreateTransaction:
		tx, _, verr := w.createTransaction(ctx, cmd)
		return tx, verr
	case command.ActionUpdateTransaction:
		tx, _, verr, requeueAt := w.updateTransaction(ctx, cmd)
		if requeueAt != nil {
			return nil, apierr.Validation("create_not_yet_processed", "the create_transaction this update targets has not been processed yet")
		}
		return tx, verr
	default:
		return nil, apierr.Validation("action_not_supported", "command carries an unrecognized action")
	}
}

func (w *Workers) finish(item model.CommandQueueItem, action string, verr *apierr.Error, now time.Time) model.CommandQueueItem {
	if verr == nil {
		updated := scheduler.TransitionProcessed(item, now)
		metrics.RecordCommandOutcome(action, string(updated.Status))
		return updated
	}

	switch verr.Kind {
	case apierr.KindValidation, apierr.KindNotFound, apierr.KindBalanceViolation:
		updated := scheduler.TransitionDeadLetter(item, verr.Error(), now)
		metrics.RecordCommandOutcome(action, string(updated.Status))
		return updated
	case apierr.KindOCCConflict:
		updated := scheduler.TransitionOCCTimeout(item, verr.Error(), w.deps.QueuePolicy, now)
		metrics.OCCTimeouts.Inc()
		metrics.RecordCommandOutcome(action, string(updated.Status))
		return updated
	case apierr.KindStaleClaim:
		return item
	default:
		updated := scheduler.TransitionFailed(item, verr.Error(), w.deps.QueuePolicy, now)
		metrics.RecordCommandOutcome(action, string(updated.Status))
		return updated
	}
}

// --- create_account / update_account ---

func (w *Workers) createAccount(ctx context.Context, cmd model.Command) (*model.Account, *apierr.Error) {
	parsed, verr := command.DecodeAccountCommand(cmd.CommandMap, true)
	if verr != nil {
		return nil, verr
	}

	_, exists, err := w.deps.Store.GetAccountByAddress(ctx, cmd.InstanceID, parsed.Payload.Address)
	if err != nil {
		return nil, apierr.New(apierr.KindTransientDB, "account_lookup_failed", err.Error())
	}
	if exists {
		return nil, apierr.Validation("account_already_exists", "an account with this address already exists")
	}

	now := time.Now().UTC()
	account := &model.Account{
		ID:              uuid.New(),
		InstanceID:      cmd.InstanceID,
		Address:         parsed.Payload.Address,
		Name:            parsed.Payload.Name,
		Description:     parsed.Payload.Description,
		Type:            parsed.Payload.Type,
		NormalBalance:   parsed.Payload.NormalBalance,
		Currency:        parsed.Payload.Currency,
		AllowedNegative: parsed.Payload.AllowedNegative,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var journalEventID uuid.UUID
	txErr := w.deps.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := w.deps.Store.CreateAccountTx(ctx, tx, account); err != nil {
			return err
		}
		je := &model.JournalEvent{ID: uuid.New(), InstanceID: cmd.InstanceID, CommandMap: cmd.CommandMap, CreatedAt: now}
		if err := w.deps.Store.InsertJournalEvent(ctx, tx, je); err != nil {
			return err
		}
		if err := w.deps.Store.LinkJournalEventCommand(ctx, tx, je.ID, cmd.ID); err != nil {
			return err
		}
		if err := w.deps.Store.LinkJournalEventAccount(ctx, tx, je.ID, account.ID); err != nil {
			return err
		}
		journalEventID = je.ID
		return nil
	})
	if txErr != nil {
		return nil, apierr.New(apierr.KindTransientDB, "create_account_failed", txErr.Error())
	}

	w.publish(journalEventID, cmd.InstanceID, string(command.ActionCreateAccount), now)
	return account, nil
}

func (w *Workers) updateAccount(ctx context.Context, cmd model.Command) (*model.Account, *apierr.Error) {
	parsed, verr := command.DecodeAccountCommand(cmd.CommandMap, false)
	if verr != nil {
		return nil, verr
	}

	account, ok, err := w.deps.Store.GetAccountByAddress(ctx, cmd.InstanceID, parsed.Payload.Address)
	if err != nil {
		return nil, apierr.New(apierr.KindTransientDB, "account_lookup_failed", err.Error())
	}
	if !ok {
		return nil, apierr.NotFound("account_not_found", "no account exists at this address")
	}

	if parsed.Payload.Name != "" {
		account.Name = parsed.Payload.Name
	}
	if parsed.Payload.Description != "" {
		account.Description = parsed.Payload.Description
	}
	account.AllowedNegative = parsed.Payload.AllowedNegative

	now := time.Now().UTC()
	var journalEventID uuid.UUID
	txErr := w.deps.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := w.deps.Store.UpdateAccountFieldsTx(ctx, tx, account); err != nil {
			return err
		}
		je := &model.JournalEvent{ID: uuid.New(), InstanceID: cmd.InstanceID, CommandMap: cmd.CommandMap, CreatedAt: now}
		if err := w.deps.Store.InsertJournalEvent(ctx, tx, je); err != nil {
			return err
		}
		if err := w.deps.Store.LinkJournalEventCommand(ctx, tx, je.ID, cmd.ID); err != nil {
			return err
		}
		if err := w.deps.Store.LinkJournalEventAccount(ctx, tx, je.ID, account.ID); err != nil {
			return err
		}
		journalEventID = je.ID
		return nil
	})
	if txErr != nil {
		return nil, apierr.New(apierr.KindTransientDB, "update_account_failed", txErr.Error())
	}

	w.publish(journalEventID, cmd.InstanceID, string(command.ActionUpdateAccount), now)
	return account, nil
}

// --- create_transaction ---

func (w *Workers) createTransaction(ctx context.Context, cmd model.Command) (*model.Transaction, int, *apierr.Error) {
	envelope := command.DecodeEnvelope(cmd.CommandMap)
	txCmd := command.DecodeTransactionCommand(cmd.CommandMap)

	addresses := make([]string, len(txCmd.Payload.Entries))
	for i, e := range txCmd.Payload.Entries {
		addresses[i] = e.AccountAddress
	}

	accounts, err := w.deps.Store.GetAccountsByAddresses(ctx, cmd.InstanceID, addresses)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindTransientDB, "account_lookup_failed", err.Error())
	}
	resolve := resolverFor(accounts)

	if verr := command.ValidateCreateTransaction(txCmd, resolve); verr != nil {
		return nil, 0, verr
	}

	transactionID := uuid.New()
	now := time.Now().UTC()
	var createdTx *model.Transaction

	work := func(ctx context.Context, attempt int) (any, error) {
		fresh, err := w.deps.Store.GetAccountsByAddresses(ctx, cmd.InstanceID, addresses)
		if err != nil {
			return nil, apierr.New(apierr.KindTransientDB, "account_refresh_failed", err.Error())
		}

		normalized := make([]posting.NormalizedEntry, len(txCmd.Payload.Entries))
		for i, e := range txCmd.Payload.Entries {
			normalized[i] = posting.NormalizedEntry{Account: fresh[e.AccountAddress], Amount: e.Amount, Currency: e.Currency}
		}
		ops := posting.PlanCreate(txCmd.Payload.Status, normalized)

		out, perr := posting.Apply(transactionID, ops, now)
		if perr != nil {
			return nil, perr
		}

		txRow := &model.Transaction{ID: transactionID, InstanceID: cmd.InstanceID, Status: txCmd.Payload.Status, CreatedAt: now, UpdatedAt: now}
		if txCmd.Payload.Status == model.TransactionStatusPosted {
			txRow.PostedAt = &now
		}

		var journalEventID uuid.UUID
		txErr := w.deps.Store.WithTx(ctx, func(tx pgx.Tx) error {
			if err := w.deps.Store.CreateTransaction(ctx, tx, txRow); err != nil {
				return err
			}
			for i := range out.Entries {
				if err := w.deps.Store.InsertEntry(ctx, tx, &out.Entries[i]); err != nil {
					return err
				}
			}
			for i := range out.History {
				if err := w.deps.Store.InsertBalanceHistoryEntry(ctx, tx, &out.History[i]); err != nil {
					return err
				}
			}
			for _, acc := range out.Accounts {
				if err := w.deps.Store.UpdateAccountCAS(ctx, tx, acc); err != nil {
					return err
				}
			}
			je := &model.JournalEvent{ID: uuid.New(), InstanceID: cmd.InstanceID, CommandMap: cmd.CommandMap, CreatedAt: now}
			if err := w.deps.Store.InsertJournalEvent(ctx, tx, je); err != nil {
				return err
			}
			if err := w.deps.Store.LinkJournalEventCommand(ctx, tx, je.ID, cmd.ID); err != nil {
				return err
			}
			if err := w.deps.Store.LinkJournalEventTransaction(ctx, tx, je.ID, txRow.ID); err != nil {
				return err
			}
			if txRow.Status == model.TransactionStatusPending {
				if err := w.deps.Lookup.Put(ctx, tx, cmd.InstanceID, envelope.Source, envelope.SourceIdempK, cmd.ID, txRow.ID, je.ID); err != nil {
					return err
				}
			}
			journalEventID = je.ID
			return nil
		})
		if txErr != nil {
			if occ.IsStaleEntry(txErr) {
				return nil, txErr
			}
			return nil, apierr.New(apierr.KindTransientDB, "create_transaction_write_failed", txErr.Error())
		}
		createdTx = txRow
		return journalEventID, nil
	}

	outcome, occErr := occ.Retry(ctx, w.deps.OCCPolicy, work, w.recordOCCAttempt)
	occAttempts := len(outcome.Attempts)
	if occErr != nil {
		return nil, occAttempts, occErr
	}

	w.publish(outcome.Result.(uuid.UUID), cmd.InstanceID, string(command.ActionCreateTransaction), now)
	return createdTx, occAttempts, nil
}

// --- update_transaction ---

// updateTransaction implements the four-branch update path: target not
// found, target still pending (deferred via requeue), target dead-lettered,
// or apply. A non-nil requeueAt means the second branch: the target's
// create_transaction hasn't resolved yet, so the caller reverts this queue
// item to pending without treating it as a failure.
func (w *Workers) updateTransaction(ctx context.Context, cmd model.Command) (*model.Transaction, int, *apierr.Error, *time.Time) {
	envelope := command.DecodeEnvelope(cmd.CommandMap)
	txCmd := command.DecodeTransactionCommand(cmd.CommandMap)

	thisItem, err := w.deps.Store.GetQueueItemByCommandID(ctx, cmd.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, apierr.New(apierr.KindTransientDB, "queue_item_lookup_failed", err.Error()), nil
	}
	thisRetryCount := 0
	if thisItem != nil {
		thisRetryCount = thisItem.RetryCount
	}

	lk, found, err := w.deps.Lookup.Resolve(ctx, cmd.InstanceID, envelope.Source, envelope.SourceIdempK)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindTransientDB, "lookup_failed", err.Error()), nil
	}
	if !found {
		return nil, 0, apierr.NotFound("create_event_not_found", "no pending transaction found for this source/source_idempk"), nil
	}

	createItem, err := w.deps.Store.GetQueueItemByCommandID(ctx, lk.CommandID)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindTransientDB, "create_queue_item_lookup_failed", err.Error()), nil
	}

	switch createItem.Status {
	case model.QueueStatusPending, model.QueueStatusFailed:
		now := time.Now().UTC()
		base := now
		if createItem.NextRetryAfter != nil && createItem.NextRetryAfter.After(base) {
			base = *createItem.NextRetryAfter
		}
		next := base.Add(scheduler.ComputeBackoff(thisRetryCount, w.deps.QueuePolicy))
		return nil, 0, nil, &next
	case model.QueueStatusDeadLetter:
		return nil, 0, apierr.Validation("create_event_dead_lettered", "the create_transaction this update targets was dead-lettered"), nil
	}

	current, ok, err := w.deps.Store.GetTransaction(ctx, cmd.InstanceID, lk.TransactionID)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindTransientDB, "transaction_lookup_failed", err.Error()), nil
	}
	if !ok {
		return nil, 0, apierr.NotFound("transaction_not_found", "target transaction no longer exists"), nil
	}

	currentEntries, err := w.deps.Store.GetEntriesByTransaction(ctx, current.ID)
	if err != nil {
		return nil, 0, apierr.New(apierr.KindTransientDB, "entries_lookup_failed", err.Error()), nil
	}

	oldResolved := make([]posting.ResolvedEntry, len(currentEntries))
	oldAccountIDs := make(map[uuid.UUID]*model.Account, len(currentEntries))
	for i, e := range currentEntries {
		acc, ok := oldAccountIDs[e.AccountID]
		if !ok {
			fetched, found, err := w.deps.Store.GetAccountByID(ctx, e.AccountID)
			if err != nil {
				return nil, 0, apierr.New(apierr.KindTransientDB, "account_lookup_failed", err.Error()), nil
			}
			if !found {
				return nil, 0, apierr.NotFound("account_not_found", "an account backing this transaction's entries no longer exists"), nil
			}
			acc = fetched
			oldAccountIDs[e.AccountID] = acc
		}
		oldResolved[i] = posting.ResolvedEntry{Account: acc, Type: e.Type, Amount: e.Amount, Currency: e.Currency}
	}

	newAddresses := make([]string, len(txCmd.Payload.Entries))
	for i, e := range txCmd.Payload.Entries {
		newAddresses[i] = e.AccountAddress
	}
	var newAccounts map[string]*model.Account
	if len(newAddresses) > 0 {
		newAccounts, err = w.deps.Store.GetAccountsByAddresses(ctx, cmd.InstanceID, newAddresses)
		if err != nil {
			return nil, 0, apierr.New(apierr.KindTransientDB, "account_lookup_failed", err.Error()), nil
		}
	}
	resolve := resolverFor(newAccounts)

	if verr := command.ValidateUpdateTransaction(txCmd, *current, currentEntries, resolve); verr != nil {
		return nil, 0, verr, nil
	}

	targetStatus := current.Status
	if txCmd.Payload.Status != "" {
		targetStatus = txCmd.Payload.Status
	}
	hasNewEntries := len(txCmd.Payload.Entries) > 0

	now := time.Now().UTC()
	var updatedTxResult *model.Transaction

	work := func(ctx context.Context, attempt int) (any, error) {
		fresh := oldResolved
		if attempt > 1 {
			refreshed, err := w.refreshResolved(ctx, oldResolved)
			if err != nil {
				return nil, apierr.New(apierr.KindTransientDB, "account_refresh_failed", err.Error())
			}
			fresh = refreshed
		}
		var newNormalized []posting.NormalizedEntry
		var freshNewAccounts map[string]*model.Account
		if hasNewEntries {
			freshNewAccounts, err = w.deps.Store.GetAccountsByAddresses(ctx, cmd.InstanceID, newAddresses)
			if err != nil {
				return nil, apierr.New(apierr.KindTransientDB, "account_refresh_failed", err.Error())
			}
			newNormalized = make([]posting.NormalizedEntry, len(txCmd.Payload.Entries))
			for i, e := range txCmd.Payload.Entries {
				newNormalized[i] = posting.NormalizedEntry{Account: freshNewAccounts[e.AccountAddress], Amount: e.Amount, Currency: e.Currency}
			}
		}

		var ops []posting.EntryOp
		switch targetStatus {
		case model.TransactionStatusPending:
			if hasNewEntries {
				ops = posting.PlanPendingEdit(fresh, newNormalized)
			}
		case model.TransactionStatusPosted:
			if hasNewEntries {
				ops = posting.PlanPendingToPosted(fresh, newNormalized)
			} else {
				ops = posting.PlanPendingToPostedCarryForward(fresh)
			}
		case model.TransactionStatusArchived:
			ops = posting.PlanPendingToArchived(fresh)
		}

		out, perr := posting.Apply(current.ID, ops, now)
		if perr != nil {
			return nil, perr
		}

		updatedTx := &model.Transaction{ID: current.ID, InstanceID: cmd.InstanceID, Status: targetStatus, CreatedAt: current.CreatedAt}
		if targetStatus == model.TransactionStatusPosted {
			updatedTx.PostedAt = &now
		} else {
			updatedTx.PostedAt = current.PostedAt
		}

		var journalEventID uuid.UUID
		txErr := w.deps.Store.WithTx(ctx, func(tx pgx.Tx) error {
			if err := w.deps.Store.UpdateTransactionStatusCAS(ctx, tx, updatedTx); err != nil {
				return err
			}
			for i := range out.Entries {
				if err := w.deps.Store.InsertEntry(ctx, tx, &out.Entries[i]); err != nil {
					return err
				}
			}
			for i := range out.History {
				if err := w.deps.Store.InsertBalanceHistoryEntry(ctx, tx, &out.History[i]); err != nil {
					return err
				}
			}
			for _, acc := range out.Accounts {
				if err := w.deps.Store.UpdateAccountCAS(ctx, tx, acc); err != nil {
					return err
				}
			}
			je := &model.JournalEvent{ID: uuid.New(), InstanceID: cmd.InstanceID, CommandMap: cmd.CommandMap, CreatedAt: now}
			if err := w.deps.Store.InsertJournalEvent(ctx, tx, je); err != nil {
				return err
			}
			if err := w.deps.Store.LinkJournalEventCommand(ctx, tx, je.ID, cmd.ID); err != nil {
				return err
			}
			if err := w.deps.Store.LinkJournalEventTransaction(ctx, tx, je.ID, current.ID); err != nil {
				return err
			}
			if targetStatus == model.TransactionStatusPending {
				if err := w.deps.Lookup.Put(ctx, tx, cmd.InstanceID, envelope.Source, envelope.SourceIdempK, lk.CommandID, current.ID, je.ID); err != nil {
					return err
				}
			} else {
				if err := w.deps.Lookup.Clear(ctx, tx, cmd.InstanceID, envelope.Source, envelope.SourceIdempK); err != nil {
					return err
				}
			}
			journalEventID = je.ID
			return nil
		})
		if txErr != nil {
			if occ.IsStaleEntry(txErr) {
				return nil, txErr
			}
			return nil, apierr.New(apierr.KindTransientDB, "update_transaction_write_failed", txErr.Error())
		}
		updatedTxResult = updatedTx
		return journalEventID, nil
	}

	outcome, occErr := occ.Retry(ctx, w.deps.OCCPolicy, work, w.recordOCCAttempt)
	occAttempts := len(outcome.Attempts)
	if occErr != nil {
		return nil, occAttempts, occErr, nil
	}

	w.publish(outcome.Result.(uuid.UUID), cmd.InstanceID, string(command.ActionUpdateTransaction), now)
	return updatedTxResult, occAttempts, nil, nil
}

// refreshResolved re-reads each account backing a ResolvedEntry after an OCC
// conflict, preserving each entry's original type/amount/currency.
func (w *Workers) refreshResolved(ctx context.Context, entries []posting.ResolvedEntry) ([]posting.ResolvedEntry, error) {
	out := make([]posting.ResolvedEntry, len(entries))
	cache := make(map[uuid.UUID]*model.Account, len(entries))
	for i, e := range entries {
		acc, ok := cache[e.Account.ID]
		if !ok {
			fetched, _, err := w.deps.Store.GetAccountByID(ctx, e.Account.ID)
			if err != nil {
				return nil, err
			}
			acc = fetched
			cache[e.Account.ID] = acc
		}
		out[i] = posting.ResolvedEntry{Account: acc, Type: e.Type, Amount: e.Amount, Currency: e.Currency}
	}
	return out, nil
}

func (w *Workers) recordOCCAttempt(attempt occ.Attempt) {
	metrics.OCCRetries.Observe(float64(attempt.Number))
}

func (w *Workers) publish(journalEventID, instanceID uuid.UUID, action string, now time.Time) {
	if w.deps.Publisher == nil {
		return
	}
	_ = w.deps.Publisher.PublishJournalEvent(kafka.JournalEventNotification{
		JournalEventID: journalEventID,
		InstanceID:     instanceID,
		Action:         action,
		CreatedAt:      now,
	})
}

func resolverFor(accounts map[string]*model.Account) command.AccountResolver {
	return func(address string) (command.AccountInfo, bool) {
		a, ok := accounts[address]
		if !ok {
			return command.AccountInfo{}, false
		}
		return command.AccountInfo{ID: a.ID, NormalBalance: a.NormalBalance, Currency: a.Currency}, true
	}
}
