// Package lookup implements the pending-transaction lookup: it lets an
// update_transaction command find its target without scanning the command
// log, keyed by (instance_id, source, source_idempk).
package lookup

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledger-core/internal/domain/model"
)

// Store is the subset of internal/infrastructure/postgres.Store this
// package needs; kept as an interface so workers can be tested against a
// fake.
type Store interface {
	PutPendingTransactionLookup(ctx context.Context, tx pgx.Tx, l *model.PendingTransactionLookup) error
	GetPendingTransactionLookup(ctx context.Context, instanceID uuid.UUID, source, sourceIdempK string) (*model.PendingTransactionLookup, bool, error)
	DeletePendingTransactionLookup(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID, source, sourceIdempK string) error
}

type Lookup struct {
	store Store
}

func New(store Store) *Lookup {
	return &Lookup{store: store}
}

// Put records a create_transaction command's pending result so a later
// update_transaction can find it. Called only when the created transaction
// is pending; a posted transaction admits no future updates and gets no
// row.
func (l *Lookup) Put(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID, source, sourceIdempK string, commandID, transactionID, journalEventID uuid.UUID) error {
	return l.store.PutPendingTransactionLookup(ctx, tx, &model.PendingTransactionLookup{
		InstanceID:     instanceID,
		Source:         source,
		SourceIdempK:   sourceIdempK,
		CommandID:      commandID,
		TransactionID:  transactionID,
		JournalEventID: journalEventID,
	})
}

// Resolve reads the lookup row an update_transaction command targets by
// the create command's own (source, source_idempk) envelope fields.
func (l *Lookup) Resolve(ctx context.Context, instanceID uuid.UUID, source, sourceIdempK string) (*model.PendingTransactionLookup, bool, error) {
	return l.store.GetPendingTransactionLookup(ctx, instanceID, source, sourceIdempK)
}

// Clear removes the lookup row once its target transaction leaves pending
// (posted or archived), so a later update fails fast instead of resolving
// to a transaction that is no longer updatable.
func (l *Lookup) Clear(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID, source, sourceIdempK string) error {
	return l.store.DeletePendingTransactionLookup(ctx, tx, instanceID, source, sourceIdempK)
}
