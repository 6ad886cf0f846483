// Package postgres is the durable store: pgxpool-backed CRUD for every
// entity in internal/domain/model, with lock_version compare-and-set
// writes for accounts and queue items, and an idempotency_keys insert
// that is the sole enforcement point for at-most-once command acceptance.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledger-core/internal/config"
	"ledger-core/internal/domain/model"
	"ledger-core/internal/occ"
	"ledger-core/internal/pkg/apierr"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgxpool.Pool with the queries every component in C1's
// consumer set (C2-C9) needs.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a connection pool from cfg and pings it, following the
// teacher's NewPostgresRepository.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	if lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies schema.sql. Idempotent: every statement is
// CREATE TABLE/INDEX IF NOT EXISTS.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// --- instances ---

func (s *Store) GetInstanceByAddress(ctx context.Context, address string) (*model.Instance, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, address, config, created_at, updated_at
		FROM instances WHERE address = $1`, address)
	var inst model.Instance
	err := row.Scan(&inst.ID, &inst.Address, &inst.Config, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &inst, true, nil
}

func (s *Store) CreateInstance(ctx context.Context, inst *model.Instance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO instances (id, address, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		inst.ID, inst.Address, inst.Config, inst.CreatedAt, inst.UpdatedAt)
	return err
}

// ListReadyInstances returns the instances that own at least one
// command_queue_items row in a processable status, for C7's Monitor poll.
func (s *Store) ListReadyInstances(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT c.instance_id
		FROM command_queue_items q
		JOIN commands c ON c.id = q.command_id
		WHERE q.status IN ('pending', 'failed', 'occ_timeout')
		  AND (q.next_retry_after IS NULL OR q.next_retry_after <= now())`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- accounts ---

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.InstanceID, &a.Address, &a.Name, &a.Description, &a.Type, &a.NormalBalance, &a.Currency,
		&a.AllowedNegative,
		&a.Posted.Amount, &a.Posted.Debit, &a.Posted.Credit,
		&a.Pending.Amount, &a.Pending.Debit, &a.Pending.Credit,
		&a.Available, &a.LockVersion, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const accountColumns = `id, instance_id, address, name, description, type, normal_balance, currency,
		allowed_negative, posted_amount, posted_debit, posted_credit,
		pending_amount, pending_debit, pending_credit, available, lock_version, created_at, updated_at`

func (s *Store) GetAccountByAddress(ctx context.Context, instanceID uuid.UUID, address string) (*model.Account, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE instance_id = $1 AND address = $2`, instanceID, address)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// GetAccountsByAddresses resolves every address in one round trip, for
// command validation's AccountResolver and for posting's plan step.
func (s *Store) GetAccountsByAddresses(ctx context.Context, instanceID uuid.UUID, addresses []string) (map[string]*model.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE instance_id = $1 AND address = ANY($2)`, instanceID, addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*model.Account, len(addresses))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acc.Address] = acc
	}
	return out, rows.Err()
}

func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, instance_id, address, name, description, type, normal_balance, currency,
			allowed_negative, posted_amount, posted_debit, posted_credit,
			pending_amount, pending_debit, pending_credit, available, lock_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.InstanceID, a.Address, a.Name, a.Description, a.Type, a.NormalBalance, a.Currency,
		a.AllowedNegative, a.Posted.Amount, a.Posted.Debit, a.Posted.Credit,
		a.Pending.Amount, a.Pending.Debit, a.Pending.Credit, a.Available, a.LockVersion, a.CreatedAt, a.UpdatedAt)
	return err
}

// CreateAccountTx is CreateAccount run inside a caller-owned transaction, so
// the new account row and its creation JournalEvent commit atomically.
func (s *Store) CreateAccountTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, instance_id, address, name, description, type, normal_balance, currency,
			allowed_negative, posted_amount, posted_debit, posted_credit,
			pending_amount, pending_debit, pending_credit, available, lock_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.ID, a.InstanceID, a.Address, a.Name, a.Description, a.Type, a.NormalBalance, a.Currency,
		a.AllowedNegative, a.Posted.Amount, a.Posted.Debit, a.Posted.Credit,
		a.Pending.Amount, a.Pending.Debit, a.Pending.Credit, a.Available, a.LockVersion, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateAccountFieldsTx updates an account's descriptive fields (name,
// description, allowed_negative) without touching its balances or
// lock_version, for update_account commands that never race with posting.
func (s *Store) UpdateAccountFieldsTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET name = $1, description = $2, allowed_negative = $3, updated_at = $4
		WHERE id = $5`,
		a.Name, a.Description, a.AllowedNegative, now, a.ID)
	a.UpdatedAt = now
	return err
}

func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// UpdateAccountCAS writes a's balances guarded by its LockVersion, using
// the tx handed in by the caller (the posting outcome for one command is
// always written atomically alongside entries, history, and the queue item
// transition). Zero rows affected means another processor won; the caller
// surfaces an *occ.StaleEntryError so internal/occ.Retry can retry.
func (s *Store) UpdateAccountCAS(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	oldVersion := a.LockVersion
	newVersion := oldVersion + 1
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET
			posted_amount = $1, posted_debit = $2, posted_credit = $3,
			pending_amount = $4, pending_debit = $5, pending_credit = $6,
			available = $7, lock_version = $8, updated_at = $9
		WHERE id = $10 AND lock_version = $11`,
		a.Posted.Amount, a.Posted.Debit, a.Posted.Credit,
		a.Pending.Amount, a.Pending.Debit, a.Pending.Credit,
		a.Available, newVersion, now, a.ID, oldVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &occ.StaleEntryError{Resource: "account:" + a.Address}
	}
	a.LockVersion = newVersion
	a.UpdatedAt = now
	return nil
}

// --- transactions & entries ---

func (s *Store) CreateTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, instance_id, status, posted_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.InstanceID, t.Status, t.PostedAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, instanceID, id uuid.UUID) (*model.Transaction, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, instance_id, status, posted_at, created_at, updated_at
		FROM transactions WHERE instance_id = $1 AND id = $2`, instanceID, id)
	var t model.Transaction
	err := row.Scan(&t.ID, &t.InstanceID, &t.Status, &t.PostedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// UpdateTransactionStatusCAS has no lock_version column on transactions
// (only accounts and queue items carry one); status writes are guarded
// instead by the command pipeline only ever holding one in-flight update
// per transaction, enforced by PendingTransactionLookup, so a plain
// update is correct here.
func (s *Store) UpdateTransactionStatusCAS(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $1, posted_at = $2, updated_at = $3 WHERE id = $4`,
		t.Status, t.PostedAt, now, t.ID)
	t.UpdatedAt = now
	return err
}

func (s *Store) GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_id, account_id, type, amount, currency, created_at
		FROM entries WHERE transaction_id = $1 ORDER BY created_at`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Type, &e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertEntry(ctx context.Context, tx pgx.Tx, e *model.Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO entries (id, transaction_id, account_id, type, amount, currency, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.TransactionID, e.AccountID, e.Type, e.Amount, e.Currency, e.CreatedAt)
	return err
}

func (s *Store) InsertBalanceHistoryEntry(ctx context.Context, tx pgx.Tx, h *model.BalanceHistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balance_history_entries
			(id, account_id, entry_id, posted_amount, posted_debit, posted_credit,
			 pending_amount, pending_debit, pending_credit, available, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		h.ID, h.AccountID, h.EntryID, h.Posted.Amount, h.Posted.Debit, h.Posted.Credit,
		h.Pending.Amount, h.Pending.Debit, h.Pending.Credit, h.Available, h.CreatedAt)
	return err
}

// --- commands, idempotency, queue items ---

// InsertCommand writes a bare commands row with no idempotency key or
// queue item, for the synchronous process_from_params path: the command
// still gets a permanent write-ahead log entry even when it never sits in
// the pending queue.
func (s *Store) InsertCommand(ctx context.Context, cmd *model.Command) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commands (id, instance_id, command_map, created_at)
		VALUES ($1,$2,$3,$4)`, cmd.ID, cmd.InstanceID, cmd.CommandMap, cmd.CreatedAt)
	return err
}

// InsertQueueItemForCommand enqueues a pending queue item for a command
// that was already processed synchronously and failed, for
// process_from_params's opts.on_error=retry: the command keeps its
// original id, so the queue item points at the commands row written
// before the synchronous attempt, and the dispatcher picks it up like any
// other pending item.
func (s *Store) InsertQueueItemForCommand(ctx context.Context, item *model.CommandQueueItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO command_queue_items
			(id, command_id, status, processor_id, processor_version, retry_count, occ_retry_count,
			 errors, lock_version, created_at, updated_at)
		VALUES ($1,$2,$3,'','',0,0,'[]',0,$4,$4)`,
		item.ID, item.CommandID, item.Status, item.CreatedAt)
	return err
}

// InsertCommandWithIdempotency inserts cmd, its idempotency key, and its
// initial queue item in one transaction. A unique-index violation on
// idempotency_keys (instance_id, key_hash) surfaces as apierr.Duplicate
// with no side effects: uniqueness is enforced by the index itself (the
// plain INSERT fails with SQLSTATE 23505 and the transaction rolls back),
// not by a prior SELECT, so there is no read-then-write race.
func (s *Store) InsertCommandWithIdempotency(ctx context.Context, cmd *model.Command, item *model.CommandQueueItem, keyHash string) *apierr.Error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apierr.New(apierr.KindTransientDB, "begin_failed", err.Error())
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO commands (id, instance_id, command_map, created_at)
		VALUES ($1,$2,$3,$4)`, cmd.ID, cmd.InstanceID, cmd.CommandMap, cmd.CreatedAt)
	if err != nil {
		return apierr.New(apierr.KindTransientDB, "command_insert_failed", err.Error())
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_keys (instance_id, key_hash, command_id, created_at)
		VALUES ($1,$2,$3,$4)`, cmd.InstanceID, keyHash, cmd.ID, cmd.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apierr.Duplicate("duplicate_command", "a command with this idempotency key was already accepted")
		}
		return apierr.New(apierr.KindTransientDB, "idempotency_insert_failed", err.Error())
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO command_queue_items
			(id, command_id, status, processor_id, processor_version, retry_count, occ_retry_count,
			 errors, lock_version, created_at, updated_at)
		VALUES ($1,$2,$3,'','',0,0,'[]',0,$4,$4)`,
		item.ID, cmd.ID, item.Status, cmd.CreatedAt)
	if err != nil {
		return apierr.New(apierr.KindTransientDB, "queue_item_insert_failed", err.Error())
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.New(apierr.KindTransientDB, "commit_failed", err.Error())
	}
	return nil
}

// GetCommandByID reads back the immutable Command row a claimed queue item
// points to, for the dispatcher to dispatch into internal/workers.
func (s *Store) GetCommandByID(ctx context.Context, id uuid.UUID) (*model.Command, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, instance_id, command_map, created_at FROM commands WHERE id = $1`, id)
	var c model.Command
	err := row.Scan(&c.ID, &c.InstanceID, &c.CommandMap, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// GetQueueItemByCommandID reads a CommandQueueItem by its command's id,
// for the update-transaction worker's check on the create command's item.
func (s *Store) GetQueueItemByCommandID(ctx context.Context, commandID uuid.UUID) (*model.CommandQueueItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, command_id, status, processor_id, processor_version,
			processing_started_at, processing_completed_at, retry_count, occ_retry_count,
			next_retry_after, errors, lock_version, created_at, updated_at
		FROM command_queue_items WHERE command_id = $1`, commandID)
	return scanQueueItem(row)
}

func scanQueueItem(row pgx.Row) (*model.CommandQueueItem, error) {
	var q model.CommandQueueItem
	err := row.Scan(&q.ID, &q.CommandID, &q.Status, &q.ProcessorID, &q.ProcessorVersion,
		&q.ProcessingStartedAt, &q.ProcessingCompletedAt, &q.RetryCount, &q.OCCRetryCount,
		&q.NextRetryAfter, &q.Errors, &q.LockVersion, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ClaimNextReady selects one pending/failed/occ_timeout queue item for
// instanceID whose next_retry_after has elapsed, ordered oldest first, and
// returns it for the caller to run scheduler.Claim + UpdateQueueItemCAS
// against. Returns (nil, nil) when nothing is ready.
func (s *Store) ClaimNextReady(ctx context.Context, instanceID uuid.UUID) (*model.CommandQueueItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT q.id, q.command_id, q.status, q.processor_id, q.processor_version,
			q.processing_started_at, q.processing_completed_at, q.retry_count, q.occ_retry_count,
			q.next_retry_after, q.errors, q.lock_version, q.created_at, q.updated_at
		FROM command_queue_items q
		JOIN commands c ON c.id = q.command_id
		WHERE c.instance_id = $1
		  AND q.status IN ('pending', 'failed', 'occ_timeout')
		  AND (q.next_retry_after IS NULL OR q.next_retry_after <= now())
		ORDER BY q.created_at
		LIMIT 1`, instanceID)
	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// UpdateQueueItemCAS persists item's new state guarded by its LockVersion.
// Zero rows affected means another processor claimed first; the caller
// treats that as scheduler.ErrAlreadyClaimed.
func (s *Store) UpdateQueueItemCAS(ctx context.Context, item *model.CommandQueueItem) (*apierr.Error) {
	oldVersion := item.LockVersion
	newVersion := oldVersion + 1
	tag, err := s.pool.Exec(ctx, `
		UPDATE command_queue_items SET
			status = $1, processor_id = $2, processor_version = $3,
			processing_started_at = $4, processing_completed_at = $5,
			retry_count = $6, occ_retry_count = $7, next_retry_after = $8,
			errors = $9, lock_version = $10, updated_at = $11
		WHERE id = $12 AND lock_version = $13`,
		item.Status, item.ProcessorID, item.ProcessorVersion,
		item.ProcessingStartedAt, item.ProcessingCompletedAt,
		item.RetryCount, item.OCCRetryCount, item.NextRetryAfter,
		item.Errors, newVersion, item.UpdatedAt, item.ID, oldVersion)
	if err != nil {
		return apierr.New(apierr.KindTransientDB, "queue_item_update_failed", err.Error())
	}
	if tag.RowsAffected() == 0 {
		return apierr.New(apierr.KindStaleClaim, "already_claimed", "queue item lock_version changed before write")
	}
	item.LockVersion = newVersion
	return nil
}

// ListDeadLetter returns up to limit dead_letter queue items, most recent first,
// for operator inspection.
func (s *Store) ListDeadLetter(ctx context.Context, limit int) ([]model.CommandQueueItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command_id, status, processor_id, processor_version,
			processing_started_at, processing_completed_at, retry_count, occ_retry_count,
			next_retry_after, errors, lock_version, created_at, updated_at
		FROM command_queue_items WHERE status = 'dead_letter' ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CommandQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// ListStalledProcessing returns processing items whose processing_started_at
// is older than threshold, for the stall sweeper.
func (s *Store) ListStalledProcessing(ctx context.Context, threshold time.Duration) ([]model.CommandQueueItem, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.pool.Query(ctx, `
		SELECT id, command_id, status, processor_id, processor_version,
			processing_started_at, processing_completed_at, retry_count, occ_retry_count,
			next_retry_after, errors, lock_version, created_at, updated_at
		FROM command_queue_items WHERE status = 'processing' AND processing_started_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CommandQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// --- journal ---

func (s *Store) InsertJournalEvent(ctx context.Context, tx pgx.Tx, j *model.JournalEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO journal_events (id, instance_id, command_map, created_at)
		VALUES ($1,$2,$3,$4)`, j.ID, j.InstanceID, j.CommandMap, j.CreatedAt)
	return err
}

func (s *Store) LinkJournalEventCommand(ctx context.Context, tx pgx.Tx, journalEventID, commandID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO journal_event_command_links (journal_event_id, command_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, journalEventID, commandID)
	return err
}

func (s *Store) LinkJournalEventTransaction(ctx context.Context, tx pgx.Tx, journalEventID, transactionID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO journal_event_transaction_links (journal_event_id, transaction_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, journalEventID, transactionID)
	return err
}

func (s *Store) LinkJournalEventAccount(ctx context.Context, tx pgx.Tx, journalEventID, accountID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO journal_event_account_links (journal_event_id, account_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, journalEventID, accountID)
	return err
}

// --- pending transaction lookup (C8) ---

func (s *Store) PutPendingTransactionLookup(ctx context.Context, tx pgx.Tx, l *model.PendingTransactionLookup) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pending_transaction_lookup
			(instance_id, source, source_idempk, command_id, transaction_id, journal_event_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (instance_id, source, source_idempk) DO UPDATE SET
			command_id = EXCLUDED.command_id,
			transaction_id = EXCLUDED.transaction_id,
			journal_event_id = EXCLUDED.journal_event_id`,
		l.InstanceID, l.Source, l.SourceIdempK, l.CommandID, l.TransactionID, l.JournalEventID)
	return err
}

func (s *Store) GetPendingTransactionLookup(ctx context.Context, instanceID uuid.UUID, source, sourceIdempK string) (*model.PendingTransactionLookup, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT instance_id, source, source_idempk, command_id, transaction_id, journal_event_id
		FROM pending_transaction_lookup WHERE instance_id = $1 AND source = $2 AND source_idempk = $3`,
		instanceID, source, sourceIdempK)
	var l model.PendingTransactionLookup
	err := row.Scan(&l.InstanceID, &l.Source, &l.SourceIdempK, &l.CommandID, &l.TransactionID, &l.JournalEventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &l, true, nil
}

func (s *Store) DeletePendingTransactionLookup(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID, source, sourceIdempK string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM pending_transaction_lookup WHERE instance_id = $1 AND source = $2 AND source_idempk = $3`,
		instanceID, source, sourceIdempK)
	return err
}

// WithTx runs fn inside a single database transaction, matching the
// teacher's tx.Begin/defer Rollback/Commit idiom. Used by workers to make
// the posting outcome, journal event, links, and lookup row atomic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
