// Package model defines the persistent entities of the ledger core: the
// tenant Instance, its Accounts and Transactions, the immutable Command log
// and its mutable CommandQueueItem lifecycle partner, and the journal
// audit trail.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountType is the classification of an Account; it determines the
// default normal balance unless explicitly overridden.
type AccountType string

const (
	AccountTypeAsset    AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity   AccountType = "equity"
	AccountTypeRevenue  AccountType = "revenue"
	AccountTypeExpense  AccountType = "expense"
)

// NormalBalance is the side (debit or credit) on which an account's balance
// naturally grows.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

// DefaultNormalBalance returns the normal balance implied by an account type,
// absent an explicit override.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// EntryType distinguishes a debit posting from a credit posting.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Balance is the debit/credit/amount triple embedded in an Account for both
// its posted and pending sub-balances. Debit and Credit only ever increase;
// Amount is derived from them according to the owning account's normal
// balance.
type Balance struct {
	Amount int64
	Debit  int64
	Credit int64
}

// Apply adds amt to the debit or credit side and recomputes Amount against
// normalBalance. It returns the updated balance; callers persist the result.
func (b Balance) Apply(entryType EntryType, amt int64, normalBalance NormalBalance) Balance {
	switch entryType {
	case EntryTypeDebit:
		b.Debit += amt
	case EntryTypeCredit:
		b.Credit += amt
	}
	b.Amount = amountFor(b.Debit, b.Credit, normalBalance)
	return b
}

// Reverse subtracts amt from the side it was originally posted to — used
// when an edit to a pending transaction replaces an earlier entry.
func (b Balance) Reverse(entryType EntryType, amt int64, normalBalance NormalBalance) Balance {
	switch entryType {
	case EntryTypeDebit:
		b.Debit -= amt
	case EntryTypeCredit:
		b.Credit -= amt
	}
	b.Amount = amountFor(b.Debit, b.Credit, normalBalance)
	return b
}

// NormalizeSign implements the sign-normalization rule: callers express
// intent as a signed amount against an account address. For a
// debit-normal account, amount > 0 yields a debit entry, else credit; the
// symmetric rule applies to credit-normal accounts.
func NormalizeSign(amount int64, normalBalance NormalBalance) EntryType {
	positive := amount > 0
	if normalBalance == NormalBalanceDebit {
		if positive {
			return EntryTypeDebit
		}
		return EntryTypeCredit
	}
	if positive {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

func amountFor(debit, credit int64, normalBalance NormalBalance) int64 {
	if normalBalance == NormalBalanceDebit {
		return debit - credit
	}
	return credit - debit
}

// Account is a balance holder owned by exactly one Instance.
type Account struct {
	ID              uuid.UUID
	InstanceID      uuid.UUID
	Address         string
	Name            string
	Description     string
	Type            AccountType
	NormalBalance   NormalBalance
	Currency        string
	AllowedNegative bool
	Posted          Balance
	Pending         Balance
	Available       int64
	LockVersion     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// computeAvailable computes the account's available balance from its posted and
// pending sub-balances according to its (possibly overridden) normal
// balance. Pending credits reduce a debit-normal account's available funds;
// pending debits do not increase it until posted. The symmetric rule
// applies to credit-normal accounts. The formula is keyed strictly on
// NormalBalance, never on Type, so an explicit override changes both the
// debit/credit bookkeeping and the available formula together.
func (a Account) computeAvailable() int64 {
	if a.NormalBalance == NormalBalanceDebit {
		return a.Posted.Amount - a.Pending.Credit
	}
	return a.Posted.Amount - a.Pending.Debit
}

// Recompute refreshes Available from the current Posted/Pending state.
func (a *Account) Recompute() {
	a.Available = a.computeAvailable()
}

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusPosted   TransactionStatus = "posted"
	TransactionStatusArchived TransactionStatus = "archived"
)

// IsTerminal reports whether status admits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusPosted || s == TransactionStatusArchived
}

// CanTransitionTo reports whether the transition from s to next is legal.
// Only pending transitions; posted and archived are terminal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case TransactionStatusPending, TransactionStatusPosted, TransactionStatusArchived:
		return true
	default:
		return false
	}
}

// Transaction is a balanced group of Entries against accounts in a single
// Instance.
type Transaction struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	Status     TransactionStatus
	PostedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Entry is one leg of a Transaction's double-entry posting.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Type          EntryType
	Amount        int64
	Currency      string
	CreatedAt     time.Time
}

// BalanceHistoryEntry is an append-only snapshot of an account's balances
// immediately after applying a single Entry.
type BalanceHistoryEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	EntryID   uuid.UUID
	Posted    Balance
	Pending   Balance
	Available int64
	CreatedAt time.Time
}

// Instance identifies a tenant ledger.
type Instance struct {
	ID        uuid.UUID
	Address   string
	Config    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Command is the immutable write-ahead record of a caller's intent.
type Command struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	CommandMap map[string]any
	CreatedAt  time.Time
}

// QueueStatus is the lifecycle state of a CommandQueueItem.
type QueueStatus string

const (
	QueueStatusPending     QueueStatus = "pending"
	QueueStatusProcessing  QueueStatus = "processing"
	QueueStatusProcessed   QueueStatus = "processed"
	QueueStatusFailed      QueueStatus = "failed"
	QueueStatusOCCTimeout  QueueStatus = "occ_timeout"
	QueueStatusDeadLetter  QueueStatus = "dead_letter"
)

// QueueError is one entry in a CommandQueueItem's diagnostic trail.
type QueueError struct {
	Message    string
	InsertedAt time.Time
}

// CommandQueueItem is the mutable lifecycle partner of a Command.
type CommandQueueItem struct {
	ID                     uuid.UUID
	CommandID              uuid.UUID
	Status                 QueueStatus
	ProcessorID            string
	ProcessorVersion       string
	ProcessingStartedAt    *time.Time
	ProcessingCompletedAt  *time.Time
	RetryCount             int
	OCCRetryCount          int
	NextRetryAfter         *time.Time
	Errors                 []QueueError
	LockVersion            int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// JournalEvent is the immutable audit record emitted on every successfully
// projected command.
type JournalEvent struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	CommandMap map[string]any
	CreatedAt  time.Time
}

// PendingTransactionLookup resolves an update_transaction command to the
// still-pending transaction its create_transaction produced, without
// scanning the command log.
type PendingTransactionLookup struct {
	InstanceID     uuid.UUID
	Source         string
	SourceIdempK   string
	CommandID      uuid.UUID
	TransactionID  uuid.UUID
	JournalEventID uuid.UUID
}

// IdempotencyKey enforces at-most-once acceptance of a (action, source,
// source_idempk[, update_idempk]) tuple per instance.
type IdempotencyKey struct {
	InstanceID uuid.UUID
	KeyHash    string
	CommandID  uuid.UUID
	CreatedAt  time.Time
}
