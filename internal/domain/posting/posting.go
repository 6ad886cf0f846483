// Package posting implements the double-entry posting engine: given a set
// of sign-normalized entries and the transaction transition they belong
// to, it produces account balance changes, Entry rows, and
// BalanceHistoryEntry snapshots, enforcing the negative-balance invariant
// along the way.
//
// Reversal of an earlier pending entry (needed by edits and by the
// pending→posted/archived transitions) is modeled as posting a brand-new
// offsetting Entry rather than mutating the original — entries are
// immutable once committed, and Balance.Debit/Credit only ever increase,
// so an offsetting entry is the only way to reverse an effect without
// violating that monotonicity.
package posting

import (
	"time"

	"github.com/google/uuid"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
)

// Target is the sub-balance an EntryOp posts against.
type Target string

const (
	TargetPosted  Target = "posted"
	TargetPending Target = "pending"
)

// NormalizedEntry is a caller-supplied signed amount against a resolved
// account, not yet split into debit/credit.
type NormalizedEntry struct {
	Account  *model.Account
	Amount   int64 // signed; caller's add/subtract intent
	Currency string
}

// ResolvedEntry is an already-posted Entry resolved back to its account,
// used to build reversal ops for edits and status transitions.
type ResolvedEntry struct {
	Account  *model.Account
	Type     model.EntryType
	Amount   int64
	Currency string
}

// EntryOp is one leg to apply: post amount of type against account's
// Target sub-balance.
type EntryOp struct {
	Account  *model.Account
	Type     model.EntryType
	Amount   int64
	Currency string
	Target   Target
}

// Outcome is the result of applying a plan of EntryOps to a transaction.
type Outcome struct {
	Entries  []model.Entry
	History  []model.BalanceHistoryEntry
	Accounts []*model.Account // touched accounts, in first-touched order; callers persist with lock_version CAS
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// PlanCreate builds the ops for a brand-new transaction's entries, posting
// to Pending for a pending transaction or Posted for a posted one.
func PlanCreate(status model.TransactionStatus, entries []NormalizedEntry) []EntryOp {
	target := TargetPending
	if status == model.TransactionStatusPosted {
		target = TargetPosted
	}
	ops := make([]EntryOp, len(entries))
	for i, e := range entries {
		ops[i] = EntryOp{
			Account:  e.Account,
			Type:     model.NormalizeSign(e.Amount, e.Account.NormalBalance),
			Amount:   absInt64(e.Amount),
			Currency: e.Currency,
			Target:   target,
		}
	}
	return ops
}

// ReverseOps offsets each resolved entry's original effect against target.
func ReverseOps(entries []ResolvedEntry, target Target) []EntryOp {
	ops := make([]EntryOp, len(entries))
	for i, e := range entries {
		reversed := model.EntryTypeCredit
		if e.Type == model.EntryTypeCredit {
			reversed = model.EntryTypeDebit
		}
		ops[i] = EntryOp{Account: e.Account, Type: reversed, Amount: e.Amount, Currency: e.Currency, Target: target}
	}
	return ops
}

// PlanDirect carries each resolved entry's existing type and amount forward
// unchanged against a new target, used when a status transition moves
// entries from pending to posted without the caller supplying replacement
// entries.
func PlanDirect(entries []ResolvedEntry, target Target) []EntryOp {
	ops := make([]EntryOp, len(entries))
	for i, e := range entries {
		ops[i] = EntryOp{Account: e.Account, Type: e.Type, Amount: e.Amount, Currency: e.Currency, Target: target}
	}
	return ops
}

// PlanPendingEdit rewrites a pending transaction's entries: reverse the old
// pending effect, apply the new one, both against Pending.
func PlanPendingEdit(oldEntries []ResolvedEntry, newEntries []NormalizedEntry) []EntryOp {
	ops := ReverseOps(oldEntries, TargetPending)
	return append(ops, PlanCreate(model.TransactionStatusPending, newEntries)...)
}

// PlanPendingToPosted reverses the old pending effect and posts the new
// entries to Posted.
func PlanPendingToPosted(oldEntries []ResolvedEntry, newEntries []NormalizedEntry) []EntryOp {
	ops := ReverseOps(oldEntries, TargetPending)
	return append(ops, PlanCreate(model.TransactionStatusPosted, newEntries)...)
}

// PlanPendingToPostedCarryForward reverses the old pending effect and posts
// the same entries, unchanged, to Posted — the no-new-entries case of an
// update_transaction that only changes status.
func PlanPendingToPostedCarryForward(oldEntries []ResolvedEntry) []EntryOp {
	ops := ReverseOps(oldEntries, TargetPending)
	return append(ops, PlanDirect(oldEntries, TargetPosted)...)
}

// PlanPendingToArchived reverses the old pending effect with no new
// postings.
func PlanPendingToArchived(oldEntries []ResolvedEntry) []EntryOp {
	return ReverseOps(oldEntries, TargetPending)
}

// Apply executes ops in order, mutating each touched account's Posted or
// Pending balance in place, recomputing Available, and rejecting any op
// that would drive an allowed_negative=false account's Available below
// zero. It returns the Entry and BalanceHistoryEntry rows to persist and
// the set of accounts to write back under OCC.
func Apply(transactionID uuid.UUID, ops []EntryOp, now time.Time) (*Outcome, *apierr.Error) {
	out := &Outcome{}
	touched := make(map[uuid.UUID]bool, len(ops))

	for _, op := range ops {
		if op.Currency != op.Account.Currency {
			err := apierr.BalanceViolation("currency_mismatch", "entry currency does not match account currency")
			return nil, apierr.WithField(err, "account_address", op.Account.Address)
		}

		switch op.Target {
		case TargetPosted:
			op.Account.Posted = op.Account.Posted.Apply(op.Type, op.Amount, op.Account.NormalBalance)
		case TargetPending:
			op.Account.Pending = op.Account.Pending.Apply(op.Type, op.Amount, op.Account.NormalBalance)
		}
		op.Account.Recompute()

		if !op.Account.AllowedNegative && op.Account.Available < 0 {
			err := apierr.BalanceViolation("negative_balance", "posting would drive available balance negative")
			return nil, apierr.WithField(err, "account_address", op.Account.Address)
		}

		entry := model.Entry{
			ID:            uuid.New(),
			TransactionID: transactionID,
			AccountID:     op.Account.ID,
			Type:          op.Type,
			Amount:        op.Amount,
			Currency:      op.Currency,
			CreatedAt:     now,
		}
		out.Entries = append(out.Entries, entry)
		out.History = append(out.History, model.BalanceHistoryEntry{
			ID:        uuid.New(),
			AccountID: op.Account.ID,
			EntryID:   entry.ID,
			Posted:    op.Account.Posted,
			Pending:   op.Account.Pending,
			Available: op.Account.Available,
			CreatedAt: now,
		})

		if !touched[op.Account.ID] {
			touched[op.Account.ID] = true
			out.Accounts = append(out.Accounts, op.Account)
		}
	}

	return out, nil
}
