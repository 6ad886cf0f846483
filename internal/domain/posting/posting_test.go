package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/domain/model"
)

func assetAccount(allowNegative bool) *model.Account {
	return &model.Account{
		ID:              uuid.New(),
		NormalBalance:   model.NormalBalanceDebit,
		Currency:        "USD",
		AllowedNegative: allowNegative,
	}
}

func liabilityAccount(allowNegative bool) *model.Account {
	return &model.Account{
		ID:              uuid.New(),
		NormalBalance:   model.NormalBalanceCredit,
		Currency:        "USD",
		AllowedNegative: allowNegative,
	}
}

func TestPlanCreatePosted(t *testing.T) {
	cash := assetAccount(false)
	revenue := liabilityAccount(false)

	entries := []NormalizedEntry{
		{Account: cash, Amount: 1000, Currency: "USD"},
		{Account: revenue, Amount: -1000, Currency: "USD"},
	}
	ops := PlanCreate(model.TransactionStatusPosted, entries)
	require.Len(t, ops, 2)
	assert.Equal(t, model.EntryTypeDebit, ops[0].Type)
	assert.Equal(t, TargetPosted, ops[0].Target)
	assert.Equal(t, model.EntryTypeDebit, ops[1].Type)
	assert.Equal(t, int64(1000), ops[1].Amount)
}

func TestApplyBalancedPosting(t *testing.T) {
	cash := assetAccount(false)
	revenue := liabilityAccount(false)
	entries := []NormalizedEntry{
		{Account: cash, Amount: 1000, Currency: "USD"},
		{Account: revenue, Amount: 1000, Currency: "USD"},
	}
	ops := PlanCreate(model.TransactionStatusPosted, entries)

	outcome, aerr := Apply(uuid.New(), ops, time.Now())
	require.Nil(t, aerr)
	require.Len(t, outcome.Entries, 2)
	require.Len(t, outcome.Accounts, 2)

	assert.Equal(t, int64(1000), cash.Posted.Debit)
	assert.Equal(t, int64(1000), cash.Available)
	assert.Equal(t, int64(1000), revenue.Posted.Credit)
	assert.Equal(t, int64(1000), revenue.Available)
}

func TestApplyRejectsNegativeBalance(t *testing.T) {
	cash := assetAccount(false)
	ops := []EntryOp{
		{Account: cash, Type: model.EntryTypeCredit, Amount: 500, Currency: "USD", Target: TargetPosted},
	}
	_, aerr := Apply(uuid.New(), ops, time.Now())
	require.NotNil(t, aerr)
	assert.Equal(t, "negative_balance", aerr.Code)
}

func TestApplyAllowsNegativeWhenPermitted(t *testing.T) {
	cash := assetAccount(true)
	ops := []EntryOp{
		{Account: cash, Type: model.EntryTypeCredit, Amount: 500, Currency: "USD", Target: TargetPosted},
	}
	outcome, aerr := Apply(uuid.New(), ops, time.Now())
	require.Nil(t, aerr)
	assert.Equal(t, int64(-500), cash.Available)
	require.Len(t, outcome.History, 1)
}

func TestApplyRejectsCurrencyMismatch(t *testing.T) {
	cash := assetAccount(false)
	ops := []EntryOp{
		{Account: cash, Type: model.EntryTypeDebit, Amount: 100, Currency: "EUR", Target: TargetPosted},
	}
	_, aerr := Apply(uuid.New(), ops, time.Now())
	require.NotNil(t, aerr)
	assert.Equal(t, "currency_mismatch", aerr.Code)
}

func TestPlanPendingToPostedCarryForward(t *testing.T) {
	cash := assetAccount(false)
	cash.Pending = cash.Pending.Apply(model.EntryTypeDebit, 200, cash.NormalBalance)
	cash.Recompute()

	old := []ResolvedEntry{{Account: cash, Type: model.EntryTypeDebit, Amount: 200, Currency: "USD"}}
	ops := PlanPendingToPostedCarryForward(old)
	require.Len(t, ops, 2)
	assert.Equal(t, TargetPending, ops[0].Target)
	assert.Equal(t, model.EntryTypeCredit, ops[0].Type) // reversal of a debit posting
	assert.Equal(t, TargetPosted, ops[1].Target)
	assert.Equal(t, model.EntryTypeDebit, ops[1].Type)

	outcome, aerr := Apply(uuid.New(), ops, time.Now())
	require.Nil(t, aerr)
	assert.Equal(t, int64(0), cash.Pending.Debit)
	assert.Equal(t, int64(200), cash.Posted.Debit)
	require.Len(t, outcome.Accounts, 1) // same account touched twice, counted once
}

func TestPlanPendingToArchived(t *testing.T) {
	cash := assetAccount(false)
	cash.Pending = cash.Pending.Apply(model.EntryTypeDebit, 200, cash.NormalBalance)
	cash.Recompute()

	old := []ResolvedEntry{{Account: cash, Type: model.EntryTypeDebit, Amount: 200, Currency: "USD"}}
	ops := PlanPendingToArchived(old)
	require.Len(t, ops, 1)

	_, aerr := Apply(uuid.New(), ops, time.Now())
	require.Nil(t, aerr)
	assert.Equal(t, int64(0), cash.Pending.Debit)
}
