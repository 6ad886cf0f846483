package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultNormalBalance(t *testing.T) {
	assert.Equal(t, NormalBalanceDebit, DefaultNormalBalance(AccountTypeAsset))
	assert.Equal(t, NormalBalanceDebit, DefaultNormalBalance(AccountTypeExpense))
	assert.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeLiability))
	assert.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeEquity))
	assert.Equal(t, NormalBalanceCredit, DefaultNormalBalance(AccountTypeRevenue))
}

func TestNormalizeSign(t *testing.T) {
	assert.Equal(t, EntryTypeDebit, NormalizeSign(100, NormalBalanceDebit))
	assert.Equal(t, EntryTypeCredit, NormalizeSign(-100, NormalBalanceDebit))
	assert.Equal(t, EntryTypeCredit, NormalizeSign(100, NormalBalanceCredit))
	assert.Equal(t, EntryTypeDebit, NormalizeSign(-100, NormalBalanceCredit))
}

func TestBalanceApplyAndReverse(t *testing.T) {
	var b Balance
	b = b.Apply(EntryTypeDebit, 500, NormalBalanceDebit)
	assert.Equal(t, int64(500), b.Debit)
	assert.Equal(t, int64(500), b.Amount)

	b = b.Apply(EntryTypeCredit, 200, NormalBalanceDebit)
	assert.Equal(t, int64(200), b.Credit)
	assert.Equal(t, int64(300), b.Amount)

	b = b.Reverse(EntryTypeCredit, 200, NormalBalanceDebit)
	assert.Equal(t, int64(0), b.Credit)
	assert.Equal(t, int64(500), b.Amount)
}

func TestAccountRecomputeAvailable(t *testing.T) {
	a := Account{NormalBalance: NormalBalanceDebit}
	a.Posted = a.Posted.Apply(EntryTypeDebit, 1000, a.NormalBalance)
	a.Pending = a.Pending.Apply(EntryTypeCredit, 300, a.NormalBalance)
	a.Recompute()
	assert.Equal(t, int64(700), a.Available)

	credit := Account{NormalBalance: NormalBalanceCredit}
	credit.Posted = credit.Posted.Apply(EntryTypeCredit, 1000, credit.NormalBalance)
	credit.Pending = credit.Pending.Apply(EntryTypeDebit, 400, credit.NormalBalance)
	credit.Recompute()
	assert.Equal(t, int64(600), credit.Available)
}

func TestTransactionStatusTransitions(t *testing.T) {
	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusPosted))
	assert.True(t, TransactionStatusPending.CanTransitionTo(TransactionStatusArchived))
	assert.False(t, TransactionStatusPosted.CanTransitionTo(TransactionStatusPending))
	assert.False(t, TransactionStatusArchived.CanTransitionTo(TransactionStatusPosted))
	assert.True(t, TransactionStatusPosted.IsTerminal())
	assert.True(t, TransactionStatusArchived.IsTerminal())
	assert.False(t, TransactionStatusPending.IsTerminal())
}
