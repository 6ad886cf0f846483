package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/domain/model"
)

func TestDecodeEnvelope(t *testing.T) {
	m := map[string]any{
		"action":           "create_account",
		"instance_address": "acme",
		"source":           "api",
		"source_idempk":    "req-1",
	}
	e := DecodeEnvelope(m)
	assert.Equal(t, ActionCreateAccount, e.Action)
	assert.Equal(t, "acme", e.InstanceAddress)
	assert.Equal(t, "api", e.Source)
	assert.Equal(t, "req-1", e.SourceIdempK)
}

func TestDecodeAccountCommandAppliesDefaultNormalBalance(t *testing.T) {
	m := map[string]any{
		"action":           "create_account",
		"instance_address": "acme",
		"source":           "api",
		"source_idempk":    "req-1",
		"payload": map[string]any{
			"address":  "cash:main",
			"type":     "asset",
			"currency": "USD",
		},
	}
	cmd, err := DecodeAccountCommand(m, true)
	require.Nil(t, err)
	assert.Equal(t, model.NormalBalanceDebit, cmd.Payload.NormalBalance)
	assert.False(t, cmd.Payload.NormalBalanceSet)
}

func TestDecodeAccountCommandHonorsExplicitNormalBalance(t *testing.T) {
	m := map[string]any{
		"action":           "create_account",
		"instance_address": "acme",
		"source":           "api",
		"source_idempk":    "req-1",
		"payload": map[string]any{
			"address":        "cash:main",
			"type":           "asset",
			"currency":       "USD",
			"normal_balance": "credit",
		},
	}
	cmd, err := DecodeAccountCommand(m, true)
	require.Nil(t, err)
	assert.Equal(t, model.NormalBalanceCredit, cmd.Payload.NormalBalance)
	assert.True(t, cmd.Payload.NormalBalanceSet)
}

func TestDecodeAccountCommandSurfacesValidationError(t *testing.T) {
	m := map[string]any{
		"action":           "create_account",
		"instance_address": "acme",
		"source":           "api",
		"source_idempk":    "req-1",
		"payload":          map[string]any{},
	}
	_, err := DecodeAccountCommand(m, true)
	require.NotNil(t, err)
	assert.Contains(t, err.Fields, "payload.address")
}

func TestDecodeTransactionCommandEntries(t *testing.T) {
	m := map[string]any{
		"action":           "create_transaction",
		"instance_address": "acme",
		"source":           "api",
		"source_idempk":    "req-2",
		"payload": map[string]any{
			"status": "posted",
			"entries": []any{
				map[string]any{"account_address": "cash", "amount": float64(1000), "currency": "USD"},
				map[string]any{"account_address": "revenue", "amount": float64(-1000), "currency": "USD"},
			},
		},
	}
	cmd := DecodeTransactionCommand(m)
	require.Len(t, cmd.Payload.Entries, 2)
	assert.Equal(t, "cash", cmd.Payload.Entries[0].AccountAddress)
	assert.Equal(t, int64(1000), cmd.Payload.Entries[0].Amount)
	assert.Equal(t, model.TransactionStatusPosted, cmd.Payload.Status)
}
