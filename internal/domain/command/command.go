// Package command models the two CommandMap shapes accepted at the API
// boundary (account vs transaction, create vs update) and validates them.
// A dynamic map with string keys is modeled here as a tagged variant
// decoded from a plain map[string]any.
package command

import (
	"regexp"

	"github.com/google/uuid"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
)

// Action identifies the four command shapes the core accepts.
type Action string

const (
	ActionCreateAccount     Action = "create_account"
	ActionUpdateAccount     Action = "update_account"
	ActionCreateTransaction Action = "create_transaction"
	ActionUpdateTransaction Action = "update_transaction"
)

var (
	addressPattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
	sourcePattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,29}$`)
	sourceIdempKPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

// Envelope is the common shape of every CommandMap, regardless of action.
type Envelope struct {
	Action          Action
	InstanceAddress string
	Source          string
	SourceIdempK    string
	UpdateIdempK    string
}

// ValidateEnvelope runs the envelope checks alone, for callers (the durable
// enqueue path) that validate a transaction command's envelope before its
// accounts are resolved and defer entry/balance validation to the worker.
func ValidateEnvelope(e Envelope) *apierr.Error {
	return e.validate()
}

func (e Envelope) validate() *apierr.Error {
	err := apierr.Validation("invalid_command_envelope", "command envelope failed validation")
	hasErr := false

	switch e.Action {
	case ActionCreateAccount, ActionUpdateAccount, ActionCreateTransaction, ActionUpdateTransaction:
	default:
		apierr.WithField(err, "action", "unsupported action")
		hasErr = true
	}
	if e.InstanceAddress == "" {
		apierr.WithField(err, "instance_address", "is required")
		hasErr = true
	}
	if !sourcePattern.MatchString(e.Source) {
		apierr.WithField(err, "source", "must match ^[a-z0-9][a-z0-9_-]{1,29}$")
		hasErr = true
	}
	if !sourceIdempKPattern.MatchString(e.SourceIdempK) {
		apierr.WithField(err, "source_idempk", "must match ^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$")
		hasErr = true
	}
	if e.UpdateIdempK != "" && !sourceIdempKPattern.MatchString(e.UpdateIdempK) {
		apierr.WithField(err, "update_idempk", "must match ^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$")
		hasErr = true
	}
	if !hasErr {
		return nil
	}
	return err
}

// AccountData is the create/update payload for account commands.
type AccountData struct {
	Address         string
	Name            string
	Description     string
	Type            model.AccountType
	Currency        string
	NormalBalance   model.NormalBalance
	NormalBalanceSet bool // true when the caller explicitly set NormalBalance
	AllowedNegative bool
	Context         map[string]any
}

// AccountCommandMap is a validated create_account/update_account command.
type AccountCommandMap struct {
	Envelope
	Payload AccountData
}

func validAccountType(t model.AccountType) bool {
	switch t {
	case model.AccountTypeAsset, model.AccountTypeLiability, model.AccountTypeEquity,
		model.AccountTypeRevenue, model.AccountTypeExpense:
		return true
	}
	return false
}

// ValidateAccountCommand validates an AccountCommandMap for either create or
// update. isCreate controls which fields are required.
func ValidateAccountCommand(cmd AccountCommandMap, isCreate bool) *apierr.Error {
	if err := cmd.Envelope.validate(); err != nil {
		return err
	}

	err := apierr.Validation("invalid_account_payload", "account payload failed validation")
	hasErr := false

	if isCreate {
		if !addressPattern.MatchString(cmd.Payload.Address) {
			apierr.WithField(err, "payload.address", "must match ^[A-Za-z0-9][A-Za-z0-9._:-]*")
			hasErr = true
		}
		if !validAccountType(cmd.Payload.Type) {
			apierr.WithField(err, "payload.type", "must be one of asset,liability,equity,revenue,expense")
			hasErr = true
		}
		if cmd.Payload.Currency == "" {
			apierr.WithField(err, "payload.currency", "is required")
			hasErr = true
		}
	}

	if cmd.Payload.NormalBalanceSet && validAccountType(cmd.Payload.Type) {
		expected := model.DefaultNormalBalance(cmd.Payload.Type)
		if cmd.Payload.NormalBalance != expected {
			// Explicit overrides are permitted, no validation error:
			// downstream balance math keys strictly on NormalBalance,
			// never on Type.
			_ = expected
		}
	}

	if hasErr {
		return err
	}
	return nil
}

// EntryData is a single signed-amount leg of a TransactionData payload.
type EntryData struct {
	AccountAddress string
	Amount         int64 // signed: caller's add/subtract intent
	Currency       string
}

// TransactionData is the create/update payload for transaction commands.
type TransactionData struct {
	Status  model.TransactionStatus
	Entries []EntryData // nil/empty is legal on update when no entries change
}

// TransactionCommandMap is a validated create_transaction/update_transaction
// command.
type TransactionCommandMap struct {
	Envelope
	Payload TransactionData
}

// AccountInfo is the minimal account state validation needs to check
// currency and normal-balance compatibility, resolved by the caller since
// validation has no database access of its own. ID lets
// ValidateUpdateTransaction confirm that a new entry at a given position
// still targets the same account as the original entry it replaces.
type AccountInfo struct {
	ID            uuid.UUID
	NormalBalance model.NormalBalance
	Currency      string
}

// AccountResolver looks up AccountInfo by address within the command's
// instance.
type AccountResolver func(address string) (AccountInfo, bool)

// ValidateCreateTransaction validates a create_transaction payload: at
// least two entries, distinct account addresses, and a transaction that
// balances per currency once signs are normalized against each account's
// normal balance.
func ValidateCreateTransaction(cmd TransactionCommandMap, resolve AccountResolver) *apierr.Error {
	if err := cmd.Envelope.validate(); err != nil {
		return err
	}

	err := apierr.Validation("invalid_transaction_payload", "transaction payload failed validation")
	hasErr := false

	switch cmd.Payload.Status {
	case model.TransactionStatusPending, model.TransactionStatusPosted:
	case model.TransactionStatusArchived:
		apierr.WithField(err, "payload.status", "archived cannot be created directly")
		hasErr = true
	default:
		apierr.WithField(err, "payload.status", "must be pending or posted")
		hasErr = true
	}

	if len(cmd.Payload.Entries) < 2 {
		apierr.WithField(err, "payload.entries", "at least two entries are required")
		hasErr = true
	}

	seen := make(map[string]bool, len(cmd.Payload.Entries))
	for i, e := range cmd.Payload.Entries {
		if seen[e.AccountAddress] {
			apierr.WithField(err, "payload.entries", "account addresses must be distinct")
			hasErr = true
		}
		seen[e.AccountAddress] = true
		if e.Amount == 0 {
			apierr.WithField(err, "payload.entries", "amount must be non-zero")
			hasErr = true
		}
		_ = i
	}

	if hasErr {
		return err
	}

	if balErr := checkBalanced(cmd.Payload.Entries, resolve); balErr != nil {
		return balErr
	}

	return nil
}

// checkBalanced verifies that every entry's currency matches its account's
// and that, once each entry's signed amount is normalized into a
// debit/credit type, debits equal credits per currency.
func checkBalanced(entries []EntryData, resolve AccountResolver) *apierr.Error {
	totals := make(map[string]int64) // currency -> net (debit positive, credit negative)
	for _, e := range entries {
		info, ok := resolve(e.AccountAddress)
		if !ok {
			err := apierr.NotFound("account_not_found", "entry references unknown account address")
			return apierr.WithField(err, "payload.entries", e.AccountAddress)
		}
		if e.Currency != info.Currency {
			err := apierr.BalanceViolation("currency_mismatch", "entry currency does not match account currency")
			return apierr.WithField(err, "payload.entries", e.AccountAddress)
		}
		entryType := model.NormalizeSign(e.Amount, info.NormalBalance)
		abs := e.Amount
		if abs < 0 {
			abs = -abs
		}
		if entryType == model.EntryTypeDebit {
			totals[e.Currency] += abs
		} else {
			totals[e.Currency] -= abs
		}
	}
	for currency, net := range totals {
		if net != 0 {
			err := apierr.BalanceViolation("transaction_unbalanced", "entries do not balance for currency "+currency)
			return err
		}
	}
	return nil
}

// ValidateUpdateTransaction validates an update_transaction payload against
// the transaction it targets: entry count/order/currency must match if
// entries are present, and the requested status must be a legal
// transition from the current one.
func ValidateUpdateTransaction(cmd TransactionCommandMap, current model.Transaction, currentEntries []model.Entry, resolve AccountResolver) *apierr.Error {
	if err := cmd.Envelope.validate(); err != nil {
		return err
	}

	err := apierr.Validation("invalid_transaction_update", "transaction update failed validation")
	hasErr := false

	if current.Status.IsTerminal() {
		return apierr.Validation("transaction_immutable_or_not_found", "transaction is in a terminal state and cannot be updated")
	}

	if cmd.Payload.Status != "" && !current.Status.CanTransitionTo(cmd.Payload.Status) {
		apierr.WithField(err, "payload.status", "illegal transition from current transaction state")
		hasErr = true
	}

	if len(cmd.Payload.Entries) > 0 {
		if len(cmd.Payload.Entries) != len(currentEntries) {
			apierr.WithField(err, "payload.entries", "entry count must match the original transaction")
			hasErr = true
		}
		if hasErr {
			return err
		}
		for i, e := range cmd.Payload.Entries {
			info, ok := resolve(e.AccountAddress)
			if !ok {
				notFound := apierr.NotFound("account_not_found", "entry references unknown account address")
				return apierr.WithField(notFound, "payload.entries", e.AccountAddress)
			}
			if info.ID != currentEntries[i].AccountID {
				apierr.WithField(err, "payload.entries", "account address order must match the original transaction")
				hasErr = true
			}
			if e.Currency != currentEntries[i].Currency {
				apierr.WithField(err, "payload.entries", "currency is immutable per position")
				hasErr = true
			}
		}
		if hasErr {
			return err
		}
		if balErr := checkBalanced(cmd.Payload.Entries, resolve); balErr != nil {
			return balErr
		}
	}

	if hasErr {
		return err
	}
	return nil
}
