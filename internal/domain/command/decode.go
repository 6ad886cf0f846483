package command

import (
	"ledger-core/internal/domain/model"
	"ledger-core/internal/pkg/apierr"
)

// DecodeEnvelope reads the fields common to every command shape out of a
// raw CommandMap keyed by plain strings, since Go's encoding/json never
// produces anything else.
func DecodeEnvelope(m map[string]any) Envelope {
	return Envelope{
		Action:          Action(str(m, "action")),
		InstanceAddress: str(m, "instance_address"),
		Source:          str(m, "source"),
		SourceIdempK:    str(m, "source_idempk"),
		UpdateIdempK:    str(m, "update_idempk"),
	}
}

// DecodeAccountCommand decodes m into an AccountCommandMap and validates
// it. isCreate selects which AccountData fields are required.
func DecodeAccountCommand(m map[string]any, isCreate bool) (AccountCommandMap, *apierr.Error) {
	envelope := DecodeEnvelope(m)
	payload, _ := m["payload"].(map[string]any)

	data := AccountData{
		Address:         str(payload, "address"),
		Name:            str(payload, "name"),
		Description:     str(payload, "description"),
		Type:            model.AccountType(str(payload, "type")),
		Currency:        str(payload, "currency"),
		AllowedNegative: boolean(payload, "allowed_negative"),
	}
	if nb, ok := payload["normal_balance"]; ok {
		data.NormalBalance = model.NormalBalance(toString(nb))
		data.NormalBalanceSet = true
	} else if validAccountType(data.Type) {
		data.NormalBalance = model.DefaultNormalBalance(data.Type)
	}
	if ctx, ok := payload["context"].(map[string]any); ok {
		data.Context = ctx
	}

	cmd := AccountCommandMap{Envelope: envelope, Payload: data}
	if err := ValidateAccountCommand(cmd, isCreate); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// DecodeTransactionCommand decodes m into a TransactionCommandMap without
// validating it; validation needs an AccountResolver the decoder doesn't
// have, so callers run ValidateCreateTransaction/ValidateUpdateTransaction
// themselves once accounts are resolved.
func DecodeTransactionCommand(m map[string]any) TransactionCommandMap {
	envelope := DecodeEnvelope(m)
	payload, _ := m["payload"].(map[string]any)

	data := TransactionData{
		Status: model.TransactionStatus(str(payload, "status")),
	}
	if rawEntries, ok := payload["entries"].([]any); ok {
		data.Entries = make([]EntryData, 0, len(rawEntries))
		for _, re := range rawEntries {
			em, ok := re.(map[string]any)
			if !ok {
				continue
			}
			data.Entries = append(data.Entries, EntryData{
				AccountAddress: str(em, "account_address"),
				Amount:         int64(number(em, "amount")),
				Currency:       str(em, "currency"),
			})
		}
	}

	return TransactionCommandMap{Envelope: envelope, Payload: data}
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	return toString(m[key])
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func number(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
