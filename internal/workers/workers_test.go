package workers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/occ"
)

type fakeStore struct {
	byAddress  map[string]*model.Account
	byID       map[uuid.UUID]*model.Account
	txByID     map[uuid.UUID]*model.Transaction
	entries    map[uuid.UUID][]model.Entry
	queueItems map[uuid.UUID]*model.CommandQueueItem // keyed by CommandID
	journals   int

	// staleCASCount forces the first N calls to UpdateAccountCAS to fail
	// with a stale-entry conflict, simulating concurrent OCC contention.
	staleCASCount int
	casCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byAddress:  map[string]*model.Account{},
		byID:       map[uuid.UUID]*model.Account{},
		txByID:     map[uuid.UUID]*model.Transaction{},
		entries:    map[uuid.UUID][]model.Entry{},
		queueItems: map[uuid.UUID]*model.CommandQueueItem{},
	}
}

func (s *fakeStore) GetAccountByAddress(ctx context.Context, instanceID uuid.UUID, address string) (*model.Account, bool, error) {
	a, ok := s.byAddress[address]
	return a, ok, nil
}

func (s *fakeStore) GetAccountsByAddresses(ctx context.Context, instanceID uuid.UUID, addresses []string) (map[string]*model.Account, error) {
	out := make(map[string]*model.Account, len(addresses))
	for _, addr := range addresses {
		if a, ok := s.byAddress[addr]; ok {
			out[addr] = a
		}
	}
	return out, nil
}

func (s *fakeStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, bool, error) {
	a, ok := s.byID[id]
	return a, ok, nil
}

func (s *fakeStore) CreateAccountTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	s.byAddress[a.Address] = a
	s.byID[a.ID] = a
	return nil
}

func (s *fakeStore) UpdateAccountFieldsTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	s.byAddress[a.Address] = a
	s.byID[a.ID] = a
	return nil
}

func (s *fakeStore) UpdateAccountCAS(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	s.casCalls++
	if s.casCalls <= s.staleCASCount {
		return &occ.StaleEntryError{Resource: "account:" + a.Address}
	}
	s.byID[a.ID] = a
	return nil
}

func (s *fakeStore) CreateTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	s.txByID[t.ID] = t
	return nil
}

func (s *fakeStore) GetTransaction(ctx context.Context, instanceID, id uuid.UUID) (*model.Transaction, bool, error) {
	t, ok := s.txByID[id]
	return t, ok, nil
}

func (s *fakeStore) UpdateTransactionStatusCAS(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	s.txByID[t.ID] = t
	return nil
}

func (s *fakeStore) GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Entry, error) {
	return s.entries[transactionID], nil
}

func (s *fakeStore) InsertEntry(ctx context.Context, tx pgx.Tx, e *model.Entry) error {
	s.entries[e.TransactionID] = append(s.entries[e.TransactionID], *e)
	return nil
}

func (s *fakeStore) InsertBalanceHistoryEntry(ctx context.Context, tx pgx.Tx, h *model.BalanceHistoryEntry) error {
	return nil
}

func (s *fakeStore) GetQueueItemByCommandID(ctx context.Context, commandID uuid.UUID) (*model.CommandQueueItem, error) {
	item, ok := s.queueItems[commandID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return item, nil
}

func (s *fakeStore) InsertJournalEvent(ctx context.Context, tx pgx.Tx, j *model.JournalEvent) error {
	s.journals++
	return nil
}

func (s *fakeStore) LinkJournalEventCommand(ctx context.Context, tx pgx.Tx, journalEventID, commandID uuid.UUID) error {
	return nil
}

func (s *fakeStore) LinkJournalEventTransaction(ctx context.Context, tx pgx.Tx, journalEventID, transactionID uuid.UUID) error {
	return nil
}

func (s *fakeStore) LinkJournalEventAccount(ctx context.Context, tx pgx.Tx, journalEventID, accountID uuid.UUID) error {
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type fakeLookupStore struct {
	rows map[string]*model.PendingTransactionLookup
}

func newFakeLookupStore() *fakeLookupStore {
	return &fakeLookupStore{rows: map[string]*model.PendingTransactionLookup{}}
}

func lookupKey(instanceID uuid.UUID, source, sourceIdempK string) string {
	return instanceID.String() + "|" + source + "|" + sourceIdempK
}

func (s *fakeLookupStore) PutPendingTransactionLookup(ctx context.Context, tx pgx.Tx, l *model.PendingTransactionLookup) error {
	s.rows[lookupKey(l.InstanceID, l.Source, l.SourceIdempK)] = l
	return nil
}

func (s *fakeLookupStore) GetPendingTransactionLookup(ctx context.Context, instanceID uuid.UUID, source, sourceIdempK string) (*model.PendingTransactionLookup, bool, error) {
	l, ok := s.rows[lookupKey(instanceID, source, sourceIdempK)]
	return l, ok, nil
}

func (s *fakeLookupStore) DeletePendingTransactionLookup(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID, source, sourceIdempK string) error {
	delete(s.rows, lookupKey(instanceID, source, sourceIdempK))
	return nil
}

func assetAccountFixture(address string) *model.Account {
	return &model.Account{
		ID:            uuid.New(),
		Address:       address,
		Type:          model.AccountTypeAsset,
		NormalBalance: model.NormalBalanceDebit,
		Currency:      "USD",
	}
}

func revenueAccountFixture(address string) *model.Account {
	return &model.Account{
		ID:            uuid.New(),
		Address:       address,
		Type:          model.AccountTypeRevenue,
		NormalBalance: model.NormalBalanceCredit,
		Currency:      "USD",
	}
}
