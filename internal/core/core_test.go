package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/domain/model"
	"ledger-core/internal/infrastructure/messaging"
	"ledger-core/internal/occ"
	"ledger-core/internal/pkg/apierr"
	"ledger-core/internal/scheduler"
	"ledger-core/internal/workers"
)

type fakeCoreStore struct {
	instances      map[string]*model.Instance
	insertedCmds   []*model.Command
	insertedItems  []*model.CommandQueueItem
	idempotencyErr *apierr.Error
}

func newFakeCoreStore() *fakeCoreStore {
	return &fakeCoreStore{instances: map[string]*model.Instance{}}
}

func (s *fakeCoreStore) GetInstanceByAddress(ctx context.Context, address string) (*model.Instance, bool, error) {
	i, ok := s.instances[address]
	return i, ok, nil
}

func (s *fakeCoreStore) InsertCommandWithIdempotency(ctx context.Context, cmd *model.Command, item *model.CommandQueueItem, keyHash string) *apierr.Error {
	if s.idempotencyErr != nil {
		return s.idempotencyErr
	}
	s.insertedCmds = append(s.insertedCmds, cmd)
	s.insertedItems = append(s.insertedItems, item)
	return nil
}

func (s *fakeCoreStore) InsertCommand(ctx context.Context, cmd *model.Command) error {
	s.insertedCmds = append(s.insertedCmds, cmd)
	return nil
}

func (s *fakeCoreStore) InsertQueueItemForCommand(ctx context.Context, item *model.CommandQueueItem) error {
	s.insertedItems = append(s.insertedItems, item)
	return nil
}

// fakeCoreWorkersStore implements workers.Store, just enough to run
// create_account through the real worker pipeline synchronously.
type fakeCoreWorkersStore struct {
	accounts map[string]*model.Account
}

func (s *fakeCoreWorkersStore) GetAccountByAddress(ctx context.Context, instanceID uuid.UUID, address string) (*model.Account, bool, error) {
	a, ok := s.accounts[address]
	return a, ok, nil
}
func (s *fakeCoreWorkersStore) GetAccountsByAddresses(ctx context.Context, instanceID uuid.UUID, addresses []string) (map[string]*model.Account, error) {
	return nil, nil
}
func (s *fakeCoreWorkersStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, bool, error) {
	return nil, false, nil
}
func (s *fakeCoreWorkersStore) CreateAccountTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	s.accounts[a.Address] = a
	return nil
}
func (s *fakeCoreWorkersStore) UpdateAccountFieldsTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	return nil
}
func (s *fakeCoreWorkersStore) UpdateAccountCAS(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	return nil
}
func (s *fakeCoreWorkersStore) CreateTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	return nil
}
func (s *fakeCoreWorkersStore) GetTransaction(ctx context.Context, instanceID, id uuid.UUID) (*model.Transaction, bool, error) {
	return nil, false, nil
}
func (s *fakeCoreWorkersStore) UpdateTransactionStatusCAS(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	return nil
}
func (s *fakeCoreWorkersStore) GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Entry, error) {
	return nil, nil
}
func (s *fakeCoreWorkersStore) InsertEntry(ctx context.Context, tx pgx.Tx, e *model.Entry) error {
	return nil
}
func (s *fakeCoreWorkersStore) InsertBalanceHistoryEntry(ctx context.Context, tx pgx.Tx, h *model.BalanceHistoryEntry) error {
	return nil
}
func (s *fakeCoreWorkersStore) GetQueueItemByCommandID(ctx context.Context, commandID uuid.UUID) (*model.CommandQueueItem, error) {
	return nil, pgx.ErrNoRows
}
func (s *fakeCoreWorkersStore) InsertJournalEvent(ctx context.Context, tx pgx.Tx, j *model.JournalEvent) error {
	return nil
}
func (s *fakeCoreWorkersStore) LinkJournalEventCommand(ctx context.Context, tx pgx.Tx, journalEventID, commandID uuid.UUID) error {
	return nil
}
func (s *fakeCoreWorkersStore) LinkJournalEventTransaction(ctx context.Context, tx pgx.Tx, journalEventID, transactionID uuid.UUID) error {
	return nil
}
func (s *fakeCoreWorkersStore) LinkJournalEventAccount(ctx context.Context, tx pgx.Tx, journalEventID, accountID uuid.UUID) error {
	return nil
}
func (s *fakeCoreWorkersStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func newTestWorkers(ws *fakeCoreWorkersStore) *workers.Workers {
	return workers.New(workers.Deps{
		Store:       ws,
		Publisher:   messaging.NewNoOpJournalPublisher(),
		OCCPolicy:   occ.Policy{MaxRetries: 3, BaseInterval: time.Millisecond, Sleep: func(time.Duration) {}},
		QueuePolicy: scheduler.BackoffPolicy{MaxRetries: 5, Base: time.Second, Max: time.Minute},
	})
}

func createAccountParams() map[string]any {
	return map[string]any{
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
}

func TestCreateFromParamsRejectsUnknownInstance(t *testing.T) {
	store := newFakeCoreStore()
	c := New(store, newTestWorkers(&fakeCoreWorkersStore{accounts: map[string]*model.Account{}}), nil)

	_, verr := c.CreateFromParams(context.Background(), createAccountParams())
	require.NotNil(t, verr)
	assert.Equal(t, apierr.KindNotFound, verr.Kind)
}

func TestCreateFromParamsEnqueuesAndWakes(t *testing.T) {
	store := newFakeCoreStore()
	store.instances["acme"] = &model.Instance{ID: uuid.New(), Address: "acme"}

	var woken uuid.UUID
	wake := func(instanceID uuid.UUID) { woken = instanceID }

	c := New(store, newTestWorkers(&fakeCoreWorkersStore{accounts: map[string]*model.Account{}}), wake)

	cmd, verr := c.CreateFromParams(context.Background(), createAccountParams())
	require.Nil(t, verr)
	require.NotNil(t, cmd)
	assert.Equal(t, store.instances["acme"].ID, cmd.InstanceID)
	require.Len(t, store.insertedItems, 1)
	assert.Equal(t, model.QueueStatusPending, store.insertedItems[0].Status)
	assert.Equal(t, store.instances["acme"].ID, woken)
}

func TestCreateFromParamsRejectsUnsupportedAction(t *testing.T) {
	store := newFakeCoreStore()
	c := New(store, newTestWorkers(&fakeCoreWorkersStore{accounts: map[string]*model.Account{}}), nil)

	_, verr := c.CreateFromParams(context.Background(), map[string]any{"action": "delete_everything"})
	require.NotNil(t, verr)
	assert.Equal(t, apierr.KindValidation, verr.Kind)
}

func TestProcessFromParamsSucceedsSynchronously(t *testing.T) {
	store := newFakeCoreStore()
	store.instances["acme"] = &model.Instance{ID: uuid.New(), Address: "acme"}
	ws := &fakeCoreWorkersStore{accounts: map[string]*model.Account{}}
	c := New(store, newTestWorkers(ws), nil)

	projection, cmd, verr := c.ProcessFromParams(context.Background(), createAccountParams(), ProcessOpts{OnError: OnErrorFail})
	require.Nil(t, verr)
	require.NotNil(t, cmd)
	require.NotNil(t, projection)
	require.Len(t, store.insertedCmds, 1)
	assert.Empty(t, store.insertedItems)
	_, ok := ws.accounts["cash:main"]
	assert.True(t, ok)
}

func TestProcessFromParamsOnErrorFailLeavesNoQueueItem(t *testing.T) {
	store := newFakeCoreStore()
	store.instances["acme"] = &model.Instance{ID: uuid.New(), Address: "acme"}
	ws := &fakeCoreWorkersStore{accounts: map[string]*model.Account{"cash:main": {Address: "cash:main"}}}
	c := New(store, newTestWorkers(ws), nil)

	_, cmd, verr := c.ProcessFromParams(context.Background(), createAccountParams(), ProcessOpts{OnError: OnErrorFail})
	require.NotNil(t, verr)
	require.NotNil(t, cmd)
	assert.Empty(t, store.insertedItems)
}

func TestProcessFromParamsOnErrorRetryEnqueuesForBackground(t *testing.T) {
	store := newFakeCoreStore()
	store.instances["acme"] = &model.Instance{ID: uuid.New(), Address: "acme"}
	ws := &fakeCoreWorkersStore{accounts: map[string]*model.Account{"cash:main": {Address: "cash:main"}}}

	var woken bool
	wake := func(uuid.UUID) { woken = true }
	c := New(store, newTestWorkers(ws), wake)

	_, cmd, verr := c.ProcessFromParams(context.Background(), createAccountParams(), ProcessOpts{OnError: OnErrorRetry})
	require.NotNil(t, verr)
	require.NotNil(t, cmd)
	require.Len(t, store.insertedItems, 1)
	assert.Equal(t, model.QueueStatusPending, store.insertedItems[0].Status)
	assert.True(t, woken)
}
