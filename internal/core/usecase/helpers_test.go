package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/events"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/repository"
	"github.com/Nzyazin/walletledger/internal/core/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{MaxRetries: 5, RetryBackoff: time.Millisecond, OperationTimeout: 5 * time.Second}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	store     *memory.Store
	uc        *ledgerUsecase
	publisher *events.Recorder
}

func newFixture(t *testing.T, store repository.Store, opts ...Option) *fixture {
	t.Helper()
	mem := memory.NewStore()
	if store == nil {
		store = mem
	}
	rec := &events.Recorder{}
	opts = append([]Option{WithPublisher(rec)}, opts...)
	uc := NewLedgerUsecase(store, logger.NewNop(), testConfig, opts...).(*ledgerUsecase)
	return &fixture{store: mem, uc: uc, publisher: rec}
}

func (f *fixture) wallet(t *testing.T, balance string) *models.Wallet {
	t.Helper()
	w, err := f.uc.CreateWallet(context.Background(), "USD")
	require.NoError(t, err)
	if balance != "" && balance != "0" {
		_, err := f.uc.TopUp(context.Background(), TopUpRequest{WalletID: w.ID, Amount: dec(balance)})
		require.NoError(t, err)
	}
	return w
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	m, err := f.uc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return m.Amount
}

func (f *fixture) history(t *testing.T, id uuid.UUID) []models.TransactionSummary {
	t.Helper()
	txs, err := f.uc.ListTransactions(context.Background(), id, maxPageSize, 0)
	require.NoError(t, err)
	return txs
}

// conflictStore fails the first wallet updates with ErrConcurrencyConflict,
// or, with ackLost, commits the unit and then reports a conflict.
type conflictStore struct {
	repository.Store
	mu        sync.Mutex
	failures  int
	ackLost   bool
	attempts  int
	conflicts int
}

func (s *conflictStore) takeFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == 0 {
		return false
	}
	s.failures--
	s.conflicts++
	return true
}

func (s *conflictStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	if s.ackLost {
		if err := s.Store.RunInTx(ctx, fn); err != nil {
			return err
		}
		if s.takeFailure() {
			return models.ErrConcurrencyConflict
		}
		return nil
	}

	return s.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, conflictUnit{Store: tx, parent: s})
	})
}

type conflictUnit struct {
	repository.Store
	parent *conflictStore
}

func (u conflictUnit) Wallets() repository.WalletRepository {
	return conflictWallets{WalletRepository: u.Store.Wallets(), parent: u.parent}
}

type conflictWallets struct {
	repository.WalletRepository
	parent *conflictStore
}

func (w conflictWallets) Update(ctx context.Context, wallet *models.Wallet) error {
	if w.parent.takeFailure() {
		return models.ErrConcurrencyConflict
	}
	return w.WalletRepository.Update(ctx, wallet)
}
