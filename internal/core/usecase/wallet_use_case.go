package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/events"
	"github.com/Nzyazin/walletledger/internal/core/idempotency"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/Nzyazin/walletledger/internal/core/repository"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type LedgerUsecase interface {
	CreateWallet(ctx context.Context, currencyCode string) (*models.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, id uuid.UUID) (models.Money, error)
	SuspendWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	CloseWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)

	TopUp(ctx context.Context, req TopUpRequest) (models.TransactionSummary, error)
	Payment(ctx context.Context, req PaymentRequest) (models.TransactionSummary, error)
	Refund(ctx context.Context, req RefundRequest) (models.TransactionSummary, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (models.TransactionSummary, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.TransactionSummary, error)
}

type Config struct {
	// MaxRetries bounds attempts of one load-validate-mutate-persist cycle.
	MaxRetries   int
	RetryBackoff time.Duration
	// OperationTimeout caps a single call, zero means the caller's deadline only.
	OperationTimeout time.Duration
}

type Option func(*ledgerUsecase)

func WithIdempotencyStore(store idempotency.Store) Option {
	return func(uc *ledgerUsecase) { uc.idem = store }
}

func WithPublisher(p events.Publisher) Option {
	return func(uc *ledgerUsecase) { uc.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(uc *ledgerUsecase) { uc.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(uc *ledgerUsecase) { uc.now = now }
}

type ledgerUsecase struct {
	store     repository.Store
	idem      idempotency.Store
	publisher events.Publisher
	metrics   *Metrics
	locks     *walletLocks
	cfg       Config
	log       logger.Logger
	now       func() time.Time
}

func NewLedgerUsecase(store repository.Store, log logger.Logger, cfg Config, opts ...Option) LedgerUsecase {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	uc := &ledgerUsecase{
		store:     store,
		idem:      idempotency.NewMemoryStore(24 * time.Hour),
		publisher: events.Noop{},
		locks:     newWalletLocks(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ledgerUsecase) CreateWallet(ctx context.Context, currencyCode string) (*models.Wallet, error) {
	currency, err := models.NewCurrency(currencyCode, "")
	if err != nil {
		uc.log.Warn("Invalid wallet currency", logger.StringField("currency", currencyCode))
		return nil, err
	}

	wallet := models.NewWallet(currency, uc.timestamp())
	if err := uc.store.Wallets().Create(ctx, wallet); err != nil {
		uc.log.Error("Wallet creation failed", logger.ErrorField("error", err))
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	uc.log.Info("Wallet created",
		logger.StringField("wallet_id", wallet.ID.String()),
		logger.StringField("currency", currency.Code))
	return wallet, nil
}

func (uc *ledgerUsecase) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, err := uc.store.Wallets().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (uc *ledgerUsecase) GetBalance(ctx context.Context, id uuid.UUID) (models.Money, error) {
	wallet, err := uc.GetWallet(ctx, id)
	if err != nil {
		return models.Money{}, err
	}
	return wallet.Balance, nil
}

func (uc *ledgerUsecase) SuspendWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return uc.changeStatus(ctx, "suspend", id, (*models.Wallet).Suspend)
}

func (uc *ledgerUsecase) CloseWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return uc.changeStatus(ctx, "close", id, (*models.Wallet).Close)
}

func (uc *ledgerUsecase) changeStatus(ctx context.Context, operation string, id uuid.UUID, transition func(*models.Wallet) error) (*models.Wallet, error) {
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	unlock, err := uc.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := uc.now()
	var wallet *models.Wallet
	err = uc.withRetry(ctx, operation, func() error {
		return uc.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
			w, err := tx.Wallets().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if err := transition(w); err != nil {
				return err
			}
			w.Touch(uc.timestamp())
			if err := tx.Wallets().Update(ctx, w); err != nil {
				return err
			}
			wallet = w
			return nil
		})
	})
	uc.metrics.observe(operation, uc.now().Sub(start).Seconds(), err)
	if err != nil {
		uc.log.Warn("Wallet status change failed",
			logger.StringField("operation", operation),
			logger.StringField("wallet_id", id.String()),
			logger.ErrorField("error", err))
		return nil, err
	}

	uc.log.Info("Wallet status changed",
		logger.StringField("wallet_id", id.String()),
		logger.StringField("status", string(wallet.Status)))
	return wallet, nil
}

func (uc *ledgerUsecase) GetTransaction(ctx context.Context, id uuid.UUID) (models.TransactionSummary, error) {
	tx, err := uc.store.Transactions().GetByID(ctx, id)
	if err != nil {
		return models.TransactionSummary{}, err
	}
	return tx.Summary(), nil
}

func (uc *ledgerUsecase) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.TransactionSummary, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidRequest)
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if _, err := uc.store.Wallets().GetByID(ctx, walletID); err != nil {
		return nil, err
	}

	txs, err := uc.store.Transactions().ListByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	result := make([]models.TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		result = append(result, tx.Summary())
	}
	return result, nil
}

// withRetry re-runs fn while it fails with a concurrency conflict, up to
// cfg.MaxRetries attempts with a linear backoff.
func (uc *ledgerUsecase) withRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, models.ErrConcurrencyConflict) {
			return err
		}
		if attempt >= uc.cfg.MaxRetries {
			return fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrRetriesExhausted, attempt, err)
		}

		uc.metrics.retried(operation)
		uc.log.Warn("Concurrency conflict, retrying",
			logger.StringField("operation", operation),
			logger.IntField("attempt", attempt),
			logger.ErrorField("error", err))

		select {
		case <-time.After(uc.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (uc *ledgerUsecase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.OperationTimeout)
}

// timestamp is truncated to what PostgreSQL stores, so values round-trip.
func (uc *ledgerUsecase) timestamp() time.Time {
	return uc.now().UTC().Truncate(time.Microsecond)
}
