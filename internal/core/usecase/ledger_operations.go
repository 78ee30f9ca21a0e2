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
	"github.com/shopspring/decimal"
)

const (
	opTopUp   = "topup"
	opPayment = "payment"
	opRefund  = "refund"
)

type TopUpRequest struct {
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

type PaymentRequest struct {
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

type RefundRequest struct {
	TransactionID  uuid.UUID
	IdempotencyKey string
}

// ledgerStep runs inside one unit of work. It returns the new transaction and
// any other transactions it changed.
type ledgerStep func(ctx context.Context, tx repository.Store, txID uuid.UUID) (*models.Transaction, []*models.Transaction, error)

func (uc *ledgerUsecase) TopUp(ctx context.Context, req TopUpRequest) (models.TransactionSummary, error) {
	return uc.execute(ctx, opTopUp, req.WalletID, uuid.Nil, req.IdempotencyKey, models.TransactionTypeTopUp,
		func(ctx context.Context, tx repository.Store, txID uuid.UUID) (*models.Transaction, []*models.Transaction, error) {
			wallet, err := tx.Wallets().GetByID(ctx, req.WalletID)
			if err != nil {
				return nil, nil, err
			}
			if err := wallet.TopUp(req.Amount); err != nil {
				return nil, nil, err
			}

			record, err := uc.record(ctx, tx, wallet, txID, req.Amount, models.TransactionTypeTopUp, req.Description)
			return record, nil, err
		})
}

func (uc *ledgerUsecase) Payment(ctx context.Context, req PaymentRequest) (models.TransactionSummary, error) {
	return uc.execute(ctx, opPayment, req.WalletID, uuid.Nil, req.IdempotencyKey, models.TransactionTypePayment,
		func(ctx context.Context, tx repository.Store, txID uuid.UUID) (*models.Transaction, []*models.Transaction, error) {
			wallet, err := tx.Wallets().GetByID(ctx, req.WalletID)
			if err != nil {
				return nil, nil, err
			}
			if err := wallet.Debit(req.Amount); err != nil {
				uc.log.Warn("Payment rejected",
					logger.StringField("wallet_id", wallet.ID.String()),
					logger.StringField("balance", wallet.Balance.String()),
					logger.StringField("requested", req.Amount.String()),
					logger.ErrorField("error", err))
				return nil, nil, err
			}

			record, err := uc.record(ctx, tx, wallet, txID, req.Amount, models.TransactionTypePayment, req.Description)
			return record, nil, err
		})
}

func (uc *ledgerUsecase) Refund(ctx context.Context, req RefundRequest) (models.TransactionSummary, error) {
	// The wallet to serialize on is only known from the original transaction.
	original, err := uc.store.Transactions().GetByID(ctx, req.TransactionID)
	if err != nil {
		uc.metrics.observe(opRefund, 0, err)
		return models.TransactionSummary{}, err
	}

	return uc.execute(ctx, opRefund, original.WalletID, original.ID, req.IdempotencyKey, models.TransactionTypeRefund,
		func(ctx context.Context, tx repository.Store, txID uuid.UUID) (*models.Transaction, []*models.Transaction, error) {
			original, err := tx.Transactions().GetByID(ctx, req.TransactionID)
			if err != nil {
				return nil, nil, err
			}
			if !original.CanBeRefunded() {
				return nil, nil, fmt.Errorf("%w: %s %s is %s",
					models.ErrInvalidRefundTarget, original.Type, original.ID, original.Status)
			}

			wallet, err := tx.Wallets().GetByID(ctx, original.WalletID)
			if err != nil {
				return nil, nil, err
			}
			if !wallet.Currency().Equal(original.Amount.Currency) {
				return nil, nil, fmt.Errorf("%w: wallet %s, transaction %s",
					models.ErrCurrencyMismatch, wallet.Currency(), original.Amount.Currency)
			}
			if err := wallet.Credit(original.Amount.Amount); err != nil {
				return nil, nil, err
			}
			if err := original.MarkReversed(); err != nil {
				return nil, nil, err
			}

			now := uc.transactionTime(wallet)
			refund, err := models.NewRefundTransaction(txID, original, now)
			if err != nil {
				return nil, nil, err
			}
			wallet.Touch(now)

			if err := tx.Transactions().Add(ctx, refund); err != nil {
				return nil, nil, err
			}
			if err := tx.Transactions().Update(ctx, original); err != nil {
				return nil, nil, err
			}
			if err := tx.Wallets().Update(ctx, wallet); err != nil {
				return nil, nil, err
			}
			return refund, []*models.Transaction{original}, nil
		})
}

// record builds the transaction for an already mutated wallet and persists both.
func (uc *ledgerUsecase) record(ctx context.Context, tx repository.Store, wallet *models.Wallet, txID uuid.UUID,
	amount decimal.Decimal, txType models.TransactionType, description string) (*models.Transaction, error) {
	now := uc.transactionTime(wallet)
	record, err := models.NewTransaction(txID, wallet.ID, models.NewMoney(amount, wallet.Currency()), txType, description, now)
	if err != nil {
		return nil, err
	}
	wallet.Touch(now)

	if err := tx.Transactions().Add(ctx, record); err != nil {
		return nil, err
	}
	if err := tx.Wallets().Update(ctx, wallet); err != nil {
		return nil, err
	}
	return record, nil
}

// transactionTime never goes below the wallet's last modification, which keeps
// createdAt non-decreasing across one wallet's history.
func (uc *ledgerUsecase) transactionTime(wallet *models.Wallet) time.Time {
	now := uc.timestamp()
	if now.Before(wallet.UpdatedAt) {
		return wallet.UpdatedAt
	}
	return now
}

// execute runs step as one atomic, retried, per-wallet serialized operation.
// The transaction id is fixed before the first attempt; if a unit finds it
// already stored for the same request, the earlier result is returned and
// nothing is mutated. target is the refunded transaction, uuid.Nil otherwise.
func (uc *ledgerUsecase) execute(ctx context.Context, operation string, walletID, target uuid.UUID, idemKey string,
	txType models.TransactionType, step ledgerStep) (models.TransactionSummary, error) {
	start := uc.now()
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	uc.log.Info("Starting operation",
		logger.StringField("operation", operation),
		logger.StringField("wallet_id", walletID.String()))

	unlock, err := uc.locks.Lock(ctx, walletID)
	if err != nil {
		uc.metrics.observe(operation, uc.now().Sub(start).Seconds(), err)
		return models.TransactionSummary{}, err
	}
	defer unlock()

	txID, err := uc.reserveTransactionID(ctx, idemKey)
	if err != nil {
		uc.metrics.observe(operation, uc.now().Sub(start).Seconds(), err)
		return models.TransactionSummary{}, err
	}

	var (
		result   *models.Transaction
		changed  []*models.Transaction
		replayed bool
	)
	err = uc.withRetry(ctx, operation, func() error {
		return uc.store.RunInTx(ctx, func(ctx context.Context, tx repository.Store) error {
			existing, err := tx.Transactions().GetByID(ctx, txID)
			switch {
			case err == nil:
				if !sameRequest(existing, txType, walletID, target) {
					return fmt.Errorf("%w: %q belongs to %s %s on wallet %s",
						idempotency.ErrKeyConflict, idemKey, existing.Type, existing.ID, existing.WalletID)
				}
				result, changed, replayed = existing, nil, true
				return nil
			case !errors.Is(err, models.ErrTransactionNotFound):
				return err
			}

			result, changed, err = step(ctx, tx, txID)
			replayed = false
			return err
		})
	})
	uc.metrics.observe(operation, uc.now().Sub(start).Seconds(), err)
	if err != nil {
		uc.log.Warn("Operation failed",
			logger.StringField("operation", operation),
			logger.StringField("wallet_id", walletID.String()),
			logger.ErrorField("error", err))
		return models.TransactionSummary{}, err
	}

	if replayed {
		uc.log.Info("Operation already completed, returning stored result",
			logger.StringField("operation", operation),
			logger.StringField("transaction_id", result.ID.String()))
		return result.Summary(), nil
	}

	uc.log.Info("Operation completed",
		logger.StringField("operation", operation),
		logger.StringField("wallet_id", walletID.String()),
		logger.StringField("transaction_id", result.ID.String()),
		logger.StringField("amount", result.Amount.String()))

	uc.publish(ctx, append([]*models.Transaction{result}, changed...))
	return result.Summary(), nil
}

// sameRequest reports whether existing was produced by the operation now being
// replayed. A key reused on another wallet or refund target is a conflict.
func sameRequest(existing *models.Transaction, txType models.TransactionType, walletID, target uuid.UUID) bool {
	if existing.Type != txType || existing.WalletID != walletID {
		return false
	}
	if target == uuid.Nil {
		return existing.OriginalTransactionID == nil
	}
	return existing.OriginalTransactionID != nil && *existing.OriginalTransactionID == target
}

// reserveTransactionID returns the transaction id bound to key, binding a
// fresh one when the key is new. Without a key every call gets a new id.
func (uc *ledgerUsecase) reserveTransactionID(ctx context.Context, key string) (uuid.UUID, error) {
	if key == "" {
		return uuid.New(), nil
	}

	id, found, err := uc.idem.Get(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	if found {
		return id, nil
	}

	id = uuid.New()
	err = uc.idem.Put(ctx, key, id)
	if errors.Is(err, idempotency.ErrKeyConflict) {
		// Lost the race to another caller; share its id.
		existing, found, getErr := uc.idem.Get(ctx, key)
		if getErr != nil {
			return uuid.Nil, getErr
		}
		if found {
			return existing, nil
		}
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// publish is best effort: the ledger state is already committed.
func (uc *ledgerUsecase) publish(ctx context.Context, txs []*models.Transaction) {
	for _, tx := range txs {
		if err := uc.publisher.PublishTransaction(ctx, events.NewTransactionEvent(tx)); err != nil {
			uc.log.Error("Failed to publish ledger event",
				logger.StringField("transaction_id", tx.ID.String()),
				logger.ErrorField("error", err))
		}
	}
}
