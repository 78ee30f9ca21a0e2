package repository

import (
	"context"

	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/google/uuid"
)

// WalletRepository persists wallets. Update is an optimistic write: it fails with
// models.ErrConcurrencyConflict when the stored version differs from wallet.Version,
// and bumps wallet.Version on success.
type WalletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	Create(ctx context.Context, wallet *models.Wallet) error
	Update(ctx context.Context, wallet *models.Wallet) error
}

// TransactionRepository persists the transaction history.
type TransactionRepository interface {
	// Add stores a new transaction, models.ErrDuplicateTransaction if the id exists.
	Add(ctx context.Context, tx *models.Transaction) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)

	// Update is versioned the same way as WalletRepository.Update.
	Update(ctx context.Context, tx *models.Transaction) error

	// ListByWallet returns the wallet history, newest first.
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

// Store groups the repositories and provides the atomic unit boundary.
type Store interface {
	Wallets() WalletRepository
	Transactions() TransactionRepository

	// RunInTx runs fn against a transactional Store. Everything fn writes commits
	// together when it returns nil and is discarded otherwise. A cancelled ctx
	// aborts the unit before commit; a commit that has started runs to completion.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
